package config

import "time"

// Config is built once in main and passed by reference to each component.
// Secrets (account credentials, S3 keys, Telegram token) come from the
// environment and are wired in cmd/server, not stored here.
type Config struct {
	Addr   string
	DBPath string

	AllowedOrigins []string

	RateLimit RateLimit
	File      File
	Path      Path
	Abuse     Abuse
	Upload    Upload
	Quota     Quota
}

// RateLimit bounds admitted POST requests per identity per window.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
}

type File struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// Path controls generated public identifiers. A FolderLength of zero
// means uploads get no folder segment.
type Path struct {
	FolderLength   int
	FilenameLength int
}

// Abuse controls the failed-read block escalation.
type Abuse struct {
	MaxFailedReads   int
	InactivityWindow time.Duration
	BlockDuration    time.Duration
}

type Upload struct {
	Attempts   int
	RetryDelay time.Duration
	Timeout    time.Duration
}

type Quota struct {
	LimitBytes    int64
	CheckInterval time.Duration
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Addr:   ":8080",
		DBPath: "imgvault.db",
		RateLimit: RateLimit{
			MaxRequests: 20,
			Window:      5 * time.Minute,
		},
		File: File{
			MaxSizeBytes: 10 << 20,
			AllowedTypes: []string{
				"image/jpeg", "image/png", "image/gif",
				"image/bmp", "image/tiff", "image/webp",
			},
		},
		Path: Path{
			FolderLength:   0,
			FilenameLength: 8,
		},
		Abuse: Abuse{
			MaxFailedReads:   10,
			InactivityWindow: 24 * time.Hour,
			BlockDuration:    24 * time.Hour,
		},
		Upload: Upload{
			Attempts:   3,
			RetryDelay: 3 * time.Second,
			Timeout:    60 * time.Second,
		},
		Quota: Quota{
			LimitBytes:    15 << 30,
			CheckInterval: 1 * time.Hour,
		},
	}
}

// AllowsType reports whether the content type is an accepted upload type.
func (f File) AllowsType(contentType string) bool {
	for _, t := range f.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
