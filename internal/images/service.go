package images

import (
	"context"
	"fmt"
	"io"
	"time"

	"imgvault/internal/store"
	"imgvault/internal/tasks"
)

// ServiceConfig controls identifier generation and upload retries.
type ServiceConfig struct {
	FolderLength   int
	FilenameLength int
	UploadAttempts int
	RetryDelay     time.Duration
	UploadTimeout  time.Duration
}

// Service orchestrates uploads (naming, bounded retry, metadata,
// fire-and-forget optimization) and resolves stored identifiers back to
// streamed bytes.
type Service struct {
	store     store.Store
	backend   Backend
	optimizer Fetcher
	runner    *tasks.Runner
	cfg       ServiceConfig

	sleep func(time.Duration)
	now   func() time.Time
}

func NewService(st store.Store, backend Backend, optimizer Fetcher, runner *tasks.Runner, cfg ServiceConfig) *Service {
	return &Service{
		store:     st,
		backend:   backend,
		optimizer: optimizer,
		runner:    runner,
		cfg:       cfg,
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// StoredImage is the result of a successful upload.
type StoredImage struct {
	Folder   string
	Filename string
	URL      string
	Account  string
	Size     int64
}

// Upload stores the file at the backing service under a generated public
// identifier, records metadata, and schedules the optimization pass. The
// upload is attempted up to the configured number of times with a fixed
// delay in between; the last attempt's error propagates.
func (s *Service) Upload(ctx context.Context, data []byte, contentType, clientFilename string) (*StoredImage, error) {
	folder := randomName(s.cfg.FolderLength)
	filename := randomName(s.cfg.FilenameLength) + "." + fileExtension(clientFilename)
	id := publicID(folder, filename)

	var res *UploadResult
	err := attemptWithRetry(ctx, s.cfg.UploadAttempts, s.cfg.RetryDelay, s.cfg.UploadTimeout, s.sleep, func(ctx context.Context) error {
		var err error
		res, err = s.backend.Upload(ctx, UploadRequest{
			PublicID:    id,
			Data:        data,
			ContentType: contentType,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", id, err)
	}

	img := &store.Image{
		Folder:     folder,
		Filename:   filename,
		BackingURL: res.URL,
		Size:       int64(len(data)),
		Account:    res.Account,
		CreatedAt:  s.now(),
	}
	if err := s.store.SaveImage(ctx, img); err != nil {
		return nil, fmt.Errorf("save metadata for %s: %w", id, err)
	}

	s.scheduleOptimize(id, res.URL, res.Account, contentType)

	return &StoredImage{
		Folder:   folder,
		Filename: filename,
		URL:      res.URL,
		Account:  res.Account,
		Size:     img.Size,
	}, nil
}

// scheduleOptimize hands the optimization pass to the background runner:
// refetch the stored image through the optimizing intermediary and, if
// that succeeds, overwrite the object on the same account. The outcome
// never reaches the client that uploaded.
func (s *Service) scheduleOptimize(id, backingURL, account, contentType string) {
	s.runner.Go("optimize "+id, func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
		defer cancel()

		body, _, err := s.optimizer.Fetch(fetchCtx, backingURL)
		if err != nil {
			return fmt.Errorf("optimize fetch %s: %w", id, err)
		}
		defer body.Close()

		optimized, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("optimize read %s: %w", id, err)
		}

		uploadCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
		defer cancel()

		_, err = s.backend.Upload(uploadCtx, UploadRequest{
			PublicID:    id,
			Data:        optimized,
			ContentType: contentType,
			Overwrite:   true,
			Account:     account,
		})
		if err != nil {
			return fmt.Errorf("optimize re-upload %s: %w", id, err)
		}
		return nil
	})
}

// Resolved is a stored image ready to stream back.
type Resolved struct {
	Body        io.ReadCloser
	ContentType string
}

// Resolve maps (folder, filename) to the backing URL and opens a stream
// through the optimizing intermediary. A store miss surfaces as
// store.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, folder, filename string) (*Resolved, error) {
	img, err := s.store.GetImage(ctx, folder, filename)
	if err != nil {
		return nil, err
	}

	body, contentType, err := s.optimizer.Fetch(ctx, img.BackingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", img.BackingURL, err)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return &Resolved{Body: body, ContentType: contentType}, nil
}
