package images

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imgvault/internal/logging"
)

// S3Backend stores images in an S3-compatible bucket, for self-hosted
// deployments that have no media-API account. Objects are public-read;
// the lookup proxy fetches them back through PublicURL.
type S3Backend struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // S3_ENDPOINT
	KeyID     string // S3_KEY_ID
	AppKey    string // S3_APP_KEY
	Bucket    string // S3_BUCKET
	Prefix    string // S3_PREFIX - optional key prefix for all objects
	PublicURL string // S3_PUBLIC_URL - base URL the bucket serves from
}

func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if cfg.PublicURL == "" {
		return nil, fmt.Errorf("s3 backend requires a public URL to serve from")
	}

	logging.S3.Printf("initializing backend (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, cfg.Endpoint)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.AppKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.S3.Printf("failed to create client: %v", err)
		return nil, err
	}

	return &S3Backend{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

func (s *S3Backend) key(publicID string) string {
	if s.prefix == "" {
		return publicID
	}
	return path.Join(s.prefix, publicID)
}

func (s *S3Backend) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	key := s.key(req.PublicID)
	logging.S3.Printf("uploading %s to bucket %s", key, s.bucket)

	// PutObject overwrites by default, so req.Overwrite needs no special
	// handling here.
	info, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(req.Data), int64(len(req.Data)),
		minio.PutObjectOptions{ContentType: req.ContentType})
	if err != nil {
		logging.S3.Printf("upload failed for %s: %v", key, err)
		return nil, err
	}

	logging.S3.Printf("uploaded %s successfully (%d bytes)", key, info.Size)
	return &UploadResult{
		URL:     s.publicURL + "/" + key,
		Account: s.bucket,
	}, nil
}
