package images

import "context"

// UploadRequest describes one upload to the backing service.
type UploadRequest struct {
	PublicID    string
	Data        []byte
	ContentType string
	// Overwrite replaces an existing object under the same public ID,
	// used by the optimization pass.
	Overwrite bool
	// Account pins the upload to a named account; empty lets the backend
	// choose.
	Account string
}

// UploadResult is the backing service's answer: the public URL of the
// stored object and the account that holds it.
type UploadResult struct {
	URL     string
	Account string
}

// Backend is a backing media service that stores uploaded bytes and
// serves them at a public URL.
type Backend interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}
