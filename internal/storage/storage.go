package storage

import "context"

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the S3-compatible operations the upload archive needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Noop discards uploads. It is used when archiving is disabled.
type Noop struct{}

func (Noop) ListObjects(context.Context, string) ([]ObjectInfo, error) { return nil, nil }

func (Noop) UploadObject(context.Context, string, []byte, string) error { return nil }

var _ ObjectStorage = Noop{}
