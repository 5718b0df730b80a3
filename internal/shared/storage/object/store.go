package object

import (
	"context"
	"io"
)

// ObjectStore stages uploaded documents between the API and the worker.
// Keys are caller-chosen relative paths; Save overwrites existing objects.
type ObjectStore interface {
	Save(ctx context.Context, storageKey string, r io.Reader) (sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}
