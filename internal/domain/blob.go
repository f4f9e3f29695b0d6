package domain

import (
	"context"
	"io"
)

// BlobWriter uploads audit artifacts to object storage. PutMultipart is used
// for the ledger export, which can grow past what a single PutObject should
// carry.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
