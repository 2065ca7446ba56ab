// Package storage abstracts the remote object stores a transfer moves
// bytes between. Backends exist for S3-compatible services and Google
// Cloud Storage, plus an in-memory store used by the test suite.
package storage

import (
	"context"
	"io"

	"buckethop/pkg/models"
)

// WriteSink is a chunked destination for one object. Writes append in
// order; nothing is visible at the destination until Commit returns.
// Abort releases any partially-created object or multipart session.
type WriteSink interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// ObjectStore is the remote API the transfer engine consumes. Each method
// maps onto one remote operation family; pagination is internal to List.
type ObjectStore interface {
	// List calls fn for every object under the prefix, in listing order.
	// A non-nil error from fn stops the listing and is returned.
	List(ctx context.Context, bucket, prefix string, fn func(models.ObjectDescriptor) error) error

	// Head fetches a single object's metadata. A missing object is
	// (nil, nil), not an error.
	Head(ctx context.Context, bucket, key string) (*models.ObjectDescriptor, error)

	// OpenRead opens a byte stream for an object.
	OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// OpenWrite opens a sink for an object. Implementations may choose a
	// single-shot put or a multipart session based on size; the caller
	// only sees Write/Commit/Abort.
	OpenWrite(ctx context.Context, bucket, key, contentType string, size int64) (WriteSink, error)

	// Validate probes that the bucket exists and is accessible.
	Validate(ctx context.Context, bucket string) error
}
