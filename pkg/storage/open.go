package storage

import (
	"context"
	"fmt"

	"buckethop/pkg/config"
	"buckethop/pkg/s3url"
)

// Open builds the backend for a parsed storage URL. s3:// URLs use the
// given credentials; gs:// URLs use Application Default Credentials.
func Open(ctx context.Context, u s3url.URL, creds *config.Credentials, partSize int64) (ObjectStore, error) {
	switch u.Scheme {
	case "s3":
		client, err := config.NewS3Client(ctx, creds)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, partSize), nil
	case "gs":
		return NewGCSStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
}
