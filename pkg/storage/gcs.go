package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"buckethop/pkg/models"
)

var errSinkAborted = errors.New("upload aborted")

// GCSStore talks to Google Cloud Storage through the JSON API, so a run
// can hop between providers (s3:// on one side, gs:// on the other).
type GCSStore struct {
	svc *storagev1.Service
}

// NewGCSStore builds a store using Application Default Credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := google.DefaultClient(ctx, storagev1.DevstorageReadWriteScope)
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}
	return NewGCSStoreWithClient(ctx, client)
}

// NewGCSStoreWithClient builds a store over an explicit OAuth2 HTTP
// client, for callers that manage their own token source.
func NewGCSStoreWithClient(ctx context.Context, client *http.Client) (*GCSStore, error) {
	svc, err := storagev1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSStore{svc: svc}, nil
}

func (g *GCSStore) List(ctx context.Context, bucket, prefix string, fn func(models.ObjectDescriptor) error) error {
	call := g.svc.Objects.List(bucket)
	if prefix != "" {
		call = call.Prefix(prefix)
	}

	err := call.Pages(ctx, func(page *storagev1.Objects) error {
		for _, obj := range page.Items {
			if err := fn(gcsDescriptor(bucket, obj)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}
	return nil
}

func (g *GCSStore) Head(ctx context.Context, bucket, key string) (*models.ObjectDescriptor, error) {
	obj, err := g.svc.Objects.Get(bucket, key).Context(ctx).Do()
	if err != nil {
		if isGCSNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head gs://%s/%s: %w", bucket, key, err)
	}
	desc := gcsDescriptor(bucket, obj)
	return &desc, nil
}

func (g *GCSStore) OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := g.svc.Objects.Get(bucket, key).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("get gs://%s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

func (g *GCSStore) OpenWrite(ctx context.Context, bucket, key, contentType string, size int64) (WriteSink, error) {
	pr, pw := io.Pipe()

	sink := &gcsSink{
		store:  g,
		bucket: bucket,
		key:    key,
		pw:     pw,
		done:   make(chan error, 1),
	}

	obj := &storagev1.Object{Name: key}
	if contentType != "" {
		obj.ContentType = contentType
	}

	go func() {
		_, err := g.svc.Objects.Insert(bucket, obj).Media(pr).Context(ctx).Do()
		if err != nil {
			pr.CloseWithError(err)
		}
		sink.done <- err
	}()

	return sink, nil
}

func (g *GCSStore) Validate(ctx context.Context, bucket string) error {
	if _, err := g.svc.Buckets.Get(bucket).Context(ctx).Do(); err != nil {
		return fmt.Errorf("bucket %q is not accessible: %w", bucket, err)
	}
	return nil
}

// gcsSink feeds a resumable insert through a pipe. The insert runs in its
// own goroutine; Commit closes the pipe and waits for the final status.
type gcsSink struct {
	store  *GCSStore
	bucket string
	key    string
	pw     *io.PipeWriter
	done   chan error
}

func (s *gcsSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *gcsSink) Commit(ctx context.Context) error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	if err := <-s.done; err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *gcsSink) Abort(ctx context.Context) error {
	s.pw.CloseWithError(errSinkAborted)
	if err := <-s.done; err == nil {
		// The insert already finished; the object is visible and must go.
		if delErr := s.store.svc.Objects.Delete(s.bucket, s.key).Context(ctx).Do(); delErr != nil {
			return fmt.Errorf("delete aborted gs://%s/%s: %w", s.bucket, s.key, delErr)
		}
	}
	return nil
}

func gcsDescriptor(bucket string, obj *storagev1.Object) models.ObjectDescriptor {
	desc := models.ObjectDescriptor{
		Bucket:      bucket,
		Key:         obj.Name,
		Size:        int64(obj.Size),
		ETag:        gcsFingerprint(obj.Md5Hash),
		ContentType: obj.ContentType,
	}
	if obj.Updated != "" {
		if ts, err := time.Parse(time.RFC3339, obj.Updated); err == nil {
			desc.LastModified = ts
		}
	}
	return desc
}

// gcsFingerprint converts the base64 MD5 GCS reports into the hex form S3
// ETags use, so fingerprints compare across providers.
func gcsFingerprint(md5b64 string) string {
	if md5b64 == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(md5b64)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}

func isGCSNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
