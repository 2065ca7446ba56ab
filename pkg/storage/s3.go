package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"buckethop/pkg/models"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize = 5 * 1024 * 1024

// S3Store talks to AWS S3 or any S3-compatible endpoint.
type S3Store struct {
	client   *s3.Client
	partSize int64
}

// NewS3Store wraps an S3 client. partSize governs multipart part sizing
// and the single-shot put threshold; it is clamped to the S3 minimum.
func NewS3Store(client *s3.Client, partSize int64) *S3Store {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return &S3Store{client: client, partSize: partSize}
}

func (s *S3Store) List(ctx context.Context, bucket, prefix string, fn func(models.ObjectDescriptor) error) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(1000),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			desc := models.ObjectDescriptor{
				Bucket: bucket,
				Key:    aws.ToString(obj.Key),
				Size:   aws.ToInt64(obj.Size),
				ETag:   trimETag(aws.ToString(obj.ETag)),
			}
			if obj.LastModified != nil {
				desc.LastModified = *obj.LastModified
			}
			if err := fn(desc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Store) Head(ctx context.Context, bucket, key string) (*models.ObjectDescriptor, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}

	desc := &models.ObjectDescriptor{
		Bucket:      bucket,
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        trimETag(aws.ToString(out.ETag)),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		desc.LastModified = *out.LastModified
	}
	return desc, nil
}

func (s *S3Store) OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3Store) OpenWrite(ctx context.Context, bucket, key, contentType string, size int64) (WriteSink, error) {
	if size < s.partSize {
		return &s3PutSink{
			store:       s,
			bucket:      bucket,
			key:         key,
			contentType: contentType,
			buf:         bytes.NewBuffer(make([]byte, 0, size)),
		}, nil
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create multipart upload s3://%s/%s: %w", bucket, key, err)
	}

	return &s3MultipartSink{
		store:    s,
		bucket:   bucket,
		key:      key,
		uploadID: aws.ToString(out.UploadId),
		ctx:      ctx,
		part:     make([]byte, 0, s.partSize),
	}, nil
}

func (s *S3Store) Validate(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("bucket %q is not accessible: %w", bucket, err)
	}
	return nil
}

// s3PutSink buffers one small object and uploads it on Commit.
type s3PutSink struct {
	store       *S3Store
	bucket      string
	key         string
	contentType string
	buf         *bytes.Buffer
}

func (ps *s3PutSink) Write(p []byte) (int, error) {
	return ps.buf.Write(p)
}

func (ps *s3PutSink) Commit(ctx context.Context) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(ps.bucket),
		Key:           aws.String(ps.key),
		Body:          bytes.NewReader(ps.buf.Bytes()),
		ContentLength: aws.Int64(int64(ps.buf.Len())),
	}
	if ps.contentType != "" {
		input.ContentType = aws.String(ps.contentType)
	}
	if _, err := ps.store.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", ps.bucket, ps.key, err)
	}
	return nil
}

func (ps *s3PutSink) Abort(ctx context.Context) error {
	// Nothing uploaded yet; dropping the buffer is enough.
	ps.buf.Reset()
	return nil
}

// s3MultipartSink accumulates writes into parts and uploads each part as
// it fills. Nothing is visible until CompleteMultipartUpload succeeds.
type s3MultipartSink struct {
	store    *S3Store
	bucket   string
	key      string
	uploadID string
	ctx      context.Context
	part     []byte
	partNum  int32
	etags    []s3types.CompletedPart
}

func (ms *s3MultipartSink) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		room := int(ms.store.partSize) - len(ms.part)
		n := len(p)
		if n > room {
			n = room
		}
		ms.part = append(ms.part, p[:n]...)
		p = p[n:]

		if int64(len(ms.part)) == ms.store.partSize {
			if err := ms.flushPart(); err != nil {
				return written - len(p), err
			}
		}
	}
	return written, nil
}

func (ms *s3MultipartSink) flushPart() error {
	if len(ms.part) == 0 {
		return nil
	}
	ms.partNum++

	out, err := ms.store.client.UploadPart(ms.ctx, &s3.UploadPartInput{
		Bucket:     aws.String(ms.bucket),
		Key:        aws.String(ms.key),
		UploadId:   aws.String(ms.uploadID),
		PartNumber: aws.Int32(ms.partNum),
		Body:       bytes.NewReader(ms.part),
	})
	if err != nil {
		return fmt.Errorf("upload part %d of s3://%s/%s: %w", ms.partNum, ms.bucket, ms.key, err)
	}

	ms.etags = append(ms.etags, s3types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(ms.partNum),
	})
	ms.part = ms.part[:0]
	return nil
}

func (ms *s3MultipartSink) Commit(ctx context.Context) error {
	if err := ms.flushPart(); err != nil {
		return err
	}

	_, err := ms.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(ms.bucket),
		Key:      aws.String(ms.key),
		UploadId: aws.String(ms.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: ms.etags,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload s3://%s/%s: %w", ms.bucket, ms.key, err)
	}
	return nil
}

func (ms *s3MultipartSink) Abort(ctx context.Context) error {
	_, err := ms.store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(ms.bucket),
		Key:      aws.String(ms.key),
		UploadId: aws.String(ms.uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload s3://%s/%s: %w", ms.bucket, ms.key, err)
	}
	return nil
}

func trimETag(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
