// Package streaming moves object bytes between two remote endpoints in
// fixed-size chunks. Peak memory per copy is one chunk regardless of
// object size; that bound is the point, not an optimization.
package streaming

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"buckethop/pkg/pool"
	"buckethop/pkg/storage"
)

// DefaultChunkSize matches the S3 multipart sweet spot.
const DefaultChunkSize = 8 * 1024 * 1024

// sniffLen is how much of the stream content-type detection may consume.
const sniffLen = 3072

// abortTimeout bounds sink cleanup after a failed or cancelled copy.
const abortTimeout = 30 * time.Second

// CopyError wraps a mid-transfer failure with the object it belongs to.
type CopyError struct {
	Key string
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s: %v", e.Key, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// Result reports one completed copy. MD5 is computed over the bytes as
// they flowed through, so integrity can be checked without a second read.
type Result struct {
	BytesCopied int64
	Chunks      int
	MD5         string
}

// Copier streams objects chunk by chunk, reusing transfer buffers across
// objects.
type Copier struct {
	chunkSize int
	buffers   *pool.BufferPool
	log       *zap.Logger
}

// NewCopier creates a copier with the given chunk size.
func NewCopier(chunkSize int64, log *zap.Logger) *Copier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Copier{
		chunkSize: int(chunkSize),
		buffers:   pool.NewBufferPool(int(chunkSize)),
		log:       log,
	}
}

// Copy reads fixed-size chunks from src and writes each to sink before
// reading the next. onChunk is invoked synchronously after each
// successful write. The sink is committed only after every chunk has been
// written; on any failure it is aborted so no partially-written object
// becomes visible. Cancellation is observed between chunks: the current
// chunk finishes, then the sink is aborted.
func (c *Copier) Copy(ctx context.Context, key string, src io.Reader, sink storage.WriteSink, onChunk func(int64)) (*Result, error) {
	buf := c.buffers.Get()
	defer c.buffers.Put(buf)

	hasher := md5.New()
	res := &Result{}

	for {
		if err := ctx.Err(); err != nil {
			c.abort(ctx, sink, key)
			return nil, &CopyError{Key: key, Err: err}
		}

		n, rerr := readChunk(src, buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				c.abort(ctx, sink, key)
				return nil, &CopyError{Key: key, Err: werr}
			}
			hasher.Write(buf[:n])
			res.BytesCopied += int64(n)
			res.Chunks++
			if onChunk != nil {
				onChunk(int64(n))
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			c.abort(ctx, sink, key)
			return nil, &CopyError{Key: key, Err: rerr}
		}
	}

	if err := sink.Commit(ctx); err != nil {
		c.abort(ctx, sink, key)
		return nil, &CopyError{Key: key, Err: err}
	}

	res.MD5 = hex.EncodeToString(hasher.Sum(nil))
	return res, nil
}

// abort releases the sink. It runs on a detached context: on the
// interruption path the copy's context is already cancelled, and the
// abort request must still reach the remote or the multipart session
// leaks. A failed cleanup is a secondary problem: it is logged and does
// not change the copy's recorded failure.
func (c *Copier) abort(ctx context.Context, sink storage.WriteSink, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	if err := sink.Abort(ctx); err != nil {
		c.log.Warn("failed to abort partial upload",
			zap.String("key", key),
			zap.Error(err))
	}
}

// readChunk fills buf as far as the stream allows. Returns io.EOF once
// the stream is exhausted, with n covering any final partial chunk.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF {
		return n, io.EOF
	}
	return n, err
}

// DetectContentType sniffs the leading bytes of a stream and returns the
// detected MIME type along with a reader that replays the consumed bytes.
// Used when the source object carries no content type of its own.
func DetectContentType(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}

	mtype := mimetype.Detect(head[:n])
	return mtype.String(), io.MultiReader(bytes.NewReader(head[:n]), r), nil
}
