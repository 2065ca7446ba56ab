package streaming

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// meteredSink records every write and the commit/abort outcome so tests
// can assert chunking and all-or-nothing behavior.
type meteredSink struct {
	writes      []int
	data        bytes.Buffer
	committed   bool
	aborted     bool
	abortCtxErr error // ctx.Err() observed when Abort was invoked
	failAt      int   // fail the Nth write (zero-based), -1 to disable
	writeErr    error // error returned at failAt
	abortErr    error
	commitErr   error
}

func newMeteredSink() *meteredSink {
	return &meteredSink{failAt: -1}
}

func (s *meteredSink) Write(p []byte) (int, error) {
	if s.failAt >= 0 && len(s.writes) == s.failAt {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, len(p))
	return s.data.Write(p)
}

func (s *meteredSink) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed = true
	return nil
}

func (s *meteredSink) Abort(ctx context.Context) error {
	s.aborted = true
	s.abortCtxErr = ctx.Err()
	return s.abortErr
}

// meteredReader serves data in arbitrary-size reads and tracks how much
// was consumed, to verify the copier never reads ahead of its chunk.
type meteredReader struct {
	r        io.Reader
	consumed int
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.consumed += n
	return n, err
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCopyChunking(t *testing.T) {
	const chunk = 64
	data := payload(chunk*3 + 17)
	sink := newMeteredSink()
	copier := NewCopier(chunk, nil)

	var chunkCalls []int64
	res, err := copier.Copy(context.Background(), "obj", bytes.NewReader(data), sink, func(n int64) {
		chunkCalls = append(chunkCalls, n)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), res.BytesCopied)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, []int{chunk, chunk, chunk, 17}, sink.writes)
	assert.Equal(t, []int64{chunk, chunk, chunk, 17}, chunkCalls)
	assert.True(t, sink.committed)
	assert.False(t, sink.aborted)
	assert.Equal(t, data, sink.data.Bytes())

	sum := md5.Sum(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.MD5)
}

func TestCopyNeverBuffersMoreThanOneChunk(t *testing.T) {
	const chunk = 32
	data := payload(chunk * 8)
	src := &meteredReader{r: bytes.NewReader(data)}
	sink := newMeteredSink()
	copier := NewCopier(chunk, nil)

	written := 0
	_, err := copier.Copy(context.Background(), "obj", src, sink, func(n int64) {
		written += int(n)
		// Everything read so far has either been written out or sits in
		// the single in-flight chunk.
		assert.LessOrEqual(t, src.consumed-written, chunk)
	})
	require.NoError(t, err)

	for _, w := range sink.writes {
		assert.LessOrEqual(t, w, chunk)
	}
}

func TestCopyEmptyObject(t *testing.T) {
	sink := newMeteredSink()
	copier := NewCopier(16, nil)

	res, err := copier.Copy(context.Background(), "empty", bytes.NewReader(nil), sink, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.BytesCopied)
	assert.Equal(t, 0, res.Chunks)
	assert.True(t, sink.committed)
}

func TestCopyWriteFailureAborts(t *testing.T) {
	const chunk = 16
	sink := newMeteredSink()
	sink.failAt = 2
	sink.writeErr = errors.New("disk on fire")
	copier := NewCopier(chunk, nil)

	_, err := copier.Copy(context.Background(), "obj", bytes.NewReader(payload(chunk*5)), sink, nil)
	require.Error(t, err)

	var copyErr *CopyError
	require.ErrorAs(t, err, &copyErr)
	assert.Equal(t, "obj", copyErr.Key)
	assert.ErrorContains(t, err, "disk on fire")
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestCopyReadFailureAborts(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(bytes.NewReader(payload(40)), failingReader{err: boom})
	sink := newMeteredSink()
	copier := NewCopier(16, nil)

	_, err := copier.Copy(context.Background(), "obj", src, sink, nil)
	require.ErrorIs(t, err, boom)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestCopyCancellationAbortsBetweenChunks(t *testing.T) {
	const chunk = 16
	ctx, cancel := context.WithCancel(context.Background())
	sink := newMeteredSink()
	copier := NewCopier(chunk, nil)

	calls := 0
	_, err := copier.Copy(ctx, "obj", bytes.NewReader(payload(chunk*10)), sink, func(int64) {
		calls++
		if calls == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls, "current chunk finishes, then the flag is observed")
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestCopyAbortRunsOnLiveContext(t *testing.T) {
	const chunk = 16
	ctx, cancel := context.WithCancel(context.Background())
	sink := newMeteredSink()
	copier := NewCopier(chunk, nil)

	calls := 0
	_, err := copier.Copy(ctx, "obj", bytes.NewReader(payload(chunk*10)), sink, func(int64) {
		calls++
		if calls == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, sink.aborted)

	// The abort must reach the remote after the copy context is
	// cancelled, or an interrupted multipart upload leaks its session.
	assert.NoError(t, sink.abortCtxErr, "Abort saw an already-cancelled context")
}

func TestCopyCommitFailureAborts(t *testing.T) {
	sink := newMeteredSink()
	sink.commitErr = errors.New("complete rejected")
	copier := NewCopier(16, nil)

	_, err := copier.Copy(context.Background(), "obj", bytes.NewReader(payload(8)), sink, nil)
	require.Error(t, err)
	assert.True(t, sink.aborted)
}

func TestDetectContentType(t *testing.T) {
	t.Run("detects and replays", func(t *testing.T) {
		data := append([]byte("%PDF-1.5\n"), payload(5000)...)
		ct, r, err := DetectContentType(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Contains(t, ct, "application/pdf")

		replayed, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, data, replayed)
	})

	t.Run("short stream", func(t *testing.T) {
		data := []byte("hello")
		ct, r, err := DetectContentType(bytes.NewReader(data))
		require.NoError(t, err)
		assert.NotEmpty(t, ct)

		replayed, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, data, replayed)
	})
}

type failingReader struct{ err error }

func (f failingReader) Read(p []byte) (int, error) { return 0, f.err }
