package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buckethop/pkg/models"
	"buckethop/pkg/storage"
)

const testChunk = 1024

func endpoints(src, dst *storage.MemStore, srcPrefix, dstPrefix string) (Endpoint, Endpoint) {
	return Endpoint{Store: src, Bucket: "src", Prefix: srcPrefix},
		Endpoint{Store: dst, Bucket: "dst", Prefix: dstPrefix}
}

func runTransfer(t *testing.T, src, dst *storage.MemStore, opts Options) models.RunSummary {
	t.Helper()
	se, de := endpoints(src, dst, "", "")
	opts.ChunkSize = testChunk
	summary, err := New(se, de, opts).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestRunCopiesIntoEmptyDestination(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("0123456789"), time.Now())
	src.PutObject("src", "b.txt", nil, time.Now())
	dst := storage.NewMemStore()

	summary := runTransfer(t, src, dst, Options{Workers: 2})

	assert.Equal(t, models.RunCompleted, summary.State)
	assert.Equal(t, int64(2), summary.FilesTransferred)
	assert.Equal(t, int64(0), summary.FilesSkipped)
	assert.Equal(t, int64(0), summary.FilesFailed)
	assert.Equal(t, int64(10), summary.TotalBytesTransferred)

	data, ok := dst.ObjectData("dst", "a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789"), data)
	data, ok = dst.ObjectData("dst", "b.txt")
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestRunSkipsIdenticalObject(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("0123456789"), time.Now())
	dst := storage.NewMemStore()
	dst.PutObject("dst", "a.txt", []byte("0123456789"), time.Now())

	summary := runTransfer(t, src, dst, Options{})

	assert.Equal(t, int64(0), summary.FilesTransferred)
	assert.Equal(t, int64(1), summary.FilesSkipped)
	assert.Equal(t, int64(10), summary.SkippedBytes)
}

func TestRunOverwritesSizeMismatch(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("0123456789"), time.Now())
	dst := storage.NewMemStore()
	dst.PutObject("dst", "a.txt", []byte("01234567"), time.Now())

	summary := runTransfer(t, src, dst, Options{})

	assert.Equal(t, int64(1), summary.FilesTransferred)
	assert.Equal(t, int64(0), summary.FilesSkipped)
	data, _ := dst.ObjectData("dst", "a.txt")
	assert.Equal(t, []byte("0123456789"), data)
}

func TestRunMapsPrefixes(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "data/sub/a.txt", []byte("hello"), time.Now())
	dst := storage.NewMemStore()

	se, de := endpoints(src, dst, "data/", "backup/")
	summary, err := New(se, de, Options{ChunkSize: testChunk}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.FilesTransferred)

	_, ok := dst.ObjectData("dst", "backup/sub/a.txt")
	assert.True(t, ok)
}

func TestRunSecondPassIsAllSkips(t *testing.T) {
	src := storage.NewMemStore()
	for i := 0; i < 5; i++ {
		src.PutObject("src", fmt.Sprintf("f%d.bin", i), []byte{byte(i), 1, 2, 3}, time.Now())
	}
	dst := storage.NewMemStore()

	first := runTransfer(t, src, dst, Options{Workers: 4})
	assert.Equal(t, int64(5), first.FilesTransferred)

	second := runTransfer(t, src, dst, Options{Workers: 4})
	assert.Equal(t, int64(0), second.FilesTransferred)
	assert.Equal(t, int64(5), second.FilesSkipped)
}

func TestRunContinuesPastObjectFailures(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "bad.txt", []byte("xxxx"), time.Now())
	src.PutObject("src", "good.txt", []byte("yyyy"), time.Now())
	src.FailOpenRead = func(bucket, key string) error {
		if key == "bad.txt" {
			return errors.New("access denied")
		}
		return nil
	}
	dst := storage.NewMemStore()

	summary := runTransfer(t, src, dst, Options{Workers: 1})

	assert.Equal(t, int64(1), summary.FilesTransferred)
	assert.Equal(t, int64(1), summary.FilesFailed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "bad.txt", summary.Failures[0].Key)
	assert.Contains(t, summary.Failures[0].Error, "access denied")

	_, ok := dst.ObjectData("dst", "good.txt")
	assert.True(t, ok)
	_, ok = dst.ObjectData("dst", "bad.txt")
	assert.False(t, ok)
}

func TestRunFailedWriteLeavesNoVisibleObject(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "big.bin", make([]byte, testChunk*4), time.Now())
	dst := storage.NewMemStore()
	dst.FailWrite = func(bucket, key string, chunk int) error {
		if chunk == 2 {
			return errors.New("write timeout")
		}
		return nil
	}

	summary := runTransfer(t, src, dst, Options{})

	assert.Equal(t, int64(1), summary.FilesFailed)
	assert.Equal(t, 0, dst.ObjectCount("dst"))
}

func TestRunCountersInvariantAcrossWorkerCounts(t *testing.T) {
	seed := func() (*storage.MemStore, *storage.MemStore) {
		src := storage.NewMemStore()
		for i := 0; i < 40; i++ {
			src.PutObject("src", fmt.Sprintf("obj/%02d.dat", i), make([]byte, i*37), time.Now())
		}
		src.FailOpenRead = func(bucket, key string) error {
			if key == "obj/07.dat" || key == "obj/23.dat" {
				return errors.New("injected")
			}
			return nil
		}
		dst := storage.NewMemStore()
		// Pre-seed a few identical objects so all decision kinds occur.
		for i := 0; i < 5; i++ {
			dst.PutObject("dst", fmt.Sprintf("obj/%02d.dat", i), make([]byte, i*37), time.Now())
		}
		return src, dst
	}

	var baseline models.RunSummary
	for i, workers := range []int{1, 4, 16} {
		src, dst := seed()
		summary := runTransfer(t, src, dst, Options{Workers: workers})

		assert.Equal(t, int64(40), summary.FilesTransferred+summary.FilesSkipped+summary.FilesFailed)
		if i == 0 {
			baseline = summary
			continue
		}
		assert.Equal(t, baseline.FilesTransferred, summary.FilesTransferred, "workers=%d", workers)
		assert.Equal(t, baseline.FilesSkipped, summary.FilesSkipped, "workers=%d", workers)
		assert.Equal(t, baseline.FilesFailed, summary.FilesFailed, "workers=%d", workers)
		assert.Equal(t, baseline.TotalBytesTransferred, summary.TotalBytesTransferred, "workers=%d", workers)
	}
}

func TestRunInterruption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("aaaa"), time.Now())
	src.PutObject("src", "b.txt", []byte("bbbb"), time.Now())
	src.PutObject("src", "m.txt", make([]byte, testChunk*3), time.Now())
	src.PutObject("src", "z.txt", []byte("zzzz"), time.Now())
	src.FailOpenRead = func(bucket, key string) error {
		if key == "m.txt" {
			cancel()
		}
		return nil
	}
	dst := storage.NewMemStore()

	se, de := endpoints(src, dst, "", "")
	summary, err := New(se, de, Options{Workers: 1, ChunkSize: testChunk}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.RunInterrupted, summary.State)
	done := summary.FilesTransferred + summary.FilesSkipped + summary.FilesFailed
	assert.LessOrEqual(t, done, int64(4))
	assert.Less(t, done, int64(4), "dispatch must stop after the cancel signal")

	// The in-flight object observed the flag and aborted; nothing
	// partially committed is visible.
	_, ok := dst.ObjectData("dst", "m.txt")
	assert.False(t, ok)
	_, ok = dst.ObjectData("dst", "z.txt")
	assert.False(t, ok)
}

func TestRunListingFailureIsFatal(t *testing.T) {
	src := storage.NewMemStore()
	src.FailList = func(bucket string) error { return errors.New("no such bucket") }
	dst := storage.NewMemStore()

	se, de := endpoints(src, dst, "", "")
	summary, err := New(se, de, Options{}).Run(context.Background())
	require.ErrorIs(t, err, ErrListingFailure)
	assert.Equal(t, models.RunFailed, summary.State)
	assert.False(t, summary.EndTime.IsZero())
}

func TestRunDestinationHeadFailureIsFatal(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("aaaa"), time.Now())
	dst := storage.NewMemStore()
	dst.FailHead = func(bucket, key string) error { return errors.New("503") }

	se, de := endpoints(src, dst, "", "")
	summary, err := New(se, de, Options{SkipDestPrefetch: true}).Run(context.Background())

	// The source listing succeeded; the failing side is the destination.
	require.ErrorIs(t, err, ErrDestinationUnreachable)
	require.NotErrorIs(t, err, ErrListingFailure)
	assert.Equal(t, models.RunFailed, summary.State)
}

func TestRunUnreachableDestinationIsFatal(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("aaaa"), time.Now())
	dst := storage.NewMemStore()
	dst.FailValidate = func(bucket string) error { return errors.New("403") }

	se, de := endpoints(src, dst, "", "")
	summary, err := New(se, de, Options{}).Run(context.Background())
	require.ErrorIs(t, err, ErrDestinationUnreachable)
	assert.Equal(t, models.RunFailed, summary.State)
	assert.Equal(t, int64(0), summary.FilesTransferred)
}

func TestRunDryRunMovesNothing(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("0123456789"), time.Now())
	src.PutObject("src", "b.txt", []byte("0123"), time.Now())
	dst := storage.NewMemStore()
	dst.PutObject("dst", "b.txt", []byte("0123"), time.Now())

	summary := runTransfer(t, src, dst, Options{DryRun: true})

	assert.Equal(t, int64(1), summary.FilesTransferred, "one object would be copied")
	assert.Equal(t, int64(1), summary.FilesSkipped)
	assert.Equal(t, int64(0), summary.TotalBytesTransferred)
	_, ok := dst.ObjectData("dst", "a.txt")
	assert.False(t, ok)
}

func TestRunHeadFallbackLookup(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("0123456789"), time.Now())
	dst := storage.NewMemStore()
	dst.PutObject("dst", "a.txt", []byte("0123456789"), time.Now())

	summary := runTransfer(t, src, dst, Options{SkipDestPrefetch: true})
	assert.Equal(t, int64(1), summary.FilesSkipped)
}

func TestRunStateTransitions(t *testing.T) {
	src := storage.NewMemStore()
	src.PutObject("src", "a.txt", []byte("x"), time.Now())
	dst := storage.NewMemStore()

	se, de := endpoints(src, dst, "", "")
	c := New(se, de, Options{ChunkSize: testChunk})
	assert.Equal(t, StateIdle, c.State())

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, c.State())
}
