package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"buckethop/pkg/models"
)

// MemStore is a map-backed ObjectStore for tests and dry runs against
// synthetic data. Fault hooks let tests inject read and write failures at
// precise points; sinks honor the commit/abort contract so all-or-nothing
// behavior can be asserted.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]*memObject

	// FailOpenRead, when set, is consulted before opening a read stream.
	FailOpenRead func(bucket, key string) error
	// FailWrite, when set, is consulted before each sink write. chunk is
	// the zero-based index of the write on that sink.
	FailWrite func(bucket, key string, chunk int) error
	// FailList, when set, aborts List before returning any object.
	FailList func(bucket string) error
	// FailHead, when set, is consulted before Head resolves the object.
	FailHead func(bucket, key string) error
	// FailValidate, when set, makes Validate fail for the bucket.
	FailValidate func(bucket string) error
}

type memObject struct {
	data        []byte
	modTime     time.Time
	contentType string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{buckets: make(map[string]map[string]*memObject)}
}

// PutObject seeds an object directly, bypassing the sink path.
func (m *MemStore) PutObject(bucket, key string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]*memObject)
	}
	m.buckets[bucket][key] = &memObject{data: append([]byte(nil), data...), modTime: modTime}
}

// ObjectData returns a committed object's bytes and whether it exists.
func (m *MemStore) ObjectData(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// ObjectCount returns the number of committed objects in a bucket.
func (m *MemStore) ObjectCount(bucket string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets[bucket])
}

func (m *MemStore) List(ctx context.Context, bucket, prefix string, fn func(models.ObjectDescriptor) error) error {
	if m.FailList != nil {
		if err := m.FailList(bucket); err != nil {
			return err
		}
	}

	m.mu.Lock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for key := range m.buckets[bucket] {
		if prefix == "" || len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	descs := make([]models.ObjectDescriptor, 0, len(keys))
	for _, key := range keys {
		descs = append(descs, m.describeLocked(bucket, key))
	}
	m.mu.Unlock()

	for _, desc := range descs {
		if err := fn(desc); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Head(ctx context.Context, bucket, key string) (*models.ObjectDescriptor, error) {
	if m.FailHead != nil {
		if err := m.FailHead(bucket, key); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket][key]; !ok {
		return nil, nil
	}
	desc := m.describeLocked(bucket, key)
	return &desc, nil
}

func (m *MemStore) OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.FailOpenRead != nil {
		if err := m.FailOpenRead(bucket, key); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	obj, ok := m.buckets[bucket][key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemStore) OpenWrite(ctx context.Context, bucket, key, contentType string, size int64) (WriteSink, error) {
	return &memSink{store: m, bucket: bucket, key: key, contentType: contentType}, nil
}

func (m *MemStore) Validate(ctx context.Context, bucket string) error {
	if m.FailValidate != nil {
		return m.FailValidate(bucket)
	}
	return nil
}

func (m *MemStore) describeLocked(bucket, key string) models.ObjectDescriptor {
	obj := m.buckets[bucket][key]
	sum := md5.Sum(obj.data)
	return models.ObjectDescriptor{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: obj.modTime,
		ContentType:  obj.contentType,
	}
}

// memSink buffers writes and publishes the object only on Commit.
type memSink struct {
	store       *MemStore
	bucket      string
	key         string
	contentType string
	buf         bytes.Buffer
	chunk       int
	aborted     bool
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.store.FailWrite != nil {
		if err := s.store.FailWrite(s.bucket, s.key, s.chunk); err != nil {
			return 0, err
		}
	}
	s.chunk++
	return s.buf.Write(p)
}

func (s *memSink) Commit(ctx context.Context) error {
	if s.aborted {
		return fmt.Errorf("commit after abort on %s/%s", s.bucket, s.key)
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.buckets[s.bucket] == nil {
		s.store.buckets[s.bucket] = make(map[string]*memObject)
	}
	s.store.buckets[s.bucket][s.key] = &memObject{
		data:        append([]byte(nil), s.buf.Bytes()...),
		modTime:     time.Now(),
		contentType: s.contentType,
	}
	return nil
}

func (s *memSink) Abort(ctx context.Context) error {
	s.aborted = true
	s.buf.Reset()
	return nil
}
