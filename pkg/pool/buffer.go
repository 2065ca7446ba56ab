package pool

import (
	"sync"
)

// BufferPool hands out fixed-size chunk buffers so each worker reuses its
// transfer buffer instead of allocating one per object.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool of buffers of the given size.
func NewBufferPool(bufferSize int) *BufferPool {
	return &BufferPool{
		size: bufferSize,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// Get retrieves a buffer from the pool.
func (bp *BufferPool) Get() []byte {
	buf := bp.pool.Get().([]byte)
	return buf[:bp.size]
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if buf == nil || cap(buf) != bp.size {
		return
	}
	bp.pool.Put(buf[:cap(buf)])
}

// Size returns the buffer size this pool hands out.
func (bp *BufferPool) Size() int {
	return bp.size
}
