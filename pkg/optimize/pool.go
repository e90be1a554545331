package optimize

import (
	"bytes"
	"encoding/json"
	"sync"
)

// DefaultMaxBufferSize caps what a BufferPool keeps; larger buffers are dropped.
const DefaultMaxBufferSize = 64 << 10

// BufferPool recycles encode buffers for small, frequent messages.
type BufferPool struct {
	pool    sync.Pool
	maxSize int
}

// NewBufferPool creates a pool that retains buffers up to maxSize bytes.
func NewBufferPool(maxSize int) *BufferPool {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &BufferPool{
		maxSize: maxSize,
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool unless it grew past the cap.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > p.maxSize {
		return
	}
	p.pool.Put(buf)
}

// EncodeJSON marshals v into a pooled buffer and hands the bytes to fn.
// The slice is only valid until fn returns.
func (p *BufferPool) EncodeJSON(v interface{}, fn func(data []byte) error) error {
	buf := p.Get()
	defer p.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	return fn(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}
