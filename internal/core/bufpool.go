package core

import "sync"

// bufferPool hands out byte slices sized for a single part's
// reconstruction, keyed by size so odd-sized parts don't force every
// caller up to one global maximum. A single package-level pool is
// sufficient per spec §9 design notes ("a single global pool is
// acceptable").
type bufferPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

var sharedBufferPool = newBufferPool()

func newBufferPool() *bufferPool {
	return &bufferPool{pools: make(map[int]*sync.Pool)}
}

func (p *bufferPool) poolFor(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pool, ok := p.pools[size]
	if !ok {
		pool = &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		}
		p.pools[size] = pool
	}
	return pool
}

// pooledBuffer is a scoped handle to a size-keyed pooled buffer. Release
// must be called exactly once, on every exit path of the caller.
type pooledBuffer struct {
	buf  []byte
	pool *sync.Pool
}

func (p *bufferPool) acquire(size int) *pooledBuffer {
	pool := p.poolFor(size)
	buf := pool.Get().([]byte)
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	return &pooledBuffer{buf: buf[:size], pool: pool}
}

// Bytes returns the underlying buffer, exactly size bytes long.
func (b *pooledBuffer) Bytes() []byte { return b.buf }

// Release returns the buffer to its pool. Safe to call on a nil handle.
func (b *pooledBuffer) Release() {
	if b == nil {
		return
	}
	b.pool.Put(b.buf)
}
