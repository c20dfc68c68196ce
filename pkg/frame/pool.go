package frame

import "sync"

// Pool recycles fixed-size payloads for drivers that copy device memory into
// Go memory. Drivers hand payloads back with Put from a buffer release hook.
type Pool struct {
	size int
	pool sync.Pool
}

// NewPool creates a pool of size-byte payloads.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size returns the payload length handed out by Get.
func (p *Pool) Size() int { return p.size }

// Get returns a payload of exactly Size bytes. Contents are unspecified.
func (p *Pool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns a payload to the pool. Payloads of the wrong size are dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
