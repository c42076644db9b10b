// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transport

import "sync"

// BufferPool hands out fixed-size scratch buffers for UDP reads, the
// transport-layer analogue of generic/copy.go's CopyControl: a shared
// buffer guarded against concurrent reuse, except sized to one
// datagram instead of one continuous stream and backed by sync.Pool so
// concurrent readers (media/row-FEC/col-FEC sockets) don't serialize on
// a single mutex.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool builds a pool of byte slices of the given size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{New: func() interface{} { return make([]byte, size) }},
	}
}

// Get returns a buffer of Size() bytes, possibly reused.
func (p *BufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if len(buf) != p.size {
		return make([]byte, p.size)
	}
	return buf
}

// Put returns buf to the pool for reuse. Callers must not retain buf
// after calling Put.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) == p.size {
		p.pool.Put(buf)
	}
}

// Size reports the fixed buffer size this pool was constructed with.
func (p *BufferPool) Size() int { return p.size }
