// Package buffers provides reusable byte buffers for streaming copies.
package buffers

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/taxdesk/taxdesk/internal/constants"
)

var (
	allocations atomic.Int64
	gets        atomic.Int64

	copyPool = &sync.Pool{
		New: func() interface{} {
			allocations.Add(1)
			buf := make([]byte, constants.CopyBufferSize)
			return &buf
		},
	}
)

// GetCopyBuffer retrieves a CopyBufferSize buffer from the pool.
// Return it with PutCopyBuffer when done.
func GetCopyBuffer() *[]byte {
	gets.Add(1)
	return copyPool.Get().(*[]byte)
}

// PutCopyBuffer returns a buffer to the pool. Buffers of any other size are
// dropped. The contents are cleared so document bytes do not linger.
func PutCopyBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.CopyBufferSize {
		clear(*buf)
		copyPool.Put(buf)
	}
}

// Copy is io.Copy through a pooled buffer.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetCopyBuffer()
	defer PutCopyBuffer(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// Stats reports pool usage.
type Stats struct {
	BufferSize  int
	Gets        int64
	Allocations int64
}

// ReuseRate is the share of gets served without allocating, in percent.
func (s Stats) ReuseRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	reused := s.Gets - s.Allocations
	if reused < 0 {
		reused = 0
	}
	return float64(reused) / float64(s.Gets) * 100
}

// GetStats returns the current pool statistics.
func GetStats() Stats {
	return Stats{
		BufferSize:  constants.CopyBufferSize,
		Gets:        gets.Load(),
		Allocations: allocations.Load(),
	}
}
