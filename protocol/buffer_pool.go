package protocol

import (
	"sync"
)

// Buffer size constants for packet writers
const (
	SmallBufferSize = 256         // Most login and play packets
	MaxPooledBuffer = 1024 * 1024 // 1MB - don't pool larger writers
)

// writerPool is a sync.Pool for reusing packet writers to reduce allocations
var writerPool = sync.Pool{
	New: func() interface{} {
		return NewWriter(SmallBufferSize)
	},
}

// GetWriter retrieves a writer from the pool.
// The writer is reset and ready for use.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// PutWriter returns a writer to the pool.
// Writers larger than MaxPooledBuffer are not pooled to prevent memory bloat.
func PutWriter(w *Writer) {
	if w == nil {
		return
	}
	if cap(w.buf) > MaxPooledBuffer {
		return
	}
	w.Reset()
	writerPool.Put(w)
}

// Encode builds a frame with a pooled writer. The returned frame does not
// reference pooled memory.
func Encode(packetID int32, build func(w *Writer)) []byte {
	w := GetWriter()
	defer PutWriter(w)
	if build != nil {
		build(w)
	}
	return Frame(packetID, w.Bytes())
}
