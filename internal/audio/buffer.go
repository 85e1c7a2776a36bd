package audio

import (
	"fmt"
	"sync"
	"time"
)

// defaultInitialCap pre-allocates room for roughly the first minute of a
// compressed voice stream so early appends don't reallocate.
const defaultInitialCap = 256 * 1024

// Buffer accumulates the raw bytes of a streamed media container. Appends
// and snapshots may race freely; the session guarantees appends only happen
// while recording.
type Buffer struct {
	mu         sync.RWMutex
	data       []byte
	chunks     uint64
	lastAppend time.Time
	createdAt  time.Time
}

// BufferStats is a read-only view of buffer bookkeeping for monitoring.
type BufferStats struct {
	TotalChunks uint64    `json:"total_chunks"`
	TotalBytes  int       `json:"total_bytes"`
	LastAppend  time.Time `json:"last_append"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewBuffer creates an empty container buffer.
func NewBuffer() *Buffer {
	now := time.Now()
	return &Buffer{
		data:      make([]byte, 0, defaultInitialCap),
		createdAt: now,
	}
}

// Append adds one container chunk and returns the new total length in bytes.
// Chunks arrive in order on a single connection; an empty chunk is rejected
// because it signals a client framing bug.
func (b *Buffer) Append(chunk []byte) (int, error) {
	if len(chunk) == 0 {
		return 0, fmt.Errorf("empty audio chunk")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, chunk...)
	b.chunks++
	b.lastAppend = time.Now()

	return len(b.data), nil
}

// Len returns the current buffer length in bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Snapshot returns a copy of the buffered bytes. The copy is what a decode
// cycle works on, so concurrent appends never mutate an in-flight decode.
func (b *Buffer) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make([]byte, len(b.data))
	copy(snapshot, b.data)
	return snapshot
}

// Reset discards all buffered audio but keeps the allocation.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = b.data[:0]
	b.chunks = 0
	b.lastAppend = time.Time{}
}

// Stats returns current buffer bookkeeping.
func (b *Buffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		TotalChunks: b.chunks,
		TotalBytes:  len(b.data),
		LastAppend:  b.lastAppend,
		CreatedAt:   b.createdAt,
	}
}

// LastAppend returns the time of the most recent append, zero if none.
func (b *Buffer) LastAppend() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastAppend
}
