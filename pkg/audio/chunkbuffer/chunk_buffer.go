// Package chunkbuffer implements the accumulator between a capture loop
// and the consumers that drain captured audio in duration-sized slices.
package chunkbuffer

import (
	"sync"
	"time"

	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

// ChunkBuffer is a thread-safe FIFO of captured PCM bytes.
type ChunkBuffer struct {
	format types.Format
	locker sync.Mutex
	data   []byte
}

func New(format types.Format) *ChunkBuffer {
	return &ChunkBuffer{
		format: format,
	}
}

func (b *ChunkBuffer) Format() types.Format {
	return b.format
}

// Append copies p to the end of the buffer. The caller appends whole periods.
func (b *ChunkBuffer) Append(p []byte) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.data = append(b.data, p...)
}

// Write implements io.Writer on top of Append.
func (b *ChunkBuffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// ConsumeAll returns everything buffered and leaves the buffer empty.
func (b *ChunkBuffer) ConsumeAll() []byte {
	b.locker.Lock()
	defer b.locker.Unlock()
	result := b.data
	b.data = nil
	return result
}

// ConsumeDuration returns the first floor(d/periodDuration) periods. If that
// is at least everything buffered, it returns everything instead.
func (b *ChunkBuffer) ConsumeDuration(d time.Duration) []byte {
	requestedBytes := b.format.DurationToBytes(d)

	b.locker.Lock()
	defer b.locker.Unlock()
	if requestedBytes >= uint64(len(b.data)) {
		result := b.data
		b.data = nil
		return result
	}
	if requestedBytes == 0 {
		return []byte{}
	}

	result := b.data[:requestedBytes:requestedBytes]
	rest := make([]byte, uint64(len(b.data))-requestedBytes)
	copy(rest, b.data[requestedBytes:])
	b.data = rest
	return result
}

func (b *ChunkBuffer) AvailableBytes() uint64 {
	b.locker.Lock()
	defer b.locker.Unlock()
	return uint64(len(b.data))
}

func (b *ChunkBuffer) AvailableDuration() time.Duration {
	return b.format.BytesToDuration(b.AvailableBytes())
}
