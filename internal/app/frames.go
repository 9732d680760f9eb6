package app

import (
	"sync"
)

// FrameBuffer holds the most recent JPEG frame for live viewers. The pipeline
// only encodes frames while at least one viewer is attached.
type FrameBuffer struct {
	mu      sync.RWMutex
	jpeg    []byte
	seq     uint64
	viewers int
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Set stores a new frame. The buffer takes ownership of jpeg.
func (b *FrameBuffer) Set(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jpeg = jpeg
	b.seq++
}

// Latest returns the current frame and its sequence number. seq is zero
// until the first frame arrives.
func (b *FrameBuffer) Latest() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jpeg, b.seq
}

// Watch registers a viewer. The returned function unregisters it.
func (b *FrameBuffer) Watch() func() {
	b.mu.Lock()
	b.viewers++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.viewers--
			b.mu.Unlock()
		})
	}
}

// Watched reports whether any viewer is attached.
func (b *FrameBuffer) Watched() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewers > 0
}
