package led

import "sync"

// Color is one RGB pixel value
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Off is the all-zero pixel
var Off = Color{}

// IsOff reports whether all components are zero
func (c Color) IsOff() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// Strip is the addressable LED sink. Writes are buffered until Commit
// pushes the frame to hardware.
type Strip interface {
	// Count returns the number of physical pixels
	Count() int
	// Set buffers one pixel write; out-of-range indices are ignored
	Set(index int, color Color)
	// Commit pushes the buffered frame to the hardware
	Commit() error
	// Close blanks the strip and releases the hardware
	Close() error
}

// MemoryStrip is an in-memory Strip used by tests and dry runs
type MemoryStrip struct {
	mu      sync.Mutex
	pixels  []Color
	commits int
	frames  [][]Color
}

// NewMemoryStrip creates a MemoryStrip with the given pixel count
func NewMemoryStrip(count int) *MemoryStrip {
	return &MemoryStrip{pixels: make([]Color, count)}
}

func (m *MemoryStrip) Count() int {
	return len(m.pixels)
}

func (m *MemoryStrip) Set(index int, color Color) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.pixels) {
		return
	}
	m.pixels[index] = color
}

func (m *MemoryStrip) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := make([]Color, len(m.pixels))
	copy(frame, m.pixels)
	m.frames = append(m.frames, frame)
	m.commits++
	return nil
}

func (m *MemoryStrip) Close() error {
	return nil
}

// Pixels returns a copy of the current buffer
func (m *MemoryStrip) Pixels() []Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	pixels := make([]Color, len(m.pixels))
	copy(pixels, m.pixels)
	return pixels
}

// Commits returns the number of Commit calls
func (m *MemoryStrip) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Frames returns every committed frame in order
func (m *MemoryStrip) Frames() [][]Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := make([][]Color, len(m.frames))
	copy(frames, m.frames)
	return frames
}
