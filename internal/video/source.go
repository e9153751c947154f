// Package video supplies decoded grayscale frames to the detector. Resolving
// a playlist URL into a decodable stream and the codec decode itself are
// delegated to an external ffmpeg process; this package owns only the frame
// boundary the detector consumes.
package video

import "context"

// Frame is a single decoded 8-bit grayscale frame.
type Frame struct {
	Pix    []uint8 // row-major, Stride bytes per row
	Width  int
	Height int
	Stride int
}

// At returns the intensity at (x, y). No bounds checking; callers crop
// through region rectangles validated at startup.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Stride+x]
}

// Source supplies decoded frames in order from an underlying stream or file.
type Source interface {
	// ReadFrame returns the next frame. A non-nil error means the source
	// failed or ended; the caller decides between reconnecting and stopping
	// based on Live.
	ReadFrame() (*Frame, error)

	// Live reports whether the source is continuous. Finite sources (recorded
	// video) return false and are never reconnected.
	Live() bool

	// Reopen re-establishes the underlying stream after a read failure.
	Reopen(ctx context.Context) error

	// Close releases the underlying stream.
	Close() error
}
