package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/acepocalypse/tt2check/internal/fsutil"
)

// FileSource reads raw 8-bit grayscale frames from a recorded file, for
// deterministic offline runs. Recordings are produced with
//
//	ffmpeg -i capture.mp4 -f rawvideo -pix_fmt gray capture.gray
//
// so the detector never touches a codec in this mode either.
type FileSource struct {
	path   string
	width  int
	height int

	f fs.File
	r *bufio.Reader
}

// NewFileSource opens a raw grayscale recording with the given frame size.
func NewFileSource(path string, width, height int) (*FileSource, error) {
	return NewFileSourceFS(fsutil.OSFileSystem{}, path, width, height)
}

// NewFileSourceFS is NewFileSource over an explicit filesystem.
func NewFileSourceFS(filesystem fsutil.FileSystem, path string, width, height int) (*FileSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	f, err := filesystem.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &FileSource{
		path:   path,
		width:  width,
		height: height,
		f:      f,
		r:      bufio.NewReaderSize(f, 1<<20),
	}, nil
}

// Live reports false; recordings are finite.
func (s *FileSource) Live() bool { return false }

// ReadFrame returns the next frame, or io.EOF at the end of the recording.
func (s *FileSource) ReadFrame() (*Frame, error) {
	buf := make([]uint8, s.width*s.height)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame read: %w", err)
	}
	return &Frame{Pix: buf, Width: s.width, Height: s.height, Stride: s.width}, nil
}

// Reopen is not supported for finite recordings.
func (s *FileSource) Reopen(ctx context.Context) error {
	return errors.New("finite source cannot be reopened")
}

// Close closes the recording.
func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
