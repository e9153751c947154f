package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/acepocalypse/tt2check/internal/monitoring"
)

// DefaultHosts is the known set of playlist mirrors for the launch-track
// camera, tried in order on every (re)connect.
var DefaultHosts = []string{
	"https://cs4.pixelcaster.com/live/cedar2.stream/playlist.m3u8",
	"https://cs3.pixelcaster.com/live/cedar2.stream/playlist.m3u8",
	"https://cs2.pixelcaster.com/live/cedar2.stream/playlist.m3u8",
}

// FFmpegSource decodes a live playlist through an external ffmpeg process
// emitting raw 8-bit grayscale frames on stdout. Each ReadFrame pulls exactly
// one frame of width*height bytes.
type FFmpegSource struct {
	hosts  []string
	width  int
	height int

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	pending []uint8 // first frame read while probing the host, served next
}

// NewFFmpegSource creates a live source over the given playlist hosts.
// The stream's native frame dimensions must be supplied; region rectangles
// are defined against them.
func NewFFmpegSource(ctx context.Context, hosts []string, width, height int) (*FFmpegSource, error) {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	s := &FFmpegSource{hosts: hosts, width: width, height: height}
	if err := s.Reopen(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Live reports true; playlist streams are continuous.
func (s *FFmpegSource) Live() bool { return true }

// Reopen stops any running decoder and tries each host in order until one
// proves live by delivering a full frame. Starting ffmpeg alone is not enough:
// the process launches fine against a dead URL and only fails once decoding
// begins, so a host is accepted only after its first frame arrives. That
// frame is buffered and served by the next ReadFrame.
func (s *FFmpegSource) Reopen(ctx context.Context) error {
	s.stop()

	var lastErr error
	for _, host := range s.hosts {
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-loglevel", "error",
			"-i", host,
			"-f", "rawvideo",
			"-pix_fmt", "gray",
			"-",
		)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			lastErr = err
			continue
		}
		if err := cmd.Start(); err != nil {
			lastErr = fmt.Errorf("start decoder for %s: %w", host, err)
			continue
		}
		buf := make([]uint8, s.width*s.height)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			lastErr = fmt.Errorf("no frames from %s: %w", host, err)
			continue
		}
		s.cmd = cmd
		s.stdout = stdout
		s.pending = buf
		monitoring.Logf("[stream] connected to %s", host)
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no stream hosts configured")
	}
	return fmt.Errorf("all host attempts failed: %w", lastErr)
}

// ReadFrame blocks until a full frame is decoded.
func (s *FFmpegSource) ReadFrame() (*Frame, error) {
	if s.stdout == nil {
		return nil, errors.New("source not open")
	}
	buf := s.pending
	s.pending = nil
	if buf == nil {
		buf = make([]uint8, s.width*s.height)
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			return nil, fmt.Errorf("frame read: %w", err)
		}
	}
	return &Frame{Pix: buf, Width: s.width, Height: s.height, Stride: s.width}, nil
}

// Close terminates the decoder process.
func (s *FFmpegSource) Close() error {
	s.stop()
	return nil
}

func (s *FFmpegSource) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
	s.pending = nil
}
