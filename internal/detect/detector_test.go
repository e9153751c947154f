package detect

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/acepocalypse/tt2check/internal/config"
	"github.com/acepocalypse/tt2check/internal/timeutil"
	"github.com/acepocalypse/tt2check/internal/video"
)

// scriptedSource plays back a fixed frame list, advancing the mock clock one
// frame period per read so timing-driven behaviour is deterministic.
type scriptedSource struct {
	frames  []*video.Frame
	i       int
	clock   *timeutil.MockClock
	period  time.Duration
	live    bool
	readErr error

	reopenErrs int // Reopen fails this many times, then succeeds
	reopens    int
	onReopen   func()
}

func (s *scriptedSource) ReadFrame() (*video.Frame, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	if s.clock != nil {
		s.clock.Advance(s.period)
	}
	return f, nil
}

func (s *scriptedSource) Live() bool { return s.live }

func (s *scriptedSource) Reopen(ctx context.Context) error {
	s.reopens++
	if s.reopens <= s.reopenErrs {
		return errors.New("host unreachable")
	}
	s.readErr = nil
	if s.onReopen != nil {
		s.onReopen()
	}
	return nil
}

func (s *scriptedSource) Close() error { return nil }

// recordingSink captures every persisted outcome.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []string
	amends   int
}

func (r *recordingSink) Record(outcome string, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return true, nil
}

func (r *recordingSink) AmendLastRollbackToSuccess() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amends++
	return true, nil
}

func (r *recordingSink) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// launchFrame paints a floor blob covering the given in-rect rows, full width.
func launchFrame(rowStart int) *video.Frame {
	f := calmFrame()
	paint(f, Rect{X: 0, Y: 8 + rowStart, W: 8, H: 6}, 255)
	return f
}

func crestFrame() *video.Frame {
	f := calmFrame()
	paint(f, Rect{X: 8, Y: 0, W: 4, H: 4}, 255)
	return f
}

func integrationConfig() *config.TuningConfig {
	return &config.TuningConfig{
		CalibSampleCount: intPtr(3),
		ArmDelay:         strPtr("0s"),
		DecelTimeout:     strPtr("250ms"),
		WaitMinDwell:     strPtr("0s"),
		VerifyDeadline:   strPtr("300ms"),
		Ascent2Grace:     strPtr("0s"),
	}
}

func TestDetectorFiniteSourceEndsCleanly(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src := &scriptedSource{
		frames: []*video.Frame{calmFrame(), calmFrame(), calmFrame()},
		clock:  clock,
		period: 100 * time.Millisecond,
	}
	sink := &recordingSink{}

	d, err := NewDetector(integrationConfig(), src, sink, clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("finite source run returned %v", err)
	}
	if got := sink.recorded(); len(got) != 0 {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestDetectorStopsOnRegionFrameMismatch(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	// Frames far smaller than the configured regions: a wrong frame-size
	// setting, not a transient fault.
	tiny := &video.Frame{Pix: make([]uint8, 16), Width: 4, Height: 4, Stride: 4}
	src := &scriptedSource{
		frames: []*video.Frame{tiny, tiny, tiny},
		clock:  clock,
		period: 100 * time.Millisecond,
	}
	sink := &recordingSink{}

	d, err := NewDetector(integrationConfig(), src, sink, clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected the run to fail on a region/frame mismatch")
	}
	if src.i != 1 {
		t.Fatalf("read %d frames after the mismatch, want 1", src.i)
	}
	if got := sink.recorded(); len(got) != 0 {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestDetectorClassifiesScriptedLaunch(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))

	frames := []*video.Frame{
		// Seed plus three calibration frames; armed on the fourth.
		calmFrame(), calmFrame(), calmFrame(), calmFrame(),
		// First ascent: the blob climbs through the floor band.
		launchFrame(8), launchFrame(2),
		// Falls back down fast.
		launchFrame(8), launchFrame(10),
		// Deceleration dies out; the decel timeout moves the machine on.
		calmFrame(), calmFrame(), calmFrame(),
		// Settled.
		calmFrame(),
		// Second ascent.
		launchFrame(8),
		// Over the crest.
		crestFrame(),
		// Quiet until the verify deadline resolves success.
		calmFrame(), calmFrame(), calmFrame(),
	}
	src := &scriptedSource{frames: frames, clock: clock, period: 100 * time.Millisecond}
	sink := &recordingSink{}

	d, err := NewDetector(integrationConfig(), src, sink, clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := sink.recorded()
	if len(got) != 1 || got[0] != "success" {
		t.Fatalf("recorded %v, want [success]", got)
	}
}

func TestReconnectBackoffDoublesAndCaps(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	cfg := &config.TuningConfig{
		ReconnectBaseDelay:   strPtr("1s"),
		ReconnectMaxDelay:    strPtr("4s"),
		ReconnectMaxAttempts: intPtr(5),
	}
	src := &scriptedSource{
		live:       true,
		readErr:    errors.New("stream gone"),
		reopenErrs: 100,
		clock:      clock,
	}
	sink := &recordingSink{}

	d, err := NewDetector(cfg, src, sink, clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Run(context.Background())
	if err == nil {
		t.Fatal("expected a fatal error after exhausting reconnect attempts")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if diff := cmp.Diff(want, clock.Sleeps()); diff != "" {
		t.Fatalf("backoff sleeps mismatch (-want +got):\n%s", diff)
	}
	if src.reopens != 5 {
		t.Fatalf("reopen attempts = %d, want 5", src.reopens)
	}
}

func TestReconnectStartsNewRun(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())

	src := &scriptedSource{
		live:       true,
		readErr:    errors.New("stream gone"),
		reopenErrs: 2,
		clock:      clock,
		period:     100 * time.Millisecond,
	}
	// Once reconnected, stop the loop before it reads from the empty script.
	src.onReopen = cancel

	sink := &recordingSink{}
	d, err := NewDetector(integrationConfig(), src, sink, clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	before := d.RunID()

	err = d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}

	if d.RunID() == before {
		t.Fatal("run ID unchanged after a successful reconnect")
	}
	if src.reopens != 3 {
		t.Fatalf("reopen attempts = %d, want 3", src.reopens)
	}
}

func TestReconnectHonoursCancellation(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{live: true, readErr: errors.New("stream gone"), clock: clock}
	d, err := NewDetector(integrationConfig(), src, sink(), clock, testRegions(), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}

func sink() *recordingSink { return &recordingSink{} }
