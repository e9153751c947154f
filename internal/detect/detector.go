package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/acepocalypse/tt2check/internal/config"
	"github.com/acepocalypse/tt2check/internal/monitoring"
	"github.com/acepocalypse/tt2check/internal/timeutil"
	"github.com/acepocalypse/tt2check/internal/video"
)

// EventSink persists classified outcomes. Implemented by db.EventStore.
type EventSink interface {
	// Record appends an outcome unless the minimum-interval dedup rule
	// suppresses it. Returns whether a row was written.
	Record(outcome string, ts time.Time) (bool, error)

	// AmendLastRollbackToSuccess rewrites the most recent rollback row.
	// Returns whether a row was changed.
	AmendLastRollbackToSuccess() (bool, error)
}

// Detector owns the single frame-synchronous pipeline: read a frame, update
// motion and velocity, advance the state machine, persist any outcome. No
// other goroutine mutates its state.
type Detector struct {
	cfg      *config.TuningConfig
	src      video.Source
	clock    timeutil.Clock
	store    EventSink
	motion   *MotionModel
	velocity *VelocityTracker
	fsm      *StateMachine
	quiet    bool
	runID    string
}

// NewDetector wires a detector over the given source, store and regions.
func NewDetector(cfg *config.TuningConfig, src video.Source, store EventSink, clock timeutil.Clock, regions []Region, quiet bool) (*Detector, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	motion, err := NewMotionModel(cfg, regions)
	if err != nil {
		return nil, err
	}
	return &Detector{
		cfg:      cfg,
		src:      src,
		clock:    clock,
		store:    store,
		motion:   motion,
		velocity: NewVelocityTracker(cfg),
		fsm:      NewStateMachine(cfg),
		quiet:    quiet,
		runID:    uuid.NewString(),
	}, nil
}

// Run drives the loop until the context is cancelled, a finite source ends,
// or reconnection attempts are exhausted (fatal).
func (d *Detector) Run(ctx context.Context) error {
	monitoring.Logf("[detector] run %s starting", d.runID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := d.src.ReadFrame()
		if err != nil {
			if !d.src.Live() {
				if errors.Is(err, io.EOF) {
					monitoring.Logf("[detector] recording finished")
					return nil
				}
				return fmt.Errorf("finite source failed: %w", err)
			}
			monitoring.Logf("[stream] lost (%v), reconnecting", err)
			if err := d.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if err := d.step(frame); err != nil {
			return err
		}
	}
}

// step runs one frame tick to completion. The clock is captured once and
// used for every decision in the frame.
func (d *Detector) step(frame *video.Frame) error {
	now := d.clock.Now()
	monitoring.FramesProcessed.Inc()

	reading, err := d.motion.Update(frame, now)
	if err != nil {
		// A region/frame mismatch is a configuration error and holds for
		// every subsequent frame; stop instead of spinning on it.
		return fmt.Errorf("motion update: %w", err)
	}

	if reading.Armed {
		d.velocity.Observe(reading.FloorDiff, reading.FloorWidth, reading.FloorHeight, now)
	}

	res := d.fsm.Step(FrameSignals{
		Armed:          reading.Armed,
		FloorHot:       reading.FloorHot,
		CrestHot:       reading.CrestHot,
		VerifyHot:      reading.VerifyHot,
		FloorScore:     reading.FloorScore,
		FloorThreshold: reading.FloorThreshold,
		Velocity:       d.velocity.Velocity(),
		Now:            now,
	})

	if res.Emit {
		d.persist(res.Outcome, now)
	}
	if res.AmendRollback {
		d.amend()
	}

	if !d.quiet {
		d.printStatus(reading)
	}
	return nil
}

// persist writes one outcome. Storage failures are reported but never crash
// the frame loop.
func (d *Detector) persist(outcome Outcome, now time.Time) {
	written, err := d.store.Record(string(outcome), now)
	switch {
	case err != nil:
		monitoring.Logf("[event] failed to record %s: %v", outcome, err)
	case written:
		monitoring.EventsRecorded.WithLabelValues(string(outcome)).Inc()
		monitoring.Logf("[event] %s logged", outcome)
	default:
		monitoring.EventsSuppressed.Inc()
		monitoring.Logf("[event] %s suppressed by dedup interval", outcome)
	}
}

func (d *Detector) amend() {
	changed, err := d.store.AmendLastRollbackToSuccess()
	switch {
	case err != nil:
		monitoring.Logf("[event] amend failed: %v", err)
	case changed:
		monitoring.EventsAmended.Inc()
		monitoring.Logf("[event] rollback amended to success")
	}
}

// reconnect applies exponential backoff around src.Reopen and, on success,
// resets all per-run state and opens the grace window.
func (d *Detector) reconnect(ctx context.Context) error {
	delay := d.cfg.GetReconnectBaseDelay()
	maxDelay := d.cfg.GetReconnectMaxDelay()
	maxAttempts := d.cfg.GetReconnectMaxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.clock.Sleep(delay)

		if err := d.src.Reopen(ctx); err != nil {
			monitoring.Logf("[stream] reconnect attempt %d/%d failed: %v", attempt, maxAttempts, err)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		now := d.clock.Now()
		d.motion.Reset()
		d.velocity.Reset()
		d.fsm.Reset(now)
		d.fsm.StartGrace(now)
		d.runID = uuid.NewString()
		monitoring.Reconnects.Inc()
		monitoring.Logf("[stream] reconnected, run %s, grace window open", d.runID)
		return nil
	}
	return fmt.Errorf("stream reconnect failed after %d attempts", maxAttempts)
}

// printStatus rewrites a one-line console readout, mirroring what an
// operator watches while tuning thresholds.
func (d *Detector) printStatus(r Reading) {
	armed := "calibrating"
	if r.Armed {
		armed = "armed"
	}
	fmt.Fprintf(os.Stderr, "\r%-6s %-11s floor=%-5d crest=%-5v v=%+6.1f",
		d.fsm.State(), armed, r.FloorScore, r.CrestHot, d.velocity.Velocity())
}

// RunID returns the identifier of the current connection session.
func (d *Detector) RunID() string { return d.runID }
