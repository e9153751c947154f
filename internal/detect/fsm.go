package detect

import (
	"time"

	"github.com/acepocalypse/tt2check/internal/config"
)

// State is the launch-lifecycle state of the detector.
type State int

const (
	// StateIdle means no launch is in progress.
	StateIdle State = iota
	// StateAscent1 is the first ascent after launch.
	StateAscent1
	// StateRollbackDecel is the deceleration after the train falls back past
	// the floor region.
	StateRollbackDecel
	// StateWait is the brief settle before the second attempt.
	StateWait
	// StateAscent2 is the second ascent toward the crest.
	StateAscent2
	// StateVerify awaits confirmation after a crest sighting.
	StateVerify
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAscent1:
		return "ASC1"
	case StateRollbackDecel:
		return "RBACK"
	case StateWait:
		return "WAIT"
	case StateAscent2:
		return "ASC2"
	case StateVerify:
		return "VERIFY"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the final classification of one launch attempt.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeRollback   Outcome = "rollback"
	OutcomeIncomplete Outcome = "incomplete"
)

// FrameSignals is the per-frame input to the state machine: the hot flags and
// floor score from the motion model and the smoothed velocity. Now is the
// clock reading captured once for the whole frame.
type FrameSignals struct {
	Armed     bool
	FloorHot  bool
	CrestHot  bool
	VerifyHot bool

	FloorScore     int
	FloorThreshold float64

	Velocity float64

	Now time.Time
}

// Result is the action, if any, decided for one frame. At most one outcome is
// emitted per state-machine cycle, on the transition back to idle.
type Result struct {
	// Emit is true when Outcome holds a final classification to persist.
	Emit    bool
	Outcome Outcome

	// AmendRollback requests rewriting the most recent rollback row to
	// success: the crest fired again shortly after a rollback call, so the
	// earlier read was wrong.
	AmendRollback bool
}

// StateMachine consumes per-frame signals and decides when a launch attempt
// has a final outcome. Rollback decisions integrate evidence over several
// frames with a counter that decays when evidence is absent, so a single
// noisy frame cannot flip the outcome.
type StateMachine struct {
	cfg *config.TuningConfig

	state     State
	enteredAt time.Time

	rollbackEvidence int

	graceUntil     time.Time // reconnect grace window
	lastRollbackAt time.Time // for the amend rule
}

// NewStateMachine creates a state machine in the idle state.
func NewStateMachine(cfg *config.TuningConfig) *StateMachine {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &StateMachine{cfg: cfg}
}

// State returns the current state.
func (sm *StateMachine) State() State { return sm.state }

// Reset returns the machine to idle and clears all per-cycle scratch. The
// amend timestamp survives: a rollback row already persisted can still be
// corrected after a reconnect.
func (sm *StateMachine) Reset(now time.Time) {
	sm.toIdle(now)
}

// StartGrace opens the post-reconnect grace window. While it is open the
// rollback-evidence paths are suppressed and crest sightings resolve straight
// to success; a missed rollback corrected by hand is less damaging than a
// false rollback call.
func (sm *StateMachine) StartGrace(now time.Time) {
	sm.graceUntil = now.Add(sm.cfg.GetReconnectGrace())
}

// InGrace reports whether the reconnect grace window is open.
func (sm *StateMachine) InGrace(now time.Time) bool {
	return now.Before(sm.graceUntil)
}

// Step advances the machine by one frame.
func (sm *StateMachine) Step(in FrameSignals) Result {
	if !in.Armed {
		// Calibration still collecting (or permanently stalled); nothing to
		// classify. Deadlines are measured from state entry, so an unarmed
		// stretch inside a cycle still counts toward them.
		return Result{}
	}

	switch sm.state {
	case StateIdle:
		return sm.stepIdle(in)
	case StateAscent1:
		return sm.stepAscent1(in)
	case StateRollbackDecel:
		return sm.stepRollbackDecel(in)
	case StateWait:
		return sm.stepWait(in)
	case StateAscent2:
		return sm.stepAscent2(in)
	case StateVerify:
		return sm.stepVerify(in)
	}
	return Result{}
}

func (sm *StateMachine) stepIdle(in FrameSignals) Result {
	// A crest sighting shortly after a rollback call means the rollback was
	// misread near the boundary; rewrite it rather than logging a new event.
	if in.CrestHot && !sm.lastRollbackAt.IsZero() &&
		in.Now.Sub(sm.lastRollbackAt) <= sm.cfg.GetAmendWindow() {
		sm.lastRollbackAt = time.Time{}
		return Result{AmendRollback: true}
	}

	// During the reconnect grace window a crest sighting is trusted directly:
	// the launch most likely happened while the stream was down.
	if in.CrestHot && sm.InGrace(in.Now) {
		return sm.resolve(OutcomeSuccess, in.Now)
	}

	if in.FloorHot && in.Velocity <= sm.cfg.GetUpVelocity() {
		sm.transition(StateAscent1, in.Now)
	}
	return Result{}
}

func (sm *StateMachine) stepAscent1(in FrameSignals) Result {
	if in.CrestHot && sm.InGrace(in.Now) {
		return sm.resolve(OutcomeSuccess, in.Now)
	}
	if in.FloorHot && in.Velocity >= sm.cfg.GetDownVelocity() {
		sm.transition(StateRollbackDecel, in.Now)
	}
	return Result{}
}

func (sm *StateMachine) stepRollbackDecel(in FrameSignals) Result {
	if in.CrestHot && sm.InGrace(in.Now) {
		return sm.resolve(OutcomeSuccess, in.Now)
	}
	exit := sm.cfg.GetDecelExitFraction() * in.FloorThreshold
	if float64(in.FloorScore) < exit || sm.sinceEntry(in.Now) >= sm.cfg.GetDecelTimeout() {
		sm.transition(StateWait, in.Now)
	}
	return Result{}
}

func (sm *StateMachine) stepWait(in FrameSignals) Result {
	if in.CrestHot && sm.InGrace(in.Now) {
		return sm.resolve(OutcomeSuccess, in.Now)
	}
	switch {
	case in.FloorHot && in.Velocity <= sm.cfg.GetUpVelocity() &&
		sm.sinceEntry(in.Now) >= sm.cfg.GetWaitMinDwell():
		sm.transition(StateAscent2, in.Now)
	case in.FloorHot:
		// Still falling through the floor band; restart the settle timer.
		sm.enteredAt = in.Now
	case sm.sinceEntry(in.Now) >= sm.cfg.GetWaitTimeout():
		return sm.resolve(OutcomeIncomplete, in.Now)
	}
	return Result{}
}

func (sm *StateMachine) stepAscent2(in FrameSignals) Result {
	if res, done := sm.graceResolve(in); done {
		return res
	}

	if in.CrestHot {
		sm.transition(StateVerify, in.Now)
		return Result{}
	}

	// Rollback path: sustained strong downward velocity without ever seeing
	// the crest. Inside the ASC2 grace period the launch's own initial motion
	// can read as descent, so a verify-region signal is also required there.
	evidence := in.Velocity >= sm.cfg.GetRollbackVelocity()
	if sm.sinceEntry(in.Now) < sm.cfg.GetAscent2Grace() {
		evidence = evidence && in.VerifyHot
	}
	if done := sm.integrateEvidence(evidence); done {
		return sm.resolveRollback(in.Now)
	}

	if sm.sinceEntry(in.Now) >= sm.cfg.GetAscent2Deadline() {
		return sm.resolve(OutcomeSuccess, in.Now)
	}
	return Result{}
}

func (sm *StateMachine) stepVerify(in FrameSignals) Result {
	if res, done := sm.graceResolve(in); done {
		return res
	}

	evidence := (in.FloorHot || in.VerifyHot) && in.Velocity >= sm.cfg.GetRollbackVelocity()
	if done := sm.integrateEvidence(evidence); done {
		return sm.resolveRollback(in.Now)
	}

	if sm.sinceEntry(in.Now) >= sm.cfg.GetVerifyDeadline() {
		return sm.resolve(OutcomeSuccess, in.Now)
	}
	return Result{}
}

// graceResolve applies the reconnect-grace bias in ASC2/VERIFY: a crest
// sighting, or simply having been in the state past a short sub-window,
// resolves directly to success.
func (sm *StateMachine) graceResolve(in FrameSignals) (Result, bool) {
	if !sm.InGrace(in.Now) {
		return Result{}, false
	}
	if in.CrestHot || sm.sinceEntry(in.Now) >= sm.cfg.GetGraceSuccessAfter() {
		return sm.resolve(OutcomeSuccess, in.Now), true
	}
	// Rollback evidence stays suppressed for the rest of the window.
	sm.rollbackEvidence = 0
	return Result{}, false
}

// integrateEvidence advances the debounce counter: +1 on evidence, -1 (never
// below zero) on its absence. Returns true once the confirmation threshold is
// reached.
func (sm *StateMachine) integrateEvidence(evidence bool) bool {
	if evidence {
		sm.rollbackEvidence++
	} else if sm.rollbackEvidence > 0 {
		sm.rollbackEvidence--
	}
	return sm.rollbackEvidence >= sm.cfg.GetRollbackConfirmFrames()
}

func (sm *StateMachine) resolveRollback(now time.Time) Result {
	sm.lastRollbackAt = now
	return sm.resolve(OutcomeRollback, now)
}

// resolve finalises the cycle with the given outcome and returns to idle.
func (sm *StateMachine) resolve(outcome Outcome, now time.Time) Result {
	sm.toIdle(now)
	return Result{Emit: true, Outcome: outcome}
}

func (sm *StateMachine) transition(s State, now time.Time) {
	sm.state = s
	sm.enteredAt = now
}

// toIdle clears all per-state scratch: the entry timer and the evidence
// counter.
func (sm *StateMachine) toIdle(now time.Time) {
	sm.state = StateIdle
	sm.enteredAt = now
	sm.rollbackEvidence = 0
}

func (sm *StateMachine) sinceEntry(now time.Time) time.Duration {
	if sm.enteredAt.IsZero() {
		return 0
	}
	return now.Sub(sm.enteredAt)
}
