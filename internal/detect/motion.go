package detect

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/acepocalypse/tt2check/internal/config"
	"github.com/acepocalypse/tt2check/internal/monitoring"
	"github.com/acepocalypse/tt2check/internal/video"
)

// partState is the calibration and background state for one sub-rectangle.
type partState struct {
	rect       Rect
	background []float64 // EMA estimate, same shape as rect
	seeded     bool
	samples    []float64 // motion scores collected before arming
	threshold  float64   // valid once the model is armed
	score      int       // motion score for the current frame
}

type regionState struct {
	region Region
	parts  []*partState
	hot    bool
	score  int
}

// Reading is the per-frame output of the motion model consumed by the
// velocity tracker and the state machine.
type Reading struct {
	Armed     bool
	FloorHot  bool
	CrestHot  bool
	VerifyHot bool

	// FloorScore and FloorThreshold drive the RBACK_DECEL exit test.
	FloorScore     int
	FloorThreshold float64

	// FloorDiff is the absolute-difference image of the full floor rectangle,
	// reused by the velocity tracker for centroid extraction. Valid until the
	// next Update call.
	FloorDiff   []uint8
	FloorWidth  int
	FloorHeight int
}

// MotionModel maintains a slowly-adapting background estimate and a motion
// score per region, arming per-region thresholds after a one-time statistical
// calibration. All state is owned by the single detection loop.
type MotionModel struct {
	cfg     *config.TuningConfig
	regions []*regionState
	byRole  map[Role]*regionState

	armed         bool
	startedAt     time.Time
	stallReported bool

	floorDiff []uint8
	validated bool
}

// NewMotionModel builds a model over the given regions. Exactly one region
// per role is expected.
func NewMotionModel(cfg *config.TuningConfig, regions []Region) (*MotionModel, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	m := &MotionModel{cfg: cfg, byRole: make(map[Role]*regionState)}
	for _, r := range regions {
		rs := &regionState{region: r}
		for _, p := range r.parts() {
			rs.parts = append(rs.parts, &partState{rect: p})
		}
		m.regions = append(m.regions, rs)
		if _, dup := m.byRole[r.Role]; dup {
			return nil, fmt.Errorf("duplicate region role %q", r.Role)
		}
		m.byRole[r.Role] = rs
	}
	for _, role := range []Role{RoleFloor, RoleCrest, RoleVerify} {
		if _, ok := m.byRole[role]; !ok {
			return nil, fmt.Errorf("missing region for role %q", role)
		}
	}
	floor := m.byRole[RoleFloor].region.Rect
	m.floorDiff = make([]uint8, floor.W*floor.H)
	return m, nil
}

// Reset returns every region to the collecting phase, discarding background
// estimates, calibration buffers and thresholds. Called on reconnect.
func (m *MotionModel) Reset() {
	for _, rs := range m.regions {
		rs.hot = false
		rs.score = 0
		for _, p := range rs.parts {
			p.seeded = false
			p.background = nil
			p.samples = nil
			p.threshold = 0
			p.score = 0
		}
	}
	m.armed = false
	m.startedAt = time.Time{}
	m.stallReported = false
}

// Armed reports whether calibration has completed for every region.
func (m *MotionModel) Armed() bool { return m.armed }

// Threshold returns the armed threshold of the region with the given role,
// summed over its sub-rectangles. Zero before arming.
func (m *MotionModel) Threshold(role Role) float64 {
	rs, ok := m.byRole[role]
	if !ok || !m.armed {
		return 0
	}
	total := 0.0
	for _, p := range rs.parts {
		total += p.threshold
	}
	return total
}

// Update folds one frame into the model and returns the per-frame reading.
func (m *MotionModel) Update(f *video.Frame, now time.Time) (Reading, error) {
	if !m.validated {
		for _, rs := range m.regions {
			if err := rs.region.Validate(f.Width, f.Height); err != nil {
				return Reading{}, err
			}
		}
		m.validated = true
	}
	if m.startedAt.IsZero() {
		m.startedAt = now
	}

	pixelDelta := float64(m.cfg.GetPixelDelta())
	alpha := m.cfg.GetBackgroundAlpha()
	sampleCount := m.cfg.GetCalibSampleCount()

	floorRect := m.byRole[RoleFloor].region.Rect

	for _, rs := range m.regions {
		rs.score = 0
		for _, p := range rs.parts {
			m.updatePart(f, rs, p, pixelDelta, alpha, sampleCount, floorRect)
			rs.score += p.score
		}
	}

	m.maybeArm(now, sampleCount)
	m.classify()

	floor := m.byRole[RoleFloor]
	r := Reading{
		Armed:          m.armed,
		FloorHot:       floor.hot,
		CrestHot:       m.byRole[RoleCrest].hot,
		VerifyHot:      m.byRole[RoleVerify].hot,
		FloorScore:     floor.score,
		FloorThreshold: m.Threshold(RoleFloor),
		FloorDiff:      m.floorDiff,
		FloorWidth:     floorRect.W,
		FloorHeight:    floorRect.H,
	}
	return r, nil
}

// updatePart scores one sub-rectangle against its background and folds the
// frame into the EMA. Floor parts also write their diff pixels into the
// shared full-rectangle diff buffer.
func (m *MotionModel) updatePart(f *video.Frame, rs *regionState, p *partState, pixelDelta, alpha float64, sampleCount int, floorRect Rect) {
	isFloor := rs.region.Role == RoleFloor

	if !p.seeded {
		p.background = make([]float64, p.rect.W*p.rect.H)
		for y := 0; y < p.rect.H; y++ {
			for x := 0; x < p.rect.W; x++ {
				p.background[y*p.rect.W+x] = float64(f.At(p.rect.X+x, p.rect.Y+y))
			}
		}
		p.seeded = true
		p.score = 0
		if isFloor {
			m.fillFloorDiff(p.rect, floorRect, nil)
		}
		return
	}

	count := 0
	var diff []uint8
	if isFloor {
		diff = make([]uint8, p.rect.W*p.rect.H)
	}
	for y := 0; y < p.rect.H; y++ {
		for x := 0; x < p.rect.W; x++ {
			i := y*p.rect.W + x
			cur := float64(f.At(p.rect.X+x, p.rect.Y+y))
			d := cur - p.background[i]
			if d < 0 {
				d = -d
			}
			if d > pixelDelta {
				count++
			}
			if isFloor {
				if d > 255 {
					d = 255
				}
				diff[i] = uint8(d)
			}
			// Adapts to gradual lighting change but not to the moving train.
			p.background[i] = (1-alpha)*p.background[i] + alpha*cur
		}
	}
	p.score = count

	if !m.armed && len(p.samples) < sampleCount {
		p.samples = append(p.samples, float64(count))
	}
	if isFloor {
		m.fillFloorDiff(p.rect, floorRect, diff)
	}
}

// fillFloorDiff copies a part's diff pixels into the full-rectangle buffer.
// A nil diff zeroes the part's area (seed frame).
func (m *MotionModel) fillFloorDiff(part, floor Rect, diff []uint8) {
	for y := 0; y < part.H; y++ {
		dstRow := (part.Y - floor.Y + y) * floor.W
		dstCol := part.X - floor.X
		for x := 0; x < part.W; x++ {
			if diff == nil {
				m.floorDiff[dstRow+dstCol+x] = 0
			} else {
				m.floorDiff[dstRow+dstCol+x] = diff[y*part.W+x]
			}
		}
	}
}

// maybeArm performs the one-time collecting -> armed transition once every
// buffer is full and the startup delay has elapsed.
func (m *MotionModel) maybeArm(now time.Time, sampleCount int) {
	if m.armed {
		return
	}
	for _, rs := range m.regions {
		for _, p := range rs.parts {
			if len(p.samples) < sampleCount {
				m.maybeReportStall(now)
				return
			}
		}
	}
	if now.Sub(m.startedAt) < m.cfg.GetArmDelay() {
		return
	}

	for _, rs := range m.regions {
		k := m.sigma(rs.region.Role)
		for _, p := range rs.parts {
			mean := stat.Mean(p.samples, nil)
			sd := stat.PopStdDev(p.samples, nil)
			p.threshold = mean + k*sd
			p.samples = nil
		}
	}
	m.armed = true
	monitoring.Logf("[motion] calibration armed after %s", now.Sub(m.startedAt).Round(time.Millisecond))
}

// maybeReportStall reports (once) a calibration that never completes. The
// condition is not fatal; the state machine simply stays idle.
func (m *MotionModel) maybeReportStall(now time.Time) {
	if m.stallReported || m.startedAt.IsZero() {
		return
	}
	if now.Sub(m.startedAt) >= m.cfg.GetCalibStallAfter() {
		m.stallReported = true
		monitoring.Logf("[motion] calibration stalled: not armed after %s", now.Sub(m.startedAt).Round(time.Second))
	}
}

func (m *MotionModel) sigma(role Role) float64 {
	switch role {
	case RoleCrest:
		return m.cfg.GetSigmaCrest()
	case RoleVerify:
		return m.cfg.GetSigmaVerify()
	default:
		return m.cfg.GetSigmaFloor()
	}
}

// classify recomputes the hot flag for every region. Hot/cold is a pure
// function of the current scores and the stored thresholds.
func (m *MotionModel) classify() {
	for _, rs := range m.regions {
		if !m.armed {
			rs.hot = false
			continue
		}
		if rs.region.requireAllParts() {
			hot := true
			for _, p := range rs.parts {
				if float64(p.score) <= p.threshold {
					hot = false
					break
				}
			}
			rs.hot = hot
		} else {
			hot := false
			for _, p := range rs.parts {
				if float64(p.score) > p.threshold {
					hot = true
					break
				}
			}
			rs.hot = hot
		}
	}
}
