package detect

import (
	"time"

	"github.com/acepocalypse/tt2check/internal/config"
)

// velSample is one ring entry: a centroid row (possibly carried forward from
// the previous frame) and the frame timestamp.
type velSample struct {
	y     float64
	valid bool
	ts    time.Time
}

// VelocityTracker extracts the vertical centroid of the largest motion blob
// in the floor region each frame and derives a smoothed velocity over a fixed
// sliding window. Negative velocity means the train is climbing.
type VelocityTracker struct {
	cfg  *config.TuningConfig
	ring []velSample
	head int
	n    int

	lastY    float64
	hasLastY bool
}

// NewVelocityTracker creates a tracker with the configured window capacity.
func NewVelocityTracker(cfg *config.TuningConfig) *VelocityTracker {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &VelocityTracker{
		cfg:  cfg,
		ring: make([]velSample, cfg.GetVelocityWindow()),
	}
}

// Reset clears the sample window. Called on reconnect and is safe mid-run.
func (vt *VelocityTracker) Reset() {
	vt.head = 0
	vt.n = 0
	vt.hasLastY = false
}

// Observe binarises the floor diff image, finds the largest connected blob
// above the minimum area, and pushes its first-moment centroid row into the
// window. A frame with no acceptable blob carries the previous centroid
// forward rather than pushing zero, so one dropped detection cannot fake a
// velocity spike.
func (vt *VelocityTracker) Observe(diff []uint8, width, height int, now time.Time) {
	y, ok := blobCentroidRow(diff, width, height, uint8(vt.cfg.GetMaskDelta()), vt.cfg.GetMinBlobArea())
	switch {
	case ok:
		vt.lastY = y
		vt.hasLastY = true
		vt.push(velSample{y: y, valid: true, ts: now})
	case vt.hasLastY:
		vt.push(velSample{y: vt.lastY, valid: true, ts: now})
	default:
		vt.push(velSample{ts: now})
	}
}

func (vt *VelocityTracker) push(s velSample) {
	vt.ring[(vt.head+vt.n)%len(vt.ring)] = s
	if vt.n < len(vt.ring) {
		vt.n++
	} else {
		vt.head = (vt.head + 1) % len(vt.ring)
	}
}

// Centroid returns the most recent centroid row, if any sample is valid.
func (vt *VelocityTracker) Centroid() (float64, bool) {
	if !vt.hasLastY {
		return 0, false
	}
	return vt.lastY, true
}

// Velocity returns the slope between the newest and oldest valid samples in
// the window, in rows per second. Exactly zero with fewer than two valid
// samples. Negative means upward motion.
func (vt *VelocityTracker) Velocity() float64 {
	var oldest, newest velSample
	found := 0
	for i := 0; i < vt.n; i++ {
		s := vt.ring[(vt.head+i)%len(vt.ring)]
		if !s.valid {
			continue
		}
		if found == 0 {
			oldest = s
		}
		newest = s
		found++
	}
	if found < 2 {
		return 0
	}
	dt := newest.ts.Sub(oldest.ts).Seconds()
	if dt <= 0 {
		return 0
	}
	return (newest.y - oldest.y) / dt
}

// blobCentroidRow binarises diff at maskDelta, finds the largest 4-connected
// foreground blob, and returns its mean row if the blob area reaches minArea.
func blobCentroidRow(diff []uint8, width, height int, maskDelta uint8, minArea int) (float64, bool) {
	if width <= 0 || height <= 0 || len(diff) < width*height {
		return 0, false
	}

	visited := make([]bool, width*height)
	var queue []int

	bestArea := 0
	bestRowSum := 0

	for start := 0; start < width*height; start++ {
		if visited[start] || diff[start] <= maskDelta {
			continue
		}
		// Flood fill one component.
		area := 0
		rowSum := 0
		queue = append(queue[:0], start)
		visited[start] = true
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			area++
			rowSum += i / width

			x, y := i%width, i/width
			if x > 0 && !visited[i-1] && diff[i-1] > maskDelta {
				visited[i-1] = true
				queue = append(queue, i-1)
			}
			if x < width-1 && !visited[i+1] && diff[i+1] > maskDelta {
				visited[i+1] = true
				queue = append(queue, i+1)
			}
			if y > 0 && !visited[i-width] && diff[i-width] > maskDelta {
				visited[i-width] = true
				queue = append(queue, i-width)
			}
			if y < height-1 && !visited[i+width] && diff[i+width] > maskDelta {
				visited[i+width] = true
				queue = append(queue, i+width)
			}
		}
		if area > bestArea {
			bestArea = area
			bestRowSum = rowSum
		}
	}

	if bestArea < minArea || bestArea == 0 {
		return 0, false
	}
	return float64(bestRowSum) / float64(bestArea), true
}
