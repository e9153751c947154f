// Package detect implements the launch-detection engine: per-region adaptive
// motion modelling with statistical threshold calibration, centroid velocity
// tracking, and the hysteresis state machine that turns noisy per-frame
// signals into discrete launch outcomes.
package detect

import "fmt"

// Role tags a region with its place on the launch track.
type Role string

const (
	// RoleFloor watches the bottom band of the tower where the train
	// accelerates and falls back.
	RoleFloor Role = "floor"
	// RoleCrest watches the descent side of the crest; motion there means the
	// train made it over.
	RoleCrest Role = "crest"
	// RoleVerify watches the mid-tower band used to confirm a rollback after
	// a crest sighting.
	RoleVerify Role = "verify"
)

// Split selects how a region is divided into sub-rectangles for the hot test.
type Split int

const (
	// SplitNone evaluates the region as a single rectangle.
	SplitNone Split = iota
	// SplitLeftRight divides the region into left and right halves.
	SplitLeftRight
	// SplitTopBottom divides the region into upper and lower halves.
	SplitTopBottom
)

// Rect is a pixel rectangle in frame coordinates.
type Rect struct {
	X, Y, W, H int
}

// Region is a fixed rectangle of the frame analysed independently. Regions
// are immutable for the lifetime of a run.
//
// A split region reports hot according to its role: floor regions require
// both halves over threshold (rejects one-sided lighting artifacts), crest
// and verify regions require either half (stays sensitive to partial
// occlusion at the crest).
type Region struct {
	ID    string
	Role  Role
	Rect  Rect
	Split Split
}

// parts returns the sub-rectangles the region is calibrated and scored over.
func (r Region) parts() []Rect {
	switch r.Split {
	case SplitLeftRight:
		left := Rect{X: r.Rect.X, Y: r.Rect.Y, W: r.Rect.W / 2, H: r.Rect.H}
		right := Rect{X: r.Rect.X + left.W, Y: r.Rect.Y, W: r.Rect.W - left.W, H: r.Rect.H}
		return []Rect{left, right}
	case SplitTopBottom:
		top := Rect{X: r.Rect.X, Y: r.Rect.Y, W: r.Rect.W, H: r.Rect.H / 2}
		bottom := Rect{X: r.Rect.X, Y: r.Rect.Y + top.H, W: r.Rect.W, H: r.Rect.H - top.H}
		return []Rect{top, bottom}
	default:
		return []Rect{r.Rect}
	}
}

// requireAllParts reports whether every sub-rectangle must be over threshold
// for the region to be hot.
func (r Region) requireAllParts() bool {
	return r.Role == RoleFloor
}

// Validate checks the region fits inside a width x height frame.
func (r Region) Validate(width, height int) error {
	if r.Rect.W <= 0 || r.Rect.H <= 0 {
		return fmt.Errorf("region %s has empty rectangle", r.ID)
	}
	if r.Rect.X < 0 || r.Rect.Y < 0 || r.Rect.X+r.Rect.W > width || r.Rect.Y+r.Rect.H > height {
		return fmt.Errorf("region %s (%+v) outside %dx%d frame", r.ID, r.Rect, width, height)
	}
	return nil
}

// DefaultRegions returns the launch-track camera layout: the bottom band of
// the tower, the descent side of the crest, and the mid-tower verify band.
func DefaultRegions() []Region {
	return []Region{
		{ID: "floor", Role: RoleFloor, Rect: Rect{X: 608, Y: 761, W: 55, H: 97}, Split: SplitLeftRight},
		{ID: "crest", Role: RoleCrest, Rect: Rect{X: 505, Y: 429, W: 22, H: 109}, Split: SplitTopBottom},
		{ID: "verify", Role: RoleVerify, Rect: Rect{X: 674, Y: 234, W: 8, H: 189}},
	}
}
