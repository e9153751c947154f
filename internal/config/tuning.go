package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig holds every hand-tuned constant of the launch detector as a
// named, documented field. All fields are pointers so a partial JSON file can
// override just the values it names; the Get* accessors return documented
// defaults for anything left unset.
type TuningConfig struct {
	// Motion model params
	PixelDelta       *int     `json:"pixel_delta,omitempty"`        // per-pixel intensity delta counted as motion
	MaskDelta        *int     `json:"mask_delta,omitempty"`         // binarisation delta for the centroid mask
	BackgroundAlpha  *float64 `json:"background_alpha,omitempty"`   // EMA blend factor for the background estimate
	CalibSampleCount *int     `json:"calib_sample_count,omitempty"` // motion scores buffered before arming
	ArmDelay         *string  `json:"arm_delay,omitempty"`          // minimum elapsed time before arming, duration string
	SigmaFloor       *float64 `json:"sigma_floor,omitempty"`        // threshold sigma multiplier, floor regions
	SigmaCrest       *float64 `json:"sigma_crest,omitempty"`        // threshold sigma multiplier, crest regions
	SigmaVerify      *float64 `json:"sigma_verify,omitempty"`       // threshold sigma multiplier, verify regions
	CalibStallAfter  *string  `json:"calib_stall_after,omitempty"`  // report calibration stall after this long

	// Velocity tracker params
	MinBlobArea    *int     `json:"min_blob_area,omitempty"`   // smallest blob accepted for the centroid
	VelocityWindow *int     `json:"velocity_window,omitempty"` // ring capacity for velocity smoothing
	UpVelocity     *float64 `json:"up_velocity,omitempty"`     // at or below this the train is climbing (negative)
	DownVelocity   *float64 `json:"down_velocity,omitempty"`   // at or above this the train is descending

	// State machine params
	RollbackVelocity      *float64 `json:"rollback_velocity,omitempty"`       // sustained descent speed implying a rollback
	RollbackConfirmFrames *int     `json:"rollback_confirm_frames,omitempty"` // evidence counter threshold
	Ascent2Grace          *string  `json:"ascent2_grace,omitempty"`           // rollback path suppressed after entering ASC2
	Ascent2Deadline       *string  `json:"ascent2_deadline,omitempty"`        // auto-resolve success deadline in ASC2
	VerifyDeadline        *string  `json:"verify_deadline,omitempty"`         // success deadline in VERIFY
	WaitMinDwell          *string  `json:"wait_min_dwell,omitempty"`          // minimum settle before a second ascent
	WaitTimeout           *string  `json:"wait_timeout,omitempty"`            // WAIT resolves incomplete after this
	DecelExitFraction     *float64 `json:"decel_exit_fraction,omitempty"`     // floor motion fraction ending RBACK_DECEL
	DecelTimeout          *string  `json:"decel_timeout,omitempty"`           // stuck timeout for RBACK_DECEL
	AmendWindow           *string  `json:"amend_window,omitempty"`            // crest sighting rewrites a recent rollback

	// Event store params
	DedupInterval *string `json:"dedup_interval,omitempty"` // minimum spacing between same-outcome rows

	// Reconnection params
	ReconnectBaseDelay   *string `json:"reconnect_base_delay,omitempty"`   // first backoff delay
	ReconnectMaxDelay    *string `json:"reconnect_max_delay,omitempty"`    // backoff cap
	ReconnectMaxAttempts *int    `json:"reconnect_max_attempts,omitempty"` // attempts before giving up
	ReconnectGrace       *string `json:"reconnect_grace,omitempty"`        // success-biased window after reconnect
	GraceSuccessAfter    *string `json:"grace_success_after,omitempty"`    // ASC2/VERIFY age resolving success in grace
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are sane.
func (c *TuningConfig) Validate() error {
	if c.BackgroundAlpha != nil {
		if *c.BackgroundAlpha <= 0 || *c.BackgroundAlpha > 1 {
			return fmt.Errorf("background_alpha must be in (0,1], got %f", *c.BackgroundAlpha)
		}
	}
	if c.DecelExitFraction != nil {
		if *c.DecelExitFraction <= 0 || *c.DecelExitFraction >= 1 {
			return fmt.Errorf("decel_exit_fraction must be in (0,1), got %f", *c.DecelExitFraction)
		}
	}
	if c.CalibSampleCount != nil && *c.CalibSampleCount < 2 {
		return fmt.Errorf("calib_sample_count must be at least 2, got %d", *c.CalibSampleCount)
	}
	if c.VelocityWindow != nil && *c.VelocityWindow < 2 {
		return fmt.Errorf("velocity_window must be at least 2, got %d", *c.VelocityWindow)
	}
	if c.RollbackConfirmFrames != nil && *c.RollbackConfirmFrames < 1 {
		return fmt.Errorf("rollback_confirm_frames must be at least 1, got %d", *c.RollbackConfirmFrames)
	}
	if c.ReconnectMaxAttempts != nil && *c.ReconnectMaxAttempts < 1 {
		return fmt.Errorf("reconnect_max_attempts must be at least 1, got %d", *c.ReconnectMaxAttempts)
	}
	for name, v := range map[string]*string{
		"arm_delay":            c.ArmDelay,
		"calib_stall_after":    c.CalibStallAfter,
		"ascent2_grace":        c.Ascent2Grace,
		"ascent2_deadline":     c.Ascent2Deadline,
		"verify_deadline":      c.VerifyDeadline,
		"wait_min_dwell":       c.WaitMinDwell,
		"wait_timeout":         c.WaitTimeout,
		"decel_timeout":        c.DecelTimeout,
		"amend_window":         c.AmendWindow,
		"dedup_interval":       c.DedupInterval,
		"reconnect_base_delay": c.ReconnectBaseDelay,
		"reconnect_max_delay":  c.ReconnectMaxDelay,
		"reconnect_grace":      c.ReconnectGrace,
		"grace_success_after":  c.GraceSuccessAfter,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetPixelDelta returns the pixel_delta value or the default.
func (c *TuningConfig) GetPixelDelta() int {
	if c.PixelDelta == nil {
		return 25
	}
	return *c.PixelDelta
}

// GetMaskDelta returns the mask_delta value or the default.
func (c *TuningConfig) GetMaskDelta() int {
	if c.MaskDelta == nil {
		return 40
	}
	return *c.MaskDelta
}

// GetBackgroundAlpha returns the background_alpha value or the default.
func (c *TuningConfig) GetBackgroundAlpha() float64 {
	if c.BackgroundAlpha == nil {
		return 0.001
	}
	return *c.BackgroundAlpha
}

// GetCalibSampleCount returns the calib_sample_count value or the default.
func (c *TuningConfig) GetCalibSampleCount() int {
	if c.CalibSampleCount == nil {
		return 60
	}
	return *c.CalibSampleCount
}

// GetArmDelay returns the arm_delay value or the default.
func (c *TuningConfig) GetArmDelay() time.Duration {
	return c.duration(c.ArmDelay, 10*time.Second)
}

// GetSigmaFloor returns the sigma_floor value or the default.
func (c *TuningConfig) GetSigmaFloor() float64 {
	if c.SigmaFloor == nil {
		return 3.5
	}
	return *c.SigmaFloor
}

// GetSigmaCrest returns the sigma_crest value or the default.
func (c *TuningConfig) GetSigmaCrest() float64 {
	if c.SigmaCrest == nil {
		return 2.5
	}
	return *c.SigmaCrest
}

// GetSigmaVerify returns the sigma_verify value or the default.
func (c *TuningConfig) GetSigmaVerify() float64 {
	if c.SigmaVerify == nil {
		return 2.5
	}
	return *c.SigmaVerify
}

// GetCalibStallAfter returns the calib_stall_after value or the default.
func (c *TuningConfig) GetCalibStallAfter() time.Duration {
	return c.duration(c.CalibStallAfter, 2*time.Minute)
}

// GetMinBlobArea returns the min_blob_area value or the default.
func (c *TuningConfig) GetMinBlobArea() int {
	if c.MinBlobArea == nil {
		return 40
	}
	return *c.MinBlobArea
}

// GetVelocityWindow returns the velocity_window value or the default.
func (c *TuningConfig) GetVelocityWindow() int {
	if c.VelocityWindow == nil {
		return 3
	}
	return *c.VelocityWindow
}

// GetUpVelocity returns the up_velocity value or the default.
// Negative values mean upward motion.
func (c *TuningConfig) GetUpVelocity() float64 {
	if c.UpVelocity == nil {
		return -1.0
	}
	return *c.UpVelocity
}

// GetDownVelocity returns the down_velocity value or the default.
func (c *TuningConfig) GetDownVelocity() float64 {
	if c.DownVelocity == nil {
		return 1.0
	}
	return *c.DownVelocity
}

// GetRollbackVelocity returns the rollback_velocity value or the default.
func (c *TuningConfig) GetRollbackVelocity() float64 {
	if c.RollbackVelocity == nil {
		return 3.0
	}
	return *c.RollbackVelocity
}

// GetRollbackConfirmFrames returns the rollback_confirm_frames value or the default.
func (c *TuningConfig) GetRollbackConfirmFrames() int {
	if c.RollbackConfirmFrames == nil {
		return 5
	}
	return *c.RollbackConfirmFrames
}

// GetAscent2Grace returns the ascent2_grace value or the default.
func (c *TuningConfig) GetAscent2Grace() time.Duration {
	return c.duration(c.Ascent2Grace, 4*time.Second)
}

// GetAscent2Deadline returns the ascent2_deadline value or the default.
func (c *TuningConfig) GetAscent2Deadline() time.Duration {
	return c.duration(c.Ascent2Deadline, 25*time.Second)
}

// GetVerifyDeadline returns the verify_deadline value or the default.
func (c *TuningConfig) GetVerifyDeadline() time.Duration {
	return c.duration(c.VerifyDeadline, 12*time.Second)
}

// GetWaitMinDwell returns the wait_min_dwell value or the default.
func (c *TuningConfig) GetWaitMinDwell() time.Duration {
	return c.duration(c.WaitMinDwell, 2*time.Second)
}

// GetWaitTimeout returns the wait_timeout value or the default.
func (c *TuningConfig) GetWaitTimeout() time.Duration {
	return c.duration(c.WaitTimeout, 30*time.Second)
}

// GetDecelExitFraction returns the decel_exit_fraction value or the default.
func (c *TuningConfig) GetDecelExitFraction() float64 {
	if c.DecelExitFraction == nil {
		return 0.10
	}
	return *c.DecelExitFraction
}

// GetDecelTimeout returns the decel_timeout value or the default.
func (c *TuningConfig) GetDecelTimeout() time.Duration {
	return c.duration(c.DecelTimeout, 20*time.Second)
}

// GetAmendWindow returns the amend_window value or the default.
func (c *TuningConfig) GetAmendWindow() time.Duration {
	return c.duration(c.AmendWindow, time.Minute)
}

// GetDedupInterval returns the dedup_interval value or the default.
func (c *TuningConfig) GetDedupInterval() time.Duration {
	return c.duration(c.DedupInterval, 80*time.Second)
}

// GetReconnectBaseDelay returns the reconnect_base_delay value or the default.
func (c *TuningConfig) GetReconnectBaseDelay() time.Duration {
	return c.duration(c.ReconnectBaseDelay, time.Second)
}

// GetReconnectMaxDelay returns the reconnect_max_delay value or the default.
func (c *TuningConfig) GetReconnectMaxDelay() time.Duration {
	return c.duration(c.ReconnectMaxDelay, 30*time.Second)
}

// GetReconnectMaxAttempts returns the reconnect_max_attempts value or the default.
func (c *TuningConfig) GetReconnectMaxAttempts() int {
	if c.ReconnectMaxAttempts == nil {
		return 10
	}
	return *c.ReconnectMaxAttempts
}

// GetReconnectGrace returns the reconnect_grace value or the default.
func (c *TuningConfig) GetReconnectGrace() time.Duration {
	return c.duration(c.ReconnectGrace, 45*time.Second)
}

// GetGraceSuccessAfter returns the grace_success_after value or the default.
func (c *TuningConfig) GetGraceSuccessAfter() time.Duration {
	return c.duration(c.GraceSuccessAfter, 5*time.Second)
}
