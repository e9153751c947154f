package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsWhenUnset(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetPixelDelta(); got != 25 {
		t.Errorf("GetPixelDelta() = %d, want 25", got)
	}
	if got := cfg.GetBackgroundAlpha(); got != 0.001 {
		t.Errorf("GetBackgroundAlpha() = %f, want 0.001", got)
	}
	if got := cfg.GetCalibSampleCount(); got != 60 {
		t.Errorf("GetCalibSampleCount() = %d, want 60", got)
	}
	if got := cfg.GetDedupInterval(); got != 80*time.Second {
		t.Errorf("GetDedupInterval() = %v, want 80s", got)
	}
	if got := cfg.GetUpVelocity(); got != -1.0 {
		t.Errorf("GetUpVelocity() = %f, want -1.0", got)
	}
	if got := cfg.GetSigmaFloor(); got <= cfg.GetSigmaCrest() {
		t.Errorf("floor sigma %f should exceed crest sigma %f", got, cfg.GetSigmaCrest())
	}
	if got := cfg.GetReconnectMaxAttempts(); got != 10 {
		t.Errorf("GetReconnectMaxAttempts() = %d, want 10", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfigFile(t, `{"pixel_delta": 30, "verify_deadline": "8s"}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if got := cfg.GetPixelDelta(); got != 30 {
		t.Errorf("GetPixelDelta() = %d, want 30", got)
	}
	if got := cfg.GetVerifyDeadline(); got != 8*time.Second {
		t.Errorf("GetVerifyDeadline() = %v, want 8s", got)
	}
	// Untouched fields keep defaults.
	if got := cfg.GetMaskDelta(); got != 40 {
		t.Errorf("GetMaskDelta() = %d, want 40", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"alpha out of range", `{"background_alpha": 1.5}`},
		{"bad duration", `{"wait_timeout": "thirty"}`},
		{"tiny velocity window", `{"velocity_window": 1}`},
		{"negative exit fraction", `{"decel_exit_fraction": -0.2}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.contents)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Errorf("LoadTuningConfig accepted %s", tc.contents)
			}
		})
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("LoadTuningConfig accepted a non-.json file")
	}
}
