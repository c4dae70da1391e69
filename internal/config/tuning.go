package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the per-device tuning parameters for the frame
// pipeline. Every field is optional; the Get* accessors supply defaults
// for anything the JSON omits, so partial files are safe.
type TuningConfig struct {
	// Frame geometry
	Width       *int    `json:"width,omitempty"`
	Height      *int    `json:"height,omitempty"`
	FPS         *int    `json:"fps,omitempty"`
	FrameFormat *string `json:"frame_format,omitempty"` // "yuv420" or "grey"

	// Detector params
	Threshold         *int     `json:"threshold,omitempty"`
	SparseStep        *int     `json:"sparse_step,omitempty"`
	MinBlobSize       *int     `json:"min_blob_size,omitempty"`
	MaxBlobSize       *int     `json:"max_blob_size,omitempty"`
	MaxSearchFraction *float64 `json:"max_search_fraction,omitempty"` // of frame width
	ErrorThreshold    *int     `json:"error_threshold,omitempty"`
	FullFrameFallback *bool    `json:"full_frame_fallback,omitempty"`

	// Control params
	ButtonDelayFrames    *int    `json:"button_delay_frames,omitempty"`
	RecoilCooldownFrames *int    `json:"recoil_cooldown_frames,omitempty"`
	RecoilPulseFrames    *int    `json:"recoil_pulse_frames,omitempty"`
	RecoilMode           *string `json:"recoil_mode,omitempty"`

	// Transport params (duration strings like "8ms")
	SendInterval      *string `json:"send_interval,omitempty"`
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"`
	BlinkInterval     *string `json:"blink_interval,omitempty"`
	LinkTimeout       *string `json:"link_timeout,omitempty"`

	// Diagnostics
	TraceLength    *int    `json:"trace_length,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
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

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from
// the working directory. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any set values are usable.
func (c *TuningConfig) Validate() error {
	positive := map[string]*int{
		"width":         c.Width,
		"height":        c.Height,
		"fps":           c.FPS,
		"sparse_step":   c.SparseStep,
		"max_blob_size": c.MaxBlobSize,
	}
	for name, v := range positive {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	if c.Threshold != nil && (*c.Threshold < 1 || *c.Threshold > 255) {
		return fmt.Errorf("threshold must be between 1 and 255, got %d", *c.Threshold)
	}
	if c.MinBlobSize != nil && *c.MinBlobSize < 1 {
		return fmt.Errorf("min_blob_size must be at least 1, got %d", *c.MinBlobSize)
	}
	if c.GetMinBlobSize() >= c.GetMaxBlobSize() {
		return fmt.Errorf("min_blob_size (%d) must be below max_blob_size (%d)", c.GetMinBlobSize(), c.GetMaxBlobSize())
	}
	if c.MaxSearchFraction != nil && (*c.MaxSearchFraction <= 0 || *c.MaxSearchFraction > 1) {
		return fmt.Errorf("max_search_fraction must be in (0, 1], got %f", *c.MaxSearchFraction)
	}
	if c.ErrorThreshold != nil && *c.ErrorThreshold < 1 {
		return fmt.Errorf("error_threshold must be at least 1, got %d", *c.ErrorThreshold)
	}
	for name, v := range map[string]*int{
		"button_delay_frames":    c.ButtonDelayFrames,
		"recoil_cooldown_frames": c.RecoilCooldownFrames,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	if c.RecoilPulseFrames != nil && *c.RecoilPulseFrames < 1 {
		return fmt.Errorf("recoil_pulse_frames must be at least 1, got %d", *c.RecoilPulseFrames)
	}

	if c.FrameFormat != nil {
		switch strings.ToLower(*c.FrameFormat) {
		case "yuv420", "grey", "gray":
		default:
			return fmt.Errorf("unsupported frame_format %q: expected yuv420 or grey", *c.FrameFormat)
		}
	}
	if c.RecoilMode != nil {
		switch strings.ToLower(*c.RecoilMode) {
		case "self", "auto", "host", "off":
		default:
			return fmt.Errorf("unsupported recoil_mode %q: expected self, auto, host or off", *c.RecoilMode)
		}
	}

	for name, v := range map[string]*string{
		"send_interval":      c.SendInterval,
		"heartbeat_interval": c.HeartbeatInterval,
		"blink_interval":     c.BlinkInterval,
		"link_timeout":       c.LinkTimeout,
		"status_interval":    c.StatusInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	return nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetWidth returns the frame width in pixels (default 640).
func (c *TuningConfig) GetWidth() int { return intOr(c.Width, 640) }

// GetHeight returns the frame height in pixels (default 480).
func (c *TuningConfig) GetHeight() int { return intOr(c.Height, 480) }

// GetFPS returns the target camera frame rate (default 120).
func (c *TuningConfig) GetFPS() int { return intOr(c.FPS, 120) }

// GetFrameFormat returns the normalised raw frame format (default yuv420).
func (c *TuningConfig) GetFrameFormat() string {
	if c.FrameFormat == nil {
		return "yuv420"
	}
	f := strings.ToLower(*c.FrameFormat)
	if f == "gray" {
		return "grey"
	}
	return f
}

// GetThreshold returns the marker intensity threshold (default 130).
func (c *TuningConfig) GetThreshold() uint8 { return uint8(intOr(c.Threshold, 130)) }

// GetSparseStep returns the ring search stride in pixels (default 4).
func (c *TuningConfig) GetSparseStep() int { return intOr(c.SparseStep, 4) }

// GetMinBlobSize returns the smallest accepted blob (default 20 pixels).
func (c *TuningConfig) GetMinBlobSize() int { return intOr(c.MinBlobSize, 20) }

// GetMaxBlobSize returns the exclusive upper blob size (default 1000 pixels).
func (c *TuningConfig) GetMaxBlobSize() int { return intOr(c.MaxBlobSize, 1000) }

// GetMaxSearchDistance returns the search radius in pixels, derived from
// max_search_fraction (default 0.25) of the frame width.
func (c *TuningConfig) GetMaxSearchDistance() int {
	f := 0.25
	if c.MaxSearchFraction != nil {
		f = *c.MaxSearchFraction
	}
	return int(f * float64(c.GetWidth()))
}

// GetErrorThreshold returns the consecutive failures before re-seeding (default 5).
func (c *TuningConfig) GetErrorThreshold() int { return intOr(c.ErrorThreshold, 5) }

// GetFullFrameFallback reports whether unresolved peaks fall back to a
// full-frame scan (default false).
func (c *TuningConfig) GetFullFrameFallback() bool {
	if c.FullFrameFallback == nil {
		return false
	}
	return *c.FullFrameFallback
}

// GetButtonDelayFrames returns the post-release recharge time (default 3).
func (c *TuningConfig) GetButtonDelayFrames() int { return intOr(c.ButtonDelayFrames, 3) }

// GetRecoilCooldownFrames returns the auto-fire cooldown (default 6).
func (c *TuningConfig) GetRecoilCooldownFrames() int { return intOr(c.RecoilCooldownFrames, 6) }

// GetRecoilPulseFrames returns the solenoid pulse length (default 1).
func (c *TuningConfig) GetRecoilPulseFrames() int { return intOr(c.RecoilPulseFrames, 1) }

// GetRecoilMode returns the initial recoil mode (default "self").
func (c *TuningConfig) GetRecoilMode() string {
	if c.RecoilMode == nil {
		return "self"
	}
	return strings.ToLower(*c.RecoilMode)
}

// GetSendInterval returns the report send period (default 8ms).
func (c *TuningConfig) GetSendInterval() time.Duration {
	return durationOr(c.SendInterval, 8*time.Millisecond)
}

// GetHeartbeatInterval returns the reconnect attempt period (default 5s).
func (c *TuningConfig) GetHeartbeatInterval() time.Duration {
	return durationOr(c.HeartbeatInterval, 5*time.Second)
}

// GetBlinkInterval returns the ready LED blink period (default 800ms).
func (c *TuningConfig) GetBlinkInterval() time.Duration {
	return durationOr(c.BlinkInterval, 800*time.Millisecond)
}

// GetLinkTimeout returns how long a silent host stays connected (default 3s).
func (c *TuningConfig) GetLinkTimeout() time.Duration {
	return durationOr(c.LinkTimeout, 3*time.Second)
}

// GetTraceLength returns the aim trace ring size (default 600 frames).
func (c *TuningConfig) GetTraceLength() int { return intOr(c.TraceLength, 600) }

// GetStatusInterval returns the telemetry publish period (default 5s).
func (c *TuningConfig) GetStatusInterval() time.Duration {
	return durationOr(c.StatusInterval, 5*time.Second)
}
