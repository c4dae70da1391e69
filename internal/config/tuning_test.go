package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetWidth() != 640 || cfg.GetHeight() != 480 {
		t.Errorf("frame size = %dx%d, want 640x480", cfg.GetWidth(), cfg.GetHeight())
	}
	if cfg.GetFPS() != 120 {
		t.Errorf("GetFPS() = %d, want 120", cfg.GetFPS())
	}
	if cfg.GetThreshold() != 130 {
		t.Errorf("GetThreshold() = %d, want 130", cfg.GetThreshold())
	}
	if cfg.GetSparseStep() != 4 {
		t.Errorf("GetSparseStep() = %d, want 4", cfg.GetSparseStep())
	}
	if cfg.GetMinBlobSize() != 20 || cfg.GetMaxBlobSize() != 1000 {
		t.Errorf("blob size bounds = [%d,%d), want [20,1000)", cfg.GetMinBlobSize(), cfg.GetMaxBlobSize())
	}
	if cfg.GetMaxSearchDistance() != 160 {
		t.Errorf("GetMaxSearchDistance() = %d, want 160", cfg.GetMaxSearchDistance())
	}
	if cfg.GetErrorThreshold() != 5 {
		t.Errorf("GetErrorThreshold() = %d, want 5", cfg.GetErrorThreshold())
	}
	if cfg.GetFullFrameFallback() {
		t.Error("GetFullFrameFallback() = true, want false")
	}
	if cfg.GetButtonDelayFrames() != 3 {
		t.Errorf("GetButtonDelayFrames() = %d, want 3", cfg.GetButtonDelayFrames())
	}
	if cfg.GetRecoilCooldownFrames() != 6 || cfg.GetRecoilPulseFrames() != 1 {
		t.Errorf("recoil = %d/%d, want 6/1", cfg.GetRecoilCooldownFrames(), cfg.GetRecoilPulseFrames())
	}
	if cfg.GetRecoilMode() != "self" {
		t.Errorf("GetRecoilMode() = %q, want self", cfg.GetRecoilMode())
	}
	if cfg.GetFrameFormat() != "yuv420" {
		t.Errorf("GetFrameFormat() = %q, want yuv420", cfg.GetFrameFormat())
	}
	if cfg.GetHeartbeatInterval() != 5*time.Second {
		t.Errorf("GetHeartbeatInterval() = %v, want 5s", cfg.GetHeartbeatInterval())
	}
	if cfg.GetBlinkInterval() != 800*time.Millisecond {
		t.Errorf("GetBlinkInterval() = %v, want 800ms", cfg.GetBlinkInterval())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "threshold": 90,
  "sparse_step": 2,
  "frame_format": "Gray",
  "recoil_mode": "AUTO",
  "send_interval": "4ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetThreshold() != 90 {
		t.Errorf("GetThreshold() = %d, want 90", cfg.GetThreshold())
	}
	if cfg.GetSparseStep() != 2 {
		t.Errorf("GetSparseStep() = %d, want 2", cfg.GetSparseStep())
	}
	if cfg.GetFrameFormat() != "grey" {
		t.Errorf("GetFrameFormat() = %q, want grey", cfg.GetFrameFormat())
	}
	if cfg.GetRecoilMode() != "auto" {
		t.Errorf("GetRecoilMode() = %q, want auto", cfg.GetRecoilMode())
	}
	if cfg.GetSendInterval() != 4*time.Millisecond {
		t.Errorf("GetSendInterval() = %v, want 4ms", cfg.GetSendInterval())
	}
	// Unset fields keep their defaults.
	if cfg.GetErrorThreshold() != 5 {
		t.Errorf("GetErrorThreshold() = %d, want 5", cfg.GetErrorThreshold())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "threshold: 1"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"threshold range", write("thr.json", `{"threshold": 300}`), "threshold"},
		{"min above max", write("size.json", `{"min_blob_size": 50, "max_blob_size": 40}`), "min_blob_size"},
		{"bad duration", write("dur.json", `{"link_timeout": "soon"}`), "link_timeout"},
		{"bad recoil mode", write("mode.json", `{"recoil_mode": "burst"}`), "recoil_mode"},
		{"bad fraction", write("frac.json", `{"max_search_fraction": 1.5}`), "max_search_fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	data := make([]byte, 1024*1024+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.Threshold == nil || *cfg.Threshold != 130 {
		t.Errorf("defaults file threshold = %v, want 130", cfg.Threshold)
	}
	if cfg.GetMaxSearchDistance() != 160 {
		t.Errorf("GetMaxSearchDistance() = %d, want 160", cfg.GetMaxSearchDistance())
	}
}

func TestDurationFallsBackOnInvalid(t *testing.T) {
	bad := "not-a-duration"
	cfg := &TuningConfig{StatusInterval: &bad}
	if got := cfg.GetStatusInterval(); got != 5*time.Second {
		t.Errorf("GetStatusInterval() = %v, want 5s", got)
	}
}
