package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithin(t *testing.T) {
	tmp := t.TempDir()
	state := filepath.Join(tmp, "state")
	other := filepath.Join(tmp, "other")
	require.NoError(t, os.MkdirAll(state, 0o755))
	require.NoError(t, os.MkdirAll(other, 0o755))
	require.NoError(t, os.Symlink(other, filepath.Join(state, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in root", filepath.Join(state, "CALframe.bin"), false},
		{"new nested file", filepath.Join(state, "dumps", "a", "CALframe.bmp"), false},
		{"root itself", state, false},
		{"dot dot escape", filepath.Join(state, "..", "other", "x"), true},
		{"sibling with shared prefix", state + "2/x", true},
		{"symlinked parent", filepath.Join(state, "link", "new.pcap"), true},
		{"relative traversal", "../../../../etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Within(tt.path, state)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithinMissingRoot(t *testing.T) {
	err := Within("/tmp/x", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutsideRoot)
}

func TestValidateOutputPath(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	assert.NoError(t, ValidateOutputPath(filepath.Join(b, "reports.pcap"), a, b))
	assert.ErrorIs(t, ValidateOutputPath("/definitely/elsewhere.pcap", a, b), ErrOutsideRoot)
	assert.Error(t, ValidateOutputPath(filepath.Join(a, "x")))
}

func TestDefaultOutputRoots(t *testing.T) {
	roots := DefaultOutputRoots("/var/lib/pigun")
	require.NotEmpty(t, roots)
	assert.Equal(t, "/var/lib/pigun", roots[0])
	assert.Contains(t, roots, os.TempDir())
	assert.NotContains(t, DefaultOutputRoots(""), "")
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"192.168.1.20:7777": "192.168.1.20_7777",
		"AA:BB:CC:DD:EE:FF": "AA_BB_CC_DD_EE_FF",
		"../../etc/passwd":  "etc_passwd",
		"session 1 / 2":     "session_1_2",
		"":                  "unnamed",
		"___":               "unnamed",
		"ok-name_1.pcap":    "ok-name_1.pcap",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}
