package configpaths

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string, wd string) Env {
	return Env{
		Getenv: func(k string) string { return vars[k] },
		Getwd: func() (string, error) {
			if wd == "" {
				return "", errors.New("no wd")
			}
			return wd, nil
		},
	}
}

func TestConfigDir(t *testing.T) {
	dir, err := fakeEnv(map[string]string{"XDG_CONFIG_HOME": "/xdg", "HOME": "/home/pi"}, "").ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/xdg/pigun", dir)

	dir, err = fakeEnv(map[string]string{"HOME": "/home/pi"}, "").ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/pi/.config/pigun", dir)

	_, err = fakeEnv(nil, "").ConfigDir()
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	env := fakeEnv(map[string]string{"HOME": "/home/pi"}, "/srv")

	j, y, tm := env.Candidates("")
	assert.Equal(t, []string{"/srv/pigun.json", "/home/pi/.config/pigun/config.json", "/etc/pigun/config.json"}, j)
	assert.Equal(t, []string{
		"/srv/pigun.yaml", "/srv/pigun.yml",
		"/home/pi/.config/pigun/config.yaml", "/home/pi/.config/pigun/config.yml",
		"/etc/pigun/config.yaml", "/etc/pigun/config.yml",
	}, y)
	assert.Equal(t, []string{"/srv/pigun.toml", "/home/pi/.config/pigun/config.toml", "/etc/pigun/config.toml"}, tm)
}

func TestCandidatesUserPathFirst(t *testing.T) {
	env := fakeEnv(nil, "")
	tests := []struct {
		path          string
		json, y, toml string
	}{
		{path: "/boot/pigun.YML", y: "/boot/pigun.YML"},
		{path: "deploy.toml", toml: "deploy.toml"},
		{path: "settings.conf", json: "settings.conf"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			j, y, tm := env.Candidates(tt.path)
			first := func(s []string) string { return s[0] }
			if tt.json != "" {
				assert.Equal(t, tt.json, first(j))
			}
			if tt.y != "" {
				assert.Equal(t, tt.y, first(y))
			}
			if tt.toml != "" {
				assert.Equal(t, tt.toml, first(tm))
			}
		})
	}
}

func TestFindUserConfig(t *testing.T) {
	getenv := func(k string) string {
		if k == "PIGUN_CONFIG" {
			return "/env.yaml"
		}
		return ""
	}
	assert.Equal(t, "/a.json", FindUserConfig([]string{"run", "--config=/a.json"}, getenv))
	assert.Equal(t, "/b.toml", FindUserConfig([]string{"--config", "/b.toml", "run"}, getenv))
	assert.Equal(t, "/env.yaml", FindUserConfig([]string{"run", "--config"}, getenv))
	assert.Empty(t, FindUserConfig(nil, func(string) string { return "" }))
}
