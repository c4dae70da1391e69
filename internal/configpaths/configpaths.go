// Package configpaths locates deployment config files for the pigun CLI.
package configpaths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// SystemDir holds the system-wide config on the device.
const SystemDir = "/etc/pigun"

// BaseName is the stem of every candidate file.
const BaseName = "pigun"

// Env lets tests stub the environment and working directory.
type Env struct {
	Getenv func(string) string
	Getwd  func() (string, error)
}

// OSEnv reads the real process environment.
func OSEnv() Env { return Env{Getenv: os.Getenv, Getwd: os.Getwd} }

// ConfigDir returns $XDG_CONFIG_HOME/pigun or ~/.config/pigun.
func (e Env) ConfigDir() (string, error) {
	if xdg := e.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, BaseName), nil
	}
	if home := e.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", BaseName), nil
	}
	return "", errors.New("HOME not set")
}

// Candidates lists config files per format in priority order: an explicit
// user path first, then the working directory, the user config directory
// and SystemDir.
func (e Env) Candidates(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(base string) {
		jsonPaths = append(jsonPaths, base+".json")
		yamlPaths = append(yamlPaths, base+".yaml", base+".yml")
		tomlPaths = append(tomlPaths, base+".toml")
	}

	if userPath != "" {
		switch strings.ToLower(filepath.Ext(userPath)) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}
	if wd, err := e.Getwd(); err == nil {
		add(filepath.Join(wd, BaseName))
	}
	if dir, err := e.ConfigDir(); err == nil {
		add(filepath.Join(dir, "config"))
	}
	add(filepath.Join(SystemDir, "config"))
	return jsonPaths, yamlPaths, tomlPaths
}

// Candidates uses the process environment.
func Candidates(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	return OSEnv().Candidates(userPath)
}

// FindUserConfig returns the value of --config from args, falling back to
// $PIGUN_CONFIG. It runs before kong so the file can feed kong's loaders.
func FindUserConfig(args []string, getenv func(string) string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return getenv("PIGUN_CONFIG")
}
