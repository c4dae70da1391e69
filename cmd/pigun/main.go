// Command pigun runs the optical light gun and its maintenance tasks.
package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/banshee-data/pigun/internal/configpaths"
	"github.com/banshee-data/pigun/internal/db"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/monitoring"
)

// Globals are shared by every command.
type Globals struct {
	Config   string `help:"Config file (JSON, YAML or TOML). Flags and PIGUN_* variables override it." env:"PIGUN_CONFIG" type:"path"`
	DB       string `name:"db" help:"SQLite database path." default:"/var/lib/pigun/pigun.db" env:"PIGUN_DB"`
	LogLevel string `help:"Most verbose log stream to enable." enum:"ops,diag,trace" default:"ops" env:"PIGUN_LOG_LEVEL"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Run         RunCmd         `cmd:"" help:"Run the pointer."`
	Calibration CalibrationCmd `cmd:"" help:"Show, import or export the stored calibration."`
	Peers       PeersCmd       `cmd:"" help:"List or import known hosts."`
	Migrate     MigrateCmd     `cmd:"" help:"Manage the database schema."`
	Watch       WatchCmd       `cmd:"" help:"Print reports from a running device's report stream."`
	Inspect     InspectCmd     `cmd:"" help:"Decode a report capture file."`
	Version     VersionCmd     `cmd:"" help:"Print build information."`
}

func newParser(cli *CLI, userConfig string, opts ...kong.Option) (*kong.Kong, error) {
	jsonPaths, yamlPaths, tomlPaths := configpaths.Candidates(userConfig)
	base := []kong.Option{
		kong.Name("pigun"),
		kong.Description("Camera-based pointer that tracks four IR markers and reports an aim point."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	}
	return kong.New(cli, append(base, opts...)...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, configpaths.FindUserConfig(os.Args[1:], os.Getenv))
	if err != nil {
		log.Fatalf("failed to build command line: %v", err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setupLogging(cli.LogLevel, os.Stderr)
	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// setupLogging enables the stream loggers up to level.
func setupLogging(level string, w io.Writer) {
	lw := gun.LogWriters{Ops: w}
	switch level {
	case "trace":
		lw.Trace = w
		fallthrough
	case "diag":
		lw.Diag = w
	}
	gun.SetLogWriters(lw)
	monitoring.SetLogger(log.New(w, "", log.LstdFlags|log.Lmicroseconds).Printf)
}

// openDB opens the database, creating its directory and applying
// migrations.
func (g *Globals) openDB() (*db.DB, error) {
	if g.DB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(g.DB), 0o755); err != nil {
			return nil, err
		}
	}
	return db.NewDB(g.DB)
}

// stateDir holds dumps and captures next to the database.
func (g *Globals) stateDir() string {
	if g.DB == ":memory:" {
		return ""
	}
	return filepath.Dir(g.DB)
}
