package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pigun/internal/config"
	"github.com/banshee-data/pigun/internal/db"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/hw"
	"github.com/banshee-data/pigun/internal/gun/l1frames"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/monitor"
	"github.com/banshee-data/pigun/internal/gun/pipeline"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/gun/telemetry"
	"github.com/banshee-data/pigun/internal/gun/transport"
	"github.com/banshee-data/pigun/internal/monitoring"
	"github.com/banshee-data/pigun/internal/security"
	"github.com/banshee-data/pigun/internal/serialmux"
	"github.com/banshee-data/pigun/internal/version"
)

// RunCmd is the device main loop.
type RunCmd struct {
	Tuning string `help:"Tuning JSON file." type:"path" env:"PIGUN_TUNING"`
	Dev    bool   `help:"Development mode: simulated hardware, synthetic frames, no power-off." env:"PIGUN_DEV"`

	Source string `help:"Frame source." enum:"libcamera,replay,stdin,synthetic,gocv" default:"libcamera" env:"PIGUN_SOURCE"`
	Camera int    `help:"libcamera camera index." default:"0"`
	Replay string `help:"Raw frame file for --source=replay." type:"path"`
	Loop   bool   `help:"Loop the replay file."`
	Device string `help:"OpenCV device index or URL for --source=gocv." default:"0"`

	Hardware string `help:"Button and output backend." enum:"gpio,bridge,sim" default:"gpio" env:"PIGUN_HARDWARE"`
	Bridge   string `help:"Serial port of the button bridge." default:"/dev/ttyACM0" env:"PIGUN_BRIDGE"`
	Baud     int    `help:"Bridge baud rate." default:"115200"`

	Listen        string `help:"UDP address for the host link." default:":7777" env:"PIGUN_LISTEN"`
	Admin         string `help:"Debug HTTP address; empty disables." default:"localhost:8080" env:"PIGUN_ADMIN"`
	Stream        string `help:"Report stream gRPC address; empty disables." default:"localhost:50061" env:"PIGUN_STREAM"`
	StreamClients int    `help:"Maximum report stream subscribers." default:"4"`
	Capture       string `help:"Write every sent report to this pcap file." type:"path" env:"PIGUN_CAPTURE"`
	DumpDir       string `help:"Directory for the service-entry frame dump; defaults to the database directory." type:"path"`

	MQTT       string `name:"mqtt" help:"MQTT broker URL for status telemetry; empty disables." env:"PIGUN_MQTT"`
	DeviceName string `help:"Device name used in telemetry topics." default:"pigun" env:"PIGUN_DEVICE"`

	ShutdownCommand []string `help:"Power-off command for the shutdown combination." default:"sudo,shutdown,-P,now"`
}

// backend names the hardware kind after applying --dev.
func (c *RunCmd) backend() (hw.Kind, error) {
	if c.Dev {
		return hw.KindSim, nil
	}
	return hw.ParseKind(c.Hardware)
}

// frameSource builds the configured source. In dev mode a replay file is
// honoured and everything else becomes synthetic.
func (c *RunCmd) frameSource(t *config.TuningConfig) (l1frames.Source, error) {
	src := c.Source
	if c.Dev && src != "replay" {
		src = "synthetic"
	}
	w, h, fps := t.GetWidth(), t.GetHeight(), t.GetFPS()
	format, err := l1frames.ParseFormat(t.GetFrameFormat())
	if err != nil {
		return nil, err
	}
	switch src {
	case "libcamera":
		return l1frames.NewLibcameraSource(l1frames.LibcameraConfig{Camera: c.Camera, Width: w, Height: h, FPS: fps}), nil
	case "replay":
		if c.Replay == "" {
			return nil, errors.New("--replay is required for --source=replay")
		}
		return l1frames.NewReplaySource(l1frames.ReplayConfig{
			Path: c.Replay, Width: w, Height: h, Format: format, FPS: fps, Loop: c.Loop,
		}, nil, nil), nil
	case "stdin":
		return l1frames.NewStreamSource(os.Stdin, w, h, format, nil), nil
	case "synthetic":
		cfg := l1frames.DefaultSyntheticConfig()
		cfg.Width, cfg.Height, cfg.FPS = w, h, fps
		return l1frames.NewSyntheticSource(cfg, nil), nil
	case "gocv":
		return l1frames.NewGocvSource(l1frames.GocvConfig{Device: c.Device, Width: w, Height: h, FPS: fps})
	}
	return nil, fmt.Errorf("unknown frame source %q", src)
}

func (c *RunCmd) loadTuning() (*config.TuningConfig, error) {
	if c.Tuning == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(c.Tuning)
}

// Run wires the device together and blocks until a signal arrives or
// the machine shuts down.
func (c *RunCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, g)
}

func (c *RunCmd) run(ctx context.Context, g *Globals) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	gun.Opsf("%s starting", version.Get())
	tuning, err := c.loadTuning()
	if err != nil {
		return err
	}
	kind, err := c.backend()
	if err != nil {
		return err
	}
	src, err := c.frameSource(tuning)
	if err != nil {
		return err
	}

	database, err := g.openDB()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	// Containment checks need the state directory to exist.
	roots := security.DefaultOutputRoots(g.stateDir())
	dumpDir := c.DumpDir
	if dumpDir == "" {
		dumpDir = g.stateDir()
	}
	if dumpDir != "" {
		if err := security.ValidateOutputPath(dumpDir, roots...); err != nil {
			return fmt.Errorf("dump directory: %w", err)
		}
	}

	session, err := database.StartSession(version.Version)
	if err != nil {
		return err
	}
	anchor, stored, err := database.LoadAnchorOrDefault()
	if err != nil {
		return err
	}
	if !stored {
		gun.Opsf("no stored calibration, using the full frame")
	}

	backend, err := hw.Open(ctx, hw.Config{
		Kind:          kind,
		Pins:          hw.DefaultPinMap(),
		BridgePath:    c.Bridge,
		BridgeOptions: serialmux.PortOptions{BaudRate: c.Baud},
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	writer := db.NewAnchorWriter(database)
	writer.Start(ctx)

	shared := report.NewShared()
	stats := monitoring.NewFrameStats(nil, time.Second)
	p := pipeline.New(pipeline.ConfigFromTuning(tuning, dumpDir), pipeline.Deps{
		Buttons:    backend,
		Outputs:    backend,
		Store:      writer,
		Shutdowner: l5control.CommandShutdowner{Command: c.ShutdownCommand, DryRun: c.Dev},
		Anchor:     anchor,
		Shared:     shared,
		Stats:      stats,
	})
	trace := monitor.NewAimTrace(tuning.GetTraceLength())
	p.AddObserver(trace)

	var recorder transport.PacketRecorder
	if c.Capture != "" {
		rec, closeCapture, err := openCapture(ctx, c.Capture, roots)
		if err != nil {
			return err
		}
		defer closeCapture()
		recorder = rec
	}

	link, err := transport.NewLink(transport.LinkConfigFromTuning(tuning, c.Listen), transport.LinkDeps{
		Shared:   shared,
		Fire:     p.Machine().Recoil(),
		LEDs:     backend,
		Peers:    database,
		Recorder: recorder,
	})
	if err != nil {
		return err
	}

	mon := monitor.NewServer(monitor.Deps{
		Trace:     trace,
		Shared:    shared,
		Projector: p.Projector(),
		Stats:     stats,
		Link:      link,
	})

	var wg sync.WaitGroup

	if c.Stream != "" {
		pub := transport.NewStreamPublisher(transport.StreamConfig{ListenAddr: c.Stream, MaxClients: c.StreamClients}, shared)
		if err := pub.Start(); err != nil {
			return fmt.Errorf("report stream: %w", err)
		}
		defer pub.Stop()
	}

	if c.MQTT != "" {
		tcfg := telemetry.DefaultConfig()
		tcfg.Broker = c.MQTT
		tcfg.Device = c.DeviceName
		tcfg.Interval = tuning.GetStatusInterval()
		client, err := telemetry.Connect(tcfg)
		if err != nil {
			// Telemetry is optional; the pointer still works without it.
			gun.Opsf("telemetry disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			reporter := telemetry.NewReporter(tcfg, client, mon, nil)
			p.AddObserver(reporter)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := reporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					gun.Opsf("telemetry stopped: %v", err)
				}
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			gun.Opsf("host link stopped: %v", err)
		}
	}()

	if c.Admin != "" {
		mux := http.NewServeMux()
		mon.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux, db.Label(g.DB)); err != nil {
			return err
		}
		if b, ok := backend.(interface{ AttachAdminRoutes(*http.ServeMux) }); ok {
			b.AttachAdminRoutes(mux)
		} else {
			serialmux.NewDisabledSerialMux().AttachAdminRoutes(mux)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(ctx, c.Admin, mux)
		}()
	}

	runErr := p.Run(ctx, src)
	stop()
	wg.Wait()
	writer.Wait()

	if err := writer.Err(); err != nil {
		gun.Opsf("last calibration write failed: %v", err)
	}
	if err := database.EndSession(session, p.Frames(), p.Machine().Recoil().Fired()); err != nil {
		gun.Opsf("failed to close session: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	gun.Opsf("graceful shutdown complete")
	return nil
}

// openCapture starts a pcap recorder at path. The returned func flushes
// and closes the file.
func openCapture(ctx context.Context, path string, roots []string) (*transport.Recorder, func(), error) {
	if err := security.ValidateOutputPath(path, roots...); err != nil {
		return nil, nil, fmt.Errorf("capture file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	rec, err := transport.NewRecorder(f, nil)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	rec.Start(ctx)
	gun.Opsf("capturing reports to %s", path)
	return rec, func() {
		if err := rec.Close(); err != nil {
			gun.Opsf("capture close: %v", err)
		}
		gun.Opsf("capture closed: %d written, %d dropped", rec.Written(), rec.Dropped())
		f.Close()
	}, nil
}

// serveAdmin runs the debug server until ctx is done.
func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			gun.Opsf("admin server: %v", err)
		}
	}()
	gun.Opsf("admin routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		gun.Opsf("admin server shutdown: %v", err)
		_ = server.Close()
	}
}
