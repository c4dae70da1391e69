// Package pipeline runs the per-frame flow: track markers, project the
// aim, step the control machine and publish the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pigun/internal/config"
	"github.com/banshee-data/pigun/internal/fsutil"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l1frames"
	"github.com/banshee-data/pigun/internal/gun/l3markers"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/monitoring"
	"github.com/banshee-data/pigun/internal/timeutil"
)

// Service-entry dump file names.
const (
	DumpRawName = "CALframe.bin"
	DumpBMPName = "CALframe.bmp"
)

// Config holds the pipeline's tunables.
type Config struct {
	Tracker l3markers.TrackerConfig
	Control l5control.Config
	// DumpDir receives the service-entry frame dump. Empty disables it.
	DumpDir string
}

// ConfigFromTuning builds a Config from tuning values.
func ConfigFromTuning(t *config.TuningConfig, dumpDir string) Config {
	return Config{
		Tracker: l3markers.TrackerConfigFromTuning(t),
		Control: l5control.ConfigFromTuning(t),
		DumpDir: dumpDir,
	}
}

// Deps are the collaborators the pipeline drives.
type Deps struct {
	Buttons    l5control.RawButtons
	Outputs    l5control.Outputs
	Store      l5control.AnchorStore
	Shutdowner l5control.Shutdowner
	Anchor     l4aim.Anchor
	Shared     *report.Shared

	FS    fsutil.FileSystem      // optional, OS by default
	Clock timeutil.Clock         // optional, real by default
	Stats *monitoring.FrameStats // optional
}

// Result is what observers see for each frame.
type Result struct {
	Seq        uint64
	At         time.Time
	Markers    l3markers.OrderedMarkers
	Tracking   bool
	Aim        l4aim.Aim
	AimValid   bool
	Buttons    l5control.ButtonState
	Transition l5control.Transition
	Processing time.Duration
}

// Observer receives a Result after every frame. Implementations must not
// block.
type Observer interface {
	ObserveFrame(r Result)
}

// Pipeline is the explicit per-device context. HandleFrame runs on the
// frame source's goroutine; Stop may be called from anywhere.
type Pipeline struct {
	cfg       Config
	tracker   *l3markers.Tracker
	projector *l4aim.Projector
	debouncer *l5control.Debouncer
	machine   *l5control.Machine

	buttons l5control.RawButtons
	out     l5control.Outputs
	shared  *report.Shared
	fs      fsutil.FileSystem
	clock   timeutil.Clock
	stats   *monitoring.FrameStats

	obsMu     sync.RWMutex
	observers []Observer

	cancel atomic.Bool

	lastRaw    l4aim.Point
	lastReport report.Report
	errLED     bool
	errLEDSet  bool
	frames     atomic.Uint64
}

// New wires a pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if deps.FS == nil {
		deps.FS = fsutil.OSFileSystem{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Shared == nil {
		deps.Shared = report.NewShared()
	}
	return &Pipeline{
		cfg:       cfg,
		tracker:   l3markers.NewTracker(cfg.Tracker),
		projector: l4aim.NewProjector(cfg.Tracker.Width, cfg.Tracker.Height),
		debouncer: l5control.NewDebouncer(cfg.Control.ButtonDelayFrames),
		machine:   l5control.NewMachine(cfg.Control, deps.Anchor, deps.Outputs, deps.Store, deps.Shutdowner),
		buttons:   deps.Buttons,
		out:       deps.Outputs,
		shared:    deps.Shared,
		fs:        deps.FS,
		clock:     deps.Clock,
		stats:     deps.Stats,
	}
}

// Tracker returns the marker tracker.
func (p *Pipeline) Tracker() *l3markers.Tracker { return p.tracker }

// Machine returns the control machine.
func (p *Pipeline) Machine() *l5control.Machine { return p.machine }

// Shared returns the published report.
func (p *Pipeline) Shared() *report.Shared { return p.shared }

// Projector returns the aim projector.
func (p *Pipeline) Projector() *l4aim.Projector { return p.projector }

// Frames returns the number of frames handled.
func (p *Pipeline) Frames() uint64 { return p.frames.Load() }

// AddObserver registers o for every subsequent frame.
func (p *Pipeline) AddObserver(o Observer) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, o)
}

// Stop asks the loop to exit at the next frame.
func (p *Pipeline) Stop() { p.cancel.Store(true) }

// Stopped reports whether Stop has been called.
func (p *Pipeline) Stopped() bool { return p.cancel.Load() }

// HandleFrame processes one frame. It returns l1frames.ErrStop once the
// pipeline has been stopped or the machine reaches Shutdown.
func (p *Pipeline) HandleFrame(f *l1frames.Frame) error {
	if p.cancel.Load() {
		return l1frames.ErrStop
	}
	start := p.clock.Now()
	p.frames.Add(1)

	res := Result{Seq: f.Seq, At: f.Time}

	markers, err := p.tracker.Run(f)
	switch {
	case err == nil:
		res.Markers = markers
		res.Tracking = true
	case errors.Is(err, l3markers.ErrNotEnoughMarkers):
		gun.Tracef("frame %d: %v", f.Seq, err)
	default:
		return fmt.Errorf("track frame %d: %w", f.Seq, err)
	}
	p.updateErrorLED(p.tracker.ErrorFlag())

	if res.Tracking {
		aim, err := p.projector.Project(markers, p.machine.Anchor())
		if err != nil {
			gun.Tracef("frame %d: %v", f.Seq, err)
		} else {
			res.Aim = aim
			res.AimValid = true
			p.lastRaw = aim.Raw
			p.lastReport.X = aim.X
			p.lastReport.Y = aim.Y
		}
	}

	var sample l5control.Sample
	if p.buttons != nil {
		if sample, err = p.buttons.Sample(); err != nil {
			gun.Opsf("button read failed: %v", err)
			sample = l5control.Sample{}
		}
	}
	res.Buttons = p.debouncer.Update(sample)

	res.Transition, err = p.machine.Step(l5control.Input{Buttons: res.Buttons, Raw: p.lastRaw})
	if err != nil {
		gun.Opsf("control step: %v", err)
	}
	if res.Transition.Changed() && res.Transition.To == l5control.Service && res.Transition.From == l5control.Idle {
		p.dumpServiceFrame(f, res)
	}

	p.lastReport.Buttons = res.Buttons.Held.ReportByte()
	p.shared.Store(report.Snapshot{
		Report:   p.lastReport,
		State:    p.machine.State(),
		Tracking: res.Tracking,
		Seq:      f.Seq,
		At:       start,
	})

	res.Processing = p.clock.Since(start)
	if p.stats != nil {
		p.stats.Observe(res.Processing, res.Tracking)
	}

	p.obsMu.RLock()
	for _, o := range p.observers {
		o.ObserveFrame(res)
	}
	p.obsMu.RUnlock()

	if p.machine.State() == l5control.Shutdown {
		p.Stop()
		return l1frames.ErrStop
	}
	return nil
}

// updateErrorLED writes the error LED only when the flag changes.
func (p *Pipeline) updateErrorLED(flag bool) {
	if p.errLEDSet && flag == p.errLED {
		return
	}
	p.errLED = flag
	p.errLEDSet = true
	if err := p.out.Write(l5control.PinError, flag); err != nil {
		gun.Opsf("error LED write failed: %v", err)
	}
}

func (p *Pipeline) dumpServiceFrame(f *l1frames.Frame, res Result) {
	for _, role := range []l3markers.Role{l3markers.TopLeft, l3markers.TopRight, l3markers.BottomLeft, l3markers.BottomRight} {
		pk := p.tracker.Peaks()[role]
		gun.Diagf("service entry peak %s: (%.1f, %.1f) v=(%.1f, %.1f)", role, pk.X, pk.Y, pk.DX, pk.DY)
	}
	if p.cfg.DumpDir == "" {
		return
	}
	if err := p.fs.MkdirAll(p.cfg.DumpDir, 0o755); err != nil {
		gun.Opsf("frame dump: %v", err)
		return
	}
	if err := l1frames.DumpRaw(p.fs, filepath.Join(p.cfg.DumpDir, DumpRawName), f); err != nil {
		gun.Opsf("frame dump: %v", err)
	}
	if err := l1frames.DumpBMP(p.fs, filepath.Join(p.cfg.DumpDir, DumpBMPName), f); err != nil {
		gun.Opsf("frame dump: %v", err)
	}
	gun.Diagf("service entry frame %d dumped to %s", res.Seq, p.cfg.DumpDir)
}

// Run drives the pipeline from src until ctx is cancelled, Stop is called
// or the machine shuts down. Outputs are switched off on return.
func (p *Pipeline) Run(ctx context.Context, src l1frames.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		p.Stop()
	}()

	gun.Opsf("pipeline started")
	err := src.Run(ctx, p.HandleFrame)
	cancel()
	<-done

	p.releaseOutputs()
	gun.Opsf("pipeline stopped after %d frames", p.Frames())
	return err
}

func (p *Pipeline) releaseOutputs() {
	for pin := l5control.Pin(0); pin < l5control.NumPins; pin++ {
		if err := p.out.Write(pin, false); err != nil {
			gun.Diagf("release %s: %v", pin, err)
		}
	}
}
