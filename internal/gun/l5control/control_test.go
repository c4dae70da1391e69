package l5control

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

type write struct {
	Pin Pin
	On  bool
}

type fakeOutputs struct {
	writes []write
	err    error
}

func (f *fakeOutputs) Write(pin Pin, on bool) error {
	f.writes = append(f.writes, write{pin, on})
	return f.err
}

func (f *fakeOutputs) count(pin Pin, on bool) int {
	n := 0
	for _, w := range f.writes {
		if w == (write{pin, on}) {
			n++
		}
	}
	return n
}

type fakeStore struct {
	saved []l4aim.Anchor
}

func (f *fakeStore) SaveAnchor(a l4aim.Anchor) error {
	f.saved = append(f.saved, a)
	return nil
}

type fakeShutdowner struct{ calls int }

func (f *fakeShutdowner) Shutdown() error {
	f.calls++
	return nil
}

type harness struct {
	m     *Machine
	out   *fakeOutputs
	store *fakeStore
	shut  *fakeShutdowner
}

func newHarness(cfg Config) *harness {
	h := &harness{out: &fakeOutputs{}, store: &fakeStore{}, shut: &fakeShutdowner{}}
	h.m = NewMachine(cfg, l4aim.DefaultAnchor(), h.out, h.store, h.shut)
	return h
}

func press(bs ...Button) Input {
	s := Buttons(bs...)
	return Input{Buttons: ButtonState{Held: s, Pressed: s}}
}

func hold(bs ...Button) Input {
	return Input{Buttons: ButtonState{Held: Buttons(bs...)}}
}

func TestDebouncer(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(3)
	var e EdgeDetector

	steps := []struct {
		levels      ButtonSet
		wantPressed bool
		wantHeld    bool
	}{
		{Buttons(Trigger), true, true},   // press
		{Buttons(Trigger), false, true},  // still held
		{0, false, false},                // release, recharge -3
		{Buttons(Trigger), false, false}, // bounce swallowed (-2)
		{0, false, false},                // -1
		{0, false, false},                // 0, ready
		{Buttons(Trigger), true, true},   // new press registers
	}
	for i, s := range steps {
		got := d.Update(e.Next(s.levels))
		assert.Equal(t, s.wantPressed, got.Pressed.Has(Trigger), "step %d pressed", i)
		assert.Equal(t, s.wantHeld, got.Held.Has(Trigger), "step %d held", i)
	}
}

func TestButtonSet(t *testing.T) {
	t.Parallel()
	s := Buttons(Trigger, Mag, Calibrate)
	assert.True(t, s.Has(Mag))
	assert.False(t, s.Has(Reload))
	assert.Equal(t, uint8(0b101), s.ReportByte(), "calibrate is not reported")
	assert.Equal(t, "[TRG MAG CAL]", s.String())

	var e EdgeDetector
	assert.Equal(t, Sample{Levels: s, Edges: s}, e.Next(s))
	assert.Equal(t, Sample{Levels: s}, e.Next(s))
	assert.Equal(t, Sample{Levels: s | Buttons(Reload), Edges: Buttons(Reload)}, e.Next(s|Buttons(Reload)))
}

func TestMachine_CalibrationPersistsTwoAnchors(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())

	tr, err := h.m.Step(press(Calibrate))
	require.NoError(t, err)
	assert.Equal(t, Transition{From: Idle, To: Service}, tr)
	assert.Equal(t, 1, h.out.count(PinCalibration, true))

	_, err = h.m.Step(press(Trigger))
	require.NoError(t, err)
	assert.Equal(t, CalTopLeft, h.m.State())
	assert.Empty(t, h.store.saved)

	tl := l4aim.Point{X: 0.1, Y: 0.2}
	_, err = h.m.Step(Input{Buttons: press(Trigger).Buttons, Raw: tl})
	require.NoError(t, err)
	assert.Equal(t, CalBottomRight, h.m.State())

	br := l4aim.Point{X: 0.9, Y: 0.8}
	_, err = h.m.Step(Input{Buttons: press(Trigger).Buttons, Raw: br})
	require.NoError(t, err)
	assert.Equal(t, Idle, h.m.State())

	want := []l4aim.Anchor{
		{TopLeft: tl, BottomRight: l4aim.Point{X: 1, Y: 1}},
		{TopLeft: tl, BottomRight: br},
	}
	if diff := cmp.Diff(want, h.store.saved); diff != "" {
		t.Errorf("saved anchors mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want[1], h.m.Anchor())
	assert.Equal(t, 1, h.out.count(PinCalibration, false))
}

func TestMachine_CalibrateCancels(t *testing.T) {
	t.Parallel()
	for _, from := range []State{Service, CalTopLeft, CalBottomRight} {
		t.Run(from.String(), func(t *testing.T) {
			h := newHarness(DefaultConfig())
			_, _ = h.m.Step(press(Calibrate))
			for h.m.State() != from {
				_, _ = h.m.Step(press(Trigger))
			}
			tr, err := h.m.Step(press(Calibrate))
			require.NoError(t, err)
			assert.Equal(t, Transition{From: from, To: Idle}, tr)
			assert.Equal(t, 1, h.out.count(PinCalibration, false))
		})
	}
}

func TestMachine_ShutdownCheckedFirst(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())
	_, _ = h.m.Step(press(Calibrate))

	in := hold(Reload, Mag, Trigger)
	in.Buttons.Pressed = Buttons(Trigger)
	tr, err := h.m.Step(in)
	require.NoError(t, err)
	assert.Equal(t, Transition{From: Service, To: Shutdown}, tr)
	assert.Equal(t, 1, h.shut.calls)

	// Shutdown is terminal.
	tr, err = h.m.Step(press(Calibrate))
	require.NoError(t, err)
	assert.False(t, tr.Changed())
	assert.Equal(t, Shutdown, h.m.State())
	assert.Equal(t, 1, h.shut.calls)
}

func TestMachine_ShutdownNeedsExactCombination(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())
	_, _ = h.m.Step(press(Calibrate))

	tr, err := h.m.Step(hold(Trigger, Reload, Mag, DpadUp))
	require.NoError(t, err)
	assert.False(t, tr.Changed())
	assert.Equal(t, Service, h.m.State())
	assert.Zero(t, h.shut.calls)

	_, err = h.m.Step(hold(Trigger, Reload, Mag))
	require.NoError(t, err)
	assert.Equal(t, Shutdown, h.m.State())
	assert.Equal(t, 1, h.shut.calls)
}

func TestMachine_NoShutdownOutsideService(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())
	_, err := h.m.Step(hold(Trigger, Reload, Mag))
	require.NoError(t, err)
	assert.Equal(t, Idle, h.m.State())
	assert.Zero(t, h.shut.calls)
}

func TestRecoil_SelfFiresOnEdge(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())

	_, _ = h.m.Step(press(Trigger))
	assert.Equal(t, 1, h.out.count(PinRecoil, true))
	assert.True(t, h.m.Recoil().Firing())

	_, _ = h.m.Step(hold(Trigger))
	assert.Equal(t, 1, h.out.count(PinRecoil, true), "holding does not refire")
	assert.Equal(t, 1, h.out.count(PinRecoil, false), "pulse released after one frame")
	assert.False(t, h.m.Recoil().Firing())
}

func TestRecoil_AutoCooldown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RecoilMode = RecoilAuto
	h := newHarness(cfg)

	var fireFrames []int
	for frame := 0; frame < 14; frame++ {
		before := h.out.count(PinRecoil, true)
		_, _ = h.m.Step(hold(Trigger))
		if h.out.count(PinRecoil, true) > before {
			fireFrames = append(fireFrames, frame)
		}
	}
	assert.Equal(t, []int{0, 6, 12}, fireFrames)
}

func TestRecoil_CooldownDrainsOutsideIdle(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RecoilMode = RecoilAuto
	h := newHarness(cfg)

	_, _ = h.m.Step(hold(Trigger))
	require.Equal(t, 1, h.out.count(PinRecoil, true))
	require.Equal(t, -6, h.m.Recoil().cooldown)

	_, _ = h.m.Step(press(Calibrate))
	require.Equal(t, Service, h.m.State())
	for i := 0; i < 4; i++ {
		_, _ = h.m.Step(Input{})
	}
	_, _ = h.m.Step(press(Calibrate))
	require.Equal(t, Idle, h.m.State())
	assert.Zero(t, h.m.Recoil().cooldown, "cooldown kept draining in service")

	_, _ = h.m.Step(hold(Trigger))
	assert.Equal(t, 2, h.out.count(PinRecoil, true))
}

func TestRecoil_HostAndOff(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RecoilMode = RecoilHost
	h := newHarness(cfg)

	_, _ = h.m.Step(press(Trigger))
	assert.Zero(t, h.out.count(PinRecoil, true))

	h.m.Recoil().RequestFire()
	_, _ = h.m.Step(Input{})
	assert.Equal(t, 1, h.out.count(PinRecoil, true))
	_, _ = h.m.Step(Input{})
	assert.Equal(t, 1, h.out.count(PinRecoil, true), "request is consumed")

	h.m.Recoil().SetMode(RecoilOff)
	h.m.Recoil().RequestFire()
	_, _ = h.m.Step(press(Trigger))
	assert.Equal(t, 1, h.out.count(PinRecoil, true))
}

func TestService_DpadCyclesRecoilMode(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())
	_, _ = h.m.Step(press(Calibrate))

	var modes []RecoilMode
	for i := 0; i < 4; i++ {
		_, _ = h.m.Step(press(DpadCenter))
		modes = append(modes, h.m.Recoil().Mode())
	}
	assert.Equal(t, []RecoilMode{RecoilAuto, RecoilHost, RecoilOff, RecoilSelf}, modes)
	assert.Equal(t, 1, h.out.count(PinRecoil, true), "kick on entering self")
	assert.Equal(t, Service, h.m.State())
}

func TestParseRecoilMode(t *testing.T) {
	t.Parallel()
	m, err := ParseRecoilMode("AUTO")
	require.NoError(t, err)
	assert.Equal(t, RecoilAuto, m)
	_, err = ParseRecoilMode("burst")
	assert.Error(t, err)
}

func TestMachine_ReturnsOutputErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(DefaultConfig())
	h.out.err = errors.New("gpio gone")
	tr, err := h.m.Step(press(Calibrate))
	assert.Error(t, err)
	assert.Equal(t, Service, tr.To, "state moves even when the LED write fails")
}

func TestCommandShutdowner_DryRun(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CommandShutdowner{DryRun: true}.Shutdown())
	assert.Error(t, CommandShutdowner{Command: []string{"/nonexistent/pigun-poweroff"}}.Shutdown())
}
