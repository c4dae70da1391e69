package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pigun/internal/gun/l4aim"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/httputil"
	"github.com/banshee-data/pigun/internal/monitoring"
	"github.com/banshee-data/pigun/internal/version"
)

// LinkStatus is the host link as seen by the status page.
type LinkStatus interface {
	Connected() bool
	Peer() string
}

// Deps are the sources the debug routes read. Only Trace and Shared are
// required.
type Deps struct {
	Trace     *AimTrace
	Shared    *report.Shared
	Projector *l4aim.Projector
	Stats     *monitoring.FrameStats
	Link      LinkStatus
}

// Server renders the debug views.
type Server struct {
	deps Deps
}

// NewServer returns a Server reading from deps.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Status is the JSON body of the state route.
type Status struct {
	Version    version.Info       `json:"version"`
	State      string             `json:"state"`
	Tracking   bool               `json:"tracking"`
	Seq        uint64             `json:"seq"`
	X          int16              `json:"x"`
	Y          int16              `json:"y"`
	Buttons    uint8              `json:"buttons"`
	Frames     uint64             `json:"frames"`
	LastWindow *monitoring.Window `json:"last_window,omitempty"`
	Connected  bool               `json:"connected"`
	Peer       string             `json:"peer,omitempty"`
}

// Status collects the current device status.
func (s *Server) Status() Status {
	snap := s.deps.Shared.Load()
	st := Status{
		Version:  version.Get(),
		State:    snap.State.String(),
		Tracking: snap.Tracking,
		Seq:      snap.Seq,
		X:        snap.Report.X,
		Y:        snap.Report.Y,
		Buttons:  snap.Report.Buttons,
	}
	if s.deps.Stats != nil {
		st.Frames = s.deps.Stats.Total()
		if w := s.deps.Stats.Last(); w.Frames > 0 {
			st.LastWindow = &w
		}
	}
	if s.deps.Link != nil {
		st.Connected = s.deps.Link.Connected()
		st.Peer = s.deps.Link.Peer()
	}
	return st
}

// AttachAdminRoutes registers the debug pages.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("aim", "aim trace chart", s.handleAimChart)
	debug.HandleSilentFunc("aim.png", s.handleAimPlot)
	debug.HandleSilentFunc("aim.json", s.handleAimJSON)
	debug.HandleFunc("state", "device state (JSON)", s.handleState)
	debug.HandleSilentFunc("homography", s.handleHomography)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.Status())
}

func (s *Server) handleAimJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.deps.Trace.Points())
}

// handleAimChart renders the trace as a scatter in display space, with
// untracked frames omitted. Colour encodes frame order.
func (s *Server) handleAimChart(w http.ResponseWriter, r *http.Request) {
	points := s.deps.Trace.Points()
	data := make([]opts.ScatterData, 0, len(points))
	for i, p := range points {
		if !p.Tracking {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, i}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "pigun aim trace", Theme: "dark", Width: "800px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Aim trace", Subtitle: fmt.Sprintf("frames=%d tracked=%d", len(points), len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 1, Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:      opts.Bool(false),
			Min:       0,
			Max:       float32(max(len(points)-1, 1)),
			Dimension: "2",
			InRange:   &opts.VisualMapInRange{Color: []string{"#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("aim", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAimPlot renders calibrated aim against frame number as a PNG.
func (s *Server) handleAimPlot(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := RenderAimPlot(&buf, s.deps.Trace.Points()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// RenderAimPlot draws calibrated x and y of the tracked frames as a PNG.
func RenderAimPlot(w io.Writer, points []TracePoint) error {
	p := plot.New()
	p.Title.Text = "Aim"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "position"
	p.Y.Min, p.Y.Max = 0, 1

	xs := make(plotter.XYs, 0, len(points))
	ys := make(plotter.XYs, 0, len(points))
	for _, pt := range points {
		if !pt.Tracking {
			continue
		}
		xs = append(xs, plotter.XY{X: float64(pt.Seq), Y: pt.X})
		ys = append(ys, plotter.XY{X: float64(pt.Seq), Y: pt.Y})
	}
	if len(xs) > 0 {
		xLine, err := plotter.NewLine(xs)
		if err != nil {
			return fmt.Errorf("failed to create x line: %w", err)
		}
		xLine.Width = vg.Points(1)
		xLine.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
		yLine, err := plotter.NewLine(ys)
		if err != nil {
			return fmt.Errorf("failed to create y line: %w", err)
		}
		yLine.Width = vg.Points(1)
		yLine.Color = color.RGBA{R: 53, G: 183, B: 121, A: 255}
		p.Add(xLine, yLine)
		p.Legend.Add("x", xLine)
		p.Legend.Add("y", yLine)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// HomographyComparison contrasts the closed-form aim with a full
// perspective solve for the same markers.
type HomographyComparison struct {
	Raw        l4aim.Point `json:"raw"`
	Homography l4aim.Point `json:"homography"`
	Distance   float64     `json:"distance"`
}

// CompareHomography evaluates both projections for the last tracked
// markers.
func (s *Server) CompareHomography() (HomographyComparison, error) {
	m, ok := s.deps.Trace.LastMarkers()
	if !ok {
		return HomographyComparison{}, fmt.Errorf("no tracked frame yet")
	}
	if s.deps.Projector == nil {
		return HomographyComparison{}, fmt.Errorf("no projector configured")
	}
	raw, err := s.deps.Projector.Raw(m)
	if err != nil {
		return HomographyComparison{}, err
	}
	h, err := s.deps.Projector.HomographyAim(m)
	if err != nil {
		return HomographyComparison{}, err
	}
	return HomographyComparison{
		Raw:        raw,
		Homography: h,
		Distance:   math.Hypot(raw.X-h.X, raw.Y-h.Y),
	}, nil
}

func (s *Server) handleHomography(w http.ResponseWriter, r *http.Request) {
	c, err := s.CompareHomography()
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, c)
}
