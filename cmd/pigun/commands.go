package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/pigun/internal/db"
	"github.com/banshee-data/pigun/internal/fsutil"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/gun/transport"
	"github.com/banshee-data/pigun/internal/security"
	"github.com/banshee-data/pigun/internal/version"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnchor(w io.Writer, a l4aim.Anchor) {
	fmt.Fprintf(w, "top-left:     (%.4f, %.4f)\n", a.TopLeft.X, a.TopLeft.Y)
	fmt.Fprintf(w, "bottom-right: (%.4f, %.4f)\n", a.BottomRight.X, a.BottomRight.Y)
}

// CalibrationCmd groups calibration maintenance.
type CalibrationCmd struct {
	Show   CalibrationShowCmd   `cmd:"" default:"1" help:"Print the stored calibration."`
	Import CalibrationImportCmd `cmd:"" help:"Store the calibration from a cdata.bin file."`
	Export CalibrationExportCmd `cmd:"" help:"Write the stored calibration as a cdata.bin file."`
}

// CalibrationShowCmd prints the stored anchor.
type CalibrationShowCmd struct {
	JSON bool `name:"json" help:"Print JSON."`
}

func (c *CalibrationShowCmd) Run(g *Globals, w io.Writer) error {
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := database.LoadAnchor()
	if errors.Is(err, db.ErrNoCalibration) {
		fmt.Fprintln(w, "no stored calibration; the full frame is used")
	} else if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(w, a)
	}
	printAnchor(w, a)
	return nil
}

// CalibrationImportCmd reads a legacy calibration file.
type CalibrationImportCmd struct {
	Path string `arg:"" help:"cdata.bin to import." type:"existingfile"`
}

func (c *CalibrationImportCmd) Run(g *Globals, w io.Writer) error {
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := database.ImportCalibrationFile(fsutil.OSFileSystem{}, c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "imported %s\n", c.Path)
	printAnchor(w, a)
	return nil
}

// CalibrationExportCmd writes a legacy calibration file.
type CalibrationExportCmd struct {
	Path  string `arg:"" optional:"" default:"cdata.bin" help:"Destination file." type:"path"`
	Force bool   `help:"Overwrite an existing file."`
}

func (c *CalibrationExportCmd) Run(g *Globals, w io.Writer) error {
	if err := security.ValidateOutputPath(c.Path, security.DefaultOutputRoots(g.stateDir())...); err != nil {
		return err
	}
	fs := fsutil.OSFileSystem{}
	if !c.Force && fs.Exists(c.Path) {
		return fmt.Errorf("%s exists; use --force to overwrite", c.Path)
	}
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := database.ExportCalibrationFile(fs, c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "exported to %s\n", c.Path)
	printAnchor(w, a)
	return nil
}

// PeersCmd groups host history maintenance.
type PeersCmd struct {
	List   PeersListCmd   `cmd:"" default:"1" help:"List known hosts, most recent first."`
	Import PeersImportCmd `cmd:"" help:"Import hosts from a servers.bin file."`
}

// PeersListCmd prints the known hosts.
type PeersListCmd struct{}

func (c *PeersListCmd) Run(g *Globals, w io.Writer) error {
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	peers, err := database.Peers()
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Fprintln(w, "no known hosts")
		return nil
	}
	for i, p := range peers {
		fmt.Fprintf(w, "%d  %s\n", i+1, p)
	}
	return nil
}

// PeersImportCmd reads a legacy host list.
type PeersImportCmd struct {
	Path string `arg:"" help:"servers.bin to import." type:"existingfile"`
}

func (c *PeersImportCmd) Run(g *Globals, w io.Writer) error {
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	addrs, err := database.ImportServersFile(fsutil.OSFileSystem{}, c.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "imported %d hosts from %s\n", len(addrs), c.Path)
	return nil
}

// MigrateCmd groups schema management.
type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" help:"Apply pending migrations."`
	Status MigrateStatusCmd `cmd:"" default:"1" help:"Show the schema version."`
}

// MigrateUpCmd applies migrations. openDB already does so; this reports
// the result.
type MigrateUpCmd struct{}

func (c *MigrateUpCmd) Run(g *Globals, w io.Writer) error {
	database, err := g.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	st, err := database.MigrationStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema at version %d\n", st.Current)
	return nil
}

// MigrateStatusCmd prints the schema state without migrating.
type MigrateStatusCmd struct {
	JSON bool `name:"json" help:"Print JSON."`
}

func (c *MigrateStatusCmd) Run(g *Globals, w io.Writer) error {
	database, err := db.OpenDB(g.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	st, err := database.MigrationStatus()
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "current: %d\nlatest:  %d\npending: %d\ndirty:   %t\n", st.Current, st.Latest, st.Pending, st.Dirty)
	return nil
}

// WatchCmd prints reports from the report stream.
type WatchCmd struct {
	Addr  string `help:"Report stream address." default:"localhost:50061" env:"PIGUN_STREAM"`
	Count int    `help:"Stop after this many reports; 0 runs until interrupted."`
}

var errWatchDone = errors.New("watch: done")

func (c *WatchCmd) Run(w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cc, err := grpc.NewClient(c.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer cc.Close()
	return c.watch(ctx, cc, w)
}

func (c *WatchCmd) watch(ctx context.Context, cc grpc.ClientConnInterface, w io.Writer) error {
	n := 0
	err := transport.Watch(ctx, cc, func(s report.Snapshot) error {
		fmt.Fprintf(w, "%d %s x=%d y=%d buttons=%08b tracking=%t\n",
			s.Seq, s.State, s.Report.X, s.Report.Y, s.Report.Buttons, s.Tracking)
		n++
		if c.Count > 0 && n >= c.Count {
			return errWatchDone
		}
		return nil
	})
	if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// InspectCmd decodes a capture written by run --capture.
type InspectCmd struct {
	Path string `arg:"" help:"pcap file." type:"existingfile"`
	JSON bool   `name:"json" help:"Print JSON."`
}

func (c *InspectCmd) Run(w io.Writer) error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	reports, err := transport.ReadCapture(f)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(w, reports)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSRC\tDST\tX\tY\tBUTTONS")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%08b\n",
			r.At.UTC().Format("15:04:05.000000"), r.Src, r.Dst, r.Report.X, r.Report.Y, r.Report.Buttons)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d reports\n", len(reports))
	return nil
}

// VersionCmd prints build metadata.
type VersionCmd struct {
	JSON bool `name:"json" help:"Print JSON."`
}

func (c *VersionCmd) Run(w io.Writer) error {
	if c.JSON {
		return writeJSON(w, version.Get())
	}
	_, err := fmt.Fprintln(w, version.Get())
	return err
}
