package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/carhack/internal/chart"
	"github.com/banshee-data/carhack/internal/config"
	"github.com/banshee-data/carhack/internal/db"
	"github.com/banshee-data/carhack/internal/fsutil"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/replay"
	"github.com/banshee-data/carhack/internal/security"
	"github.com/banshee-data/carhack/internal/timeutil"
	"github.com/banshee-data/carhack/internal/trip"
)

// app carries what every command needs. Flags override env.
type app struct {
	env  config.Env
	out  io.Writer
	logf monitoring.Logf
	// opts is merged into the trip options of every command; tests use it
	// to swap the clock or registries.
	opts trip.Options
}

type commonFlags struct {
	trips  string
	config string
	db     string
}

func (a *app) newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	c := &commonFlags{}
	fs.StringVar(&c.trips, "trips", a.env.TripsDir, "Trips directory")
	fs.StringVar(&c.config, "config", a.env.ConfigPath, "Trip configuration JSON")
	fs.StringVar(&c.db, "db", a.env.DBPath, "Trip catalog database")
	return fs, c
}

func (a *app) tripOptions(provider config.Provider) trip.Options {
	opts := a.opts
	opts.Config = provider
	opts.Logf = a.logf
	return opts
}

func (a *app) openCatalog(path string) (*db.DB, error) {
	catalog, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	return catalog, nil
}

// tripArg returns the single trip ID argument and its directory.
func tripArg(fs *flag.FlagSet, tripsDir string) (string, string, error) {
	if fs.NArg() != 1 {
		return "", "", fmt.Errorf("expected one trip ID, got %d arguments", fs.NArg())
	}
	tid := fs.Arg(0)
	dir, err := security.TripDir(tripsDir, tid)
	if err != nil {
		return "", "", err
	}
	return tid, dir, nil
}

// portOverride sets the radar port on top of another provider.
type portOverride struct {
	base config.Provider
	port string
}

func (p portOverride) TripConfig() (*config.TripConfig, error) {
	cfg, err := p.base.TripConfig()
	if err != nil || p.port == "" {
		return cfg, err
	}
	out := *cfg
	out.SensorConfig = make(map[string]map[string]string, len(cfg.SensorConfig)+1)
	for name, block := range cfg.SensorConfig {
		out.SensorConfig[name] = block
	}
	radar := make(map[string]string, len(cfg.SensorConfig["radar"])+1)
	for k, v := range cfg.SensorConfig["radar"] {
		radar[k] = v
	}
	radar["port"] = p.port
	out.SensorConfig["radar"] = radar
	return &out, nil
}

func (a *app) record(ctx context.Context, args []string) error {
	fs, common := a.newFlagSet("record")
	name := fs.String("name", "", "Trip display name (default: trip ID)")
	port := fs.String("port", a.env.SerialPort, "Radar serial port, overrides the configuration")
	duration := fs.Duration("duration", 0, "Stop after this long (0 records until interrupted)")
	syncEvery := fs.Duration("sync", 10*time.Second, "Catalog update interval while recording")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *syncEvery <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", *syncEvery)
	}

	catalog, err := a.openCatalog(common.db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	tid := trip.NewID()
	dir := filepath.Join(common.trips, tid)
	opts := a.tripOptions(portOverride{base: config.File{Path: common.config}, port: *port})
	opts.Name = *name

	lt, err := trip.NewLiveTrip(ctx, tid, dir, opts)
	if err != nil {
		return err
	}
	a.logf("recording trip %s in %s", tid, dir)
	if err := catalog.UpsertTrip(lt.Summary(), dir); err != nil {
		a.logf("catalog: %v", err)
	}

	var deadline <-chan time.Time
	if *duration > 0 {
		timer := time.NewTimer(*duration)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(*syncEvery)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			if err := catalog.UpsertTrip(lt.Summary(), dir); err != nil {
				a.logf("catalog: %v", err)
			}
		}
	}

	if err := lt.Close(); err != nil {
		return fmt.Errorf("failed to close trip %s: %w", tid, err)
	}
	return a.catalogTrip(catalog, tid, dir)
}

// catalogTrip reopens a finished trip and records its summary.
func (a *app) catalogTrip(catalog *db.DB, tid, dir string) error {
	logged, err := trip.OpenLoggedTrip(tid, dir, a.tripOptions(nil))
	if err != nil {
		return err
	}
	defer logged.Close()
	if err := catalog.UpsertTrip(logged.Summary(), dir); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n", tid)
	return nil
}

func (a *app) recalc(args []string) error {
	fs, common := a.newFlagSet("recalc")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tid, dir, err := tripArg(fs, common.trips)
	if err != nil {
		return err
	}

	catalog, err := a.openCatalog(common.db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	opts := a.tripOptions(config.File{Path: common.config})
	logged, err := trip.OpenLoggedTrip(tid, dir, opts)
	if err != nil {
		return err
	}
	defer logged.Close()

	if err := logged.Recalculate(); err != nil {
		return err
	}
	if err := catalog.UpsertTrip(logged.Summary(), dir); err != nil {
		return err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if err := catalog.MarkRecalculated(tid, timeutil.Seconds(clock.Now())); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recalculated %s: %s\n", tid, strings.Join(logged.SeriesNames(), ", "))
	return nil
}

func (a *app) list(args []string) error {
	fs, common := a.newFlagSet("list")
	scan := fs.Bool("scan", false, "Index every trip under the trips directory first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	catalog, err := a.openCatalog(common.db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if *scan {
		if err := a.scanTrips(catalog, common.trips); err != nil {
			return err
		}
	}

	trips, err := catalog.Trips()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TID\tNAME\tSTART\tDURATION\tSERIES")
	for _, t := range trips {
		start := "-"
		if t.TSStart > 0 {
			start = timeutil.FromSeconds(t.TSStart).UTC().Format(time.RFC3339)
		}
		dur := "live"
		if !t.Live {
			dur = time.Duration((t.TSEnd - t.TSStart) * float64(time.Second)).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", t.TID, t.Name, start, dur, len(t.Series))
	}
	return w.Flush()
}

func (a *app) scanTrips(catalog *db.DB, tripsDir string) error {
	fsys := a.opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	entries, err := fsys.ReadDir(tripsDir)
	if err != nil {
		return fmt.Errorf("failed to read trips directory: %w", err)
	}
	var errs []error
	for _, e := range entries {
		dir := filepath.Join(tripsDir, e.Name())
		if !e.IsDir() || !trip.IsTripDir(fsys, dir) {
			continue
		}
		logged, err := trip.OpenLoggedTrip(e.Name(), dir, a.tripOptions(nil))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, catalog.UpsertTrip(logged.Summary(), dir), logged.Close())
	}
	return errors.Join(errs...)
}

func (a *app) show(args []string) error {
	fs, common := a.newFlagSet("show")
	limit := fs.Int("limit", 50, "Maximum samples to print (0 for none, -1 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tid, dir, err := tripArg(fs, common.trips)
	if err != nil {
		return err
	}

	logged, err := trip.OpenLoggedTrip(tid, dir, a.tripOptions(nil))
	if err != nil {
		return err
	}
	defer logged.Close()

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(logged.Summary()); err != nil {
		return err
	}

	it := replay.Merge(logged.Readers())
	for n := 0; *limit < 0 || n < *limit; n++ {
		if !it.Next() {
			break
		}
		s := it.Sample()
		fmt.Fprintf(a.out, "%14.3f %s %v\n", s.Timestamp, it.Name(), s.Value)
	}
	return it.Err()
}

func (a *app) plot(args []string) error {
	fs, common := a.newFlagSet("plot")
	series := fs.String("series", "", "Comma-separated series to plot (default: all)")
	out := fs.String("out", "", "Output image; the extension picks the format (default: <tid>.png)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tid, dir, err := tripArg(fs, common.trips)
	if err != nil {
		return err
	}

	logged, err := trip.OpenLoggedTrip(tid, dir, a.tripOptions(nil))
	if err != nil {
		return err
	}
	defer logged.Close()

	names := logged.SeriesNames()
	if *series != "" {
		names = strings.Split(*series, ",")
	}
	path := *out
	if path == "" {
		path = security.SanitizeFilename(tid) + ".png"
	}

	start, _ := logged.TimeInterval()
	opts := chart.Options{Title: logged.Name(), Origin: start}
	p, err := chart.New(logged.Readers(), names, opts)
	if err != nil {
		return err
	}
	if err := chart.Save(path, p, opts); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}
