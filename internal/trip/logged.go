package trip

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/carhack/internal/bus"
	"github.com/banshee-data/carhack/internal/monitoring"
	"github.com/banshee-data/carhack/internal/processor"
	"github.com/banshee-data/carhack/internal/replay"
)

// LoggedTrip is a finished trip loaded from disk. Its primary series are
// read-only; its secondary series can be regenerated with Recalculate.
type LoggedTrip struct {
	*Trip

	// recalc serializes Recalculate. t.mu is only taken for individual steps
	// because processors write series while the replay runs.
	recalc sync.Mutex
}

// OpenLoggedTrip reads the manifest in dir and opens every series whose
// backing files exist.
func OpenLoggedTrip(tid, dir string, opts Options) (*LoggedTrip, error) {
	lt := &LoggedTrip{Trip: newTrip(tid, dir, opts)}
	lt.logged = true

	m, err := lt.readManifest()
	if err != nil {
		return nil, err
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.manifest = m
	if m.TimeInterval != nil {
		lt.tsStart, lt.tsEnd = m.TimeInterval[0], m.TimeInterval[1]
	}
	if err := lt.loadSeriesLocked(); err != nil {
		return nil, err
	}
	return lt, nil
}

// Live reports false.
func (lt *LoggedTrip) Live() bool { return false }

// Summary returns the reporting view of the trip.
func (lt *LoggedTrip) Summary() Summary { return lt.summary(false) }

// Recalculate deletes every secondary series and regenerates them by
// replaying the primary series, in timestamp order, through the processors
// enabled in the current configuration. The processors, series and manifest
// are closed and written whatever the outcome; a processor error aborts the
// replay and is returned after that cleanup.
func (lt *LoggedTrip) Recalculate() (err error) {
	lt.recalc.Lock()
	defer lt.recalc.Unlock()

	lt.mu.Lock()
	sealed := lt.sealed
	lt.mu.Unlock()
	if sealed {
		return ErrClosed
	}

	lt.logf("trip %s: recalculating", lt.tid)
	cfg, err := lt.opts.tripConfig()
	if err != nil {
		return err
	}

	if err := lt.removeSecondary(); err != nil {
		return err
	}

	sec := lt.Join(Secondary)
	if err := lt.fs.MkdirAll(sec, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Secondary, err)
	}
	entries, err := lt.fs.ReadDir(sec)
	if err != nil {
		return fmt.Errorf("failed to list %s directory: %w", Secondary, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s holds %d entries", ErrInconsistentSecondaryDirectory, sec, len(entries))
	}

	// Persist the cleaned-up state before the new processor set takes over.
	lt.mu.Lock()
	err = lt.writeManifestLocked()
	lt.mu.Unlock()
	if err != nil {
		return err
	}

	names := cfg.EnabledProcessors()
	lt.mu.Lock()
	lt.processors = nameSet(names)
	lt.manifest.Processors = append([]string{}, names...)
	lt.codecs = cfg.CodecOverrides()
	readers := make(map[string]replay.Reader, len(lt.series))
	for name, s := range lt.series {
		readers[name] = s
	}
	lt.mu.Unlock()

	target := &replayTarget{trip: lt.Trip, bus: bus.NewPublisher()}
	var procs []processor.Processor
	defer func() {
		err = errors.Join(err, lt.finishRecalculate(procs, names))
	}()

	for _, name := range names {
		lt.logf("trip %s: loading processor %s", lt.tid, name)
		p, perr := lt.opts.Processors.New(name, target, processor.Deps{
			Logf:     monitoring.Prefixed(lt.logf, name+": "),
			Settings: cfg.ProcessorSettings(name),
		})
		if perr != nil {
			return perr
		}
		procs = append(procs, p)
	}

	it := replay.Merge(readers)
	var n int
	for it.Next() {
		s := it.Sample()
		if ferr := target.bus.Fire(it.Name(), s.Timestamp, s.Value); ferr != nil {
			return fmt.Errorf("replay of %s at %.3f: %w", it.Name(), s.Timestamp, ferr)
		}
		n++
	}
	if ierr := it.Err(); ierr != nil {
		return fmt.Errorf("replay: %w", ierr)
	}
	lt.logf("trip %s: replayed %d samples through %d processors", lt.tid, n, len(names))
	return nil
}

// removeSecondary closes and deletes every secondary series and drops it
// from the manifest.
func (lt *LoggedTrip) removeSecondary() error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for _, name := range lt.manifest.seriesNames() {
		entry := lt.manifest.Series[name]
		if entry.SeriesType != Secondary {
			continue
		}
		if s, ok := lt.series[name]; ok {
			if err := s.Close(); err != nil {
				return fmt.Errorf("failed to close series %s: %w", name, err)
			}
			delete(lt.series, name)
		}
		for _, f := range entry.files() {
			p := lt.Join(f)
			if !lt.fs.Exists(p) {
				continue
			}
			if err := lt.fs.Remove(p); err != nil {
				return fmt.Errorf("failed to remove %s: %w", f, err)
			}
		}
		delete(lt.manifest.Series, name)
	}
	return nil
}

// finishRecalculate closes the processors (which may publish trailing
// values), closes every series, writes the manifest and reloads the series.
func (lt *LoggedTrip) finishRecalculate(procs []processor.Processor, names []string) error {
	var errs []error
	for i, p := range procs {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close processor %s: %w", names[i], err))
		}
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	errs = append(errs, lt.closeSeriesLocked())
	errs = append(errs, lt.writeManifestLocked())
	errs = append(errs, lt.loadSeriesLocked())
	return errors.Join(errs...)
}

// Close closes every open series. A second Close returns ErrClosed.
func (lt *LoggedTrip) Close() error {
	lt.recalc.Lock()
	defer lt.recalc.Unlock()
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.sealed {
		return ErrClosed
	}
	lt.sealed = true
	return lt.closeSeriesLocked()
}

// replayTarget is the publish target processors run against during
// Recalculate: it persists through the trip and fans out on a private bus.
type replayTarget struct {
	trip *Trip
	bus  *bus.Publisher
}

func (r *replayTarget) Publish(name string, ts float64, value any) error {
	if err := r.trip.WriteSeries(name, ts, value); err != nil {
		return err
	}
	return r.bus.Fire(name, ts, value)
}

func (r *replayTarget) Subscribe(name string, h bus.Handler) bus.Subscription {
	return r.bus.Subscribe(name, h)
}

func (r *replayTarget) Unsubscribe(s bus.Subscription) error {
	return r.bus.Unsubscribe(s)
}
