// Package chart renders recorded series as line charts with gonum/plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/carhack/internal/replay"
)

var (
	// ErrNoSeries is returned when none of the requested series exist.
	ErrNoSeries = errors.New("no series to plot")
	// ErrNotNumeric is returned for series whose values cannot be plotted.
	ErrNotNumeric = errors.New("series is not numeric")
)

// Options controls a chart. Zero values get defaults.
type Options struct {
	Title  string
	Width  vg.Length
	Height vg.Length
	// Origin is subtracted from every timestamp; usually the trip's ts_start.
	Origin float64
}

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = 14 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 6 * vg.Inch
	}
	return o
}

// New builds a chart with one line per named series. Missing names are
// skipped; if every name is missing New fails with ErrNoSeries.
func New(readers map[string]replay.Reader, names []string, opts Options) (*plot.Plot, error) {
	opts = opts.withDefaults()

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Value"

	colors := generateColors(len(names))
	var lines int
	for i, name := range names {
		r, ok := readers[name]
		if !ok {
			continue
		}
		pts, err := points(r, opts.Origin)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", name, err)
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)
		lines++
	}
	if lines == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSeries, strings.Join(names, ", "))
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// Write renders the chart in format ("png", "svg", "pdf", ...) to w.
func Write(w io.Writer, p *plot.Plot, format string, opts Options) error {
	opts = opts.withDefaults()
	wt, err := p.WriterTo(opts.Width, opts.Height, format)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

// Save renders the chart to path; the extension picks the format.
func Save(path string, p *plot.Plot, opts Options) error {
	opts = opts.withDefaults()
	if filepath.Ext(path) == "" {
		return fmt.Errorf("chart path %q has no extension", path)
	}
	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

func points(r replay.Reader, origin float64) (plotter.XYs, error) {
	pts := make(plotter.XYs, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		s, err := r.At(i)
		if err != nil {
			return nil, err
		}
		y, err := numeric(s.Value)
		if err != nil {
			return nil, err
		}
		pts = append(pts, plotter.XY{X: s.Timestamp - origin, Y: y})
	}
	return pts, nil
}

func numeric(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
}

// generateColors creates a palette of distinct line colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
