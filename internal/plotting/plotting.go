// Package plotting renders recorded runs to image files with gonum/plot.
package plotting

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/voltsim/internal/sim"
)

const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

var ErrEmpty = errors.New("plotting: nothing to plot")

func line(p *plot.Plot, name string, idx int, x, y []float64) error {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Color = plotutil.Color(idx)
	l.Dashes = plotutil.Dashes(idx)
	p.Add(l)
	if name != "" {
		p.Legend.Add(name, l)
	}
	return nil
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

// Voltammogram plots current against potential. With more than one
// observable each E-step gets its own trace next to the total.
func Voltammogram(res *sim.Result, title string) (*plot.Plot, error) {
	if res == nil || res.Len() == 0 {
		return nil, ErrEmpty
	}
	p := newPlot(title, "E (V)", "i (A)")
	e := res.Potentials()
	if err := line(p, "total", 0, e, res.TotalCurrent()); err != nil {
		return nil, err
	}
	if len(res.Observables) > 1 {
		for k, name := range res.Observables {
			if err := line(p, "i_"+name, k+1, e, res.StepCurrent(k)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Transient plots current against time, the natural view of a step.
func Transient(res *sim.Result, title string) (*plot.Plot, error) {
	if res == nil || res.Len() == 0 {
		return nil, ErrEmpty
	}
	p := newPlot(title, "t (s)", "i (A)")
	if err := line(p, "", 0, res.Times(), res.TotalCurrent()); err != nil {
		return nil, err
	}
	return p, nil
}

// Profile plots every species of a snapshot against distance from the
// electrode. nodes are the grid positions the snapshot was taken on.
func Profile(snap sim.Snapshot, nodes []float64, species []string) (*plot.Plot, error) {
	if len(snap.C) == 0 {
		return nil, ErrEmpty
	}
	if len(snap.C) != len(nodes) {
		return nil, fmt.Errorf("plotting: snapshot has %d nodes, grid has %d", len(snap.C), len(nodes))
	}
	p := newPlot(fmt.Sprintf("profile at t=%.4g s", snap.T), "x (cm)", "c (mol/cm³)")
	y := make([]float64, len(nodes))
	for s, name := range species {
		for i, row := range snap.C {
			if s >= len(row) {
				return nil, fmt.Errorf("plotting: species %q missing from snapshot", name)
			}
			y[i] = row[s]
		}
		if err := line(p, name, s, nodes, y); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Save writes p to path; the extension picks the format (png, svg, pdf).
func Save(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}

// Write encodes p in format to w.
func Write(p *plot.Plot, w io.Writer, format string) error {
	if format == "" {
		format = "png"
	}
	wt, err := p.WriterTo(Width, Height, strings.TrimPrefix(format, "."))
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// FormatOf returns the image format implied by a file name.
func FormatOf(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return "png"
	}
	return ext
}
