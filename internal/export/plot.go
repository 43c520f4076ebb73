// Package export renders task error histories with gonum/plot.
package export

import (
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/storage"
)

// Curves is a set of per-task error histories sharing a time axis.
// Values[k][i] is the error of task i at Times[k].
type Curves struct {
	Title  string
	Times  []float64
	Names  []string
	Values [][]float64
}

func FromResult(title string, r *sim.Result) Curves {
	return Curves{Title: title, Times: r.Times, Names: r.TaskNames, Values: r.TaskErrors}
}

func FromSeries(title string, s *storage.Series) Curves {
	return Curves{Title: title, Times: s.Times, Names: s.TaskNames, Values: s.TaskErrors}
}

// Select keeps only the named tasks. An empty list keeps all of them.
func (c Curves) Select(names ...string) (Curves, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := Curves{Title: c.Title, Times: c.Times, Names: names, Values: make([][]float64, len(c.Values))}
	idx := make([]int, len(names))
	for j, n := range names {
		idx[j] = -1
		for i, have := range c.Names {
			if have == n {
				idx[j] = i
			}
		}
		if idx[j] < 0 {
			return Curves{}, errors.Errorf("no task %q", n)
		}
	}
	for k, row := range c.Values {
		out.Values[k] = make([]float64, len(idx))
		for j, i := range idx {
			out.Values[k][j] = row[i]
		}
	}
	return out, nil
}

// Series returns the history of task i as plot points.
func (c Curves) Series(i int) plotter.XYs {
	pts := make(plotter.XYs, len(c.Times))
	for k, t := range c.Times {
		pts[k].X = t
		pts[k].Y = c.Values[k][i]
	}
	return pts
}

// Plot builds a line chart of every task. logScale plots the errors on a
// log axis, clamping zeros to the smallest positive value seen.
func Plot(c Curves, logScale bool) (*plot.Plot, error) {
	if len(c.Times) == 0 || len(c.Names) == 0 {
		return nil, errors.New("nothing to plot")
	}
	if len(c.Values) != len(c.Times) {
		return nil, errors.Errorf("%d samples for %d times", len(c.Values), len(c.Times))
	}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "task error"
	p.Add(plotter.NewGrid())
	style(p)

	floor := math.Inf(1)
	if logScale {
		for _, row := range c.Values {
			for _, v := range row {
				if v > 0 && v < floor {
					floor = v
				}
			}
		}
		if math.IsInf(floor, 1) {
			floor = 1e-12
		}
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	for i, name := range c.Names {
		pts := c.Series(i)
		if logScale {
			for k := range pts {
				pts[k].Y = math.Max(pts[k].Y, floor)
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "task %s", name)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	return p, nil
}

func style(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.Title.Padding = vg.Points(8)
	p.X.Label.TextStyle.Font.Size = vg.Points(11)
	p.Y.Label.TextStyle.Font.Size = vg.Points(11)
	p.X.Padding = vg.Points(6)
	p.Y.Padding = vg.Points(6)
}

// Save writes the chart to path; the extension picks the format (png, svg,
// pdf, ...).
func Save(c Curves, logScale bool, width, height vg.Length, path string) error {
	p, err := Plot(c, logScale)
	if err != nil {
		return err
	}
	if filepath.Ext(path) == "" {
		return errors.Errorf("%s: no file extension", path)
	}
	return p.Save(width, height, path)
}

// Write renders the chart in the given format ("png", "svg", ...) to w.
func Write(w io.Writer, c Curves, logScale bool, width, height vg.Length, format string) error {
	p, err := Plot(c, logScale)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, strings.ToLower(format))
	if err != nil {
		return errors.Wrapf(err, "format %s", format)
	}
	_, err = wt.WriteTo(w)
	return err
}
