// Package optim tunes live experiment parameters by exhaustive search.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/qptasks/internal/experiment"
	"github.com/san-kum/qptasks/internal/qp"
)

// Builder produces a fresh experiment for one evaluation.
type Builder func() (*experiment.Experiment, error)

// Point is one evaluated parameter combination.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
	evaluated  atomic.Int64
}

// NewGridSearch searches the cartesian product of ranges. Parameter names
// are experiment parameters such as "reach.stiffness".
func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "%d parameters for %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, errors.Wrapf(qp.ErrInvalidArgument, "empty range for %q", params[i])
		}
	}
	if dup := lo.FindDuplicates(params); len(dup) > 0 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "duplicate parameters %v", dup)
	}
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}, nil
}

// SetWorkers sets how many evaluations run concurrently.
func (g *GridSearch) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	g.workers = n
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Evaluated reports how many points have finished so far.
func (g *GridSearch) Evaluated() int { return int(g.evaluated.Load()) }

// Search runs every grid point and returns the one minimizing metricName,
// plus every evaluated point in grid order. Points whose build, parameter
// or run fails are recorded with Err and skipped. Search fails only on
// cancellation or when no point produced the metric.
func (g *GridSearch) Search(ctx context.Context, build Builder, metricName string) (Point, []Point, error) {
	g.evaluated.Store(0)
	grid := g.points()
	out := make([]Point, len(grid))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, params := range grid {
		i, params := i, params
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := evaluate(ctx, build, params, metricName)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			out[i] = Point{Params: params, Value: v, Err: err}
			g.evaluated.Inc()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Point{}, nil, err
	}

	best := Point{Value: math.Inf(1)}
	found := false
	for _, p := range out {
		if p.Err == nil && p.Value < best.Value {
			best, found = p, true
		}
	}
	if !found {
		return Point{}, out, errors.Errorf("no grid point produced metric %q", metricName)
	}
	return best, out, nil
}

func (g *GridSearch) points() []map[string]float64 {
	grid := []map[string]float64{{}}
	for d, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(grid)*len(g.ranges[d]))
		for _, cur := range grid {
			for _, v := range g.ranges[d] {
				p := lo.Assign(cur, map[string]float64{name: v})
				next = append(next, p)
			}
		}
		grid = next
	}
	return grid
}

func evaluate(ctx context.Context, build Builder, params map[string]float64, metricName string) (float64, error) {
	exp, err := build()
	if err != nil {
		return 0, err
	}
	names := lo.Keys(params)
	sort.Strings(names)
	for _, name := range names {
		if err := exp.SetParam(name, params[name]); err != nil {
			return 0, err
		}
	}
	result, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := result.Metrics[metricName]
	if !ok {
		return 0, errors.Errorf("unknown metric %q", metricName)
	}
	if math.IsNaN(v) {
		return 0, errors.Errorf("metric %q is NaN", metricName)
	}
	return v, nil
}
