package sim

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/task"
)

// updateTasks runs Update on every task, concurrently when workers > 1.
// The first error cancels the remaining updates.
func updateTasks(ctx context.Context, tasks []task.Task, mbs []*rbd.MultiBody, cfgs []*rbd.Config, l *qp.Layout, workers int) error {
	if workers <= 1 {
		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.Update(mbs, cfgs, l); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return t.Update(mbs, cfgs, l)
		})
	}
	return g.Wait()
}
