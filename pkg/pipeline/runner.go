package pipeline

import (
	"context"
	"time"

	"github.com/buildngrowsv/bubblevoice/pkg/runner"
)

type Runner struct {
	eng Engine
	lc  *runner.LifecycleRunner
}

func NewRunner(eng Engine, hooks runner.Hooks) *Runner {
	drainer := DrainerFunc(func() error { return eng.Stop() })
	lc := runner.NewLifecycleRunner(drainer, hooks, 0)
	return &Runner{eng: eng, lc: lc}
}

func (r *Runner) Run(ctx context.Context) error { return r.lc.Run(ctx) }
func (r *Runner) Stop() error                   { return r.lc.Stop() }
func (r *Runner) Restart(ctx context.Context) error {
	_ = r.lc.Stop()
	return r.lc.Run(ctx)
}

type DrainerFunc func() error

func (r DrainerFunc) Drain() error { return r() }

func NewDrainRunner(drainer runner.Drainer, hooks runner.Hooks, timeout time.Duration) *Runner {
	lc := runner.NewLifecycleRunner(drainer, hooks, timeout)
	return &Runner{lc: lc}
}
