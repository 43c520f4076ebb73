package sim

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/task"
)

// Runner closes the control loop: it assembles the objective from its
// tasks, solves it without constraints and integrates the robots.
type Runner struct {
	mbs        []*rbd.MultiBody
	tasks      []task.Task
	contacts   []qp.Contact
	integrator Integrator
	metrics    []Metric
	observers  []Observer
	hooks      []Hook
	logger     *zap.SugaredLogger

	layout *qp.Layout
	obj    *qp.Objective
}

func New(mbs []*rbd.MultiBody, integrator Integrator, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		mbs:        mbs,
		integrator: integrator,
		logger:     logger,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (r *Runner) AddMetric(m Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }
func (r *Runner) AddHook(h Hook)         { r.hooks = append(r.hooks, h) }

// Robots returns the simulated robots.
func (r *Runner) Robots() []*rbd.MultiBody { return r.mbs }

// Tasks returns the tasks in objective order.
func (r *Runner) Tasks() []task.Task { return r.tasks }

// AddTask appends t. The layout is rebuilt on the next cycle.
func (r *Runner) AddTask(t task.Task) {
	r.tasks = append(r.tasks, t)
	r.layout = nil
}

// RemoveTask drops the task with the given name.
func (r *Runner) RemoveTask(name string) bool {
	n := len(r.tasks)
	r.tasks = lo.Reject(r.tasks, func(t task.Task, _ int) bool { return t.Name() == name })
	if len(r.tasks) == n {
		return false
	}
	r.layout = nil
	return true
}

// Task looks a task up by name.
func (r *Runner) Task(name string) (task.Task, bool) {
	return lo.Find(r.tasks, func(t task.Task) bool { return t.Name() == name })
}

// AddContact adds force variables for a contact. The layout is rebuilt on
// the next cycle.
func (r *Runner) AddContact(c qp.Contact) {
	r.contacts = append(r.contacts, c)
	r.layout = nil
}

// Layout returns the current decision-vector layout, building it if the
// robots, tasks or contacts changed.
func (r *Runner) Layout() (*qp.Layout, error) {
	if r.layout != nil {
		return r.layout, nil
	}
	dofs := lo.Map(r.mbs, func(mb *rbd.MultiBody, _ int) int { return mb.NrDof() })
	l, err := qp.NewLayout(dofs, r.contacts)
	if err != nil {
		return nil, err
	}
	r.layout = l
	r.obj = qp.NewObjective(l.NrVars())
	r.logger.Debugw("layout rebuilt", "generation", l.Generation(), "vars", l.NrVars(), "tasks", len(r.tasks))
	return l, nil
}

func (r *Runner) Run(ctx context.Context, cfgs []*rbd.Config, cfg Config) (*Result, error) {
	if err := r.validate(cfgs, cfg); err != nil {
		return nil, err
	}

	steps := int(cfg.Duration/cfg.Dt + 0.5)
	result := &Result{
		Times:       make([]float64, 0, steps),
		TaskNames:   lo.Map(r.tasks, func(t task.Task, _ int) string { return t.Name() }),
		TaskErrors:  make([][]float64, 0, steps),
		AlphaDNorms: make([]float64, 0, steps),
		Objective:   make([]float64, 0, steps),
		Metrics:     make(map[string]float64),
	}
	for _, m := range r.metrics {
		m.Reset()
	}

	t := 0.0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			result.Final = cfgs
			return result, ctx.Err()
		default:
		}

		snap, err := r.Step(ctx, cfgs, cfg, i, t)
		if err != nil {
			r.logger.Errorw("cycle failed", "step", i, "t", t, "error", err)
			result.Final = cfgs
			return result, &StepError{Step: i, Time: t, Err: err}
		}

		result.Times = append(result.Times, t)
		result.TaskErrors = append(result.TaskErrors, snap.TaskErrors)
		result.AlphaDNorms = append(result.AlphaDNorms, mat.Norm(snap.AlphaD, 2))
		result.Objective = append(result.Objective, snap.Objective)
		result.StepsTaken++
		t += cfg.Dt
	}

	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Final = cfgs
	r.logger.Infow("run finished", "steps", result.StepsTaken, "tasks", len(r.tasks))
	return result, nil
}

// Step runs a single control cycle at time t and advances cfgs in place.
func (r *Runner) Step(ctx context.Context, cfgs []*rbd.Config, cfg Config, step int, t float64) (*Snapshot, error) {
	for i, mb := range r.mbs {
		rbd.ForwardKinematics(mb, cfgs[i])
	}
	for _, h := range r.hooks {
		if err := h.BeforeCycle(step, t, cfgs); err != nil {
			return nil, errors.Wrap(err, "hook")
		}
	}

	l, err := r.Layout()
	if err != nil {
		return nil, err
	}
	for _, tk := range r.tasks {
		if err := tk.UpdateNrVars(r.mbs, l); err != nil {
			return nil, err
		}
	}
	workers := 1
	if cfg.Parallel {
		workers = cfg.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
	}
	if err := updateTasks(ctx, r.tasks, r.mbs, cfgs, l, workers); err != nil {
		return nil, err
	}

	r.obj.Reset()
	for _, tk := range r.tasks {
		if err := r.obj.Add(tk); err != nil {
			return nil, errors.Wrapf(err, "task %q", tk.Name())
		}
	}
	x, err := r.obj.Solve(cfg.Regularization)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Step:       step,
		Time:       t,
		Cfgs:       cfgs,
		AlphaD:     x,
		TaskNames:  lo.Map(r.tasks, func(tk task.Task, _ int) string { return tk.Name() }),
		TaskErrors: lo.Map(r.tasks, func(tk task.Task, _ int) float64 { return errorNorm(tk) }),
		Objective:  r.obj.Value(x),
	}
	for _, m := range r.metrics {
		m.Observe(snap)
	}
	for _, o := range r.observers {
		o.OnStep(snap)
	}

	for i, mb := range r.mbs {
		b, err := l.Robot(i)
		if err != nil {
			return nil, err
		}
		alphaD := x.RawVector().Data[b.Begin:b.End()]
		if err := r.integrator.Step(mb, cfgs[i], alphaD, cfg.Dt); err != nil {
			return nil, errors.Wrapf(err, "integrate %q", mb.Name())
		}
		if cfg.ValidateState && !cfgs[i].IsFinite() {
			return nil, errors.Wrapf(qp.ErrNumericalDegeneracy, "robot %q state is not finite", mb.Name())
		}
	}
	r.logger.Debugw("cycle", "step", step, "t", t, "objective", snap.Objective)
	return snap, nil
}

func (r *Runner) validate(cfgs []*rbd.Config, cfg Config) error {
	if cfg.Dt <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Regularization < 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "regularization must be non-negative, got %f", cfg.Regularization)
	}
	if r.integrator == nil {
		return errors.Wrap(qp.ErrInvalidArgument, "no integrator")
	}
	if len(cfgs) != len(r.mbs) {
		return errors.Wrapf(qp.ErrInvalidArgument, "%d configs for %d robots", len(cfgs), len(r.mbs))
	}
	for i, c := range cfgs {
		if c == nil || len(c.Q) != r.mbs[i].NrParams() || len(c.Alpha) != r.mbs[i].NrDof() {
			return errors.Wrapf(qp.ErrInvalidArgument, "config %d does not match robot %q", i, r.mbs[i].Name())
		}
	}
	return nil
}

func errorNorm(t task.Task) float64 {
	if en, ok := t.(task.ErrorNormer); ok {
		return en.ErrorNorm()
	}
	return 0
}
