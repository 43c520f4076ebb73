package experiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/task"
)

// Experiment is a configured scenario ready to run: robots, their initial
// state, the tasks and a runner that owns them.
type Experiment struct {
	cfg      *config.Config
	robots   []*rbd.MultiBody
	initial  []*rbd.Config
	tasks    []task.Task
	horizons []*task.TargetObjectiveTask
	runner   *sim.Runner
	logger   *zap.SugaredLogger
}

// Build assembles an experiment with the default registry.
func Build(cfg *config.Config, logger *zap.SugaredLogger) (*Experiment, error) {
	return NewRegistry().Build(cfg, logger)
}

func (r *Registry) Build(cfg *config.Config, logger *zap.SugaredLogger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := &Experiment{cfg: cfg, logger: logger}
	for i, rc := range cfg.Robots {
		mb, c, err := buildRobot(rc)
		if err != nil {
			return nil, errors.Wrapf(err, "robot %d", i)
		}
		e.robots = append(e.robots, mb)
		e.initial = append(e.initial, c)
	}

	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	e.runner = sim.New(e.robots, integ, logger.Named("runner"))

	contacts := make([]qp.Contact, len(cfg.Contacts))
	for i, cc := range cfg.Contacts {
		contacts[i] = contact(cc)
		e.runner.AddContact(contacts[i])
	}

	for i, tc := range cfg.Tasks {
		t, err := r.buildTask(e.robots, contacts, tc, cfg.Dt)
		if err != nil {
			return nil, errors.Wrapf(err, "task %d (%s)", i, tc.Name)
		}
		if h, ok := t.(*task.TargetObjectiveTask); ok {
			e.horizons = append(e.horizons, h)
		}
		e.tasks = append(e.tasks, t)
		e.runner.AddTask(t)
	}
	if len(e.horizons) > 0 {
		e.runner.AddHook(sim.HookFunc(e.advanceHorizons))
	}
	for _, m := range r.DefaultMetrics(cfg, e.robots) {
		e.runner.AddMetric(m)
	}

	logger.Infow("experiment built", "name", cfg.Name, "robots", len(e.robots), "tasks", len(e.tasks))
	return e, nil
}

// advanceHorizons keeps horizon tasks in step with the run. Once a horizon
// is on its last step it stays there, holding the final rate.
func (e *Experiment) advanceHorizons(step int, _ float64, _ []*rbd.Config) error {
	for _, h := range e.horizons {
		it := min(step, h.NrIter()-1)
		if err := h.SetIter(it); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) buildTask(mbs []*rbd.MultiBody, contacts []qp.Contact, tc config.TaskConfig, dt float64) (task.Task, error) {
	weight := tc.Weight
	opts := options(tc)

	switch tc.Type {
	case config.TypePosture:
		t, err := task.NewPostureTask(mbs, tc.Robot, tc.Posture, tc.Stiffness, weight, opts...)
		if err != nil {
			return nil, err
		}
		gains := lo.Map(tc.JointGains, func(g config.JointGainConfig, _ int) task.JointGains {
			d := g.Damping
			if d == 0 {
				d = 2 * math.Sqrt(g.Stiffness)
			}
			return task.JointGains{JointID: g.Joint, Stiffness: g.Stiffness, Damping: d}
		})
		if err := t.SetJointsGains(gains); err != nil {
			return nil, err
		}
		return t, nil
	case config.TypeContact:
		t, err := task.NewContactTask(contacts[tc.Contact].ID, stiffness(tc), weight, opts...)
		if err != nil {
			return nil, err
		}
		t.SetError(vec(tc.Target))
		return t, nil
	case config.TypeGripperTorque:
		return task.NewGripperTorqueTask(contacts[tc.Contact].ID, vec(tc.Origin), vec(tc.Axis), weight, opts...)
	case config.TypeMultiCoM:
		m, err := measure.NewMultiCoM(mbs, tc.Robots, vec(tc.Target))
		if err != nil {
			return nil, err
		}
		return r.multiTask(mbs, m, tc, dt, opts)
	case config.TypeRelativeTransform:
		m, err := measure.NewMultiRobotTransform(mbs, tc.Robots[0], tc.Robots[1], tc.Body, tc.Body2,
			rbd.Translation(vec(tc.Point)), rbd.Translation(vec(tc.Point2)), pose(tc.Target, tc.TargetRot))
		if err != nil {
			return nil, err
		}
		return r.multiTask(mbs, m, tc, dt, opts)
	}

	m, err := r.GetMeasurement(mbs, tc)
	if err != nil {
		return nil, err
	}
	law, err := r.GetLaw(tc, dt)
	if err != nil {
		return nil, err
	}
	switch l := law.(type) {
	case *control.SetPoint:
		return task.NewSetPointTask(mbs, tc.Robot, m, l.Stiffness(), weight, opts...)
	case *control.Horizon:
		return task.NewTargetObjectiveTask(mbs, tc.Robot, m, dt, tc.Horizon, tc.ObjDot, weight, opts...)
	}
	return task.New(mbs, tc.Robot, m, law, weight, opts...)
}

func (r *Registry) multiTask(mbs []*rbd.MultiBody, m measure.MultiMeasurement, tc config.TaskConfig, dt float64, opts []task.Option) (task.Task, error) {
	law, err := r.GetLaw(tc, dt)
	if err != nil {
		return nil, err
	}
	return task.NewMulti(mbs, m, law, tc.Weight, opts...)
}

func buildRobot(rc config.RobotConfig) (*rbd.MultiBody, *rbd.Config, error) {
	base := rbd.Transform{
		Rot:   rbd.AxisAngle(r3.Vector{Z: 1}, rc.BaseYaw),
		Trans: vec(rc.Base),
	}
	mb, err := rbd.SerialArm(rbd.ArmSpec{
		Name:       rc.Name,
		Axes:       lo.Map(rc.Axes, func(a config.Vec3, _ int) r3.Vector { return vec(a) }),
		LinkLength: rc.LinkLength,
		LinkMass:   rc.LinkMass,
		FreeBase:   rc.FreeBase,
		Base:       base,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(rc.Q) > len(rc.Axes) || len(rc.Alpha) > len(rc.Axes) {
		return nil, nil, errors.Wrapf(qp.ErrInvalidArgument, "robot %q: %d joints, got %d positions and %d velocities",
			rc.Name, len(rc.Axes), len(rc.Q), len(rc.Alpha))
	}

	c := rbd.NewConfig(mb)
	for k, q := range rc.Q {
		c.Q[mb.JointPosInParam(k+1)] = q
	}
	for k, a := range rc.Alpha {
		c.Alpha[mb.JointPosInDof(k+1)] = a
	}
	rbd.ForwardKinematics(mb, c)
	return mb, c, nil
}

func contact(cc config.ContactConfig) qp.Contact {
	return qp.Contact{
		ID:     qp.ContactID{R1: cc.Robot1, R2: cc.Robot2, Body1: cc.Body1, Body2: cc.Body2},
		Points: lo.Map(cc.Points, func(p config.Vec3, _ int) r3.Vector { return vec(p) }),
		Generators: lo.Map(cc.Generators, func(gs []config.Vec3, _ int) []r3.Vector {
			return lo.Map(gs, func(g config.Vec3, _ int) r3.Vector { return vec(g) })
		}),
	}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Robots() []*rbd.MultiBody { return e.robots }

func (e *Experiment) Tasks() []task.Task { return e.tasks }

// Task looks a task up by name.
func (e *Experiment) Task(name string) (task.Task, bool) {
	return e.runner.Task(name)
}

// Runner returns the runner, for adding observers and hooks.
func (e *Experiment) Runner() *sim.Runner { return e.runner }

// InitialConfigs returns fresh copies of the initial robot states.
func (e *Experiment) InitialConfigs() []*rbd.Config {
	return lo.Map(e.initial, func(c *rbd.Config, _ int) *rbd.Config { return c.Clone() })
}

// SimConfig returns the runner parameters of the scenario.
func (e *Experiment) SimConfig() sim.Config {
	return sim.Config{
		Dt:             e.cfg.Dt,
		Duration:       e.cfg.Duration,
		Regularization: e.cfg.Regularization,
		Parallel:       e.cfg.Parallel,
		Workers:        e.cfg.Workers,
		ValidateState:  true,
	}
}

// Run simulates the scenario from its initial state.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not built")
	}
	return e.runner.Run(ctx, e.InitialConfigs(), e.SimConfig())
}

// SetParam changes a live parameter addressed as "task.param". "weight"
// applies to every task; other names go to the task's control law.
func (e *Experiment) SetParam(name string, value float64) error {
	taskName, param, ok := splitParam(name)
	if !ok {
		return errors.Wrapf(qp.ErrInvalidArgument, "parameter %q is not task.param", name)
	}
	t, ok := e.Task(taskName)
	if !ok {
		return errors.Wrapf(qp.ErrInvalidArgument, "unknown task %q", taskName)
	}
	if param == "weight" {
		return t.SetWeight(value)
	}
	if p, ok := t.(*task.PostureTask); ok && param == "stiffness" {
		return p.SetStiffness(value)
	}
	lawed, ok := t.(interface{ Law() control.Law })
	if !ok {
		return errors.Wrapf(qp.ErrInvalidArgument, "task %q has no parameter %q", taskName, param)
	}
	c, ok := lawed.Law().(control.Configurable)
	if !ok {
		return errors.Wrapf(qp.ErrInvalidArgument, "task %q has no parameter %q", taskName, param)
	}
	return c.SetParam(param, value)
}

// Params lists every live parameter as "task.param".
func (e *Experiment) Params() map[string]float64 {
	out := map[string]float64{}
	for _, t := range e.tasks {
		out[t.Name()+".weight"] = t.Weight()
		lawed, ok := t.(interface{ Law() control.Law })
		if !ok {
			continue
		}
		if c, ok := lawed.Law().(control.Configurable); ok {
			for k, v := range c.Params() {
				out[t.Name()+"."+k] = v
			}
		}
	}
	return out
}

func splitParam(name string) (string, string, bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
