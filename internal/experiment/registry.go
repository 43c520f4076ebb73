package experiment

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/integrators"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/metrics"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/task"
)

// MeasurementFactory builds the measurement of a single-robot task.
type MeasurementFactory func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error)

// LawFactory builds a control law. dt is the control period.
type LawFactory func(tc config.TaskConfig, dt float64) (control.Law, error)

type Registry struct {
	integrators  map[string]func() sim.Integrator
	measurements map[string]MeasurementFactory
	laws         map[string]LawFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators:  make(map[string]func() sim.Integrator),
		measurements: make(map[string]MeasurementFactory),
		laws:         make(map[string]LawFactory),
	}

	r.integrators["euler"] = func() sim.Integrator { return integrators.NewEuler() }
	r.integrators["semi_implicit"] = func() sim.Integrator { return integrators.NewSemiImplicit() }
	r.integrators["taylor"] = func() sim.Integrator { return integrators.NewTaylor() }

	r.measurements[config.TypePosition] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewPosition(mbs, tc.Robot, tc.Body, vec(tc.Target), vec(tc.Point))
	}
	r.measurements[config.TypeOrientation] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewOrientation(mbs, tc.Robot, tc.Body, rbd.FromRotationVector(vec(tc.TargetRot)))
	}
	r.measurements[config.TypeTransform] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewTransform(mbs, tc.Robot, tc.Body, pose(tc.Target, tc.TargetRot), rbd.Translation(vec(tc.Point)))
	}
	r.measurements[config.TypeLinVelocity] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewLinVelocity(mbs, tc.Robot, tc.Body, vec(tc.Target), vec(tc.Point))
	}
	r.measurements[config.TypeCoM] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewCoM(mbs, tc.Robot, vec(tc.Target))
	}
	r.measurements[config.TypeMomentum] = func(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
		return measure.NewMomentum(mbs, tc.Robot, vec(tc.TargetRot), vec(tc.Target))
	}

	r.laws[config.LawSetPoint] = func(tc config.TaskConfig, _ float64) (control.Law, error) {
		return control.NewSetPoint(stiffness(tc))
	}
	r.laws[config.LawTracking] = func(tc config.TaskConfig, _ float64) (control.Law, error) {
		return control.NewTracking(tc.Kp, tc.Kv)
	}
	r.laws[config.LawTrajectory] = func(tc config.TaskConfig, _ float64) (control.Law, error) {
		kv := tc.Kv
		if kv == 0 {
			kv = 2 * math.Sqrt(tc.Kp)
		}
		return control.NewTrajectory(tc.Kp, kv)
	}
	r.laws[config.LawPID] = func(tc config.TaskConfig, _ float64) (control.Law, error) {
		return control.NewPID(tc.P, tc.I, tc.D)
	}
	r.laws[config.LawTargetObjective] = func(tc config.TaskConfig, dt float64) (control.Law, error) {
		return control.NewHorizon(dt, tc.Horizon)
	}
	r.laws[config.LawNone] = func(config.TaskConfig, float64) (control.Law, error) {
		return control.NewNone(), nil
	}
	r.laws[config.LawManual] = func(config.TaskConfig, float64) (control.Law, error) {
		return control.NewManual(), nil
	}

	return r
}

// RegisterMeasurement adds or replaces a single-robot measurement type.
func (r *Registry) RegisterMeasurement(name string, f MeasurementFactory) {
	r.measurements[name] = f
}

// RegisterLaw adds or replaces a control law.
func (r *Registry) RegisterLaw(name string, f LawFactory) {
	r.laws[name] = f
}

func (r *Registry) GetIntegrator(name string) (sim.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetMeasurement(mbs []*rbd.MultiBody, tc config.TaskConfig) (measure.Measurement, error) {
	fn, ok := r.measurements[tc.Type]
	if !ok {
		return nil, fmt.Errorf("unknown measurement: %s", tc.Type)
	}
	m, err := fn(mbs, tc)
	if err != nil {
		return nil, err
	}
	switch {
	case len(tc.ActiveJoints) > 0:
		return measure.ActiveJoints(mbs, tc.Robot, m, tc.ActiveJoints)
	case len(tc.InactiveJoints) > 0:
		return measure.InactiveJoints(mbs, tc.Robot, m, tc.InactiveJoints)
	}
	return m, nil
}

func (r *Registry) GetLaw(tc config.TaskConfig, dt float64) (control.Law, error) {
	fn, ok := r.laws[tc.LawOrDefault()]
	if !ok {
		return nil, fmt.Errorf("unknown law: %s", tc.LawOrDefault())
	}
	return fn(tc, dt)
}

func (r *Registry) ListIntegrators() []string { return sortedKeys(r.integrators) }
func (r *Registry) ListMeasurements() []string {
	return sortedKeys(r.measurements)
}
func (r *Registry) ListLaws() []string { return sortedKeys(r.laws) }

// DefaultMetrics returns the metrics every run records: whole-run error,
// effort and energy, plus the final error of each task.
func (r *Registry) DefaultMetrics(cfg *config.Config, mbs []*rbd.MultiBody) []sim.Metric {
	threshold := cfg.SettlingThreshold
	if threshold <= 0 {
		threshold = 1e-2
	}
	ms := []sim.Metric{
		metrics.NewTaskError(""),
		metrics.NewFinalError(""),
		metrics.NewSettling("", threshold),
		metrics.NewControlEffort(),
		metrics.NewEnergy(mbs),
	}
	for _, tc := range cfg.Tasks {
		ms = append(ms, metrics.NewFinalError(tc.Name), metrics.NewSettling(tc.Name, threshold))
	}
	return ms
}

func sortedKeys[V any](m map[string]V) []string {
	names := lo.Keys(m)
	sort.Strings(names)
	return names
}

func vec(v config.Vec3) r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }

func pose(trans, rot config.Vec3) rbd.Transform {
	return rbd.Transform{Rot: rbd.FromRotationVector(vec(rot)), Trans: vec(trans)}
}

func stiffness(tc config.TaskConfig) float64 {
	if tc.Stiffness == 0 {
		return config.DefaultStiffness
	}
	return tc.Stiffness
}

func options(tc config.TaskConfig) []task.Option {
	opts := []task.Option{task.WithName(tc.Name)}
	if len(tc.DimWeight) > 0 {
		opts = append(opts, task.WithDimWeight(tc.DimWeight...))
	}
	return opts
}
