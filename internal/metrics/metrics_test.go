package metrics

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
)

func snap(t float64, errs ...float64) *sim.Snapshot {
	names := []string{"reach", "posture"}[:len(errs)]
	return &sim.Snapshot{Time: t, TaskNames: names, TaskErrors: errs, AlphaD: mat.NewVecDense(2, []float64{3, 4})}
}

func TestErrorMetrics(t *testing.T) {
	series := []*sim.Snapshot{
		snap(0, 1.0, 0.5),
		snap(0.1, 0.05, 0.2),
		snap(0.2, 0.2, 0.1),
		snap(0.3, 0.01, 0.1),
		snap(0.4, 0.005, 0.1),
	}

	tests := []struct {
		metric sim.Metric
		name   string
		want   float64
	}{
		{NewTaskError("reach"), "task_error.reach", (1.0 + 0.05 + 0.2 + 0.01 + 0.005) / 5},
		{NewTaskError(""), "task_error", (1.5 + 0.25 + 0.3 + 0.11 + 0.105) / 5},
		{NewFinalError("posture"), "final_error.posture", 0.1},
		{NewSettling("reach", 0.1), "settling_time.reach", 0.3},
		{NewSettling("posture", 0.01), "settling_time.posture", math.Inf(1)},
		{NewControlEffort(), "control_effort", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", tt.metric.Name(), tt.name)
			}
			for _, s := range series {
				tt.metric.Observe(s)
			}
			got := tt.metric.Value()
			if math.IsInf(tt.want, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("Value() = %f, want +Inf", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Value() = %f, want %f", got, tt.want)
			}
			tt.metric.Reset()
			if v := tt.metric.Value(); v != 0 && !math.IsInf(v, 1) {
				t.Errorf("Value() after reset = %f", v)
			}
		})
	}
}

func TestControlEffortPeak(t *testing.T) {
	c := NewControlEffort()
	c.Observe(&sim.Snapshot{AlphaD: mat.NewVecDense(2, []float64{0, 1})})
	c.Observe(&sim.Snapshot{AlphaD: mat.NewVecDense(2, []float64{6, 8})})
	c.Observe(&sim.Snapshot{})
	if c.Peak() != 10 {
		t.Errorf("Peak() = %f, want 10", c.Peak())
	}
	if c.Value() != 5.5 {
		t.Errorf("Value() = %f, want 5.5", c.Value())
	}
	c.Reset()
	if c.Peak() != 0 {
		t.Errorf("Peak() after reset = %f", c.Peak())
	}
}

func TestUnknownTaskIsNaN(t *testing.T) {
	m := NewFinalError("gaze")
	m.Observe(snap(0, 1, 2))
	if !math.IsNaN(m.Value()) {
		t.Errorf("expected NaN for an unknown task, got %f", m.Value())
	}
}

func TestKineticEnergy(t *testing.T) {
	mb, err := rbd.NewBuilder("slider").
		Root(rbd.Body{Name: "carriage", Mass: 2}, rbd.PrismaticJoint(0, "rail", r3.Vector{X: 1}), rbd.Identity()).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	cfg := rbd.NewConfig(mb)
	cfg.Alpha[0] = 3

	if ke := KineticEnergy(mb, cfg); math.Abs(ke-9) > 1e-12 {
		t.Errorf("expected 9, got %f", ke)
	}

	m := NewEnergy([]*rbd.MultiBody{mb})
	m.Observe(&sim.Snapshot{Cfgs: []*rbd.Config{cfg}})
	cfg.Alpha[0] = 1
	m.Observe(&sim.Snapshot{Cfgs: []*rbd.Config{cfg}})
	if m.Value() != 5 || m.Peak() != 9 {
		t.Errorf("expected mean 5 and peak 9, got %f and %f", m.Value(), m.Peak())
	}
}
