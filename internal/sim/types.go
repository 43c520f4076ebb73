package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/rbd"
)

// Integrator advances one robot by a cycle given its joint accelerations.
type Integrator interface {
	Name() string
	Step(mb *rbd.MultiBody, cfg *rbd.Config, alphaD []float64, dt float64) error
}

// Snapshot is the state of a cycle as seen by metrics and observers. It is
// only valid during the callback.
type Snapshot struct {
	Step      int
	Time      float64
	Cfgs      []*rbd.Config
	AlphaD    *mat.VecDense
	TaskNames []string
	// TaskErrors[i] is the error norm of TaskNames[i], zero for tasks that
	// do not track one.
	TaskErrors []float64
	Objective  float64
}

// TotalError sums the task error norms.
func (s *Snapshot) TotalError() float64 {
	sum := 0.0
	for _, e := range s.TaskErrors {
		sum += e
	}
	return sum
}

type Metric interface {
	Name() string
	Observe(s *Snapshot)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s *Snapshot)
}

// Hook runs before each cycle's task update, while references may still
// change.
type Hook interface {
	BeforeCycle(step int, t float64, cfgs []*rbd.Config) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(step int, t float64, cfgs []*rbd.Config) error

func (f HookFunc) BeforeCycle(step int, t float64, cfgs []*rbd.Config) error {
	return f(step, t, cfgs)
}

type Config struct {
	Dt             float64
	Duration       float64
	Regularization float64
	// Parallel runs the task update pass on up to Workers goroutines.
	// Tasks must not share measurements when it is set.
	Parallel      bool
	Workers       int
	ValidateState bool
}

type Result struct {
	Times       []float64
	TaskNames   []string
	TaskErrors  [][]float64
	AlphaDNorms []float64
	Objective   []float64
	Metrics     map[string]float64
	StepsTaken  int
	Final       []*rbd.Config
}

// TaskSeries returns the error history of one task.
func (r *Result) TaskSeries(name string) ([]float64, bool) {
	for i, n := range r.TaskNames {
		if n != name {
			continue
		}
		out := make([]float64, len(r.TaskErrors))
		for k, row := range r.TaskErrors {
			out[k] = row[i]
		}
		return out, true
	}
	return nil, false
}

// StepError reports the cycle a run stopped at.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
