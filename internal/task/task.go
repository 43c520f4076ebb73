package task

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// Task is a quadratic contribution ½xᵀQx + Cᵀx to the QP objective.
type Task interface {
	Name() string
	Weight() float64
	SetWeight(w float64) error
	UpdateNrVars(mbs []*rbd.MultiBody, l *qp.Layout) error
	Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config, l *qp.Layout) error
	// Begin is the first decision-vector column covered by Q and C.
	Begin() int
	Q() *mat.SymDense
	C() *mat.VecDense
}

// ErrorNormer is implemented by tasks that track a task-space error.
type ErrorNormer interface {
	ErrorNorm() float64
}

// Option configures a task at construction.
type Option func(*options)

type options struct {
	name      string
	dimWeight []float64
}

// WithName labels the task in errors, logs and results.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDimWeight sets the per-row weight. Its length must match the
// measurement dimension.
func WithDimWeight(w ...float64) Option {
	return func(o *options) { o.dimWeight = append([]float64(nil), w...) }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return errors.Wrapf(qp.ErrInvalidArgument, "weight must be finite and non-negative, got %g", w)
	}
	return nil
}

func checkDimWeight(w []float64, dim int) error {
	if len(w) != dim {
		return errors.Wrapf(qp.ErrInvalidArgument, "dimension weight has %d entries, measurement has %d rows", len(w), dim)
	}
	for i, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(qp.ErrInvalidArgument, "dimension weight %d is %g", i, v)
		}
	}
	return nil
}

func checkRobot(mbs []*rbd.MultiBody, robot int) error {
	if robot < 0 || robot >= len(mbs) {
		return errors.Wrapf(qp.ErrInvalidArgument, "robot index %d out of %d robots", robot, len(mbs))
	}
	if mbs[robot].NrDof() == 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no dof", mbs[robot].Name())
	}
	return nil
}

func finite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func wrap(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return &qp.TaskError{Task: name, Op: op, Err: err}
}
