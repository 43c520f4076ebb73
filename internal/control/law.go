package control

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

// Signal is the part of a measurement a law reads.
type Signal interface {
	Eval() *mat.VecDense
	Speed() *mat.VecDense
}

// Law computes the desired task acceleration.
type Law interface {
	Name() string
	// Bind sizes the law's vector parameters for a measurement of dim rows.
	Bind(dim int) error
	// Accel writes the desired acceleration for s into dst.
	Accel(s Signal, dst *mat.VecDense) error
}

// Configurable exposes scalar parameters for live adjustment.
type Configurable interface {
	Params() map[string]float64
	SetParam(name string, value float64) error
}

func checkGain(name string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s must be finite and non-negative, got %g", name, v)
	}
	return nil
}

func unknownParam(law, name string) error {
	return errors.Wrapf(qp.ErrInvalidArgument, "%s has no parameter %q", law, name)
}

// vecParam is a vector-valued law parameter sized by Bind.
type vecParam struct {
	name string
	v    *mat.VecDense
}

func (p *vecParam) bind(dim int) error {
	if dim <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "dimension must be positive, got %d", dim)
	}
	if p.v == nil {
		p.v = mat.NewVecDense(dim, nil)
		return nil
	}
	if p.v.Len() != dim {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s has %d rows, measurement has %d", p.name, p.v.Len(), dim)
	}
	return nil
}

func (p *vecParam) set(x []float64) error {
	if len(x) == 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s must not be empty", p.name)
	}
	if p.v != nil && p.v.Len() != len(x) {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s has %d rows, got %d", p.name, p.v.Len(), len(x))
	}
	p.v = mat.NewVecDense(len(x), append([]float64(nil), x...))
	return nil
}

func (p *vecParam) get() []float64 {
	if p.v == nil {
		return nil
	}
	return append([]float64(nil), p.v.RawVector().Data...)
}

func (p *vecParam) ready(dst *mat.VecDense) error {
	if p.v == nil {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s is unset; law not bound", p.name)
	}
	if p.v.Len() != dst.Len() {
		return errors.Wrapf(qp.ErrInvalidArgument, "%s has %d rows, target has %d", p.name, p.v.Len(), dst.Len())
	}
	return nil
}

func checkSignal(s Signal, dst *mat.VecDense) error {
	if s.Eval().Len() != dst.Len() || s.Speed().Len() != dst.Len() {
		return errors.Wrapf(qp.ErrInvalidArgument, "signal has %d rows, target has %d", s.Eval().Len(), dst.Len())
	}
	return nil
}
