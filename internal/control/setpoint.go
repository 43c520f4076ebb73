package control

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

// SetPoint drives the error to zero as a critically damped spring:
// a = k·e − 2√k·speed.
type SetPoint struct {
	stiffness float64
	damping   float64
}

// NewSetPoint returns a set-point law. A zero stiffness is accepted and
// yields a zero target.
func NewSetPoint(stiffness float64) (*SetPoint, error) {
	if err := checkGain("stiffness", stiffness); err != nil {
		return nil, err
	}
	return &SetPoint{stiffness: stiffness, damping: 2 * math.Sqrt(stiffness)}, nil
}

func (s *SetPoint) Name() string { return "set_point" }

func (s *SetPoint) Bind(dim int) error {
	if dim <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "dimension must be positive, got %d", dim)
	}
	return nil
}

// Stiffness returns k.
func (s *SetPoint) Stiffness() float64 { return s.stiffness }

// Damping returns the cached 2√k.
func (s *SetPoint) Damping() float64 { return s.damping }

// SetStiffness replaces k. Zero is rejected once the law is in use since
// it silently turns the task off.
func (s *SetPoint) SetStiffness(k float64) error {
	if err := checkGain("stiffness", k); err != nil {
		return err
	}
	if k == 0 {
		return errors.Wrap(qp.ErrNumericalDegeneracy, "stiffness must be positive")
	}
	s.stiffness = k
	s.damping = 2 * math.Sqrt(k)
	return nil
}

func (s *SetPoint) Accel(sig Signal, dst *mat.VecDense) error {
	if err := checkSignal(sig, dst); err != nil {
		return err
	}
	dst.ScaleVec(s.stiffness, sig.Eval())
	dst.AddScaledVec(dst, -s.damping, sig.Speed())
	return nil
}

func (s *SetPoint) Params() map[string]float64 {
	return map[string]float64{"stiffness": s.stiffness}
}

func (s *SetPoint) SetParam(name string, value float64) error {
	if name != "stiffness" {
		return unknownParam(s.Name(), name)
	}
	return s.SetStiffness(value)
}
