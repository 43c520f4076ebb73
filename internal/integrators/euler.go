package integrators

import (
	"github.com/pkg/errors"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// Euler integrates positions with the velocity at the start of the step.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(mb *rbd.MultiBody, cfg *rbd.Config, alphaD []float64, dt float64) error {
	if err := check(mb, cfg, alphaD, dt); err != nil {
		return err
	}
	rbd.Integrate(mb, cfg.Q, cfg.Alpha, dt)
	for i, a := range alphaD {
		cfg.Alpha[i] += a * dt
	}
	rbd.ForwardKinematics(mb, cfg)
	return nil
}

// SemiImplicit updates the velocity first and integrates positions with
// the new velocity. This is the scheme the horizon task assumes.
type SemiImplicit struct{}

func NewSemiImplicit() *SemiImplicit {
	return &SemiImplicit{}
}

func (s *SemiImplicit) Name() string { return "semi_implicit" }

func (s *SemiImplicit) Step(mb *rbd.MultiBody, cfg *rbd.Config, alphaD []float64, dt float64) error {
	if err := check(mb, cfg, alphaD, dt); err != nil {
		return err
	}
	for i, a := range alphaD {
		cfg.Alpha[i] += a * dt
	}
	rbd.Integrate(mb, cfg.Q, cfg.Alpha, dt)
	rbd.ForwardKinematics(mb, cfg)
	return nil
}

func check(mb *rbd.MultiBody, cfg *rbd.Config, alphaD []float64, dt float64) error {
	if dt <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "dt must be positive, got %g", dt)
	}
	if len(alphaD) != mb.NrDof() || len(cfg.Alpha) != mb.NrDof() || len(cfg.Q) != mb.NrParams() {
		return errors.Wrapf(qp.ErrInvalidArgument, "robot %q: %d accelerations for %d dof", mb.Name(), len(alphaD), mb.NrDof())
	}
	return nil
}
