package control

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

// Horizon brings the error to zero and the measured rate to objDot after
// exactly nrIter − iter more control steps of length timeStep.
//
// The remaining acceleration profile is taken linear in time and the state
// is assumed to advance by semi-implicit Euler. Solving for the first
// acceleration of that profile gives a target affine in the current speed:
//
//	a = phi + psi ⊙ speed
//	N ≥ 2: phi = 6e/(N(N+1)dt²) − 2·objDot/(N·dt), psi = 2/(N·dt) − 6/((N+1)·dt)
//	N = 1: phi = objDot/dt,                          psi = −1/dt
//
// With N = nrIter − iter ≤ 0 the horizon is exhausted and Accel fails.
type Horizon struct {
	timeStep float64
	nrIter   int
	iter     int
	objDot   vecParam
	phi      *mat.VecDense
	psi      *mat.VecDense
}

// NewHorizon returns a horizon law spanning duration seconds.
func NewHorizon(timeStep, duration float64) (*Horizon, error) {
	h := &Horizon{objDot: vecParam{name: "objDot"}}
	if timeStep <= 0 || math.IsNaN(timeStep) || math.IsInf(timeStep, 0) {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "time step must be positive, got %g", timeStep)
	}
	h.timeStep = timeStep
	if err := h.SetDuration(duration); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Horizon) Name() string { return "target_objective" }

func (h *Horizon) Bind(dim int) error {
	if err := h.objDot.bind(dim); err != nil {
		return err
	}
	h.phi = mat.NewVecDense(dim, nil)
	h.psi = mat.NewVecDense(dim, nil)
	return nil
}

// TimeStep returns the control period.
func (h *Horizon) TimeStep() float64 { return h.timeStep }

// Duration returns nrIter·timeStep.
func (h *Horizon) Duration() float64 { return float64(h.nrIter) * h.timeStep }

// SetDuration sets nrIter = round(duration/timeStep).
func (h *Horizon) SetDuration(d float64) error {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return errors.Wrapf(qp.ErrInvalidArgument, "duration must be positive, got %g", d)
	}
	n := int(math.Round(d / h.timeStep))
	if n < 1 {
		return errors.Wrapf(qp.ErrInvalidArgument, "duration %g is shorter than one time step %g", d, h.timeStep)
	}
	h.nrIter = n
	return nil
}

// Iter returns the index of the current step.
func (h *Horizon) Iter() int { return h.iter }

// SetIter moves to step iter.
func (h *Horizon) SetIter(iter int) error {
	if iter < 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "iteration must be non-negative, got %d", iter)
	}
	h.iter = iter
	return nil
}

// Advance moves to the next step.
func (h *Horizon) Advance() { h.iter++ }

// NrIter returns the horizon length in steps.
func (h *Horizon) NrIter() int { return h.nrIter }

// SetNrIter replaces the horizon length.
func (h *Horizon) SetNrIter(n int) error {
	if n < 1 {
		return errors.Wrapf(qp.ErrInvalidArgument, "horizon must span at least one step, got %d", n)
	}
	h.nrIter = n
	return nil
}

// Remaining returns nrIter − iter.
func (h *Horizon) Remaining() int { return h.nrIter - h.iter }

func (h *Horizon) SetObjDot(v []float64) error { return h.objDot.set(v) }
func (h *Horizon) ObjDot() []float64           { return h.objDot.get() }

// Phi returns the speed-independent part of the last target.
func (h *Horizon) Phi() *mat.VecDense { return h.phi }

// Psi returns the per-row speed gain of the last target.
func (h *Horizon) Psi() *mat.VecDense { return h.psi }

func (h *Horizon) Accel(s Signal, dst *mat.VecDense) error {
	if err := checkSignal(s, dst); err != nil {
		return err
	}
	if err := h.objDot.ready(dst); err != nil {
		return err
	}
	if h.phi == nil || h.phi.Len() != dst.Len() {
		return errors.Wrap(qp.ErrInvalidArgument, "horizon law not bound")
	}
	n := h.Remaining()
	if n <= 0 {
		return errors.Wrapf(qp.ErrNumericalDegeneracy, "horizon exhausted: iteration %d of %d", h.iter, h.nrIter)
	}

	dt := h.timeStep
	e, speed, objDot := s.Eval(), s.Speed(), h.objDot.v
	if n == 1 {
		h.phi.ScaleVec(1/dt, objDot)
		for i := 0; i < h.psi.Len(); i++ {
			h.psi.SetVec(i, -1/dt)
		}
	} else {
		fn := float64(n)
		h.phi.ScaleVec(6/(fn*(fn+1)*dt*dt), e)
		h.phi.AddScaledVec(h.phi, -2/(fn*dt), objDot)
		psi := 2/(fn*dt) - 6/((fn+1)*dt)
		for i := 0; i < h.psi.Len(); i++ {
			h.psi.SetVec(i, psi)
		}
	}

	dst.MulElemVec(h.psi, speed)
	dst.AddVec(dst, h.phi)
	return nil
}

func (h *Horizon) Params() map[string]float64 {
	return map[string]float64{
		"duration": h.Duration(),
		"iter":     float64(h.iter),
	}
}

func (h *Horizon) SetParam(name string, value float64) error {
	switch name {
	case "duration":
		return h.SetDuration(value)
	case "iter":
		return h.SetIter(int(value))
	}
	return unknownParam(h.Name(), name)
}
