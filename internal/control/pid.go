package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

// PID is a = P·e + I·errorI + D·errorD with e the measured error. The
// integral and derivative terms are maintained by the caller, for instance
// with an ErrorIntegrator.
//
// Deprecated: prefer SetPoint or Trajectory; the integral term fights the
// QP's other objectives.
type PID struct {
	p, i, d float64
	errI    vecParam
	errD    vecParam
}

// NewPID returns a PID law.
func NewPID(p, i, d float64) (*PID, error) {
	law := &PID{errI: vecParam{name: "errorI"}, errD: vecParam{name: "errorD"}}
	if err := law.SetGains(p, i, d); err != nil {
		return nil, err
	}
	return law, nil
}

func (l *PID) Name() string { return "pid" }

func (l *PID) Bind(dim int) error {
	if err := l.errI.bind(dim); err != nil {
		return err
	}
	return l.errD.bind(dim)
}

// SetGains replaces P, I and D.
func (l *PID) SetGains(p, i, d float64) error {
	for name, v := range map[string]float64{"P": p, "I": i, "D": d} {
		if err := checkGain(name, v); err != nil {
			return err
		}
	}
	l.p, l.i, l.d = p, i, d
	return nil
}

func (l *PID) P() float64 { return l.p }
func (l *PID) I() float64 { return l.i }
func (l *PID) D() float64 { return l.d }

func (l *PID) SetErrorI(e []float64) error { return l.errI.set(e) }
func (l *PID) SetErrorD(e []float64) error { return l.errD.set(e) }
func (l *PID) ErrorI() []float64           { return l.errI.get() }
func (l *PID) ErrorD() []float64           { return l.errD.get() }

func (l *PID) Accel(s Signal, dst *mat.VecDense) error {
	if err := checkSignal(s, dst); err != nil {
		return err
	}
	if err := l.errI.ready(dst); err != nil {
		return err
	}
	if err := l.errD.ready(dst); err != nil {
		return err
	}
	dst.ScaleVec(l.p, s.Eval())
	dst.AddScaledVec(dst, l.i, l.errI.v)
	dst.AddScaledVec(dst, l.d, l.errD.v)
	return nil
}

func (l *PID) Params() map[string]float64 {
	return map[string]float64{"p": l.p, "i": l.i, "d": l.d}
}

func (l *PID) SetParam(name string, value float64) error {
	switch name {
	case "p":
		return l.SetGains(value, l.i, l.d)
	case "i":
		return l.SetGains(l.p, value, l.d)
	case "d":
		return l.SetGains(l.p, l.i, value)
	}
	return unknownParam(l.Name(), name)
}

// ErrorIntegrator accumulates the integral and finite-difference
// derivative of a sampled error vector.
type ErrorIntegrator struct {
	integral   []float64
	derivative []float64
	prevErr    []float64
	prevT      float64
	first      bool
}

// NewErrorIntegrator returns an integrator for errors of dim rows.
func NewErrorIntegrator(dim int) *ErrorIntegrator {
	return &ErrorIntegrator{
		integral:   make([]float64, dim),
		derivative: make([]float64, dim),
		prevErr:    make([]float64, dim),
		first:      true,
	}
}

// Observe records the error at time t.
func (e *ErrorIntegrator) Observe(err []float64, t float64) error {
	if len(err) != len(e.integral) {
		return errors.Wrapf(qp.ErrInvalidArgument, "error has %d rows, integrator has %d", len(err), len(e.integral))
	}
	if e.first {
		copy(e.prevErr, err)
		e.prevT = t
		e.first = false
		return nil
	}

	dt := t - e.prevT
	if dt <= 0 {
		return nil
	}
	for i, v := range err {
		e.integral[i] += v * dt
		e.derivative[i] = (v - e.prevErr[i]) / dt
	}
	copy(e.prevErr, err)
	e.prevT = t
	return nil
}

// Integral returns the accumulated integral.
func (e *ErrorIntegrator) Integral() []float64 { return e.integral }

// Derivative returns the latest derivative estimate.
func (e *ErrorIntegrator) Derivative() []float64 { return e.derivative }

// Reset clears integral and derivative state.
func (e *ErrorIntegrator) Reset() {
	for i := range e.integral {
		e.integral[i] = 0
		e.derivative[i] = 0
		e.prevErr[i] = 0
	}
	e.first = true
}
