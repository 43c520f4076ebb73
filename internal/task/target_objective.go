package task

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/rbd"
)

// TargetObjectiveTask brings the measurement error to zero and its rate to
// ObjDot exactly NrIter control steps after iteration 0. The caller
// advances Iter once per cycle.
type TargetObjectiveTask struct {
	*Kernel
	law *control.Horizon
}

// NewTargetObjectiveTask returns a horizon task lasting duration seconds of
// timeStep-long cycles. objDot may be nil for a zero terminal rate.
func NewTargetObjectiveTask(mbs []*rbd.MultiBody, robot int, m measure.Measurement, timeStep, duration float64, objDot []float64, weight float64, opts ...Option) (*TargetObjectiveTask, error) {
	law, err := control.NewHorizon(timeStep, duration)
	if err != nil {
		return nil, err
	}
	k, err := New(mbs, robot, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	if objDot != nil {
		if err := law.SetObjDot(objDot); err != nil {
			return nil, err
		}
	}
	return &TargetObjectiveTask{Kernel: k, law: law}, nil
}

func (t *TargetObjectiveTask) Iter() int      { return t.law.Iter() }
func (t *TargetObjectiveTask) NrIter() int    { return t.law.NrIter() }
func (t *TargetObjectiveTask) Remaining() int { return t.law.Remaining() }
func (t *TargetObjectiveTask) TimeStep() float64 {
	return t.law.TimeStep()
}

func (t *TargetObjectiveTask) SetIter(iter int) error {
	return wrap(t.name, "set iteration", t.law.SetIter(iter))
}

// Advance moves to the next control step.
func (t *TargetObjectiveTask) Advance() { t.law.Advance() }

func (t *TargetObjectiveTask) SetNrIter(n int) error {
	return wrap(t.name, "set horizon", t.law.SetNrIter(n))
}

func (t *TargetObjectiveTask) Duration() float64 { return t.law.Duration() }

func (t *TargetObjectiveTask) SetDuration(d float64) error {
	return wrap(t.name, "set duration", t.law.SetDuration(d))
}

func (t *TargetObjectiveTask) ObjDot() []float64 { return t.law.ObjDot() }

func (t *TargetObjectiveTask) SetObjDot(v []float64) error {
	return wrap(t.name, "set objective rate", t.law.SetObjDot(v))
}

func (t *TargetObjectiveTask) Phi() *mat.VecDense { return t.law.Phi() }
func (t *TargetObjectiveTask) Psi() *mat.VecDense { return t.law.Psi() }
