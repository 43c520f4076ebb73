package control

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

type signal struct {
	eval, speed *mat.VecDense
}

func (s signal) Eval() *mat.VecDense  { return s.eval }
func (s signal) Speed() *mat.VecDense { return s.speed }

func newSignal(eval, speed []float64) signal {
	return signal{mat.NewVecDense(len(eval), eval), mat.NewVecDense(len(speed), speed)}
}

func TestSetPointAtRest(t *testing.T) {
	g := NewWithT(t)

	law, err := NewSetPoint(100)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(law.Damping()).To(Equal(20.0))
	g.Expect(law.Bind(3)).To(Succeed())

	dst := mat.NewVecDense(3, nil)
	g.Expect(law.Accel(newSignal([]float64{1, -2, 0.5}, []float64{0, 0, 0}), dst)).To(Succeed())
	g.Expect(dst.RawVector().Data).To(Equal([]float64{100, -200, 50}))
}

func TestSetPointDamping(t *testing.T) {
	law, err := NewSetPoint(4)
	if err != nil {
		t.Fatal(err)
	}
	dst := mat.NewVecDense(1, nil)
	if err := law.Accel(newSignal([]float64{1}, []float64{2}), dst); err != nil {
		t.Fatal(err)
	}
	// 4·1 − 2·√4·2
	if got := dst.AtVec(0); got != -4 {
		t.Errorf("got %v, want -4", got)
	}
}

func TestSetPointStiffnessValidation(t *testing.T) {
	g := NewWithT(t)

	_, err := NewSetPoint(-1)
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())

	law, err := NewSetPoint(0)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(errors.Is(law.SetStiffness(0), qp.ErrNumericalDegeneracy)).To(BeTrue())
	g.Expect(errors.Is(law.SetStiffness(-3), qp.ErrInvalidArgument)).To(BeTrue())
	g.Expect(errors.Is(law.SetParam("kp", 1), qp.ErrInvalidArgument)).To(BeTrue())

	g.Expect(law.SetParam("stiffness", 9)).To(Succeed())
	g.Expect(law.Damping()).To(Equal(6.0))
}

func TestTrackingFeedForward(t *testing.T) {
	g := NewWithT(t)

	law, err := NewTracking(10, 3)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(law.Bind(2)).To(Succeed())
	g.Expect(law.SetRefAccel([]float64{0.7, -1.5})).To(Succeed())

	dst := mat.NewVecDense(2, nil)
	g.Expect(law.Accel(newSignal([]float64{9, 9}, []float64{9, 9}), dst)).To(Succeed())
	g.Expect(dst.RawVector().Data).To(Equal([]float64{0.7, -1.5}))

	g.Expect(law.SetErrorPos([]float64{1, 0})).To(Succeed())
	g.Expect(law.SetErrorVel([]float64{0, 2})).To(Succeed())
	g.Expect(law.Accel(newSignal([]float64{0, 0}, []float64{0, 0}), dst)).To(Succeed())
	g.Expect(dst.RawVector().Data).To(Equal([]float64{10.7, 4.5}))

	g.Expect(errors.Is(law.SetErrorPos([]float64{1}), qp.ErrInvalidArgument)).To(BeTrue())
	g.Expect(errors.Is(law.SetGains(-1, 0), qp.ErrInvalidArgument)).To(BeTrue())
}

func TestTrajectory(t *testing.T) {
	g := NewWithT(t)

	law, err := NewTrajectory(4, 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(law.Bind(1)).To(Succeed())
	g.Expect(law.SetRefVel([]float64{1})).To(Succeed())
	g.Expect(law.SetRefAccel([]float64{0.5})).To(Succeed())

	dst := mat.NewVecDense(1, nil)
	g.Expect(law.Accel(newSignal([]float64{2}, []float64{3}), dst)).To(Succeed())
	// 4·2 + 2·(1 − 3) + 0.5
	g.Expect(dst.AtVec(0)).To(Equal(4.5))
}

func TestPIDWithIntegrator(t *testing.T) {
	g := NewWithT(t)

	law, err := NewPID(2, 0.5, 0.1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(law.Bind(1)).To(Succeed())

	integ := NewErrorIntegrator(1)
	g.Expect(integ.Observe([]float64{1}, 0)).To(Succeed())
	g.Expect(integ.Observe([]float64{0.5}, 0.5)).To(Succeed())
	g.Expect(integ.Integral()).To(Equal([]float64{0.25}))
	g.Expect(integ.Derivative()).To(Equal([]float64{-1}))

	g.Expect(law.SetErrorI(integ.Integral())).To(Succeed())
	g.Expect(law.SetErrorD(integ.Derivative())).To(Succeed())

	dst := mat.NewVecDense(1, nil)
	g.Expect(law.Accel(newSignal([]float64{0.5}, []float64{0}), dst)).To(Succeed())
	g.Expect(dst.AtVec(0)).To(BeNumerically("~", 2*0.5+0.5*0.25-0.1, 1e-15))

	g.Expect(errors.Is(integ.Observe([]float64{1, 2}, 1), qp.ErrInvalidArgument)).To(BeTrue())
	integ.Reset()
	g.Expect(integ.Integral()).To(Equal([]float64{0}))
}

func TestHorizonValidation(t *testing.T) {
	tests := []struct {
		name     string
		timeStep float64
		duration float64
	}{
		{"zero time step", 0, 1},
		{"negative duration", 0.01, -1},
		{"zero duration", 0.01, 0},
		{"shorter than a step", 0.1, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHorizon(tt.timeStep, tt.duration); !errors.Is(err, qp.ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestHorizonLastStep(t *testing.T) {
	g := NewWithT(t)

	h, err := NewHorizon(0.1, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(h.NrIter()).To(Equal(10))
	g.Expect(h.Bind(1)).To(Succeed())
	g.Expect(h.SetObjDot([]float64{2})).To(Succeed())
	g.Expect(h.SetIter(h.NrIter() - 1)).To(Succeed())

	dst := mat.NewVecDense(1, nil)
	g.Expect(h.Accel(newSignal([]float64{5}, []float64{0.5}), dst)).To(Succeed())
	// One step left: the rate goes straight to objDot.
	g.Expect(dst.AtVec(0)).To(BeNumerically("~", (2-0.5)/0.1, 1e-12))
	g.Expect(0.5 + dst.AtVec(0)*0.1).To(BeNumerically("~", 2, 1e-12))

	h.Advance()
	err = h.Accel(newSignal([]float64{5}, []float64{0.5}), dst)
	g.Expect(errors.Is(err, qp.ErrNumericalDegeneracy)).To(BeTrue())
}

func TestHorizonReachesTargetOnTime(t *testing.T) {
	g := NewWithT(t)

	const (
		dt     = 0.01
		target = 1.0
		objDot = 0.2
	)
	h, err := NewHorizon(dt, 0.5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(h.Bind(1)).To(Succeed())
	g.Expect(h.SetObjDot([]float64{objDot})).To(Succeed())

	x, v := 0.0, 0.5
	dst := mat.NewVecDense(1, nil)
	for i := 0; i < h.NrIter(); i++ {
		g.Expect(h.SetIter(i)).To(Succeed())
		g.Expect(h.Accel(newSignal([]float64{target - x}, []float64{v}), dst)).To(Succeed())
		v += dst.AtVec(0) * dt
		x += v * dt
	}

	g.Expect(math.Abs(x - target)).To(BeNumerically("<", 1e-9))
	g.Expect(math.Abs(v - objDot)).To(BeNumerically("<", 1e-9))
}

func TestNoneAndManual(t *testing.T) {
	g := NewWithT(t)

	dst := mat.NewVecDense(2, []float64{3, 3})
	g.Expect(NewNone().Accel(nil, dst)).To(Succeed())
	g.Expect(mat.Norm(dst, 2)).To(BeZero())

	m := NewManual()
	g.Expect(m.Bind(2)).To(Succeed())
	g.Expect(m.SetAccel([]float64{1, -1})).To(Succeed())
	g.Expect(m.SetParam("gain", 0.5)).To(Succeed())
	g.Expect(m.Accel(nil, dst)).To(Succeed())
	g.Expect(dst.RawVector().Data).To(Equal([]float64{0.5, -0.5}))
}

func TestLawsAreConfigurable(t *testing.T) {
	sp, _ := NewSetPoint(1)
	tr, _ := NewTracking(1, 1)
	tj, _ := NewTrajectory(1, 1)
	pid, _ := NewPID(1, 1, 1)
	hz, _ := NewHorizon(0.1, 1)

	for _, law := range []Law{sp, tr, tj, pid, hz, NewNone(), NewManual()} {
		if _, ok := law.(Configurable); !ok {
			t.Errorf("%s does not implement Configurable", law.Name())
		}
	}
}
