package integrators

import "github.com/san-kum/qptasks/internal/rbd"

// Taylor integrates positions to second order, q ⊕ (α + ½α̇·dt)·dt, which
// is exact for constant acceleration on linear joints.
type Taylor struct {
	scratch []float64
}

func NewTaylor() *Taylor {
	return &Taylor{}
}

func (t *Taylor) Name() string { return "taylor" }

func (t *Taylor) ensureScratch(n int) {
	if len(t.scratch) != n {
		t.scratch = make([]float64, n)
	}
}

func (t *Taylor) Step(mb *rbd.MultiBody, cfg *rbd.Config, alphaD []float64, dt float64) error {
	if err := check(mb, cfg, alphaD, dt); err != nil {
		return err
	}
	t.ensureScratch(len(alphaD))

	half := 0.5 * dt
	for i, a := range alphaD {
		t.scratch[i] = cfg.Alpha[i] + a*half
	}
	rbd.Integrate(mb, cfg.Q, t.scratch, dt)
	for i, a := range alphaD {
		cfg.Alpha[i] += a * dt
	}
	rbd.ForwardKinematics(mb, cfg)
	return nil
}
