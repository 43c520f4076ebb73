package metrics

import (
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
)

// Energy is the mean kinetic energy of every robot, with each body treated
// as a point mass at its center of mass.
type Energy struct {
	name        string
	mbs         []*rbd.MultiBody
	samples     int
	totalEnergy float64
	peak        float64
}

func NewEnergy(mbs []*rbd.MultiBody) *Energy {
	return &Energy{
		name: "kinetic_energy",
		mbs:  mbs,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s *sim.Snapshot) {
	ke := 0.0
	for r, mb := range e.mbs {
		if r >= len(s.Cfgs) {
			break
		}
		ke += KineticEnergy(mb, s.Cfgs[r])
	}
	e.totalEnergy += ke
	e.peak = max(e.peak, ke)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

// Peak returns the largest energy observed.
func (e *Energy) Peak() float64 { return e.peak }

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.peak = 0
	e.samples = 0
}

// KineticEnergy returns Σ ½·m·|v_com|² over the bodies of mb.
func KineticEnergy(mb *rbd.MultiBody, c *rbd.Config) float64 {
	ke := 0.0
	for i := 0; i < mb.NrBodies(); i++ {
		b := mb.Body(i)
		if b.Mass == 0 {
			continue
		}
		_, v := rbd.PointVelocity(mb, c, i, b.CoM)
		ke += 0.5 * b.Mass * v.Norm2()
	}
	return ke
}
