package measure

import (
	"github.com/golang/geo/r3"

	"github.com/san-kum/qptasks/internal/rbd"
)

// CoM drives the robot's center of mass to a world position.
type CoM struct {
	snapshot
	robot  int
	target r3.Vector
}

// NewCoM returns a center of mass measurement.
func NewCoM(mbs []*rbd.MultiBody, robot int, target r3.Vector) (*CoM, error) {
	mb, err := checkRobot(mbs, robot)
	if err != nil {
		return nil, err
	}
	return &CoM{snapshot: newSnapshot(3, mb.NrDof()), robot: robot, target: target}, nil
}

func (m *CoM) Robot() int            { return m.robot }
func (m *CoM) Target() r3.Vector     { return m.target }
func (m *CoM) SetTarget(t r3.Vector) { m.target = t }

func (m *CoM) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, m.robot)
	if err != nil {
		return err
	}
	com, err := rbd.CoM(mb, c)
	if err != nil {
		return err
	}
	jac, err := rbd.CoMJacobian(mb, c)
	if err != nil {
		return err
	}
	n, err := rbd.CoMNormalAcc(mb, c)
	if err != nil {
		return err
	}

	setVec3(m.eval, 0, m.target.Sub(com))
	m.speed.CopyVec(mulAlpha(jac, c.Alpha))
	setVec3(m.normalAcc, 0, n)
	m.jac.Copy(jac)
	return nil
}

// Momentum drives the centroidal momentum [angular; linear]. Like
// LinVelocity its speed is zero.
type Momentum struct {
	snapshot
	robot  int
	target [6]float64
}

// NewMomentum returns a centroidal momentum measurement.
func NewMomentum(mbs []*rbd.MultiBody, robot int, angular, linear r3.Vector) (*Momentum, error) {
	mb, err := checkRobot(mbs, robot)
	if err != nil {
		return nil, err
	}
	m := &Momentum{snapshot: newSnapshot(6, mb.NrDof()), robot: robot}
	m.SetTarget(angular, linear)
	return m, nil
}

func (m *Momentum) Robot() int { return m.robot }

// Target returns the angular and linear momentum target.
func (m *Momentum) Target() (angular, linear r3.Vector) {
	t := m.target
	return r3.Vector{X: t[0], Y: t[1], Z: t[2]}, r3.Vector{X: t[3], Y: t[4], Z: t[5]}
}

func (m *Momentum) SetTarget(angular, linear r3.Vector) {
	m.target = [6]float64{angular.X, angular.Y, angular.Z, linear.X, linear.Y, linear.Z}
}

func (m *Momentum) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, m.robot)
	if err != nil {
		return err
	}
	a, err := rbd.MomentumMatrix(mb, c)
	if err != nil {
		return err
	}
	nAng, nLin, err := rbd.MomentumNormalAcc(mb, c)
	if err != nil {
		return err
	}

	h := mulAlpha(a, c.Alpha)
	for i := 0; i < 6; i++ {
		m.eval.SetVec(i, m.target[i]-h.AtVec(i))
	}
	m.speed.Zero()
	setVec3(m.normalAcc, 0, nAng)
	setVec3(m.normalAcc, 3, nLin)
	m.jac.Copy(a)
	return nil
}
