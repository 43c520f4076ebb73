package measure

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

type multiSnapshot struct {
	eval      *mat.VecDense
	speed     *mat.VecDense
	normalAcc *mat.VecDense
	robots    []int
	jacs      []*mat.Dense
}

func newMultiSnapshot(dim int, mbs []*rbd.MultiBody, robots []int) multiSnapshot {
	s := multiSnapshot{
		eval:      mat.NewVecDense(dim, nil),
		speed:     mat.NewVecDense(dim, nil),
		normalAcc: mat.NewVecDense(dim, nil),
		robots:    append([]int(nil), robots...),
		jacs:      make([]*mat.Dense, len(robots)),
	}
	for i, r := range robots {
		s.jacs[i] = mat.NewDense(dim, mbs[r].NrDof(), nil)
	}
	return s
}

func (s *multiSnapshot) Dim() int                 { return s.eval.Len() }
func (s *multiSnapshot) Eval() *mat.VecDense      { return s.eval }
func (s *multiSnapshot) Speed() *mat.VecDense     { return s.speed }
func (s *multiSnapshot) NormalAcc() *mat.VecDense { return s.normalAcc }
func (s *multiSnapshot) Robots() []int            { return s.robots }
func (s *multiSnapshot) JacOf(i int) *mat.Dense   { return s.jacs[i] }

// MultiCoM drives the center of mass of a group of robots, each weighted
// by its share of the total mass.
type MultiCoM struct {
	multiSnapshot
	weights []float64
	target  r3.Vector
}

// NewMultiCoM returns a combined center of mass measurement.
func NewMultiCoM(mbs []*rbd.MultiBody, robots []int, target r3.Vector) (*MultiCoM, error) {
	if len(robots) == 0 {
		return nil, errors.Wrap(qp.ErrInvalidArgument, "multi CoM needs at least one robot")
	}
	seen := make(map[int]bool, len(robots))
	total := 0.0
	for _, r := range robots {
		mb, err := checkRobot(mbs, r)
		if err != nil {
			return nil, err
		}
		if seen[r] {
			return nil, errors.Wrapf(qp.ErrInvalidArgument, "robot %d listed twice", r)
		}
		seen[r] = true
		total += mb.TotalMass()
	}
	if total <= 0 {
		return nil, errors.Wrap(qp.ErrNumericalDegeneracy, "robots have no mass")
	}

	m := &MultiCoM{
		multiSnapshot: newMultiSnapshot(3, mbs, robots),
		weights:       make([]float64, len(robots)),
		target:        target,
	}
	for i, r := range robots {
		m.weights[i] = mbs[r].TotalMass() / total
	}
	return m, nil
}

// Weights returns the mass fraction of every robot, in Robots order.
func (m *MultiCoM) Weights() []float64 { return m.weights }

func (m *MultiCoM) Target() r3.Vector     { return m.target }
func (m *MultiCoM) SetTarget(t r3.Vector) { m.target = t }

func (m *MultiCoM) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	var com, speed, normal r3.Vector
	for i, r := range m.robots {
		mb, c, err := robotAt(mbs, cfgs, r)
		if err != nil {
			return err
		}
		if mb.TotalMass() == 0 {
			continue
		}
		w := m.weights[i]

		ci, err := rbd.CoM(mb, c)
		if err != nil {
			return err
		}
		jac, err := rbd.CoMJacobian(mb, c)
		if err != nil {
			return err
		}
		ni, err := rbd.CoMNormalAcc(mb, c)
		if err != nil {
			return err
		}

		com = com.Add(ci.Mul(w))
		speed = speed.Add(vec3At(mulAlpha(jac, c.Alpha), 0).Mul(w))
		normal = normal.Add(ni.Mul(w))
		m.jacs[i].Scale(w, jac)
	}

	setVec3(m.eval, 0, m.target.Sub(com))
	setVec3(m.speed, 0, speed)
	setVec3(m.normalAcc, 0, normal)
	return nil
}

// MultiRobotTransform drives the pose of a surface frame on robot r2
// relative to a surface frame on robot r1. The relative pose is measured
// in world-aligned axes: rotation R2·R1ᵀ and translation p2 − p1. Rows are
// [rotation; translation].
type MultiRobotTransform struct {
	multiSnapshot
	body1, body2 int
	x1, x2       rbd.Transform
	target       rbd.Transform
}

// NewMultiRobotTransform returns a relative pose measurement between
// body1∘x1 on robot r1 and body2∘x2 on robot r2. r1 and r2 may be the same
// robot.
func NewMultiRobotTransform(mbs []*rbd.MultiBody, r1, r2 int, body1, body2 string,
	x1, x2, target rbd.Transform) (*MultiRobotTransform, error) {
	mb1, err := checkRobot(mbs, r1)
	if err != nil {
		return nil, err
	}
	mb2, err := checkRobot(mbs, r2)
	if err != nil {
		return nil, err
	}
	b1, err := mb1.BodyIndexByName(body1)
	if err != nil {
		return nil, err
	}
	b2, err := mb2.BodyIndexByName(body2)
	if err != nil {
		return nil, err
	}

	x1.Rot = rbd.Normalize(x1.Rot)
	x2.Rot = rbd.Normalize(x2.Rot)
	target.Rot = rbd.Normalize(target.Rot)
	return &MultiRobotTransform{
		multiSnapshot: newMultiSnapshot(6, mbs, []int{r1, r2}),
		body1:         b1,
		body2:         b2,
		x1:            x1,
		x2:            x2,
		target:        target,
	}, nil
}

func (m *MultiRobotTransform) Target() rbd.Transform { return m.target }

func (m *MultiRobotTransform) SetTarget(t rbd.Transform) {
	t.Rot = rbd.Normalize(t.Rot)
	m.target = t
}

// Relative returns the current relative pose of the two frames.
func (m *MultiRobotTransform) Relative(mbs []*rbd.MultiBody, cfgs []*rbd.Config) (rbd.Transform, error) {
	f1, f2, err := m.frames(mbs, cfgs)
	if err != nil {
		return rbd.Transform{}, err
	}
	return relative(f1, f2), nil
}

func (m *MultiRobotTransform) frames(mbs []*rbd.MultiBody, cfgs []*rbd.Config) (rbd.Transform, rbd.Transform, error) {
	_, c1, err := robotAt(mbs, cfgs, m.robots[0])
	if err != nil {
		return rbd.Transform{}, rbd.Transform{}, err
	}
	_, c2, err := robotAt(mbs, cfgs, m.robots[1])
	if err != nil {
		return rbd.Transform{}, rbd.Transform{}, err
	}
	return c1.BodyPosW[m.body1].Compose(m.x1), c2.BodyPosW[m.body2].Compose(m.x2), nil
}

func relative(f1, f2 rbd.Transform) rbd.Transform {
	return rbd.Transform{Rot: quat.Mul(f2.Rot, quat.Conj(f1.Rot)), Trans: f2.Trans.Sub(f1.Trans)}
}

func (m *MultiRobotTransform) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	f1, f2, err := m.frames(mbs, cfgs)
	if err != nil {
		return err
	}
	mb1, c1 := mbs[m.robots[0]], cfgs[m.robots[0]]
	mb2, c2 := mbs[m.robots[1]], cfgs[m.robots[1]]

	j1 := rbd.PointJacobian(mb1, c1, m.body1, m.x1.Trans)
	j2 := rbd.PointJacobian(mb2, c2, m.body2, m.x2.Trans)
	v1 := mulAlpha(j1, c1.Alpha)
	v2 := mulAlpha(j2, c2.Alpha)
	n1Ang, n1Lin := rbd.PointNormalAcc(mb1, c1, m.body1, m.x1.Trans)
	n2Ang, n2Lin := rbd.PointNormalAcc(mb2, c2, m.body2, m.x2.Trans)

	rel := relative(f1, f2)
	w1 := rbd.Rotate(rel.Rot, vec3At(v1, 0))
	wRel := vec3At(v2, 0).Sub(w1)

	setVec3(m.eval, 0, rbd.RotationError(rel.Rot, m.target.Rot))
	setVec3(m.eval, 3, m.target.Trans.Sub(rel.Trans))

	setVec3(m.speed, 0, wRel)
	setVec3(m.speed, 3, vec3At(v2, 3).Sub(vec3At(v1, 3)))

	setVec3(m.normalAcc, 0, n2Ang.Sub(rbd.Rotate(rel.Rot, n1Ang)).Sub(wRel.Cross(w1)))
	setVec3(m.normalAcc, 3, n2Lin.Sub(n1Lin))

	_, n1 := j1.Dims()
	for col := 0; col < n1; col++ {
		ang := rbd.Rotate(rel.Rot, r3.Vector{X: j1.At(0, col), Y: j1.At(1, col), Z: j1.At(2, col)})
		m.jacs[0].Set(0, col, -ang.X)
		m.jacs[0].Set(1, col, -ang.Y)
		m.jacs[0].Set(2, col, -ang.Z)
		for r := 3; r < 6; r++ {
			m.jacs[0].Set(r, col, -j1.At(r, col))
		}
	}
	m.jacs[1].Copy(j2)
	return nil
}
