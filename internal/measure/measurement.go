package measure

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// Measurement is a task-space quantity of one robot.
type Measurement interface {
	Dim() int
	Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error
	// Eval is the error, desired minus current.
	Eval() *mat.VecDense
	Speed() *mat.VecDense
	NormalAcc() *mat.VecDense
	// Jac is Dim × NrDof of the owning robot.
	Jac() *mat.Dense
}

// MultiMeasurement is a task-space quantity coupling several robots.
// JacOf(i) is the Dim × NrDof block of robot Robots()[i].
type MultiMeasurement interface {
	Dim() int
	Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error
	Eval() *mat.VecDense
	Speed() *mat.VecDense
	NormalAcc() *mat.VecDense
	Robots() []int
	JacOf(i int) *mat.Dense
}

type snapshot struct {
	eval      *mat.VecDense
	speed     *mat.VecDense
	normalAcc *mat.VecDense
	jac       *mat.Dense
}

func newSnapshot(dim, dof int) snapshot {
	return snapshot{
		eval:      mat.NewVecDense(dim, nil),
		speed:     mat.NewVecDense(dim, nil),
		normalAcc: mat.NewVecDense(dim, nil),
		jac:       mat.NewDense(dim, dof, nil),
	}
}

func (s *snapshot) Dim() int                 { return s.eval.Len() }
func (s *snapshot) Eval() *mat.VecDense      { return s.eval }
func (s *snapshot) Speed() *mat.VecDense     { return s.speed }
func (s *snapshot) NormalAcc() *mat.VecDense { return s.normalAcc }
func (s *snapshot) Jac() *mat.Dense          { return s.jac }

// checkRobot validates a robot index at construction time.
func checkRobot(mbs []*rbd.MultiBody, robot int) (*rbd.MultiBody, error) {
	if robot < 0 || robot >= len(mbs) {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "robot index %d out of %d robots", robot, len(mbs))
	}
	mb := mbs[robot]
	if mb.NrDof() == 0 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no dof", mb.Name())
	}
	return mb, nil
}

func robotAt(mbs []*rbd.MultiBody, cfgs []*rbd.Config, robot int) (*rbd.MultiBody, *rbd.Config, error) {
	if robot >= len(mbs) || robot >= len(cfgs) {
		return nil, nil, errors.Wrapf(qp.ErrInvalidArgument, "robot index %d out of %d robots", robot, len(mbs))
	}
	mb, c := mbs[robot], cfgs[robot]
	if err := c.Check(mb); err != nil {
		return nil, nil, err
	}
	return mb, c, nil
}

func setVec3(v *mat.VecDense, off int, x r3.Vector) {
	v.SetVec(off, x.X)
	v.SetVec(off+1, x.Y)
	v.SetVec(off+2, x.Z)
}

func rows(jac *mat.Dense, from, to int) mat.Matrix {
	_, n := jac.Dims()
	return jac.Slice(from, to, 0, n)
}

// mulAlpha returns jac·alpha.
func mulAlpha(jac mat.Matrix, alpha []float64) *mat.VecDense {
	r, _ := jac.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(jac, mat.NewVecDense(len(alpha), alpha))
	return out
}

func vec3At(v mat.Vector, off int) r3.Vector {
	return r3.Vector{X: v.AtVec(off), Y: v.AtVec(off + 1), Z: v.AtVec(off + 2)}
}
