package measure

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// SelectedJoint is a column range of the robot's dof vector.
type SelectedJoint struct {
	PosInDof int
	Dof      int
}

// JointsSelector restricts a measurement to a subset of joints by zeroing
// the Jacobian columns of every other joint. Eval, Speed and NormalAcc are
// those of the wrapped measurement.
type JointsSelector struct {
	m        Measurement
	robot    int
	nrDof    int
	selected []SelectedJoint
	jac      *mat.Dense
}

// ActiveJoints keeps only the columns of the listed joint ids.
func ActiveJoints(mbs []*rbd.MultiBody, robot int, m Measurement, ids []int) (*JointsSelector, error) {
	mb, err := checkRobot(mbs, robot)
	if err != nil {
		return nil, err
	}
	idx, err := resolveJoints(mb, ids)
	if err != nil {
		return nil, err
	}
	return newSelector(mb, robot, m, idx), nil
}

// InactiveJoints keeps every column except those of the listed joint ids.
func InactiveJoints(mbs []*rbd.MultiBody, robot int, m Measurement, ids []int) (*JointsSelector, error) {
	mb, err := checkRobot(mbs, robot)
	if err != nil {
		return nil, err
	}
	excluded, err := resolveJoints(mb, ids)
	if err != nil {
		return nil, err
	}
	all := lo.Range(mb.NrJoints())
	return newSelector(mb, robot, m, lo.Without(all, excluded...)), nil
}

func resolveJoints(mb *rbd.MultiBody, ids []int) ([]int, error) {
	idx := make([]int, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		i, err := mb.JointIndexByID(id)
		if err != nil {
			return nil, errors.WithMessage(err, "joints selector")
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx, nil
}

func newSelector(mb *rbd.MultiBody, robot int, m Measurement, joints []int) *JointsSelector {
	s := &JointsSelector{m: m, robot: robot, nrDof: mb.NrDof()}
	for _, j := range joints {
		if dof := mb.Joint(j).Dof(); dof > 0 {
			s.selected = append(s.selected, SelectedJoint{PosInDof: mb.JointPosInDof(j), Dof: dof})
		}
	}
	return s
}

// SelectedJoints returns the kept column ranges in dof order.
func (s *JointsSelector) SelectedJoints() []SelectedJoint { return s.selected }

// Robot returns the owning robot index.
func (s *JointsSelector) Robot() int { return s.robot }

// Wrapped returns the measurement being masked.
func (s *JointsSelector) Wrapped() Measurement { return s.m }

func (s *JointsSelector) Dim() int { return s.m.Dim() }

func (s *JointsSelector) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	if err := s.m.Update(mbs, cfgs); err != nil {
		return err
	}
	src := s.m.Jac()
	r, c := src.Dims()
	if c != s.nrDof {
		return errors.Wrapf(qp.ErrInvalidArgument, "wrapped Jacobian has %d columns, robot has %d dof", c, s.nrDof)
	}
	if s.jac == nil || s.jac.RawMatrix().Rows != r {
		s.jac = mat.NewDense(r, c, nil)
	} else {
		s.jac.Zero()
	}
	for _, sel := range s.selected {
		for col := sel.PosInDof; col < sel.PosInDof+sel.Dof; col++ {
			for row := 0; row < r; row++ {
				s.jac.Set(row, col, src.At(row, col))
			}
		}
	}
	return nil
}

func (s *JointsSelector) Eval() *mat.VecDense      { return s.m.Eval() }
func (s *JointsSelector) Speed() *mat.VecDense     { return s.m.Speed() }
func (s *JointsSelector) NormalAcc() *mat.VecDense { return s.m.NormalAcc() }
func (s *JointsSelector) Jac() *mat.Dense          { return s.jac }
