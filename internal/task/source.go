package task

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/rbd"
)

// source presents single and multi-robot measurements to the kernel as a
// list of (robot, Jacobian block) pairs.
type source interface {
	Dim() int
	Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error
	Eval() *mat.VecDense
	Speed() *mat.VecDense
	NormalAcc() *mat.VecDense
	robots() []int
	jac(i int) *mat.Dense
}

type single struct {
	measure.Measurement
	robot int
}

func (s single) robots() []int      { return []int{s.robot} }
func (s single) jac(int) *mat.Dense { return s.Jac() }

type multi struct {
	measure.MultiMeasurement
}

func (m multi) robots() []int        { return m.Robots() }
func (m multi) jac(i int) *mat.Dense { return m.JacOf(i) }
