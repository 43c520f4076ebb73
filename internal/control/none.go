package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

// None asks for zero task acceleration beyond the normal part, which
// freezes the task-space velocity.
type None struct{}

func NewNone() *None { return &None{} }

func (n *None) Name() string { return "none" }

func (n *None) Bind(dim int) error {
	if dim <= 0 {
		return errors.Wrapf(qp.ErrInvalidArgument, "dimension must be positive, got %d", dim)
	}
	return nil
}

func (n *None) Accel(_ Signal, dst *mat.VecDense) error {
	dst.Zero()
	return nil
}

func (n *None) Params() map[string]float64 { return map[string]float64{} }

func (n *None) SetParam(name string, _ float64) error {
	return unknownParam(n.Name(), name)
}
