package task

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// contactBase holds what the contact-space tasks share: a weight and the
// lambda block of one contact.
type contactBase struct {
	name      string
	id        qp.ContactID
	weight    float64
	block     qp.ContactBlock
	layoutGen uint64
	sized     bool
	updated   bool
	q         *mat.SymDense
	c         *mat.VecDense
}

func (b *contactBase) Name() string     { return b.name }
func (b *contactBase) ID() qp.ContactID { return b.id }
func (b *contactBase) Weight() float64  { return b.weight }
func (b *contactBase) Begin() int       { return b.block.Begin }
func (b *contactBase) Q() *mat.SymDense { return b.q }
func (b *contactBase) C() *mat.VecDense { return b.c }

// Block returns the contact's lambda block in the current layout.
func (b *contactBase) Block() qp.ContactBlock { return b.block }

func (b *contactBase) resize(l *qp.Layout) (changed bool, err error) {
	if l == nil {
		return false, wrap(b.name, "update nr vars", errors.Wrap(qp.ErrInvalidArgument, "nil layout"))
	}
	if b.sized && b.layoutGen == l.Generation() {
		return false, nil
	}
	cb, err := l.Contact(b.id)
	if err != nil {
		return false, wrap(b.name, "update nr vars", err)
	}
	if cb.Len == 0 {
		return false, wrap(b.name, "update nr vars", errors.Wrapf(qp.ErrInvalidArgument, "contact %s has no force variables", b.id))
	}
	if b.q == nil || b.q.SymmetricDim() != cb.Len {
		b.q = mat.NewSymDense(cb.Len, nil)
		b.c = mat.NewVecDense(cb.Len, nil)
	}
	b.block = cb
	b.layoutGen = l.Generation()
	b.sized = true
	b.updated = false
	return true, nil
}

func (b *contactBase) checkFresh(l *qp.Layout) error {
	if !b.sized || l == nil || l.Generation() != b.layoutGen {
		return wrap(b.name, "update", qp.ErrStaleLayout)
	}
	return nil
}

// ContactTask drives the resultant force of a contact, F = Gλ, with a
// critically damped spring on an externally supplied force error.
type ContactTask struct {
	contactBase
	stiffness float64
	damping   float64
	err       r3.Vector
	errD      r3.Vector
	gtg       *mat.SymDense
	gen       *mat.Dense
	target    *mat.VecDense
}

// NewContactTask returns a contact force task.
func NewContactTask(id qp.ContactID, stiffness, weight float64, opts ...Option) (*ContactTask, error) {
	if err := checkWeight(weight); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.name == "" {
		o.name = "contact " + id.String()
	}
	t := &ContactTask{contactBase: contactBase{name: o.name, id: id, weight: weight}}
	if err := t.SetStiffness(stiffness); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ContactTask) Stiffness() float64 { return t.stiffness }
func (t *ContactTask) Damping() float64   { return t.damping }

// SetStiffness sets k and the matching damping 2√k.
func (t *ContactTask) SetStiffness(k float64) error {
	if err := checkGains(k, 0); err != nil {
		return wrap(t.name, "set stiffness", err)
	}
	t.stiffness = k
	t.damping = 2 * math.Sqrt(k)
	return nil
}

// SetError sets the force error e.
func (t *ContactTask) SetError(e r3.Vector) { t.err = e }

// SetErrorD sets the force error rate ė.
func (t *ContactTask) SetErrorD(e r3.Vector) { t.errD = e }

func (t *ContactTask) ForceError() r3.Vector  { return t.err }
func (t *ContactTask) ForceErrorD() r3.Vector { return t.errD }

func (t *ContactTask) SetWeight(w float64) error {
	if err := checkWeight(w); err != nil {
		return wrap(t.name, "set weight", err)
	}
	t.weight = w
	if t.updated {
		t.rescale()
	}
	return nil
}

func (t *ContactTask) UpdateNrVars(_ []*rbd.MultiBody, l *qp.Layout) error {
	changed, err := t.resize(l)
	if err != nil || !changed {
		return err
	}
	n := t.block.Len
	t.gen = mat.NewDense(3, n, nil)
	for i, g := range t.block.Generators {
		t.gen.Set(0, i, g.X)
		t.gen.Set(1, i, g.Y)
		t.gen.Set(2, i, g.Z)
	}
	t.gtg = mat.NewSymDense(n, nil)
	t.gtg.SymOuterK(1, t.gen.T())
	return nil
}

func (t *ContactTask) Update(_ []*rbd.MultiBody, _ []*rbd.Config, l *qp.Layout) error {
	if err := t.checkFresh(l); err != nil {
		return err
	}
	f := t.err.Mul(t.stiffness).Add(t.errD.Mul(t.damping))
	if !finite([]float64{f.X, f.Y, f.Z}) {
		return wrap(t.name, "update", errors.Wrap(qp.ErrNumericalDegeneracy, "non-finite force target"))
	}
	t.target = mat.NewVecDense(3, []float64{f.X, f.Y, f.Z})
	t.updated = true
	t.rescale()
	return nil
}

func (t *ContactTask) rescale() {
	w2 := t.weight * t.weight
	t.q.ScaleSym(w2, t.gtg)
	t.c.MulVec(t.gen.T(), t.target)
	t.c.ScaleVec(-w2, t.c)
}

// Force returns Gλ for the contact's slice of a decision vector.
func (t *ContactTask) Force(lambda []float64) r3.Vector {
	var f r3.Vector
	for i, g := range t.block.Generators {
		if i < len(lambda) {
			f = f.Add(g.Mul(lambda[i]))
		}
	}
	return f
}

func (t *ContactTask) ErrorNorm() float64 { return t.err.Norm() }

// GripperTorqueTask penalizes the torque of a contact's forces about a
// gripper axis through origin. It is linear in λ.
type GripperTorqueTask struct {
	contactBase
	origin r3.Vector
	axis   r3.Vector
	c0     *mat.VecDense
}

// NewGripperTorqueTask returns a gripper torque task. axis must be non-zero.
func NewGripperTorqueTask(id qp.ContactID, origin, axis r3.Vector, weight float64, opts ...Option) (*GripperTorqueTask, error) {
	if err := checkWeight(weight); err != nil {
		return nil, err
	}
	if axis.Norm() == 0 || !finite([]float64{axis.X, axis.Y, axis.Z, origin.X, origin.Y, origin.Z}) {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "invalid gripper axis %v through %v", axis, origin)
	}
	o := buildOptions(opts)
	if o.name == "" {
		o.name = "gripper torque " + id.String()
	}
	return &GripperTorqueTask{
		contactBase: contactBase{name: o.name, id: id, weight: weight},
		origin:      origin,
		axis:        axis.Normalize(),
	}, nil
}

func (t *GripperTorqueTask) Origin() r3.Vector { return t.origin }
func (t *GripperTorqueTask) Axis() r3.Vector   { return t.axis }

func (t *GripperTorqueTask) SetWeight(w float64) error {
	if err := checkWeight(w); err != nil {
		return wrap(t.name, "set weight", err)
	}
	t.weight = w
	if t.updated {
		t.c.ScaleVec(w*w, t.c0)
	}
	return nil
}

func (t *GripperTorqueTask) UpdateNrVars(_ []*rbd.MultiBody, l *qp.Layout) error {
	changed, err := t.resize(l)
	if err != nil || !changed {
		return err
	}
	t.c0 = mat.NewVecDense(t.block.Len, nil)
	for i, g := range t.block.Generators {
		p := t.block.Points[i].Sub(t.origin)
		t.c0.SetVec(i, t.axis.Dot(p.Cross(g)))
	}
	return nil
}

// Update refreshes C from the weight. Q stays zero.
func (t *GripperTorqueTask) Update(_ []*rbd.MultiBody, _ []*rbd.Config, l *qp.Layout) error {
	if err := t.checkFresh(l); err != nil {
		return err
	}
	t.c.ScaleVec(t.weight*t.weight, t.c0)
	t.updated = true
	return nil
}
