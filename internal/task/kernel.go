package task

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// Kernel assembles the cost block of a measurement driven by a control law.
// It spans the decision-vector columns from the first to the last block of
// the robots it involves, so multi-robot measurements produce the cross
// terms between robots.
type Kernel struct {
	name string
	src  source
	law  control.Law

	weight     float64
	dimWeight  []float64
	weightGen  uint64
	blocks     []qp.Block
	offsets    []int
	begin      int
	span       int
	layoutGen  uint64
	sized      bool
	updated    bool
	recomputes int

	accel *mat.VecDense
	resid *mat.VecDense
	jac   *mat.Dense

	// JᵀWJ and WJ are kept between cycles and rebuilt only when J or W
	// changes.
	cachedJ   *mat.Dense
	cachedGen uint64
	cacheOK   bool
	wj        *mat.Dense
	jtwj      *mat.SymDense
	c0        *mat.VecDense

	q *mat.SymDense
	c *mat.VecDense
}

// New returns a kernel for measurement m of robot driven by law.
func New(mbs []*rbd.MultiBody, robot int, m measure.Measurement, law control.Law, weight float64, opts ...Option) (*Kernel, error) {
	if err := checkRobot(mbs, robot); err != nil {
		return nil, err
	}
	return newKernel(mbs, single{Measurement: m, robot: robot}, law, weight, opts)
}

// NewMulti returns a kernel for a measurement coupling several robots.
func NewMulti(mbs []*rbd.MultiBody, m measure.MultiMeasurement, law control.Law, weight float64, opts ...Option) (*Kernel, error) {
	if len(m.Robots()) == 0 {
		return nil, errors.Wrap(qp.ErrInvalidArgument, "measurement involves no robot")
	}
	for _, r := range m.Robots() {
		if err := checkRobot(mbs, r); err != nil {
			return nil, err
		}
	}
	return newKernel(mbs, multi{MultiMeasurement: m}, law, weight, opts)
}

func newKernel(mbs []*rbd.MultiBody, src source, law control.Law, weight float64, opts []Option) (*Kernel, error) {
	o := buildOptions(opts)
	dim := src.Dim()
	if dim <= 0 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "measurement dimension must be positive, got %d", dim)
	}
	if err := checkWeight(weight); err != nil {
		return nil, err
	}
	if o.dimWeight == nil {
		o.dimWeight = make([]float64, dim)
		for i := range o.dimWeight {
			o.dimWeight[i] = 1
		}
	}
	if err := checkDimWeight(o.dimWeight, dim); err != nil {
		return nil, err
	}
	if err := law.Bind(dim); err != nil {
		return nil, err
	}
	if o.name == "" {
		o.name = law.Name()
	}

	return &Kernel{
		name:      o.name,
		src:       src,
		law:       law,
		weight:    weight,
		dimWeight: o.dimWeight,
		weightGen: 1,
		accel:     mat.NewVecDense(dim, nil),
		resid:     mat.NewVecDense(dim, nil),
	}, nil
}

func (k *Kernel) Name() string { return k.name }

// Law returns the control law.
func (k *Kernel) Law() control.Law { return k.law }

func (k *Kernel) Weight() float64 { return k.weight }

// SetWeight changes τ. An already updated cost block is rescaled at once.
func (k *Kernel) SetWeight(w float64) error {
	if err := checkWeight(w); err != nil {
		return wrap(k.name, "set weight", err)
	}
	k.weight = w
	if k.updated {
		k.rescale()
	}
	return nil
}

// DimWeight returns a copy of the per-row weight.
func (k *Kernel) DimWeight() []float64 {
	return append([]float64(nil), k.dimWeight...)
}

// SetDimWeight replaces the per-row weight. It takes effect at the next
// Update.
func (k *Kernel) SetDimWeight(w []float64) error {
	if err := checkDimWeight(w, k.src.Dim()); err != nil {
		return wrap(k.name, "set dimension weight", err)
	}
	k.dimWeight = append([]float64(nil), w...)
	k.weightGen++
	return nil
}

// UpdateNrVars records where the involved robots live in the decision
// vector. It is a no-op for a layout it has already seen.
func (k *Kernel) UpdateNrVars(mbs []*rbd.MultiBody, l *qp.Layout) error {
	if l == nil {
		return wrap(k.name, "update nr vars", errors.Wrap(qp.ErrInvalidArgument, "nil layout"))
	}
	if k.sized && k.layoutGen == l.Generation() {
		return nil
	}

	robots := k.src.robots()
	blocks := make([]qp.Block, len(robots))
	begin, end := math.MaxInt, 0
	for i, r := range robots {
		b, err := l.Robot(r)
		if err != nil {
			return wrap(k.name, "update nr vars", err)
		}
		if r >= len(mbs) || b.Len != mbs[r].NrDof() {
			return wrap(k.name, "update nr vars", errors.Wrapf(qp.ErrInvalidArgument,
				"layout gives robot %d %d columns, robot has a different dof count", r, b.Len))
		}
		blocks[i] = b
		begin = min(begin, b.Begin)
		end = max(end, b.End())
	}

	span := end - begin
	if span != k.span || k.jac == nil {
		dim := k.src.Dim()
		k.jac = mat.NewDense(dim, span, nil)
		k.cachedJ = mat.NewDense(dim, span, nil)
		k.wj = mat.NewDense(dim, span, nil)
		k.jtwj = mat.NewSymDense(span, nil)
		k.c0 = mat.NewVecDense(span, nil)
		k.q = mat.NewSymDense(span, nil)
		k.c = mat.NewVecDense(span, nil)
		k.cacheOK = false
	} else {
		k.q.Zero()
		k.c.Zero()
	}

	k.offsets = make([]int, len(blocks))
	for i, b := range blocks {
		k.offsets[i] = b.Begin - begin
	}
	k.blocks = blocks
	k.begin = begin
	k.span = span
	k.layoutGen = l.Generation()
	k.sized = true
	k.updated = false
	return nil
}

// Update recomputes Q and C for the current state.
func (k *Kernel) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config, l *qp.Layout) error {
	if !k.sized || l == nil || l.Generation() != k.layoutGen {
		return wrap(k.name, "update", qp.ErrStaleLayout)
	}
	if err := k.src.Update(mbs, cfgs); err != nil {
		return wrap(k.name, "update", err)
	}
	dim := k.src.Dim()
	if dim != len(k.dimWeight) {
		return wrap(k.name, "update", errors.Wrapf(qp.ErrInvalidArgument,
			"measurement has %d rows, dimension weight has %d", dim, len(k.dimWeight)))
	}
	if err := k.law.Accel(k.src, k.accel); err != nil {
		return wrap(k.name, "update", err)
	}
	k.resid.SubVec(k.src.NormalAcc(), k.accel)

	k.jac.Zero()
	for i, b := range k.blocks {
		j := k.src.jac(i)
		r, c := j.Dims()
		if r != dim || c != b.Len {
			return wrap(k.name, "update", errors.Wrapf(qp.ErrInvalidArgument,
				"Jacobian of robot %d is %dx%d, want %dx%d", b.Robot, r, c, dim, b.Len))
		}
		dst := k.jac.Slice(0, dim, k.offsets[i], k.offsets[i]+b.Len).(*mat.Dense)
		dst.Add(dst, j)
	}

	if !finite(k.resid.RawVector().Data) || !finite(k.jac.RawMatrix().Data) {
		return wrap(k.name, "update", errors.Wrap(qp.ErrNumericalDegeneracy, "non-finite Jacobian or target"))
	}

	if !k.cacheOK || k.cachedGen != k.weightGen || !mat.Equal(k.jac, k.cachedJ) {
		k.refreshWeighting()
	}
	k.c0.MulVec(k.wj.T(), k.resid)
	k.updated = true
	k.rescale()
	return nil
}

func (k *Kernel) refreshWeighting() {
	dim := len(k.dimWeight)
	sw := mat.NewDense(dim, k.span, nil)
	for i, w := range k.dimWeight {
		for j := 0; j < k.span; j++ {
			v := k.jac.At(i, j)
			k.wj.Set(i, j, w*v)
			sw.Set(i, j, math.Sqrt(w)*v)
		}
	}
	// (W½J)ᵀ(W½J) is symmetric and positive semi-definite by construction.
	k.jtwj.SymOuterK(1, sw.T())
	k.cachedJ.Copy(k.jac)
	k.cachedGen = k.weightGen
	k.cacheOK = true
	k.recomputes++
}

func (k *Kernel) rescale() {
	w2 := k.weight * k.weight
	k.q.ScaleSym(w2, k.jtwj)
	k.c.ScaleVec(w2, k.c0)
}

func (k *Kernel) Begin() int { return k.begin }

// Blocks returns the decision-vector block of every involved robot.
func (k *Kernel) Blocks() []qp.Block { return k.blocks }

func (k *Kernel) Q() *mat.SymDense { return k.q }
func (k *Kernel) C() *mat.VecDense { return k.c }

// Eval returns the measurement error of the last Update.
func (k *Kernel) Eval() *mat.VecDense { return k.src.Eval() }

// Speed returns the measurement rate of the last Update.
func (k *Kernel) Speed() *mat.VecDense { return k.src.Speed() }

// NormalAcc returns the measurement normal acceleration of the last Update.
func (k *Kernel) NormalAcc() *mat.VecDense { return k.src.NormalAcc() }

// Accel returns the desired task acceleration of the last Update.
func (k *Kernel) Accel() *mat.VecDense { return k.accel }

// Jac returns the Jacobian over the task's span of the decision vector.
func (k *Kernel) Jac() *mat.Dense { return k.jac }

// ErrorNorm returns ‖Eval‖ after the last Update, zero before.
func (k *Kernel) ErrorNorm() float64 {
	if !k.updated {
		return 0
	}
	return mat.Norm(k.src.Eval(), 2)
}
