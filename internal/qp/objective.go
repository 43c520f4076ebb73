package qp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Contribution is the quadratic cost block of one task. Q and C cover the
// columns [Begin, Begin+len(C)) of the decision vector.
type Contribution interface {
	Begin() int
	Q() *mat.SymDense
	C() *mat.VecDense
}

// Objective accumulates task contributions into the full cost
// ½xᵀQx + Cᵀx over the decision vector.
type Objective struct {
	n int
	q *mat.SymDense
	c *mat.VecDense
}

// NewObjective returns an empty objective over n variables.
func NewObjective(n int) *Objective {
	o := &Objective{n: n}
	if n > 0 {
		o.q = mat.NewSymDense(n, nil)
		o.c = mat.NewVecDense(n, nil)
	}
	return o
}

// Size returns the number of decision variables.
func (o *Objective) Size() int { return o.n }

// Q returns the accumulated quadratic term.
func (o *Objective) Q() *mat.SymDense { return o.q }

// C returns the accumulated linear term.
func (o *Objective) C() *mat.VecDense { return o.c }

// Reset zeroes the accumulated terms.
func (o *Objective) Reset() {
	if o.n == 0 {
		return
	}
	o.q.Zero()
	o.c.Zero()
}

// Add sums a contribution into the objective at its Begin offset.
func (o *Objective) Add(t Contribution) error {
	q, c := t.Q(), t.C()
	if q == nil || c == nil {
		return Invalid("contribution has no cost block; UpdateNrVars not called")
	}
	n := c.Len()
	if q.SymmetricDim() != n {
		return Invalid("contribution Q is %dx%d but C has %d rows", q.SymmetricDim(), q.SymmetricDim(), n)
	}
	b := t.Begin()
	if b < 0 || b+n > o.n {
		return Invalid("contribution [%d, %d) outside decision vector of size %d", b, b+n, o.n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			o.q.SetSym(b+i, b+j, o.q.At(b+i, b+j)+q.At(i, j))
		}
		o.c.SetVec(b+i, o.c.AtVec(b+i)+c.AtVec(i))
	}
	return nil
}

// Value evaluates ½xᵀQx + Cᵀx.
func (o *Objective) Value(x mat.Vector) float64 {
	if x.Len() != o.n || o.n == 0 {
		return math.NaN()
	}
	var qx mat.VecDense
	qx.MulVec(o.q, x)
	return 0.5*mat.Dot(x, &qx) + mat.Dot(o.c, x)
}

// Solve returns the unconstrained minimizer of the objective plus a
// Tikhonov term ½·reg·‖x‖², that is the solution of (Q + reg·I)x = −C.
func (o *Objective) Solve(reg float64) (*mat.VecDense, error) {
	if o.n == 0 {
		return nil, Invalid("empty objective")
	}
	if reg < 0 {
		return nil, Invalid("negative regularization %g", reg)
	}

	a := mat.NewSymDense(o.n, nil)
	a.CopySym(o.q)
	for i := 0; i < o.n; i++ {
		a.SetSym(i, i, a.At(i, i)+reg)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, Degenerate("objective Hessian is not positive definite (regularization %g)", reg)
	}

	rhs := mat.NewVecDense(o.n, nil)
	rhs.ScaleVec(-1, o.c)

	x := mat.NewVecDense(o.n, nil)
	if err := chol.SolveVecTo(x, rhs); err != nil {
		// An ill-conditioned factorization still yields a solution; the
		// finiteness check below decides.
		if _, ok := err.(mat.Condition); !ok {
			return nil, Degenerate("solve: %v", err)
		}
	}
	for i := 0; i < o.n; i++ {
		if v := x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Degenerate("non-finite solution at index %d", i)
		}
	}
	return x, nil
}
