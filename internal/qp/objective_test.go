package qp

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
)

type fixedBlock struct {
	begin int
	q     *mat.SymDense
	c     *mat.VecDense
}

func (f fixedBlock) Begin() int       { return f.begin }
func (f fixedBlock) Q() *mat.SymDense { return f.q }
func (f fixedBlock) C() *mat.VecDense { return f.c }

func TestObjectiveAddIsLinear(t *testing.T) {
	g := NewWithT(t)

	a := fixedBlock{0, mat.NewSymDense(2, []float64{2, 1, 1, 3}), mat.NewVecDense(2, []float64{-1, 4})}
	b := fixedBlock{1, mat.NewSymDense(2, []float64{5, 0, 0, 7}), mat.NewVecDense(2, []float64{2, -3})}

	o := NewObjective(3)
	g.Expect(o.Add(a)).To(Succeed())
	g.Expect(o.Add(b)).To(Succeed())

	wantQ := mat.NewSymDense(3, []float64{
		2, 1, 0,
		1, 8, 0,
		0, 0, 7,
	})
	wantC := mat.NewVecDense(3, []float64{-1, 6, -3})

	g.Expect(mat.Equal(o.Q(), wantQ)).To(BeTrue())
	g.Expect(mat.Equal(o.C(), wantC)).To(BeTrue())

	o.Reset()
	g.Expect(mat.Norm(o.C(), 2)).To(BeZero())
}

func TestObjectiveAddOutOfRange(t *testing.T) {
	o := NewObjective(2)
	blk := fixedBlock{1, mat.NewSymDense(2, nil), mat.NewVecDense(2, nil)}
	if err := o.Add(blk); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestObjectiveSolve(t *testing.T) {
	g := NewWithT(t)

	o := NewObjective(1)
	g.Expect(o.Add(fixedBlock{0, mat.NewSymDense(1, []float64{1}), mat.NewVecDense(1, []float64{-100})})).To(Succeed())

	x, err := o.Solve(0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(x.AtVec(0)).To(BeNumerically("~", 100, 1e-12))
	g.Expect(o.Value(x)).To(BeNumerically("~", -5000, 1e-9))
}

func TestObjectiveSolveDegenerate(t *testing.T) {
	o := NewObjective(2)
	_, err := o.Solve(0)
	if !errors.Is(err, ErrNumericalDegeneracy) {
		t.Errorf("got %v, want ErrNumericalDegeneracy", err)
	}

	if _, err := o.Solve(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}

	if v := o.Value(mat.NewVecDense(1, nil)); !math.IsNaN(v) {
		t.Errorf("expected NaN for mismatched vector, got %v", v)
	}
}
