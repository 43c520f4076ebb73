package task

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// fixed is a measurement whose values are set by the test.
type fixed struct {
	eval, speed, nacc *mat.VecDense
	jac               *mat.Dense
	updates           int
}

func newFixed(jac *mat.Dense, eval ...float64) *fixed {
	r, _ := jac.Dims()
	return &fixed{
		eval:  mat.NewVecDense(r, eval),
		speed: mat.NewVecDense(r, nil),
		nacc:  mat.NewVecDense(r, nil),
		jac:   jac,
	}
}

func (f *fixed) Dim() int { return f.eval.Len() }
func (f *fixed) Update([]*rbd.MultiBody, []*rbd.Config) error {
	f.updates++
	return nil
}
func (f *fixed) Eval() *mat.VecDense      { return f.eval }
func (f *fixed) Speed() *mat.VecDense     { return f.speed }
func (f *fixed) NormalAcc() *mat.VecDense { return f.nacc }
func (f *fixed) Jac() *mat.Dense          { return f.jac }

// slide measures the joint coordinate of a one dof robot.
type slide struct {
	robot  int
	target float64
	eval   *mat.VecDense
	speed  *mat.VecDense
	nacc   *mat.VecDense
	jac    *mat.Dense
}

func newSlide(robot int, target float64) *slide {
	return &slide{
		robot:  robot,
		target: target,
		eval:   mat.NewVecDense(1, nil),
		speed:  mat.NewVecDense(1, nil),
		nacc:   mat.NewVecDense(1, nil),
		jac:    mat.NewDense(1, 1, []float64{1}),
	}
}

func (s *slide) Dim() int { return 1 }
func (s *slide) Update(_ []*rbd.MultiBody, cfgs []*rbd.Config) error {
	c := cfgs[s.robot]
	s.eval.SetVec(0, s.target-c.Q[0])
	s.speed.SetVec(0, c.Alpha[0])
	return nil
}
func (s *slide) Eval() *mat.VecDense      { return s.eval }
func (s *slide) Speed() *mat.VecDense     { return s.speed }
func (s *slide) NormalAcc() *mat.VecDense { return s.nacc }
func (s *slide) Jac() *mat.Dense          { return s.jac }

func slider(t testing.TB, name string) *rbd.MultiBody {
	mb, err := rbd.NewBuilder(name).
		Root(rbd.Body{Name: "carriage", Mass: 1}, rbd.PrismaticJoint(0, "rail", r3.Vector{X: 1}), rbd.Identity()).
		Build()
	if err != nil {
		t.Fatalf("build slider: %v", err)
	}
	return mb
}

func arm(t testing.TB, name string, free bool) *rbd.MultiBody {
	mb, err := rbd.SerialArm(rbd.ArmSpec{
		Name:       name,
		Axes:       []r3.Vector{{Z: 1}, {Y: 1}, {Y: 1}},
		LinkLength: 0.5,
		LinkMass:   2,
		FreeBase:   free,
	})
	if err != nil {
		t.Fatalf("SerialArm: %v", err)
	}
	return mb
}

func layoutFor(t testing.TB, mbs []*rbd.MultiBody, contacts ...qp.Contact) *qp.Layout {
	dofs := make([]int, len(mbs))
	for i, mb := range mbs {
		dofs[i] = mb.NrDof()
	}
	l, err := qp.NewLayout(dofs, contacts)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return l
}

func TestSetPointOneDof(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{slider(t, "s")}
	m := newFixed(mat.NewDense(1, 1, []float64{1}), 1)
	task, err := NewSetPointTask(mbs, 0, m, 100, 1)
	g.Expect(err).NotTo(HaveOccurred())

	l := layoutFor(t, mbs)
	g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(task.Update(mbs, []*rbd.Config{rbd.NewConfig(mbs[0])}, l)).To(Succeed())

	g.Expect(task.Q().At(0, 0)).To(BeNumerically("~", 1, 1e-12))
	g.Expect(task.C().AtVec(0)).To(BeNumerically("~", -100, 1e-12))

	obj := qp.NewObjective(l.NrVars())
	g.Expect(obj.Add(task)).To(Succeed())
	x, err := obj.Solve(0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(x.AtVec(0)).To(BeNumerically("~", 100, 1e-9))
}

func TestWeightScalesQuadratically(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", false)}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0])}
	copy(cfgs[0].Q, []float64{0.2, 0.4, -0.3})
	rbd.ForwardKinematics(mbs[0], cfgs[0])
	l := layoutFor(t, mbs)

	build := func(w float64) *SetPointTask {
		p, err := measure.NewPosition(mbs, 0, "link3", r3.Vector{X: 0.3, Z: 0.8}, r3.Vector{})
		g.Expect(err).NotTo(HaveOccurred())
		task, err := NewSetPointTask(mbs, 0, p, 10, w)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
		g.Expect(task.Update(mbs, cfgs, l)).To(Succeed())
		return task
	}
	lo, hi := build(0.5), build(2)

	n := mbs[0].NrDof()
	for i := 0; i < n; i++ {
		if c := lo.C().AtVec(i); math.Abs(c) > 1e-9 {
			g.Expect(hi.C().AtVec(i) / c).To(BeNumerically("~", 16, 1e-9))
		}
		for j := 0; j < n; j++ {
			if q := lo.Q().At(i, j); math.Abs(q) > 1e-9 {
				g.Expect(hi.Q().At(i, j) / q).To(BeNumerically("~", 16, 1e-9))
			}
		}
	}

	g.Expect(lo.SetWeight(2)).To(Succeed())
	g.Expect(mat.EqualApprox(lo.Q(), hi.Q(), 1e-12)).To(BeTrue())
	g.Expect(mat.EqualApprox(lo.C(), hi.C(), 1e-12)).To(BeTrue())
}

func TestQuadraticTermIsWeightedGram(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", true)}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0])}
	cfgs[0].Q[4] = 0.1
	cfgs[0].Q[7], cfgs[0].Q[8], cfgs[0].Q[9] = 0.3, -0.5, 0.7
	rbd.ForwardKinematics(mbs[0], cfgs[0])
	l := layoutFor(t, mbs)

	tf, err := measure.NewTransform(mbs, 0, "link3", rbd.Translation(r3.Vector{X: 0.5, Z: 1}), rbd.Identity())
	g.Expect(err).NotTo(HaveOccurred())
	w := []float64{1, 1, 0.5, 2, 2, 3}
	task, err := NewSetPointTask(mbs, 0, tf, 50, 1.5, WithDimWeight(w...))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(task.Update(mbs, cfgs, l)).To(Succeed())

	n := mbs[0].NrDof()
	j := task.Jac()
	want := mat.NewDense(n, n, nil)
	wj := mat.NewDense(len(w), n, nil)
	wj.Apply(func(i, _ int, v float64) float64 { return w[i] * v }, j)
	want.Mul(j.T(), wj)
	want.Scale(1.5*1.5, want)
	g.Expect(mat.EqualApprox(task.Q(), want, 1e-9)).To(BeTrue())

	var eig mat.EigenSym
	g.Expect(eig.Factorize(task.Q(), false)).To(BeTrue())
	for _, v := range eig.Values(nil) {
		g.Expect(v).To(BeNumerically(">", -1e-9))
	}
}

func TestWeightingCache(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", false)}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0])}
	l := layoutFor(t, mbs)

	m := newFixed(mat.NewDense(2, 3, []float64{1, 0, 2, 0, 1, 1}), 0.1, 0.2)
	k, err := New(mbs, 0, m, control.NewNone(), 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(k.UpdateNrVars(mbs, l)).To(Succeed())

	for i := 0; i < 3; i++ {
		g.Expect(k.Update(mbs, cfgs, l)).To(Succeed())
	}
	g.Expect(k.recomputes).To(Equal(1))
	g.Expect(m.updates).To(Equal(3))

	m.jac.Set(0, 1, 4)
	g.Expect(k.Update(mbs, cfgs, l)).To(Succeed())
	g.Expect(k.recomputes).To(Equal(2))
	g.Expect(k.Q().At(1, 1)).To(BeNumerically("~", 17, 1e-12))

	g.Expect(k.SetDimWeight([]float64{2, 1})).To(Succeed())
	g.Expect(k.Update(mbs, cfgs, l)).To(Succeed())
	g.Expect(k.recomputes).To(Equal(3))
	g.Expect(k.Q().At(0, 0)).To(BeNumerically("~", 2, 1e-12))

	g.Expect(k.SetWeight(3)).To(Succeed())
	g.Expect(k.recomputes).To(Equal(3))
	g.Expect(k.Q().At(0, 0)).To(BeNumerically("~", 18, 1e-12))
}

func TestStaleLayout(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{slider(t, "s")}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0])}
	task, err := NewSetPointTask(mbs, 0, newSlide(0, 1), 10, 1)
	g.Expect(err).NotTo(HaveOccurred())

	l1 := layoutFor(t, mbs)
	err = task.Update(mbs, cfgs, l1)
	g.Expect(errors.Is(err, qp.ErrStaleLayout)).To(BeTrue())

	g.Expect(task.UpdateNrVars(mbs, l1)).To(Succeed())
	g.Expect(task.Update(mbs, cfgs, l1)).To(Succeed())

	l2 := layoutFor(t, mbs)
	err = task.Update(mbs, cfgs, l2)
	g.Expect(errors.Is(err, qp.ErrStaleLayout)).To(BeTrue())

	var te *qp.TaskError
	g.Expect(errors.As(err, &te)).To(BeTrue())
	g.Expect(te.Task).To(Equal("set_point"))

	g.Expect(task.UpdateNrVars(mbs, l2)).To(Succeed())
	g.Expect(task.Update(mbs, cfgs, l2)).To(Succeed())
}

func TestDimWeightValidation(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{slider(t, "s")}
	_, err := NewSetPointTask(mbs, 0, newSlide(0, 1), 10, 1, WithDimWeight(1, 2))
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())

	_, err = NewSetPointTask(mbs, 0, newSlide(0, 1), 10, 1, WithDimWeight(-1))
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())

	_, err = NewSetPointTask(mbs, 0, newSlide(0, 1), 10, -1)
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())

	_, err = NewSetPointTask(mbs, 3, newSlide(0, 1), 10, 1)
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())

	task, err := NewSetPointTask(mbs, 0, newSlide(0, 1), 10, 1)
	g.Expect(err).NotTo(HaveOccurred())
	err = task.SetDimWeight([]float64{1, 1})
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())
	g.Expect(task.DimWeight()).To(Equal([]float64{1}))

	err = task.SetStiffness(0)
	g.Expect(errors.Is(err, qp.ErrNumericalDegeneracy)).To(BeTrue())
	g.Expect(task.Stiffness()).To(Equal(10.0))
}

func TestObjectiveAccumulatesTasks(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{slider(t, "a"), slider(t, "b")}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0]), rbd.NewConfig(mbs[1])}
	l := layoutFor(t, mbs)

	t1, err := NewSetPointTask(mbs, 0, newSlide(0, 1), 4, 1)
	g.Expect(err).NotTo(HaveOccurred())
	t2, err := NewSetPointTask(mbs, 1, newSlide(1, 2), 9, 2)
	g.Expect(err).NotTo(HaveOccurred())
	t3, err := NewSetPointTask(mbs, 1, newSlide(1, 0), 1, 1)
	g.Expect(err).NotTo(HaveOccurred())

	obj := qp.NewObjective(l.NrVars())
	for _, task := range []Task{t1, t2, t3} {
		g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
		g.Expect(task.Update(mbs, cfgs, l)).To(Succeed())
		g.Expect(obj.Add(task)).To(Succeed())
	}
	g.Expect(t2.Begin()).To(Equal(1))

	g.Expect(obj.Q().At(0, 0)).To(BeNumerically("~", 1, 1e-12))
	g.Expect(obj.Q().At(1, 1)).To(BeNumerically("~", 5, 1e-12))
	g.Expect(obj.Q().At(0, 1)).To(BeNumerically("~", 0, 1e-12))
	g.Expect(obj.C().AtVec(0)).To(BeNumerically("~", -4, 1e-12))
	g.Expect(obj.C().AtVec(1)).To(BeNumerically("~", -4*9*2, 1e-12))
}

func TestMultiRobotCrossTerms(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", false), arm(t, "b", false)}
	cfgs := []*rbd.Config{rbd.NewConfig(mbs[0]), rbd.NewConfig(mbs[1])}
	cfgs[0].Q[1], cfgs[1].Q[1] = 0.4, -0.2
	for i := range mbs {
		rbd.ForwardKinematics(mbs[i], cfgs[i])
	}
	l := layoutFor(t, mbs)

	m, err := measure.NewMultiCoM(mbs, []int{0, 1}, r3.Vector{X: 0.1, Z: 0.6})
	g.Expect(err).NotTo(HaveOccurred())
	task, err := NewMultiCoMTask(mbs, m, 10, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(task.Update(mbs, cfgs, l)).To(Succeed())

	g.Expect(task.Begin()).To(Equal(0))
	g.Expect(task.Q().SymmetricDim()).To(Equal(6))
	g.Expect(task.Blocks()).To(HaveLen(2))

	cross := 0.0
	for i := 0; i < 3; i++ {
		for j := 3; j < 6; j++ {
			cross += math.Abs(task.Q().At(i, j))
		}
	}
	g.Expect(cross).To(BeNumerically(">", 1e-6))
}

func TestPostureMasksFreeRoot(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", true)}
	mb := mbs[0]
	cfg := rbd.NewConfig(mb)
	cfg.Q[4] = 2
	cfg.Q[7] = 0.5
	cfg.Alpha[6] = 1
	rbd.ForwardKinematics(mb, cfg)
	l := layoutFor(t, mbs)

	task, err := NewPostureTask(mbs, 0, nil, 16, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(task.Update(mbs, []*rbd.Config{cfg}, l)).To(Succeed())

	for i := 0; i < 6; i++ {
		g.Expect(task.Q().At(i, i)).To(Equal(0.0))
		g.Expect(task.C().AtVec(i)).To(Equal(0.0))
	}
	g.Expect(task.Q().At(6, 6)).To(Equal(1.0))
	// e = -0.5, d = 8, alpha = 1: C = -(16·-0.5 - 8·1) = 16
	g.Expect(task.C().AtVec(6)).To(BeNumerically("~", 16, 1e-12))
	g.Expect(task.ErrorNorm()).To(BeNumerically("~", 0.5, 1e-12))
}

func TestPostureJointGains(t *testing.T) {
	g := NewWithT(t)

	mbs := []*rbd.MultiBody{arm(t, "a", false)}
	task, err := NewPostureTask(mbs, 0, nil, 4, 1)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(task.SetJointsStiffness([]JointStiffness{{JointID: 2, Stiffness: 9}})).To(Succeed())
	jg, err := task.JointGains(2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(jg.Damping).To(BeNumerically("~", 6, 1e-12))

	err = task.SetJointsGains([]JointGains{{JointID: 1, Stiffness: 1, Damping: 1}, {JointID: 99, Stiffness: 1}})
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())
	jg, err = task.JointGains(1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(jg.Stiffness).To(Equal(4.0))

	err = task.SetPosture([]float64{1})
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())
}

func TestContactTask(t *testing.T) {
	g := NewWithT(t)

	id := qp.ContactID{R1: 0, R2: 1, Body1: "link3", Body2: "link3"}
	contact := qp.Contact{
		ID:     id,
		Points: []r3.Vector{{X: 1}, {X: -1}},
		Generators: [][]r3.Vector{
			{{Z: 1}, {X: 1, Z: 1}},
			{{Z: 1}},
		},
	}
	mbs := []*rbd.MultiBody{slider(t, "a"), slider(t, "b")}
	l := layoutFor(t, mbs, contact)

	task, err := NewContactTask(id, 4, 2)
	g.Expect(err).NotTo(HaveOccurred())
	task.SetError(r3.Vector{Z: 1})
	task.SetErrorD(r3.Vector{X: 0.5})
	g.Expect(task.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(task.Update(mbs, nil, l)).To(Succeed())

	g.Expect(task.Begin()).To(Equal(2))
	g.Expect(task.Q().SymmetricDim()).To(Equal(3))
	// G = [[0 1 0] [0 0 0] [1 1 1]], τ² = 4
	g.Expect(task.Q().At(1, 1)).To(BeNumerically("~", 8, 1e-12))
	g.Expect(task.Q().At(0, 2)).To(BeNumerically("~", 4, 1e-12))
	// target = 4·(0,0,1) + 4·(0.5,0,0) = (2,0,4)
	g.Expect(task.C().AtVec(0)).To(BeNumerically("~", -16, 1e-12))
	g.Expect(task.C().AtVec(1)).To(BeNumerically("~", -24, 1e-12))
	g.Expect(task.Force([]float64{1, 2, 3})).To(Equal(r3.Vector{X: 2, Z: 6}))

	gt, err := NewGripperTorqueTask(id, r3.Vector{}, r3.Vector{Y: 2}, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(gt.UpdateNrVars(mbs, l)).To(Succeed())
	g.Expect(gt.Update(mbs, nil, l)).To(Succeed())
	// (1,0,0)×(0,0,1) = (0,-1,0)
	g.Expect(gt.C().AtVec(0)).To(BeNumerically("~", -1, 1e-12))
	g.Expect(gt.C().AtVec(2)).To(BeNumerically("~", 1, 1e-12))
	g.Expect(mat.Sum(gt.Q())).To(Equal(0.0))

	missing, err := NewContactTask(qp.ContactID{R1: 5}, 1, 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(errors.Is(missing.UpdateNrVars(mbs, l), qp.ErrInvalidArgument)).To(BeTrue())
}
