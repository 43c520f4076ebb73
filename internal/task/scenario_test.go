package task_test

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/task"
)

// step solves the unconstrained problem and integrates every robot
// semi-implicitly.
func step(mbs []*rbd.MultiBody, cfgs []*rbd.Config, l *qp.Layout, tasks []task.Task, dt float64) {
	obj := qp.NewObjective(l.NrVars())
	for _, t := range tasks {
		Expect(t.UpdateNrVars(mbs, l)).To(Succeed())
		Expect(t.Update(mbs, cfgs, l)).To(Succeed())
		Expect(obj.Add(t)).To(Succeed())
	}
	x, err := obj.Solve(1e-9)
	Expect(err).NotTo(HaveOccurred())
	for i, mb := range mbs {
		b, err := l.Robot(i)
		Expect(err).NotTo(HaveOccurred())
		for k := 0; k < b.Len; k++ {
			cfgs[i].Alpha[k] += x.AtVec(b.Begin+k) * dt
		}
		rbd.Integrate(mb, cfgs[i].Q, cfgs[i].Alpha, dt)
		rbd.ForwardKinematics(mb, cfgs[i])
	}
}

var _ = Describe("control loop", func() {
	var (
		mbs  []*rbd.MultiBody
		cfgs []*rbd.Config
		l    *qp.Layout
	)

	Context("with a three joint arm", func() {
		BeforeEach(func() {
			mb, err := rbd.SerialArm(rbd.ArmSpec{
				Name:       "arm",
				Axes:       []r3.Vector{{Z: 1}, {Y: 1}, {Y: 1}},
				LinkLength: 0.5,
				LinkMass:   1,
			})
			Expect(err).NotTo(HaveOccurred())
			mbs = []*rbd.MultiBody{mb}
			cfgs = []*rbd.Config{rbd.NewConfig(mb)}
			copy(cfgs[0].Q, []float64{0, 0.3, 0.3})
			rbd.ForwardKinematics(mb, cfgs[0])
			l, err = qp.NewLayout([]int{mb.NrDof()}, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("brings the end effector to a reachable point", func() {
			tip := r3.Vector{Z: 0.5}
			goal := rbd.NewConfig(mbs[0])
			copy(goal.Q, []float64{0.4, 0.6, 0.5})
			rbd.ForwardKinematics(mbs[0], goal)
			target := goal.BodyPosW[3].Apply(tip)

			pos, err := measure.NewPosition(mbs, 0, "link3", target, tip)
			Expect(err).NotTo(HaveOccurred())
			reach, err := task.NewSetPointTask(mbs, 0, pos, 50, 1, task.WithName("reach"))
			Expect(err).NotTo(HaveOccurred())
			posture, err := task.NewPostureTask(mbs, 0, nil, 1, 0.01)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 600; i++ {
				step(mbs, cfgs, l, []task.Task{reach, posture}, 0.005)
			}
			Expect(reach.ErrorNorm()).To(BeNumerically("<", 1e-2))
			Expect(cfgs[0].IsFinite()).To(BeTrue())
		})

		It("reports the layout it was sized for", func() {
			pos, err := measure.NewPosition(mbs, 0, "link2", r3.Vector{}, r3.Vector{})
			Expect(err).NotTo(HaveOccurred())
			t, err := task.NewSetPointTask(mbs, 0, pos, 10, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.UpdateNrVars(mbs, l)).To(Succeed())

			other, err := qp.NewLayout([]int{mbs[0].NrDof()}, nil)
			Expect(err).NotTo(HaveOccurred())
			err = t.Update(mbs, cfgs, other)
			Expect(errors.Is(err, qp.ErrStaleLayout)).To(BeTrue())
		})
	})

	Context("with a slider and a horizon task", func() {
		var (
			objective *task.TargetObjectiveTask
			pos       *measure.Position
		)

		BeforeEach(func() {
			mb, err := rbd.NewBuilder("slider").
				Root(rbd.Body{Name: "carriage", Mass: 1}, rbd.PrismaticJoint(0, "rail", r3.Vector{X: 1}), rbd.Identity()).
				Build()
			Expect(err).NotTo(HaveOccurred())
			mbs = []*rbd.MultiBody{mb}
			cfgs = []*rbd.Config{rbd.NewConfig(mb)}
			l, err = qp.NewLayout([]int{1}, nil)
			Expect(err).NotTo(HaveOccurred())

			pos, err = measure.NewPosition(mbs, 0, "carriage", r3.Vector{X: 1}, r3.Vector{})
			Expect(err).NotTo(HaveOccurred())
			objective, err = task.NewTargetObjectiveTask(mbs, 0, pos, 0.01, 0.5, []float64{0.2, 0, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("arrives exactly at the end of the horizon", func() {
			Expect(objective.NrIter()).To(Equal(50))
			for objective.Remaining() > 0 {
				step(mbs, cfgs, l, []task.Task{objective}, 0.01)
				objective.Advance()
			}
			Expect(math.Abs(cfgs[0].Q[0] - 1)).To(BeNumerically("<", 1e-6))
			Expect(math.Abs(cfgs[0].Alpha[0] - 0.2)).To(BeNumerically("<", 1e-6))

			err := objective.Update(mbs, cfgs, l)
			Expect(errors.Is(err, qp.ErrNumericalDegeneracy)).To(BeTrue())
		})

		It("rejects a horizon shorter than one step", func() {
			_, err := task.NewTargetObjectiveTask(mbs, 0, pos, 0.01, 0.001, nil, 1)
			Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())
		})

		It("keeps the objective symmetric", func() {
			Expect(objective.UpdateNrVars(mbs, l)).To(Succeed())
			Expect(objective.Update(mbs, cfgs, l)).To(Succeed())
			q := objective.Q()
			Expect(mat.Equal(q, q.T())).To(BeTrue())
		})
	})
})
