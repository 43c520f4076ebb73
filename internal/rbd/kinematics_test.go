package rbd

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

func newArm(t *testing.T, free bool, axes ...r3.Vector) *MultiBody {
	t.Helper()
	mb, err := SerialArm(ArmSpec{Name: "arm", Axes: axes, LinkLength: 1, LinkMass: 1, FreeBase: free})
	if err != nil {
		t.Fatalf("SerialArm: %v", err)
	}
	return mb
}

func TestSerialArmLayout(t *testing.T) {
	g := NewWithT(t)

	mb := newArm(t, true, r3.Vector{Z: 1}, r3.Vector{Y: 1})
	g.Expect(mb.NrBodies()).To(Equal(3))
	g.Expect(mb.NrDof()).To(Equal(8))
	g.Expect(mb.NrParams()).To(Equal(9))
	g.Expect(mb.JointPosInDof(2)).To(Equal(7))
	g.Expect(mb.TotalMass()).To(Equal(3.0))

	idx, err := mb.BodyIndexByName("link2")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(idx).To(Equal(2))

	_, err = mb.JointIndexByID(42)
	g.Expect(errors.Is(err, qp.ErrInvalidArgument)).To(BeTrue())
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*MultiBody, error)
	}{
		{"no bodies", func() (*MultiBody, error) { return NewBuilder("x").Build() }},
		{"unknown parent", func() (*MultiBody, error) {
			return NewBuilder("x").
				Root(Body{Name: "a"}, FixedJoint(0, "j0"), Identity()).
				Attach("nope", Body{Name: "b"}, RevoluteJoint(1, "j1", r3.Vector{Z: 1}), Identity()).
				Build()
		}},
		{"duplicate joint id", func() (*MultiBody, error) {
			return NewBuilder("x").
				Root(Body{Name: "a"}, FixedJoint(0, "j0"), Identity()).
				Attach("a", Body{Name: "b"}, RevoluteJoint(0, "j1", r3.Vector{Z: 1}), Identity()).
				Build()
		}},
		{"free joint below root", func() (*MultiBody, error) {
			return NewBuilder("x").
				Root(Body{Name: "a"}, FixedJoint(0, "j0"), Identity()).
				Attach("a", Body{Name: "b"}, FreeJoint(1, "j1"), Identity()).
				Build()
		}},
		{"non-positive link", func() (*MultiBody, error) {
			return SerialArm(ArmSpec{Name: "x", Axes: []r3.Vector{{Z: 1}}})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build(); !errors.Is(err, qp.ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestForwardKinematicsPlanar(t *testing.T) {
	mb := newArm(t, false, r3.Vector{Y: 1}, r3.Vector{Y: 1})
	c := NewConfig(mb)
	c.Q[0] = math.Pi / 2
	ForwardKinematics(mb, c)

	// Rotating joint1 by 90° about y tips link2's joint from +z to +x.
	got := c.BodyPosW[2].Trans
	want := r3.Vector{X: 1, Z: 1}
	if !vecClose(got, want, 1e-12) {
		t.Errorf("link2 origin: got %v, want %v", got, want)
	}
}

func TestPointJacobianMatchesFiniteDifference(t *testing.T) {
	mb := newArm(t, true, r3.Vector{Z: 1}, r3.Vector{Y: 1}, r3.Vector{X: 1})
	c := NewConfig(mb)
	copy(c.Q, []float64{0.9, 0.1, -0.3, 0.2, 0.4, -0.5, 0.7, 0.3, -0.8, 1.1})
	SetQuatParam(c.Q, QuatParam(c.Q))
	for i := range c.Alpha {
		c.Alpha[i] = 0.1 * float64(i+1)
	}
	ForwardKinematics(mb, c)

	point := r3.Vector{X: 0.2, Y: -0.1, Z: 0.4}
	body := 3
	jac := PointJacobian(mb, c, body, point)

	// Position change along alpha must match J·alpha.
	const h = 1e-6
	plus := Advance(mb, c, h).BodyPosW[body].Apply(point)
	minus := Advance(mb, c, -h).BodyPosW[body].Apply(point)
	fd := plus.Sub(minus).Mul(1 / (2 * h))

	var v mat.VecDense
	v.MulVec(jac, mat.NewVecDense(len(c.Alpha), c.Alpha))
	lin := r3.Vector{X: v.AtVec(3), Y: v.AtVec(4), Z: v.AtVec(5)}
	if !vecClose(lin, fd, 1e-6) {
		t.Errorf("linear velocity: J·alpha %v, finite difference %v", lin, fd)
	}
}

func TestPointNormalAccCentripetal(t *testing.T) {
	g := NewWithT(t)

	mb := newArm(t, false, r3.Vector{Z: 1})
	c := NewConfig(mb)
	c.Alpha[0] = 2

	ang, lin := PointVelocity(mb, c, 1, r3.Vector{X: 1})
	g.Expect(vecClose(ang, r3.Vector{Z: 2}, 1e-12)).To(BeTrue())
	g.Expect(vecClose(lin, r3.Vector{Y: 2}, 1e-12)).To(BeTrue())

	nAng, nLin := PointNormalAcc(mb, c, 1, r3.Vector{X: 1})
	g.Expect(nAng.Norm()).To(BeNumerically("<", 1e-6))
	g.Expect(vecClose(nLin, r3.Vector{X: -4}, 1e-5)).To(BeTrue(), "got %v", nLin)
}

func TestCoMAndMomentum(t *testing.T) {
	g := NewWithT(t)

	mb := newArm(t, false, r3.Vector{Y: 1})
	c := NewConfig(mb)

	com, err := CoM(mb, c)
	g.Expect(err).NotTo(HaveOccurred())
	// Base CoM at z=0.5, link1 CoM at z=1.5.
	g.Expect(vecClose(com, r3.Vector{Z: 1}, 1e-12)).To(BeTrue())

	c.Alpha[0] = 1
	vel, err := CoMVelocity(mb, c)
	g.Expect(err).NotTo(HaveOccurred())
	// Only link1 moves: its CoM at 0.5 above the joint sweeps along +x.
	g.Expect(vecClose(vel, r3.Vector{X: 0.25}, 1e-12)).To(BeTrue(), "got %v", vel)

	ang, lin, err := CentroidalMomentum(mb, c)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(vecClose(lin, vel.Mul(mb.TotalMass()), 1e-12)).To(BeTrue())
	// Link1 sits 0.5 above the CoM moving along +x: (0,0,0.5)×(0.5,0,0).
	g.Expect(vecClose(ang, r3.Vector{Y: 0.25}, 1e-12)).To(BeTrue(), "got %v", ang)

	massless, err := NewBuilder("ghost").Root(Body{Name: "b"}, RevoluteJoint(0, "j", r3.Vector{Z: 1}), Identity()).Build()
	g.Expect(err).NotTo(HaveOccurred())
	_, err = CoM(massless, NewConfig(massless))
	g.Expect(errors.Is(err, qp.ErrNumericalDegeneracy)).To(BeTrue())
}

func TestIntegrateSpherical(t *testing.T) {
	g := NewWithT(t)

	mb, err := NewBuilder("ball").
		Root(Body{Name: "b", Mass: 1, CoM: r3.Vector{X: 1}}, SphericalJoint(0, "j"), Identity()).
		Build()
	g.Expect(err).NotTo(HaveOccurred())

	c := NewConfig(mb)
	copy(c.Alpha, []float64{0, 0, math.Pi / 2})
	Integrate(mb, c.Q, c.Alpha, 1)
	ForwardKinematics(mb, c)

	got := c.BodyPosW[0].Apply(r3.Vector{X: 1})
	g.Expect(vecClose(got, r3.Vector{Y: 1}, 1e-12)).To(BeTrue(), "got %v", got)
	g.Expect(c.IsFinite()).To(BeTrue())
}
