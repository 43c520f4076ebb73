package rbd

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/qptasks/internal/qp"
)

// Config is the kinematic state of one robot. BodyPosW and JointFrameW are
// filled by ForwardKinematics and are stale after Q changes until it runs
// again.
type Config struct {
	Q     []float64
	Alpha []float64

	BodyPosW    []Transform
	JointFrameW []Transform
}

// NewConfig returns the neutral configuration at rest, with forward
// kinematics already computed.
func NewConfig(mb *MultiBody) *Config {
	c := &Config{
		Q:           make([]float64, mb.nrParams),
		Alpha:       make([]float64, mb.nrDof),
		BodyPosW:    make([]Transform, len(mb.bodies)),
		JointFrameW: make([]Transform, len(mb.bodies)),
	}
	for i, j := range mb.joints {
		p := mb.posParam[i]
		j.ZeroParams(c.Q[p : p+j.Params()])
	}
	ForwardKinematics(mb, c)
	return c
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := &Config{
		Q:           append([]float64(nil), c.Q...),
		Alpha:       append([]float64(nil), c.Alpha...),
		BodyPosW:    append([]Transform(nil), c.BodyPosW...),
		JointFrameW: append([]Transform(nil), c.JointFrameW...),
	}
	return out
}

// Check reports whether the config vectors match the robot.
func (c *Config) Check(mb *MultiBody) error {
	if len(c.Q) != mb.nrParams || len(c.Alpha) != mb.nrDof {
		return errors.Wrapf(qp.ErrInvalidArgument,
			"config of robot %q has %d params and %d dof, want %d and %d",
			mb.name, len(c.Q), len(c.Alpha), mb.nrParams, mb.nrDof)
	}
	if len(c.BodyPosW) != len(mb.bodies) {
		return errors.Wrapf(qp.ErrInvalidArgument, "config of robot %q has no forward kinematics", mb.name)
	}
	return nil
}

// JointQ returns the configuration slice of joint i.
func (c *Config) JointQ(mb *MultiBody, i int) []float64 {
	p := mb.posParam[i]
	return c.Q[p : p+mb.joints[i].Params()]
}

// JointAlpha returns the velocity slice of joint i.
func (c *Config) JointAlpha(mb *MultiBody, i int) []float64 {
	p := mb.posDof[i]
	return c.Alpha[p : p+mb.joints[i].Dof()]
}

// ForwardKinematics computes the world pose of every body and joint frame.
func ForwardKinematics(mb *MultiBody, c *Config) {
	if len(c.BodyPosW) != len(mb.bodies) {
		c.BodyPosW = make([]Transform, len(mb.bodies))
		c.JointFrameW = make([]Transform, len(mb.bodies))
	}
	for i, j := range mb.joints {
		parent := Identity()
		if p := mb.parents[i]; p >= 0 {
			parent = c.BodyPosW[p]
		}
		jf := parent.Compose(mb.toJoint[i])
		c.JointFrameW[i] = jf
		c.BodyPosW[i] = jf.Compose(j.Motion(c.JointQ(mb, i)))
	}
}

// Integrate advances q by the velocity v held constant over dt:
// q ← q ⊕ v·dt. Quaternions are renormalized.
func Integrate(mb *MultiBody, q, v []float64, dt float64) {
	for i, j := range mb.joints {
		pq, pv := mb.posParam[i], mb.posDof[i]
		switch j.Type {
		case Revolute, Prismatic:
			q[pq] += v[pv] * dt
		case Spherical, Free:
			w := r3.Vector{X: v[pv], Y: v[pv+1], Z: v[pv+2]}
			r := quat.Mul(FromRotationVector(w.Mul(dt)), QuatParam(q[pq:]))
			SetQuatParam(q[pq:], r)
			if j.Type == Free {
				for k := 0; k < 3; k++ {
					q[pq+4+k] += v[pv+3+k] * dt
				}
			}
		}
	}
}

// Advance returns a copy of c with positions integrated by alpha over dt and
// forward kinematics recomputed. c is left untouched.
func Advance(mb *MultiBody, c *Config, dt float64) *Config {
	out := c.Clone()
	Integrate(mb, out.Q, out.Alpha, dt)
	ForwardKinematics(mb, out)
	return out
}

// IsFinite reports whether every configuration and velocity entry is finite.
func (c *Config) IsFinite() bool {
	for _, v := range c.Q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range c.Alpha {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// QuatParam reads the unit quaternion stored as [w x y z] at the start of q.
func QuatParam(q []float64) quat.Number {
	return Normalize(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
}

// SetQuatParam stores r, normalized, as [w x y z] at the start of q.
func SetQuatParam(q []float64, r quat.Number) {
	r = Normalize(r)
	q[0], q[1], q[2], q[3] = r.Real, r.Imag, r.Jmag, r.Kmag
}
