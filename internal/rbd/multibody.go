package rbd

import (
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/qptasks/internal/qp"
)

// Body is a rigid body modeled as a point mass at CoM (body frame).
type Body struct {
	Name string
	Mass float64
	CoM  r3.Vector
}

// MultiBody is a tree of bodies. Joint i connects body parent[i] (or the
// world for the root, parent -1) to body i through the static offset
// toJoint[i].
type MultiBody struct {
	name     string
	bodies   []Body
	joints   []Joint
	parents  []int
	toJoint  []Transform
	posDof   []int
	posParam []int
	nrDof    int
	nrParams int
	mass     float64
}

// Name returns the robot name.
func (mb *MultiBody) Name() string { return mb.name }

// NrBodies returns the number of bodies.
func (mb *MultiBody) NrBodies() int { return len(mb.bodies) }

// NrJoints returns the number of joints, equal to NrBodies.
func (mb *MultiBody) NrJoints() int { return len(mb.joints) }

// NrDof returns the length of the velocity vector.
func (mb *MultiBody) NrDof() int { return mb.nrDof }

// NrParams returns the length of the configuration vector.
func (mb *MultiBody) NrParams() int { return mb.nrParams }

// TotalMass returns the sum of body masses.
func (mb *MultiBody) TotalMass() float64 { return mb.mass }

// Body returns body i.
func (mb *MultiBody) Body(i int) Body { return mb.bodies[i] }

// Joint returns joint i.
func (mb *MultiBody) Joint(i int) Joint { return mb.joints[i] }

// Parent returns the parent body of body i, -1 for the root.
func (mb *MultiBody) Parent(i int) int { return mb.parents[i] }

// JointPosInDof returns the first velocity index of joint i.
func (mb *MultiBody) JointPosInDof(i int) int { return mb.posDof[i] }

// JointPosInParam returns the first configuration index of joint i.
func (mb *MultiBody) JointPosInParam(i int) int { return mb.posParam[i] }

// BodyIndexByName resolves a body name.
func (mb *MultiBody) BodyIndexByName(name string) (int, error) {
	for i, b := range mb.bodies {
		if b.Name == name {
			return i, nil
		}
	}
	return -1, errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no body %q", mb.name, name)
}

// JointIndexByID resolves a joint id.
func (mb *MultiBody) JointIndexByID(id int) (int, error) {
	for i, j := range mb.joints {
		if j.ID == id {
			return i, nil
		}
	}
	return -1, errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no joint id %d", mb.name, id)
}

// JointIndexByName resolves a joint name.
func (mb *MultiBody) JointIndexByName(name string) (int, error) {
	for i, j := range mb.joints {
		if j.Name == name {
			return i, nil
		}
	}
	return -1, errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no joint %q", mb.name, name)
}

// Builder assembles a MultiBody body by body. The first error sticks and is
// reported by Build.
type Builder struct {
	mb  *MultiBody
	err error
}

// NewBuilder starts a robot description.
func NewBuilder(name string) *Builder {
	return &Builder{mb: &MultiBody{name: name}}
}

// Root adds the root body, attached to the world by joint at offset.
func (b *Builder) Root(body Body, joint Joint, offset Transform) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.mb.bodies) != 0 {
		b.err = errors.Wrap(qp.ErrInvalidArgument, "root already set")
		return b
	}
	b.add(body, joint, -1, offset)
	return b
}

// Attach adds body below parent through joint placed at offset in the
// parent body frame.
func (b *Builder) Attach(parent string, body Body, joint Joint, offset Transform) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.mb.bodies) == 0 {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "attach %q before root", body.Name)
		return b
	}
	p, err := b.mb.BodyIndexByName(parent)
	if err != nil {
		b.err = err
		return b
	}
	b.add(body, joint, p, offset)
	return b
}

func (b *Builder) add(body Body, joint Joint, parent int, offset Transform) {
	mb := b.mb
	if _, err := mb.BodyIndexByName(body.Name); err == nil {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "duplicate body %q", body.Name)
		return
	}
	if _, err := mb.JointIndexByID(joint.ID); err == nil {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "duplicate joint id %d", joint.ID)
		return
	}
	if body.Mass < 0 {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "body %q has negative mass", body.Name)
		return
	}
	if joint.Type == Free && parent != -1 {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "free joint %q must be the root joint", joint.Name)
		return
	}
	if (joint.Type == Revolute || joint.Type == Prismatic) && joint.Axis.Norm() == 0 {
		b.err = errors.Wrapf(qp.ErrInvalidArgument, "joint %q has a zero axis", joint.Name)
		return
	}
	offset.Rot = Normalize(offset.Rot)

	mb.bodies = append(mb.bodies, body)
	mb.joints = append(mb.joints, joint)
	mb.parents = append(mb.parents, parent)
	mb.toJoint = append(mb.toJoint, offset)
	mb.posDof = append(mb.posDof, mb.nrDof)
	mb.posParam = append(mb.posParam, mb.nrParams)
	mb.nrDof += joint.Dof()
	mb.nrParams += joint.Params()
	mb.mass += body.Mass
}

// Build returns the finished robot.
func (b *Builder) Build() (*MultiBody, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.mb.bodies) == 0 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "robot %q has no bodies", b.mb.name)
	}
	return b.mb, nil
}

// ArmSpec describes a serial chain of revolute joints.
type ArmSpec struct {
	Name       string
	Axes       []r3.Vector
	LinkLength float64
	LinkMass   float64
	FreeBase   bool
	Base       Transform
}

// SerialArm builds a base body followed by one link per axis. Each joint
// sits LinkLength above the previous one along the parent's z axis and
// each link's mass is centered halfway to the next joint. Bodies are named
// "base", "link1", ... and joints get ids 0 (base) to len(Axes).
func SerialArm(spec ArmSpec) (*MultiBody, error) {
	if spec.LinkLength <= 0 {
		return nil, errors.Wrapf(qp.ErrInvalidArgument, "arm %q: link length must be positive", spec.Name)
	}
	root := FixedJoint(0, "base_joint")
	if spec.FreeBase {
		root = FreeJoint(0, "base_joint")
	}

	half := r3.Vector{Z: spec.LinkLength / 2}
	b := NewBuilder(spec.Name).Root(Body{Name: "base", Mass: spec.LinkMass, CoM: half}, root, spec.Base)

	parent := "base"
	for i, axis := range spec.Axes {
		name := linkName(i + 1)
		b.Attach(parent,
			Body{Name: name, Mass: spec.LinkMass, CoM: half},
			RevoluteJoint(i+1, "joint"+strconv.Itoa(i+1), axis),
			Translation(r3.Vector{Z: spec.LinkLength}))
		parent = name
	}
	return b.Build()
}

func linkName(i int) string {
	return "link" + strconv.Itoa(i)
}
