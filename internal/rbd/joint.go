package rbd

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// JointType enumerates the supported joints.
type JointType int

const (
	Fixed JointType = iota
	Revolute
	Prismatic
	Spherical
	Free
)

var jointTypeNames = map[JointType]string{
	Fixed:     "fixed",
	Revolute:  "revolute",
	Prismatic: "prismatic",
	Spherical: "spherical",
	Free:      "free",
}

func (t JointType) String() string {
	if s, ok := jointTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("JointType(%d)", int(t))
}

// ParseJointType maps a name such as "revolute" to its JointType.
func ParseJointType(name string) (JointType, bool) {
	for t, s := range jointTypeNames {
		if s == name {
			return t, true
		}
	}
	return Fixed, false
}

// Joint connects a body to its predecessor. Axis is used by revolute and
// prismatic joints and is expressed in the joint frame.
type Joint struct {
	ID   int
	Name string
	Type JointType
	Axis r3.Vector
}

// Dof is the size of the joint's velocity vector.
func (j Joint) Dof() int {
	switch j.Type {
	case Revolute, Prismatic:
		return 1
	case Spherical:
		return 3
	case Free:
		return 6
	}
	return 0
}

// Params is the size of the joint's configuration vector.
func (j Joint) Params() int {
	switch j.Type {
	case Revolute, Prismatic:
		return 1
	case Spherical:
		return 4
	case Free:
		return 7
	}
	return 0
}

// Motion returns the transform the joint adds for configuration q.
func (j Joint) Motion(q []float64) Transform {
	switch j.Type {
	case Revolute:
		return Transform{Rot: AxisAngle(j.Axis, q[0])}
	case Prismatic:
		return Translation(j.Axis.Normalize().Mul(q[0]))
	case Spherical:
		return Transform{Rot: QuatParam(q)}
	case Free:
		return Transform{Rot: QuatParam(q), Trans: r3.Vector{X: q[4], Y: q[5], Z: q[6]}}
	}
	return Identity()
}

// ZeroParams fills q with the joint's neutral configuration.
func (j Joint) ZeroParams(q []float64) {
	for i := range q {
		q[i] = 0
	}
	if j.Type == Spherical || j.Type == Free {
		q[0] = 1
	}
}

// RevoluteJoint returns a revolute joint about axis.
func RevoluteJoint(id int, name string, axis r3.Vector) Joint {
	return Joint{ID: id, Name: name, Type: Revolute, Axis: axis.Normalize()}
}

// PrismaticJoint returns a prismatic joint along axis.
func PrismaticJoint(id int, name string, axis r3.Vector) Joint {
	return Joint{ID: id, Name: name, Type: Prismatic, Axis: axis.Normalize()}
}

// SphericalJoint returns a ball joint.
func SphericalJoint(id int, name string) Joint {
	return Joint{ID: id, Name: name, Type: Spherical}
}

// FreeJoint returns a six dof floating joint.
func FreeJoint(id int, name string) Joint {
	return Joint{ID: id, Name: name, Type: Free}
}

// FixedJoint returns a rigid attachment.
func FixedJoint(id int, name string) Joint {
	return Joint{ID: id, Name: name, Type: Fixed}
}
