package rbd

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Transform maps body-local coordinates to the parent (or world) frame:
// p_parent = Rot·p_local + Trans.
type Transform struct {
	Rot   quat.Number
	Trans r3.Vector
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rot: quat.Number{Real: 1}}
}

// Translation returns a pure translation.
func Translation(v r3.Vector) Transform {
	return Transform{Rot: quat.Number{Real: 1}, Trans: v}
}

// Apply maps a local point into the parent frame.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return Rotate(t.Rot, p).Add(t.Trans)
}

// Compose returns t∘o: o is applied first.
func (t Transform) Compose(o Transform) Transform {
	return Transform{
		Rot:   quat.Mul(t.Rot, o.Rot),
		Trans: Rotate(t.Rot, o.Trans).Add(t.Trans),
	}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() Transform {
	inv := quat.Conj(t.Rot)
	return Transform{Rot: inv, Trans: Rotate(inv, t.Trans).Mul(-1)}
}

// Rotate applies the rotation of unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis r3.Vector, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	a := axis.Mul(math.Sin(angle/2) / n)
	return quat.Number{Real: math.Cos(angle / 2), Imag: a.X, Jmag: a.Y, Kmag: a.Z}
}

// Normalize returns q scaled to unit norm. The zero quaternion maps to the
// identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotationVector returns the log map of a unit quaternion: axis·angle with
// angle in [0, π].
func RotationVector(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	s := v.Norm()
	if s < 1e-12 {
		// sin(θ/2) ≈ θ/2 near identity.
		return v.Mul(2)
	}
	angle := 2 * math.Atan2(s, q.Real)
	return v.Mul(angle / s)
}

// FromRotationVector is the exp map, inverse of RotationVector.
func FromRotationVector(w r3.Vector) quat.Number {
	return AxisAngle(w, w.Norm())
}

// RotationError returns the rotation vector taking current onto target,
// expressed in the world frame: log(target·current⁻¹).
func RotationError(current, target quat.Number) r3.Vector {
	return RotationVector(quat.Mul(target, quat.Conj(current)))
}
