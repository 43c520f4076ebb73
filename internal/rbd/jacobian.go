package rbd

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// fdStep is the time step of the central difference behind every normal
// acceleration.
const fdStep = 1e-6

var unitAxes = [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}

// PointJacobian returns the 6×NrDof Jacobian of a point fixed in body,
// given in body coordinates. Rows 0-2 map alpha to the body's angular
// velocity, rows 3-5 to the point's linear velocity.
func PointJacobian(mb *MultiBody, c *Config, body int, point r3.Vector) *mat.Dense {
	jac := mat.NewDense(6, mb.nrDof, nil)
	pointJacobianInto(jac, mb, c, body, c.BodyPosW[body].Apply(point))
	return jac
}

// pointJacobianInto writes the Jacobian of world point p rigidly attached to
// body into jac, which must be zero on entry.
func pointJacobianInto(jac *mat.Dense, mb *MultiBody, c *Config, body int, p r3.Vector) {
	setCol := func(col int, ang, lin r3.Vector) {
		jac.Set(0, col, ang.X)
		jac.Set(1, col, ang.Y)
		jac.Set(2, col, ang.Z)
		jac.Set(3, col, lin.X)
		jac.Set(4, col, lin.Y)
		jac.Set(5, col, lin.Z)
	}

	for i := body; i >= 0; i = mb.parents[i] {
		j := mb.joints[i]
		col := mb.posDof[i]
		rot := c.JointFrameW[i].Rot
		arm := p.Sub(c.BodyPosW[i].Trans)

		switch j.Type {
		case Revolute:
			a := Rotate(rot, j.Axis)
			setCol(col, a, a.Cross(arm))
		case Prismatic:
			setCol(col, r3.Vector{}, Rotate(rot, j.Axis))
		case Spherical, Free:
			for k, e := range unitAxes {
				a := Rotate(rot, e)
				setCol(col+k, a, a.Cross(arm))
			}
			if j.Type == Free {
				for k, e := range unitAxes {
					setCol(col+3+k, r3.Vector{}, Rotate(rot, e))
				}
			}
		}
	}
}

// PointVelocity returns the angular velocity of body and the linear
// velocity of point.
func PointVelocity(mb *MultiBody, c *Config, body int, point r3.Vector) (ang, lin r3.Vector) {
	return split6(mulAlpha(PointJacobian(mb, c, body, point), c.Alpha))
}

// PointNormalAcc returns J̇·alpha for the point Jacobian: the angular and
// linear acceleration of the point when alphaD is zero.
func PointNormalAcc(mb *MultiBody, c *Config, body int, point r3.Vector) (ang, lin r3.Vector) {
	return split6(NormalAcc(mb, c, func(cc *Config) []float64 {
		return mulAlpha(PointJacobian(mb, cc, body, point), cc.Alpha)
	}))
}

// NormalAcc differentiates the velocity-level quantity f along the current
// velocity: (f(q ⊕ αh) − f(q ⊖ αh)) / 2h, which is J̇·alpha when
// f(c) = J(c)·alpha.
func NormalAcc(mb *MultiBody, c *Config, f func(*Config) []float64) []float64 {
	plus := f(Advance(mb, c, fdStep))
	minus := f(Advance(mb, c, -fdStep))
	out := make([]float64, len(plus))
	for i := range out {
		out[i] = (plus[i] - minus[i]) / (2 * fdStep)
	}
	return out
}

func mulAlpha(jac *mat.Dense, alpha []float64) []float64 {
	r, _ := jac.Dims()
	out := make([]float64, r)
	if len(alpha) == 0 {
		return out
	}
	v := mat.NewVecDense(r, out)
	v.MulVec(jac, mat.NewVecDense(len(alpha), alpha))
	return out
}

func split6(v []float64) (r3.Vector, r3.Vector) {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, r3.Vector{X: v[3], Y: v[4], Z: v[5]}
}
