package rbd

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
)

func checkMass(mb *MultiBody) error {
	if mb.mass <= 0 {
		return errors.Wrapf(qp.ErrNumericalDegeneracy, "robot %q has no mass", mb.name)
	}
	return nil
}

// CoM returns the world position of the center of mass.
func CoM(mb *MultiBody, c *Config) (r3.Vector, error) {
	if err := checkMass(mb); err != nil {
		return r3.Vector{}, err
	}
	var sum r3.Vector
	for i, b := range mb.bodies {
		sum = sum.Add(c.BodyPosW[i].Apply(b.CoM).Mul(b.Mass))
	}
	return sum.Mul(1 / mb.mass), nil
}

// CoMJacobian returns the 3×NrDof Jacobian of the center of mass.
func CoMJacobian(mb *MultiBody, c *Config) (*mat.Dense, error) {
	if err := checkMass(mb); err != nil {
		return nil, err
	}
	jac := mat.NewDense(3, mb.nrDof, nil)
	body := mat.NewDense(6, mb.nrDof, nil)
	for i, b := range mb.bodies {
		if b.Mass == 0 {
			continue
		}
		body.Zero()
		pointJacobianInto(body, mb, c, i, c.BodyPosW[i].Apply(b.CoM))
		var lin mat.Dense
		lin.Scale(b.Mass/mb.mass, body.Slice(3, 6, 0, mb.nrDof))
		jac.Add(jac, &lin)
	}
	return jac, nil
}

// CoMVelocity returns the velocity of the center of mass.
func CoMVelocity(mb *MultiBody, c *Config) (r3.Vector, error) {
	jac, err := CoMJacobian(mb, c)
	if err != nil {
		return r3.Vector{}, err
	}
	return vec3(mulAlpha(jac, c.Alpha)), nil
}

// CoMNormalAcc returns J̇_com·alpha.
func CoMNormalAcc(mb *MultiBody, c *Config) (r3.Vector, error) {
	if err := checkMass(mb); err != nil {
		return r3.Vector{}, err
	}
	acc := NormalAcc(mb, c, func(cc *Config) []float64 {
		jac, _ := CoMJacobian(mb, cc)
		return mulAlpha(jac, cc.Alpha)
	})
	return vec3(acc), nil
}

// MomentumMatrix returns the 6×NrDof centroidal momentum matrix A with
// A·alpha = [Σ mᵢ(pᵢ−c)×vᵢ ; Σ mᵢvᵢ].
func MomentumMatrix(mb *MultiBody, c *Config) (*mat.Dense, error) {
	com, err := CoM(mb, c)
	if err != nil {
		return nil, err
	}
	n := mb.nrDof
	a := mat.NewDense(6, n, nil)
	body := mat.NewDense(6, n, nil)
	for i, b := range mb.bodies {
		if b.Mass == 0 {
			continue
		}
		p := c.BodyPosW[i].Apply(b.CoM)
		body.Zero()
		pointJacobianInto(body, mb, c, i, p)
		arm := p.Sub(com)
		for col := 0; col < n; col++ {
			v := r3.Vector{X: body.At(3, col), Y: body.At(4, col), Z: body.At(5, col)}
			ang := arm.Cross(v).Mul(b.Mass)
			lin := v.Mul(b.Mass)
			a.Set(0, col, a.At(0, col)+ang.X)
			a.Set(1, col, a.At(1, col)+ang.Y)
			a.Set(2, col, a.At(2, col)+ang.Z)
			a.Set(3, col, a.At(3, col)+lin.X)
			a.Set(4, col, a.At(4, col)+lin.Y)
			a.Set(5, col, a.At(5, col)+lin.Z)
		}
	}
	return a, nil
}

// CentroidalMomentum returns the angular and linear momentum about the
// center of mass.
func CentroidalMomentum(mb *MultiBody, c *Config) (ang, lin r3.Vector, err error) {
	a, err := MomentumMatrix(mb, c)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	ang, lin = split6(mulAlpha(a, c.Alpha))
	return ang, lin, nil
}

// MomentumNormalAcc returns Ȧ·alpha.
func MomentumNormalAcc(mb *MultiBody, c *Config) (ang, lin r3.Vector, err error) {
	if err := checkMass(mb); err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	ang, lin = split6(NormalAcc(mb, c, func(cc *Config) []float64 {
		a, _ := MomentumMatrix(mb, cc)
		return mulAlpha(a, cc.Alpha)
	}))
	return ang, lin, nil
}

func vec3(v []float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
