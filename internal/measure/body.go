package measure

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/qptasks/internal/rbd"
)

// bodyPoint is a point rigidly attached to a body of one robot.
type bodyPoint struct {
	robot int
	body  int
	point r3.Vector
}

func newBodyPoint(mbs []*rbd.MultiBody, robot int, body string, point r3.Vector) (bodyPoint, *rbd.MultiBody, error) {
	mb, err := checkRobot(mbs, robot)
	if err != nil {
		return bodyPoint{}, nil, err
	}
	idx, err := mb.BodyIndexByName(body)
	if err != nil {
		return bodyPoint{}, nil, err
	}
	return bodyPoint{robot: robot, body: idx, point: point}, mb, nil
}

// Robot returns the owning robot index.
func (b *bodyPoint) Robot() int { return b.robot }

// Point returns the point in body coordinates.
func (b *bodyPoint) Point() r3.Vector { return b.point }

// SetPoint moves the point, in body coordinates.
func (b *bodyPoint) SetPoint(p r3.Vector) { b.point = p }

// Position drives a body point to a world position.
type Position struct {
	snapshot
	bodyPoint
	target r3.Vector
}

// NewPosition returns a position measurement of point (body coordinates)
// on body.
func NewPosition(mbs []*rbd.MultiBody, robot int, body string, target, point r3.Vector) (*Position, error) {
	bp, mb, err := newBodyPoint(mbs, robot, body, point)
	if err != nil {
		return nil, err
	}
	return &Position{snapshot: newSnapshot(3, mb.NrDof()), bodyPoint: bp, target: target}, nil
}

func (p *Position) Target() r3.Vector     { return p.target }
func (p *Position) SetTarget(t r3.Vector) { p.target = t }

func (p *Position) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, p.robot)
	if err != nil {
		return err
	}
	jac := rbd.PointJacobian(mb, c, p.body, p.point)
	lin := rows(jac, 3, 6)
	_, nLin := rbd.PointNormalAcc(mb, c, p.body, p.point)

	setVec3(p.eval, 0, p.target.Sub(c.BodyPosW[p.body].Apply(p.point)))
	p.speed.CopyVec(mulAlpha(lin, c.Alpha))
	setVec3(p.normalAcc, 0, nLin)
	p.jac.Copy(lin)
	return nil
}

// Orientation drives a body to a world orientation.
type Orientation struct {
	snapshot
	bodyPoint
	target quat.Number
}

// NewOrientation returns an orientation measurement of body.
func NewOrientation(mbs []*rbd.MultiBody, robot int, body string, target quat.Number) (*Orientation, error) {
	bp, mb, err := newBodyPoint(mbs, robot, body, r3.Vector{})
	if err != nil {
		return nil, err
	}
	return &Orientation{snapshot: newSnapshot(3, mb.NrDof()), bodyPoint: bp, target: rbd.Normalize(target)}, nil
}

func (o *Orientation) Target() quat.Number     { return o.target }
func (o *Orientation) SetTarget(t quat.Number) { o.target = rbd.Normalize(t) }

func (o *Orientation) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, o.robot)
	if err != nil {
		return err
	}
	jac := rbd.PointJacobian(mb, c, o.body, r3.Vector{})
	ang := rows(jac, 0, 3)
	nAng, _ := rbd.PointNormalAcc(mb, c, o.body, r3.Vector{})

	setVec3(o.eval, 0, rbd.RotationError(c.BodyPosW[o.body].Rot, o.target))
	o.speed.CopyVec(mulAlpha(ang, c.Alpha))
	setVec3(o.normalAcc, 0, nAng)
	o.jac.Copy(ang)
	return nil
}

// Transform drives a surface frame, attached to a body at offset, to a
// world pose. Rows are [rotation; translation].
type Transform struct {
	snapshot
	bodyPoint
	offset rbd.Transform
	target rbd.Transform
}

// NewTransform returns a 6-D pose measurement of the frame body∘offset.
func NewTransform(mbs []*rbd.MultiBody, robot int, body string, target, offset rbd.Transform) (*Transform, error) {
	bp, mb, err := newBodyPoint(mbs, robot, body, offset.Trans)
	if err != nil {
		return nil, err
	}
	offset.Rot = rbd.Normalize(offset.Rot)
	target.Rot = rbd.Normalize(target.Rot)
	return &Transform{snapshot: newSnapshot(6, mb.NrDof()), bodyPoint: bp, offset: offset, target: target}, nil
}

func (t *Transform) Target() rbd.Transform { return t.target }

func (t *Transform) SetTarget(x rbd.Transform) {
	x.Rot = rbd.Normalize(x.Rot)
	t.target = x
}

func (t *Transform) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, t.robot)
	if err != nil {
		return err
	}
	frame := c.BodyPosW[t.body].Compose(t.offset)
	jac := rbd.PointJacobian(mb, c, t.body, t.offset.Trans)
	nAng, nLin := rbd.PointNormalAcc(mb, c, t.body, t.offset.Trans)

	setVec3(t.eval, 0, rbd.RotationError(frame.Rot, t.target.Rot))
	setVec3(t.eval, 3, t.target.Trans.Sub(frame.Trans))
	t.speed.CopyVec(mulAlpha(jac, c.Alpha))
	setVec3(t.normalAcc, 0, nAng)
	setVec3(t.normalAcc, 3, nLin)
	t.jac.Copy(jac)
	return nil
}

// LinVelocity drives the linear velocity of a body point. Its speed is
// zero: the rate of a velocity is an acceleration, which the task solves
// for.
type LinVelocity struct {
	snapshot
	bodyPoint
	target r3.Vector
}

// NewLinVelocity returns a linear velocity measurement.
func NewLinVelocity(mbs []*rbd.MultiBody, robot int, body string, target, point r3.Vector) (*LinVelocity, error) {
	bp, mb, err := newBodyPoint(mbs, robot, body, point)
	if err != nil {
		return nil, err
	}
	return &LinVelocity{snapshot: newSnapshot(3, mb.NrDof()), bodyPoint: bp, target: target}, nil
}

func (l *LinVelocity) Target() r3.Vector     { return l.target }
func (l *LinVelocity) SetTarget(t r3.Vector) { l.target = t }

func (l *LinVelocity) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config) error {
	mb, c, err := robotAt(mbs, cfgs, l.robot)
	if err != nil {
		return err
	}
	jac := rbd.PointJacobian(mb, c, l.body, l.point)
	lin := rows(jac, 3, 6)
	_, nLin := rbd.PointNormalAcc(mb, c, l.body, l.point)

	setVec3(l.eval, 0, l.target.Sub(vec3At(mulAlpha(lin, c.Alpha), 0)))
	l.speed.Zero()
	setVec3(l.normalAcc, 0, nLin)
	l.jac.Copy(lin)
	return nil
}

// SetPoint moves the frame origin, in body coordinates.
func (t *Transform) SetPoint(p r3.Vector) {
	t.point = p
	t.offset.Trans = p
}
