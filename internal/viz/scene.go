package viz

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/qptasks/internal/rbd"
)

// Plane selects the two world axes a scene is projected on.
type Plane string

const (
	PlaneXZ Plane = "xz"
	PlaneXY Plane = "xy"
	PlaneYZ Plane = "yz"
)

func ParsePlane(s string) (Plane, error) {
	switch p := Plane(s); p {
	case PlaneXZ, PlaneXY, PlaneYZ:
		return p, nil
	}
	return "", errors.Errorf("unknown plane %q, want xz, xy or yz", s)
}

func (p Plane) project(v r3.Vector) (float64, float64) {
	switch p {
	case PlaneXY:
		return v.X, v.Y
	case PlaneYZ:
		return v.Y, v.Z
	}
	return v.X, v.Z
}

// Scene draws robots as stick figures: one segment per parent to child
// joint frame, plus Tip expressed in the last body of each robot.
type Scene struct {
	Plane   Plane
	Tip     r3.Vector
	Markers []r3.Vector

	view  Viewport
	fixed bool
}

// Lock freezes the viewport to the extent of the given state so the scene
// does not rescale from frame to frame.
func (s *Scene) Lock(mbs []*rbd.MultiBody, cfgs []*rbd.Config) {
	s.fixed = false
	s.view = s.fit(mbs, cfgs)
	s.fixed = true
}

func (s *Scene) fit(mbs []*rbd.MultiBody, cfgs []*rbd.Config) Viewport {
	var v Viewport
	first := true
	add := func(p r3.Vector) {
		x, y := s.Plane.project(p)
		if first {
			v = Viewport{MinX: x, MaxX: x, MinY: y, MaxY: y}
			first = false
			return
		}
		v.Fit(x, y)
	}
	for r := range mbs {
		for _, pts := range s.chain(mbs[r], cfgs[r]) {
			add(pts[0])
			add(pts[1])
		}
	}
	for _, m := range s.Markers {
		add(m)
	}
	v.Pad(0.25)
	return v
}

// chain returns the segments of one robot in world coordinates.
func (s *Scene) chain(mb *rbd.MultiBody, c *rbd.Config) [][2]r3.Vector {
	var segs [][2]r3.Vector
	for i := 0; i < mb.NrBodies(); i++ {
		p := mb.Parent(i)
		if p < 0 {
			continue
		}
		segs = append(segs, [2]r3.Vector{c.BodyPosW[p].Trans, c.BodyPosW[i].Trans})
	}
	if n := mb.NrBodies(); n > 0 && s.Tip != (r3.Vector{}) {
		last := c.BodyPosW[n-1]
		segs = append(segs, [2]r3.Vector{last.Trans, last.Apply(s.Tip)})
	}
	return segs
}

// Draw renders every robot onto c. Forward kinematics must be current.
func (s *Scene) Draw(c *Canvas, mbs []*rbd.MultiBody, cfgs []*rbd.Config) {
	view := s.view
	if !s.fixed {
		view = s.fit(mbs, cfgs)
	}
	c.Clear()
	for r := range mbs {
		for _, seg := range s.chain(mbs[r], cfgs[r]) {
			x0, y0 := s.Plane.project(seg[0])
			x1, y1 := s.Plane.project(seg[1])
			px0, py0 := view.Map(c, x0, y0)
			px1, py1 := view.Map(c, x1, y1)
			c.DrawLine(px0, py0, px1, py1)
		}
	}
	for _, m := range s.Markers {
		x, y := s.Plane.project(m)
		px, py := view.Map(c, x, y)
		c.DrawCross(px, py, 2)
	}
}
