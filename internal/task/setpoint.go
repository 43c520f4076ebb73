package task

import (
	"github.com/san-kum/qptasks/internal/control"
	"github.com/san-kum/qptasks/internal/measure"
	"github.com/san-kum/qptasks/internal/rbd"
)

// SetPointTask drives a measurement to zero error with a critically damped
// spring of stiffness k.
type SetPointTask struct {
	*Kernel
	law *control.SetPoint
}

// NewSetPointTask returns a set-point task on a measurement of one robot.
func NewSetPointTask(mbs []*rbd.MultiBody, robot int, m measure.Measurement, stiffness, weight float64, opts ...Option) (*SetPointTask, error) {
	law, err := control.NewSetPoint(stiffness)
	if err != nil {
		return nil, err
	}
	k, err := New(mbs, robot, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	return &SetPointTask{Kernel: k, law: law}, nil
}

// NewMultiSetPointTask returns a set-point task on a measurement coupling
// several robots.
func NewMultiSetPointTask(mbs []*rbd.MultiBody, m measure.MultiMeasurement, stiffness, weight float64, opts ...Option) (*SetPointTask, error) {
	law, err := control.NewSetPoint(stiffness)
	if err != nil {
		return nil, err
	}
	k, err := NewMulti(mbs, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	return &SetPointTask{Kernel: k, law: law}, nil
}

// NewMultiCoMTask drives the combined center of mass of several robots.
func NewMultiCoMTask(mbs []*rbd.MultiBody, m *measure.MultiCoM, stiffness, weight float64, opts ...Option) (*SetPointTask, error) {
	return NewMultiSetPointTask(mbs, m, stiffness, weight, opts...)
}

// NewMultiRobotTransformTask drives the relative pose of two robots'
// surface frames.
func NewMultiRobotTransformTask(mbs []*rbd.MultiBody, m *measure.MultiRobotTransform, stiffness, weight float64, opts ...Option) (*SetPointTask, error) {
	return NewMultiSetPointTask(mbs, m, stiffness, weight, opts...)
}

func (t *SetPointTask) Stiffness() float64 { return t.law.Stiffness() }

func (t *SetPointTask) SetStiffness(k float64) error {
	return wrap(t.name, "set stiffness", t.law.SetStiffness(k))
}

// TrackingTask follows externally computed position and velocity errors
// plus a feed-forward acceleration.
type TrackingTask struct {
	*Kernel
	law *control.Tracking
}

// NewTrackingTask returns a tracking task.
func NewTrackingTask(mbs []*rbd.MultiBody, robot int, m measure.Measurement, gainPos, gainVel, weight float64, opts ...Option) (*TrackingTask, error) {
	law, err := control.NewTracking(gainPos, gainVel)
	if err != nil {
		return nil, err
	}
	k, err := New(mbs, robot, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	return &TrackingTask{Kernel: k, law: law}, nil
}

func (t *TrackingTask) GainPos() float64 { return t.law.GainPos() }
func (t *TrackingTask) GainVel() float64 { return t.law.GainVel() }

func (t *TrackingTask) SetGains(gainPos, gainVel float64) error {
	return wrap(t.name, "set gains", t.law.SetGains(gainPos, gainVel))
}

func (t *TrackingTask) SetErrorPos(e []float64) error {
	return wrap(t.name, "set position error", t.law.SetErrorPos(e))
}

func (t *TrackingTask) SetErrorVel(e []float64) error {
	return wrap(t.name, "set velocity error", t.law.SetErrorVel(e))
}

func (t *TrackingTask) SetRefAccel(a []float64) error {
	return wrap(t.name, "set reference acceleration", t.law.SetRefAccel(a))
}

// TrajectoryTask follows a reference velocity and acceleration around the
// measured error.
type TrajectoryTask struct {
	*Kernel
	law *control.Trajectory
}

// NewTrajectoryTask returns a trajectory task.
func NewTrajectoryTask(mbs []*rbd.MultiBody, robot int, m measure.Measurement, gainPos, gainVel, weight float64, opts ...Option) (*TrajectoryTask, error) {
	law, err := control.NewTrajectory(gainPos, gainVel)
	if err != nil {
		return nil, err
	}
	k, err := New(mbs, robot, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	return &TrajectoryTask{Kernel: k, law: law}, nil
}

func (t *TrajectoryTask) GainPos() float64 { return t.law.GainPos() }
func (t *TrajectoryTask) GainVel() float64 { return t.law.GainVel() }

func (t *TrajectoryTask) SetGains(gainPos, gainVel float64) error {
	return wrap(t.name, "set gains", t.law.SetGains(gainPos, gainVel))
}

func (t *TrajectoryTask) SetRefVel(v []float64) error {
	return wrap(t.name, "set reference velocity", t.law.SetRefVel(v))
}

func (t *TrajectoryTask) SetRefAccel(a []float64) error {
	return wrap(t.name, "set reference acceleration", t.law.SetRefAccel(a))
}

// PIDTask is a PID law whose integral and derivative terms are supplied by
// the caller each cycle.
//
// Deprecated: prefer SetPointTask or TrajectoryTask.
type PIDTask struct {
	*Kernel
	law *control.PID
}

// NewPIDTask returns a PID task.
func NewPIDTask(mbs []*rbd.MultiBody, robot int, m measure.Measurement, p, i, d, weight float64, opts ...Option) (*PIDTask, error) {
	law, err := control.NewPID(p, i, d)
	if err != nil {
		return nil, err
	}
	k, err := New(mbs, robot, m, law, weight, opts...)
	if err != nil {
		return nil, err
	}
	return &PIDTask{Kernel: k, law: law}, nil
}

func (t *PIDTask) P() float64 { return t.law.P() }
func (t *PIDTask) I() float64 { return t.law.I() }
func (t *PIDTask) D() float64 { return t.law.D() }

func (t *PIDTask) SetGains(p, i, d float64) error {
	return wrap(t.name, "set gains", t.law.SetGains(p, i, d))
}

func (t *PIDTask) SetErrorI(e []float64) error {
	return wrap(t.name, "set integral error", t.law.SetErrorI(e))
}

func (t *PIDTask) SetErrorD(e []float64) error {
	return wrap(t.name, "set derivative error", t.law.SetErrorD(e))
}
