package control

import (
	"gonum.org/v1/gonum/mat"
)

// Tracking follows externally computed errors:
// a = kp·errorPos + kv·errorVel + refAccel.
// The measurement only fixes the dimension.
type Tracking struct {
	gainPos, gainVel float64
	errorPos         vecParam
	errorVel         vecParam
	refAccel         vecParam
}

// NewTracking returns a tracking law with the given gains.
func NewTracking(gainPos, gainVel float64) (*Tracking, error) {
	t := &Tracking{
		errorPos: vecParam{name: "errorPos"},
		errorVel: vecParam{name: "errorVel"},
		refAccel: vecParam{name: "refAccel"},
	}
	if err := t.SetGains(gainPos, gainVel); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracking) Name() string { return "tracking" }

func (t *Tracking) Bind(dim int) error {
	for _, p := range []*vecParam{&t.errorPos, &t.errorVel, &t.refAccel} {
		if err := p.bind(dim); err != nil {
			return err
		}
	}
	return nil
}

// SetGains replaces kp and kv.
func (t *Tracking) SetGains(gainPos, gainVel float64) error {
	if err := checkGain("gainPos", gainPos); err != nil {
		return err
	}
	if err := checkGain("gainVel", gainVel); err != nil {
		return err
	}
	t.gainPos, t.gainVel = gainPos, gainVel
	return nil
}

func (t *Tracking) GainPos() float64 { return t.gainPos }
func (t *Tracking) GainVel() float64 { return t.gainVel }

func (t *Tracking) SetErrorPos(e []float64) error { return t.errorPos.set(e) }
func (t *Tracking) SetErrorVel(e []float64) error { return t.errorVel.set(e) }
func (t *Tracking) SetRefAccel(a []float64) error { return t.refAccel.set(a) }
func (t *Tracking) ErrorPos() []float64           { return t.errorPos.get() }
func (t *Tracking) ErrorVel() []float64           { return t.errorVel.get() }
func (t *Tracking) RefAccel() []float64           { return t.refAccel.get() }

func (t *Tracking) Accel(_ Signal, dst *mat.VecDense) error {
	for _, p := range []*vecParam{&t.errorPos, &t.errorVel, &t.refAccel} {
		if err := p.ready(dst); err != nil {
			return err
		}
	}
	dst.ScaleVec(t.gainPos, t.errorPos.v)
	dst.AddScaledVec(dst, t.gainVel, t.errorVel.v)
	dst.AddVec(dst, t.refAccel.v)
	return nil
}

func (t *Tracking) Params() map[string]float64 {
	return map[string]float64{"kp": t.gainPos, "kv": t.gainVel}
}

func (t *Tracking) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		return t.SetGains(value, t.gainVel)
	case "kv":
		return t.SetGains(t.gainPos, value)
	}
	return unknownParam(t.Name(), name)
}

// Trajectory follows a reference velocity and acceleration around the
// measured error: a = kp·e + kv·(refVel − speed) + refAccel.
type Trajectory struct {
	gainPos, gainVel float64
	refVel           vecParam
	refAccel         vecParam
}

// NewTrajectory returns a trajectory law with the given gains.
func NewTrajectory(gainPos, gainVel float64) (*Trajectory, error) {
	t := &Trajectory{
		refVel:   vecParam{name: "refVel"},
		refAccel: vecParam{name: "refAccel"},
	}
	if err := t.SetGains(gainPos, gainVel); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trajectory) Name() string { return "trajectory" }

func (t *Trajectory) Bind(dim int) error {
	if err := t.refVel.bind(dim); err != nil {
		return err
	}
	return t.refAccel.bind(dim)
}

// SetGains replaces kp and kv.
func (t *Trajectory) SetGains(gainPos, gainVel float64) error {
	if err := checkGain("gainPos", gainPos); err != nil {
		return err
	}
	if err := checkGain("gainVel", gainVel); err != nil {
		return err
	}
	t.gainPos, t.gainVel = gainPos, gainVel
	return nil
}

func (t *Trajectory) GainPos() float64 { return t.gainPos }
func (t *Trajectory) GainVel() float64 { return t.gainVel }

func (t *Trajectory) SetRefVel(v []float64) error   { return t.refVel.set(v) }
func (t *Trajectory) SetRefAccel(a []float64) error { return t.refAccel.set(a) }
func (t *Trajectory) RefVel() []float64             { return t.refVel.get() }
func (t *Trajectory) RefAccel() []float64           { return t.refAccel.get() }

func (t *Trajectory) Accel(s Signal, dst *mat.VecDense) error {
	if err := checkSignal(s, dst); err != nil {
		return err
	}
	if err := t.refVel.ready(dst); err != nil {
		return err
	}
	if err := t.refAccel.ready(dst); err != nil {
		return err
	}
	var dv mat.VecDense
	dv.SubVec(t.refVel.v, s.Speed())
	dst.ScaleVec(t.gainPos, s.Eval())
	dst.AddScaledVec(dst, t.gainVel, &dv)
	dst.AddVec(dst, t.refAccel.v)
	return nil
}

func (t *Trajectory) Params() map[string]float64 {
	return map[string]float64{"kp": t.gainPos, "kv": t.gainVel}
}

func (t *Trajectory) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		return t.SetGains(value, t.gainVel)
	case "kv":
		return t.SetGains(t.gainPos, value)
	}
	return unknownParam(t.Name(), name)
}
