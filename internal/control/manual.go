package control

import (
	"gonum.org/v1/gonum/mat"
)

// Manual passes a commanded task acceleration through unchanged. The
// command is scaled by Gain so an operator can fade it in and out.
type Manual struct {
	accel vecParam
	gain  float64
}

func NewManual() *Manual {
	return &Manual{accel: vecParam{name: "accel"}, gain: 1}
}

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Bind(dim int) error { return m.accel.bind(dim) }

// SetAccel replaces the commanded acceleration.
func (m *Manual) SetAccel(a []float64) error { return m.accel.set(a) }

// Command returns the commanded acceleration.
func (m *Manual) Command() []float64 { return m.accel.get() }

func (m *Manual) Accel(_ Signal, dst *mat.VecDense) error {
	if err := m.accel.ready(dst); err != nil {
		return err
	}
	dst.ScaleVec(m.gain, m.accel.v)
	return nil
}

func (m *Manual) Params() map[string]float64 {
	return map[string]float64{"gain": m.gain}
}

func (m *Manual) SetParam(name string, value float64) error {
	if name != "gain" {
		return unknownParam(m.Name(), name)
	}
	if err := checkGain("gain", value); err != nil {
		return err
	}
	m.gain = value
	return nil
}
