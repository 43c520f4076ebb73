package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/sim"
)

// ControlEffort is the mean norm of the solved joint accelerations alphaD
// over a run. The largest single-cycle norm is kept as well.
type ControlEffort struct {
	sum     float64
	peak    float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s *sim.Snapshot) {
	if s.AlphaD == nil {
		return
	}
	n := mat.Norm(s.AlphaD, 2)
	c.sum += n
	c.peak = max(c.peak, n)
	c.samples++
}

// Peak is the largest alphaD norm seen since the last Reset.
func (c *ControlEffort) Peak() float64 { return c.peak }

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum, c.peak = 0, 0
	c.samples = 0
}
