package metrics

import (
	"math"

	"github.com/samber/lo"

	"github.com/san-kum/qptasks/internal/sim"
)

// errorOf returns the error of one task, or the sum over every task when
// task is empty.
func errorOf(s *sim.Snapshot, task string) float64 {
	if task == "" {
		return s.TotalError()
	}
	if i := lo.IndexOf(s.TaskNames, task); i >= 0 {
		return s.TaskErrors[i]
	}
	return math.NaN()
}

func metricName(base, task string) string {
	if task == "" {
		return base
	}
	return base + "." + task
}

// TaskError is the mean error over the run.
type TaskError struct {
	name    string
	task    string
	sum     float64
	samples int
}

// NewTaskError tracks one task, or all of them when task is empty.
func NewTaskError(task string) *TaskError {
	return &TaskError{name: metricName("task_error", task), task: task}
}

func (m *TaskError) Name() string { return m.name }

func (m *TaskError) Observe(s *sim.Snapshot) {
	m.sum += errorOf(s, m.task)
	m.samples++
}

func (m *TaskError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *TaskError) Reset() {
	m.sum = 0
	m.samples = 0
}

// FinalError is the error at the last observed cycle.
type FinalError struct {
	name string
	task string
	last float64
}

func NewFinalError(task string) *FinalError {
	return &FinalError{name: metricName("final_error", task), task: task}
}

func (m *FinalError) Name() string            { return m.name }
func (m *FinalError) Observe(s *sim.Snapshot) { m.last = errorOf(s, m.task) }
func (m *FinalError) Value() float64          { return m.last }
func (m *FinalError) Reset()                  { m.last = 0 }

// Settling is the time after which the error stays below threshold. It is
// +Inf while the error is still above it at the last cycle.
type Settling struct {
	name      string
	task      string
	threshold float64
	since     float64
	settled   bool
	samples   int
}

func NewSettling(task string, threshold float64) *Settling {
	return &Settling{
		name:      metricName("settling_time", task),
		task:      task,
		threshold: threshold,
	}
}

func (m *Settling) Name() string {
	return m.name
}

func (m *Settling) Observe(s *sim.Snapshot) {
	m.samples++
	if errorOf(s, m.task) > m.threshold {
		m.settled = false
		return
	}
	if !m.settled {
		m.settled = true
		m.since = s.Time
	}
}

func (m *Settling) Value() float64 {
	if !m.settled || m.samples == 0 {
		return math.Inf(1)
	}
	return m.since
}

func (m *Settling) Reset() {
	m.settled = false
	m.since = 0
	m.samples = 0
}
