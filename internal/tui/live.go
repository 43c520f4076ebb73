package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/viz"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"

	historyLen = 60
	tolerance  = 1e-3
)

// LiveRenderer is a sim.Observer that redraws the scene and the task table
// to a terminal at most frameRate times per second.
type LiveRenderer struct {
	out       io.Writer
	title     string
	mbs       []*rbd.MultiBody
	scene     *viz.Scene
	canvas    *viz.Canvas
	frameRate int
	lastFrame time.Time
	history   map[string][]float64
	weights   map[string]float64
}

func NewLiveRenderer(out io.Writer, title string, mbs []*rbd.MultiBody, scene *viz.Scene, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{
		out:       out,
		title:     title,
		mbs:       mbs,
		scene:     scene,
		canvas:    viz.NewCanvas(60, 16),
		frameRate: frameRate,
		history:   map[string][]float64{},
		weights:   map[string]float64{},
	}
}

// SetWeights supplies the weight column of the task table.
func (r *LiveRenderer) SetWeights(w map[string]float64) { r.weights = w }

func (r *LiveRenderer) OnStep(s *sim.Snapshot) {
	for i, name := range s.TaskNames {
		r.history[name] = appendHistory(r.history[name], s.TaskErrors[i])
	}
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.out, clearScreen+r.Frame(s))
}

// Frame renders one snapshot without throttling.
func (r *LiveRenderer) Frame(s *sim.Snapshot) string {
	r.scene.Draw(r.canvas, r.mbs, s.Cfgs)

	var b strings.Builder
	fmt.Fprintf(&b, "  %s  t=%.3fs  step %d\n", viz.Title().Render(r.title), s.Time, s.Step)
	b.WriteString(viz.Panel().Render(r.canvas.String()) + "\n")
	b.WriteString(viz.TaskTable(r.rows(s), tolerance, 24) + "\n")
	fmt.Fprintf(&b, "  objective %s\n", viz.Accent().Render(fmt.Sprintf("%.4e", s.Objective)))
	return b.String()
}

func (r *LiveRenderer) rows(s *sim.Snapshot) []viz.TaskRow {
	rows := make([]viz.TaskRow, len(s.TaskNames))
	for i, name := range s.TaskNames {
		rows[i] = viz.TaskRow{Name: name, Error: s.TaskErrors[i], Weight: r.weights[name], History: r.history[name]}
	}
	return rows
}

func appendHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return h
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
