package tui

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/experiment"
	"github.com/san-kum/qptasks/internal/rbd"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/viz"
)

type state int

const (
	stateMenu state = iota
	stateSim
)

var planes = []viz.Plane{viz.PlaneXZ, viz.PlaneXY, viz.PlaneYZ}

type model struct {
	state   state
	cursor  int
	presets []string
	load    func(name string) *config.Config
	logger  *zap.SugaredLogger

	exp     *experiment.Experiment
	simCfg  sim.Config
	cfgs    []*rbd.Config
	step    int
	simTime float64
	last    *sim.Snapshot
	history map[string][]float64
	err     error

	running bool
	paused  bool
	speed   int
	plane   int
	scene   *viz.Scene

	params      []string
	paramCursor int
	editing     bool
	editBuf     string
	status      string

	width  int
	height int
}

// NewInteractiveApp lists the built-in scenarios; extra scenarios loaded
// from files may be passed in and are shown first.
func NewInteractiveApp(logger *zap.SugaredLogger, extra ...*config.Config) *model {
	byName := map[string]*config.Config{}
	var names []string
	for _, c := range extra {
		byName[c.Name] = c
		names = append(names, c.Name)
	}
	for _, n := range config.ListPresets() {
		if _, ok := byName[n]; !ok {
			names = append(names, n)
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &model{
		state:   stateMenu,
		presets: names,
		load: func(name string) *config.Config {
			if c, ok := byName[name]; ok {
				return c
			}
			return config.GetPreset(name)
		},
		logger: logger,
		speed:  1,
		width:  80,
		height: 24,
	}
}

func (m model) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.state != stateSim || !m.running {
			return m, nil
		}
		if !m.paused {
			for i := 0; i < m.speed && !m.paused; i++ {
				m.advance()
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.state == stateMenu {
		return m.menuKey(msg)
	}
	if m.editing {
		return m.editKey(msg), nil
	}
	return m.simKey(msg)
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", " ":
		if err := m.start(m.presets[m.cursor]); err != nil {
			m.err = err
			return m, nil
		}
		m.state = stateSim
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) simKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		m.running = false
		m.state = stateMenu
		m.exp = nil
		return m, tea.ClearScreen
	case " ":
		m.paused = !m.paused
	case "r":
		m.reset()
	case "+", "=":
		m.speed = min(m.speed*2, 32)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "t":
		m.status = "theme " + viz.NextTheme()
	case "v":
		m.plane = (m.plane + 1) % len(planes)
		m.scene.Plane = planes[m.plane]
		m.scene.Lock(m.exp.Robots(), m.cfgs)
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.params)-1 {
			m.paramCursor++
		}
	case "left", "h":
		m.scaleParam(1 / 1.1)
	case "right", "l":
		m.scaleParam(1.1)
	case "enter":
		if len(m.params) > 0 {
			m.editing = true
			m.editBuf = strconv.FormatFloat(m.exp.Params()[m.params[m.paramCursor]], 'g', 6, 64)
		}
	}
	return m, nil
}

func (m model) editKey(msg tea.KeyMsg) model {
	switch msg.String() {
	case "enter":
		v, err := strconv.ParseFloat(m.editBuf, 64)
		if err != nil {
			m.status = "not a number: " + m.editBuf
		} else {
			m.setParam(m.params[m.paramCursor], v)
		}
		m.editing = false
		m.editBuf = ""
	case "esc":
		m.editing = false
		m.editBuf = ""
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 && strings.ContainsAny(s, "0123456789.-e") {
			m.editBuf += s
		}
	}
	return m
}

func (m *model) scaleParam(f float64) {
	if len(m.params) == 0 {
		return
	}
	name := m.params[m.paramCursor]
	m.setParam(name, m.exp.Params()[name]*f)
}

func (m *model) setParam(name string, v float64) {
	if err := m.exp.SetParam(name, v); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s = %g", name, v)
	m.logger.Infow("parameter changed", "param", name, "value", v, "t", m.simTime)
}

func (m *model) start(name string) error {
	cfg := m.load(name)
	if cfg == nil {
		return fmt.Errorf("unknown scenario %q", name)
	}
	exp, err := experiment.Build(cfg, m.logger)
	if err != nil {
		return err
	}
	m.exp = exp
	m.simCfg = exp.SimConfig()
	m.params = lo.Keys(exp.Params())
	sort.Strings(m.params)
	m.paramCursor = 0
	m.scene = &viz.Scene{Plane: planes[m.plane], Tip: r3.Vector{Z: config.DefaultLinkLength}, Markers: Targets(cfg)}
	m.reset()
	m.scene.Lock(exp.Robots(), m.cfgs)
	m.err = nil
	return nil
}

func (m *model) reset() {
	m.cfgs = m.exp.InitialConfigs()
	m.step = 0
	m.simTime = 0
	m.last = nil
	m.history = map[string][]float64{}
	m.running = true
	m.paused = false
}

func (m *model) advance() {
	if m.simTime >= m.exp.Config().Duration {
		m.paused = true
		return
	}
	snap, err := m.exp.Runner().Step(context.Background(), m.cfgs, m.simCfg, m.step, m.simTime)
	if err != nil {
		m.err = err
		m.paused = true
		return
	}
	for i, name := range snap.TaskNames {
		m.history[name] = appendHistory(m.history[name], snap.TaskErrors[i])
	}
	m.last = snap
	m.step++
	m.simTime = float64(m.step) * m.simCfg.Dt
}

// Targets collects the point references of a scenario so they can be
// marked in the scene.
func Targets(cfg *config.Config) []r3.Vector {
	var out []r3.Vector
	for _, t := range cfg.Tasks {
		switch t.Type {
		case config.TypePosition, config.TypeTransform, config.TypeCoM, config.TypeMultiCoM:
			out = append(out, r3.Vector{X: t.Target[0], Y: t.Target[1], Z: t.Target[2]})
		}
	}
	return out
}

func (m model) View() string {
	if m.state == stateMenu {
		return m.viewMenu()
	}
	return m.viewSim()
}

func (m model) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("    " + viz.Separator(26) + "\n")
	b.WriteString("           " + viz.Title().Render("q p t a s k s") + "\n")
	b.WriteString("    " + viz.Separator(26) + "\n\n")

	for i, name := range m.presets {
		cfg := m.load(name)
		desc := fmt.Sprintf("%d robots, %d tasks", len(cfg.Robots), len(cfg.Tasks))
		if i == m.cursor {
			b.WriteString("      " + viz.Title().Render("▸ ") + viz.Text().Render(fmt.Sprintf("%-12s", name)) + viz.Muted().Render(desc) + "\n")
		} else {
			b.WriteString("        " + viz.Muted().Render(fmt.Sprintf("%-12s", name)) + viz.Muted().Render(desc) + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("\n      " + viz.Failure().Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + viz.Muted().Render("      ↑↓ select   enter start   q quit") + "\n")
	return b.String()
}

func (m model) viewSim() string {
	cfg := m.exp.Config()
	var b strings.Builder

	status := viz.Success().Render("● running")
	if m.paused {
		status = viz.Warning().Render("○ paused")
	}
	fmt.Fprintf(&b, "\n   %s  %s  ×%d  plane %s\n", viz.Title().Render(cfg.Name), status, m.speed, planes[m.plane])

	progress := math.Min(m.simTime/cfg.Duration, 1)
	fmt.Fprintf(&b, "   %s %s\n\n", viz.ProgressBar(progress, 36), viz.Muted().Render(fmt.Sprintf("%.2fs/%.2fs", m.simTime, cfg.Duration)))

	cw := max(m.width/2-4, 30)
	ch := max(m.height-16, 8)
	canvas := viz.NewCanvas(cw, ch)
	m.scene.Draw(canvas, m.exp.Robots(), m.cfgs)
	b.WriteString(viz.Panel().Render(canvas.String()) + "\n")

	if m.last != nil {
		params := m.exp.Params()
		rows := make([]viz.TaskRow, len(m.last.TaskNames))
		for i, name := range m.last.TaskNames {
			rows[i] = viz.TaskRow{Name: name, Error: m.last.TaskErrors[i], Weight: params[name+".weight"], History: m.history[name]}
		}
		b.WriteString(viz.TaskTable(rows, tolerance, 20) + "\n")
	}

	b.WriteString(m.viewParams())
	if m.err != nil {
		b.WriteString("   " + viz.Failure().Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString("   " + viz.Muted().Render(m.status) + "\n")
	}

	b.WriteString("\n" + viz.Muted().Render("   space pause  ±speed  r reset  ↑↓ param  ←→ adjust  enter edit  v plane  t theme  q back") + "\n")
	return b.String()
}

func (m model) viewParams() string {
	if len(m.params) == 0 {
		return ""
	}
	values := m.exp.Params()
	from, to := max(0, m.paramCursor-3), min(len(m.params), m.paramCursor+4)

	var b strings.Builder
	for i := from; i < to; i++ {
		name := m.params[i]
		val := fmt.Sprintf("%10.4g", values[name])
		if m.editing && i == m.paramCursor {
			val = fmt.Sprintf("%10s", m.editBuf+"▋")
		}
		if i == m.paramCursor {
			b.WriteString("   " + viz.Title().Render("▸ ") + viz.Text().Render(fmt.Sprintf("%-24s", name)) + viz.Accent().Render(val) + "\n")
		} else {
			b.WriteString("     " + viz.Muted().Render(fmt.Sprintf("%-24s", name)+val) + "\n")
		}
	}
	return b.String()
}

func RunInteractive(logger *zap.SugaredLogger, extra ...*config.Config) error {
	p := tea.NewProgram(NewInteractiveApp(logger, extra...), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
