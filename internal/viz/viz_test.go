package viz

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/golang/geo/r3"

	"github.com/san-kum/qptasks/internal/rbd"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(4, 2)
	w, h := c.Pixels()
	if w != 8 || h != 8 {
		t.Fatalf("expected 8x8 dots, got %dx%d", w, h)
	}

	c.Set(3, 5)
	if !c.IsSet(3, 5) || c.IsSet(2, 5) {
		t.Error("wrong dot lit")
	}
	c.Set(-1, 0)
	c.Set(100, 0)

	c.DrawLine(0, 0, 7, 7)
	for i := 0; i < 8; i++ {
		if !c.IsSet(i, i) {
			t.Errorf("diagonal dot %d not set", i)
		}
	}

	c.Clear()
	if strings.ContainsFunc(c.String(), func(r rune) bool { return r != blank && r != '\n' }) {
		t.Error("clear left dots behind")
	}
}

func TestViewportKeepsAspect(t *testing.T) {
	c := NewCanvas(20, 5)
	v := Viewport{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}

	x0, y0 := v.Map(c, 0, 0)
	x1, y1 := v.Map(c, 1, 1)
	if x1-x0 != y0-y1 {
		t.Errorf("unit square mapped to %dx%d dots", x1-x0, y0-y1)
	}
	if y0 != 19 || y1 != 0 {
		t.Errorf("y axis should span the canvas upwards, got %d..%d", y0, y1)
	}
}

func TestSceneDrawsArm(t *testing.T) {
	mb, err := rbd.SerialArm(rbd.ArmSpec{
		Name:       "arm",
		Axes:       []r3.Vector{{Z: 1}, {Y: 1}, {Y: 1}},
		LinkLength: 0.5,
		LinkMass:   1,
		Base:       rbd.Identity(),
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := rbd.NewConfig(mb)

	s := &Scene{Plane: PlaneXZ, Tip: r3.Vector{Z: 0.5}, Markers: []r3.Vector{{X: 0.5, Z: 1}}}
	c := NewCanvas(30, 10)
	s.Draw(c, []*rbd.MultiBody{mb}, []*rbd.Config{cfg})

	lit := 0
	w, h := c.Pixels()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if c.IsSet(x, y) {
				lit++
			}
		}
	}
	if lit < h/2 {
		t.Errorf("expected a vertical arm, only %d dots lit", lit)
	}
	if len(s.chain(mb, cfg)) != mb.NrBodies() {
		t.Errorf("expected one segment per link plus the tip")
	}
}

func TestParsePlane(t *testing.T) {
	if p, err := ParsePlane("xy"); err != nil || p != PlaneXY {
		t.Errorf("got %q, %v", p, err)
	}
	if _, err := ParsePlane("zz"); err == nil {
		t.Error("expected error")
	}
}

func TestSparkline(t *testing.T) {
	s := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 4)
	if utf8.RuneCountInString(s) != 4 {
		t.Errorf("expected 4 runes, got %q", s)
	}
	if !strings.HasSuffix(s, "█") || !strings.HasPrefix(s, "▁") {
		t.Errorf("expected rising sparkline, got %q", s)
	}
	if Sparkline(nil, 3) != "   " {
		t.Error("empty sparkline should be blank")
	}
}

func TestThemes(t *testing.T) {
	defer SetTheme(ThemeTerminal.Name)

	names := ThemeNames()
	for i := range names {
		next := NextTheme()
		if next != names[(i+1)%len(names)] {
			t.Errorf("step %d: got %s", i, next)
		}
	}
	if GetTheme("nope").Name != ThemeTerminal.Name {
		t.Error("unknown theme should fall back to default")
	}
}

func TestTaskTable(t *testing.T) {
	out := TaskTable([]TaskRow{
		{Name: "reach", Error: 0.5, Weight: 1, History: []float64{1, 0.5}},
		{Name: "posture", Error: 1e-4, Weight: 0.1},
	}, 1e-3, 8)
	for _, want := range []string{"task", "reach", "posture", "5.000e-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
