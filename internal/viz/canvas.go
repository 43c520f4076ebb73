package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Pixels is the canvas size in dots.
func (c *Canvas) Pixels() (int, int) { return c.Width * 2, c.Height * 4 }

// Set lights the dot at (x, y) in dot coordinates, origin top left.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawCross marks (x, y) with a small plus of the given arm length.
func (c *Canvas) DrawCross(x, y, arm int) {
	c.DrawLine(x-arm, y, x+arm, y)
	c.DrawLine(x, y-arm, x, y+arm)
}

func (c *Canvas) String() string {
	var b strings.Builder
	for i, row := range c.Grid {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(row))
	}
	return b.String()
}

// Viewport maps a world rectangle onto canvas dots, keeping the aspect
// ratio of the world so links do not look stretched.
type Viewport struct {
	MinX, MinY, MaxX, MaxY float64
}

// Fit grows the viewport to contain (x, y).
func (v *Viewport) Fit(x, y float64) {
	v.MinX, v.MaxX = math.Min(v.MinX, x), math.Max(v.MaxX, x)
	v.MinY, v.MaxY = math.Min(v.MinY, y), math.Max(v.MaxY, y)
}

// Pad widens every side by frac of the larger extent.
func (v *Viewport) Pad(frac float64) {
	m := frac * math.Max(v.MaxX-v.MinX, v.MaxY-v.MinY)
	if m == 0 {
		m = 1
	}
	v.MinX, v.MaxX = v.MinX-m, v.MaxX+m
	v.MinY, v.MaxY = v.MinY-m, v.MaxY+m
}

// Map converts world coordinates to canvas dots, y up.
func (v Viewport) Map(c *Canvas, x, y float64) (int, int) {
	w, h := c.Pixels()
	scale := math.Min(float64(w-1)/(v.MaxX-v.MinX), float64(h-1)/(v.MaxY-v.MinY))
	offX := (float64(w-1) - scale*(v.MaxX-v.MinX)) / 2
	offY := (float64(h-1) - scale*(v.MaxY-v.MinY)) / 2
	px := offX + (x-v.MinX)*scale
	py := float64(h-1) - offY - (y-v.MinY)*scale
	return int(math.Round(px)), int(math.Round(py))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
