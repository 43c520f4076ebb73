package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func Title() lipgloss.Style   { return fg(CurrentTheme.Primary).Bold(true) }
func Text() lipgloss.Style    { return fg(CurrentTheme.Text) }
func Muted() lipgloss.Style   { return fg(CurrentTheme.Muted) }
func Accent() lipgloss.Style  { return fg(CurrentTheme.Secondary) }
func Success() lipgloss.Style { return fg(CurrentTheme.Success) }
func Warning() lipgloss.Style { return fg(CurrentTheme.Warning) }
func Failure() lipgloss.Style { return fg(CurrentTheme.Error) }

func Panel() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Muted).
		Padding(0, 1)
}

// ErrorStyle colors a task error against the convergence tolerance: below
// tol is good, below 10·tol is close.
func ErrorStyle(e, tol float64) lipgloss.Style {
	switch {
	case math.IsNaN(e) || e >= 10*tol:
		return Failure()
	case e >= tol:
		return Warning()
	}
	return Success()
}

// ProgressBar renders a fraction in [0,1] as a bar of the given width.
func ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(filled, width))
	return Title().Render(strings.Repeat("━", filled)) + Muted().Render(strings.Repeat("─", width-filled))
}

var sparks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders the last width values, scaled to their own range.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat(" ", max(width, 0))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / rng * float64(len(sparks)-1))
		b.WriteRune(sparks[max(0, min(idx, len(sparks)-1))])
	}
	return b.String()
}

func Separator(width int) string {
	return Muted().Render(strings.Repeat("─", max(width, 0)))
}

// TaskRow is one line of a TaskTable.
type TaskRow struct {
	Name    string
	Error   float64
	Weight  float64
	History []float64
}

// TaskTable renders task errors with a trend column. tol drives the error
// coloring.
func TaskTable(rows []TaskRow, tol float64, sparkWidth int) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Name, fmt.Sprintf("%.3e", r.Error), fmt.Sprintf("%g", r.Weight), Sparkline(r.History, sparkWidth)}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(Muted()).
		Headers("task", "error", "weight", "trend").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return s.Inherit(Title())
			case col == 1:
				return s.Inherit(ErrorStyle(rows[row].Error, tol))
			case col == 3:
				return s.Inherit(Accent())
			}
			return s.Inherit(Text())
		})
	return t.String()
}
