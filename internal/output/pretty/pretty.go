// Package pretty renders classification records as styled terminal cards.
package pretty

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/crimson-sun/mailclass/internal/model"
	"github.com/crimson-sun/mailclass/internal/output"
)

const barWidth = 24

var (
	accentColor  = lipgloss.Color("#4ECDC4")
	warningColor = lipgloss.Color("#FFE66D")
	errorColor   = lipgloss.Color("#FF6B6B")
	subtleColor  = lipgloss.Color("#666666")
)

type styles struct {
	card    lipgloss.Style
	label   lipgloss.Style
	subtle  lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	barFill lipgloss.Style
	barRest lipgloss.Style
	name    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtleColor).
			Padding(0, 1),
		label:   r.NewStyle().Bold(true).Foreground(accentColor),
		subtle:  r.NewStyle().Foreground(subtleColor),
		good:    r.NewStyle().Foreground(accentColor),
		bad:     r.NewStyle().Foreground(errorColor),
		barFill: r.NewStyle().Foreground(warningColor),
		barRest: r.NewStyle().Foreground(subtleColor),
		name:    r.NewStyle().Width(22),
	}
}

// Output writes one bordered card per record. Color is only emitted when w
// is a terminal.
type Output struct {
	mu        sync.Mutex
	w         io.Writer
	verbosity output.Verbosity
	st        styles
}

// New creates a pretty Output writing to w.
func New(w io.Writer, verbosity output.Verbosity) *Output {
	return &Output{
		w:         w,
		verbosity: verbosity,
		st:        newStyles(lipgloss.NewRenderer(w)),
	}
}

func (o *Output) Write(_ context.Context, rec output.Record) error {
	card := o.Render(rec)
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := fmt.Fprintln(o.w, card)
	return err
}

func (o *Output) Close() error {
	return nil
}

// Render returns the card for rec without writing it.
func (o *Output) Render(rec output.Record) string {
	st := o.st
	var lines []string

	head := st.label.Render(rec.Result.Label().String()) + "  " + formatPercent(rec.Result.Confidence())
	if rec.ID != "" {
		head = st.subtle.Render(rec.ID) + "  " + head
	}
	lines = append(lines, head)

	if o.verbosity >= output.Standard {
		if rec.From != "" {
			lines = append(lines, st.subtle.Render("from: ")+rec.From)
		}
		if rec.Subject != "" {
			lines = append(lines, st.subtle.Render("subject: ")+rec.Subject)
		}
		if correct, known := rec.Correct(); known {
			if correct {
				lines = append(lines, st.good.Render("✓ expected "+rec.Expected.String()))
			} else {
				lines = append(lines, st.bad.Render("✗ expected "+rec.Expected.String()))
			}
		}
	}

	if o.verbosity >= output.Full {
		lines = append(lines, "")
		dist := rec.Result.Distribution()
		for i, p := range dist {
			lines = append(lines, st.name.Render(model.Label(i).String())+bar(st, p)+" "+formatPercent(p))
		}
	}

	return st.card.Render(strings.Join(lines, "\n"))
}

// bar draws a fixed-width horizontal bar for a probability in [0, 1].
func bar(st styles, p float64) string {
	filled := int(math.Round(clamp01(p) * barWidth))
	return st.barFill.Render(strings.Repeat("█", filled)) +
		st.barRest.Render(strings.Repeat("░", barWidth-filled))
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%5.1f%%", clamp01(p)*100)
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
