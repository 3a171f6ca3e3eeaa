// Package inbox provides labeled demo emails and reads email batches from
// JSON Lines files.
package inbox

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/crimson-sun/mailclass/internal/model"
)

//go:embed templates.json
var templatesJSON []byte

// Template is one labeled email with {placeholder} slots.
type Template struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var (
	names    = []string{"Alice", "Bob", "Priya", "Kenji", "Maria", "Omar", "Lena", "Sam"}
	shops    = []string{"shopmart", "stylehub", "gadgetly", "homegoods"}
	networks = []string{"Facebook", "Instagram", "LinkedIn", "Twitter"}
	forums   = []string{"golang", "rustlang", "kubernetes", "homelab"}
	times    = []string{"9 AM", "11:30 AM", "2 PM", "3 PM", "4:15 PM"}
	percents = []string{"20", "30", "40", "50", "70"}
)

// LoadTemplates parses the embedded templates, keyed by label.
func LoadTemplates() (map[model.Label][]Template, error) {
	var raw map[string][]Template
	if err := json.Unmarshal(templatesJSON, &raw); err != nil {
		return nil, fmt.Errorf("inbox: parse templates.json: %w", err)
	}
	out := make(map[model.Label][]Template, len(raw))
	for name, ts := range raw {
		l, err := model.ParseLabel(name)
		if err != nil {
			return nil, fmt.Errorf("inbox: templates.json: %w", err)
		}
		out[l] = ts
	}
	return out, nil
}

// Generator produces a reproducible stream of labeled emails.
type Generator struct {
	rng       *rand.Rand
	templates map[model.Label][]Template
	n         int
}

// NewGenerator creates a generator; equal seeds yield equal emails.
func NewGenerator(seed uint64) (*Generator, error) {
	ts, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		templates: ts,
	}, nil
}

// Next returns the next email, labeled with the category it was drawn from.
func (g *Generator) Next() model.Email {
	label := model.Label(g.rng.IntN(model.NumLabels))
	ts := g.templates[label]
	t := ts[g.rng.IntN(len(ts))]

	r := strings.NewReplacer(
		"{name}", pick(g.rng, names),
		"{shop}", pick(g.rng, shops),
		"{network}", pick(g.rng, networks),
		"{forum}", pick(g.rng, forums),
		"{time}", pick(g.rng, times),
		"{percent}", pick(g.rng, percents),
		"{code}", fmt.Sprintf("%06d", g.rng.IntN(1_000_000)),
	)

	g.n++
	return model.Email{
		ID:       "demo-" + strconv.Itoa(g.n),
		From:     strings.ToLower(r.Replace(t.From)),
		Subject:  r.Replace(t.Subject),
		Body:     r.Replace(t.Body),
		Expected: &label,
	}
}

// Generate returns n emails from a fresh generator seeded with seed.
func Generate(seed uint64, n int) ([]model.Email, error) {
	g, err := NewGenerator(seed)
	if err != nil {
		return nil, err
	}
	out := make([]model.Email, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out, nil
}

func pick(r *rand.Rand, xs []string) string {
	return xs[r.IntN(len(xs))]
}

// ReadJSONL reads one JSON email object per line. Blank lines are skipped
// and emails without an id are numbered by line.
func ReadJSONL(r io.Reader) ([]model.Email, error) {
	var out []model.Email
	err := scanJSONL(r, func(e model.Email) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StreamJSONL parses r like ReadJSONL and sends each email on ch as soon as
// its line is read. ch is closed when StreamJSONL returns.
func StreamJSONL(ctx context.Context, r io.Reader, ch chan<- model.Email) error {
	defer close(ch)
	return scanJSONL(r, func(e model.Email) error {
		select {
		case ch <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func scanJSONL(r io.Reader, emit func(model.Email) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var e model.Email
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return fmt.Errorf("inbox: line %d: %w", line, err)
		}
		if e.ID == "" {
			e.ID = "line-" + strconv.Itoa(line)
		}
		if err := emit(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	return nil
}
