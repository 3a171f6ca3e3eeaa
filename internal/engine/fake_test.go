package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/crimson-sun/mailclass/internal/engine/tokenizer"
	"github.com/crimson-sun/mailclass/internal/model"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"your", "verification", "code", "is", "482", "##915",
	"team", "meeting", "moved", "to", "3", "pm",
	"50", "%", "off", "sale", "!", "win", "a", "free", "prize",
}

// fakeModel scores each row from its unmasked token IDs, so results depend
// only on the tokens the model actually sees. Tokens listed in boost push
// the matching label up.
type fakeModel struct {
	numLabels int
	boost     map[int64]model.Label

	mu      sync.Mutex
	failN   int
	failErr error
	nan     bool

	calls  atomic.Int32
	closed atomic.Bool
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		numLabels: model.NumLabels,
		boost: map[int64]model.Label{
			5:  model.CodeVerification, // verification
			11: model.WorkUpdates,      // meeting
			18: model.Promotions,       // off
			23: model.Spam,             // free
		},
	}
}

// failNext makes the next n calls return err.
func (m *fakeModel) failNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN, m.failErr = n, err
}

func (m *fakeModel) Logits(ctx context.Context, b tokenizer.Batch) ([]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.failN > 0 {
		m.failN--
		err := m.failErr
		m.mu.Unlock()
		return nil, err
	}
	nan := m.nan
	m.mu.Unlock()

	out := make([]float32, int(b.Size)*m.numLabels)
	for r := range int(b.Size) {
		row := out[r*m.numLabels : (r+1)*m.numLabels]
		for j := range int(b.SeqLen) {
			off := r*int(b.SeqLen) + j
			if b.AttentionMask[off] == 0 {
				continue
			}
			id := b.InputIDs[off]
			for k := range row {
				row[k] += float32((id*int64(k+3))%17) / 10
			}
			if l, ok := m.boost[id]; ok && int(l) < len(row) {
				row[l] += 5
			}
		}
		if nan {
			row[0] = float32(math.NaN())
		}
	}
	return out, nil
}

func (m *fakeModel) NumLabels() int { return m.numLabels }

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

var errFakeRun = errors.New("fake: run failed")

func newTestTokenizer(t *testing.T, opts ...tokenizer.Option) *tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.New(testVocab, opts...)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}
	return tok
}

func newTestHandle(t *testing.T, id string, m Model, opts ...tokenizer.Option) *Handle {
	t.Helper()
	h, err := NewHandle(id, newTestTokenizer(t, opts...), m)
	if err != nil {
		t.Fatalf("NewHandle() error: %v", err)
	}
	return h
}
