package tokenizer

import (
	"bufio"
	"fmt"
	"os"
)

// vocab holds a WordPiece vocabulary. Token IDs are line numbers (0-indexed)
// in vocab.txt.
type vocab struct {
	tokenToID map[string]int64
	idToToken []string

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

// readVocab reads a vocab.txt file, one token per line.
func readVocab(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read error: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: file is empty: %s", path)
	}
	return tokens, nil
}

// newVocab indexes tokens and resolves the special token IDs.
func newVocab(tokens []string) (*vocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: no tokens")
	}
	tokenToID := make(map[string]int64, len(tokens))
	for i, tok := range tokens {
		// First occurrence wins, matching HuggingFace's load_vocab.
		if _, dup := tokenToID[tok]; !dup {
			tokenToID[tok] = int64(i)
		}
	}

	v := &vocab{
		tokenToID: tokenToID,
		idToToken: tokens,
	}

	specials := []struct {
		name string
		dest *int64
	}{
		{"[PAD]", &v.padID},
		{"[UNK]", &v.unkID},
		{"[CLS]", &v.clsID},
		{"[SEP]", &v.sepID},
	}
	for _, s := range specials {
		id, ok := tokenToID[s.name]
		if !ok {
			return nil, fmt.Errorf("vocab: missing special token %s", s.name)
		}
		*s.dest = id
	}

	return v, nil
}

// lookup returns the token ID for the given token, or the [UNK] ID if not found.
func (v *vocab) lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.unkID
}

func (v *vocab) contains(token string) bool {
	_, ok := v.tokenToID[token]
	return ok
}

func (v *vocab) size() int {
	return len(v.idToToken)
}
