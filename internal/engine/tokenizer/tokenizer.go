// Package tokenizer implements BERT-style WordPiece tokenization for the
// sequence-classification models served by mailclass.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTokens is the sequence budget including [CLS] and [SEP].
const DefaultMaxTokens = 256

// maxWordChars matches BERT's max_input_chars_per_word.
const maxWordChars = 100

// Encoding is a single tokenized text without padding.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TokenTypeIDs  []int64

	// Truncated is set when word pieces past the budget were dropped.
	Truncated bool
}

// Len returns the number of real tokens, [CLS] and [SEP] included.
func (e Encoding) Len() int {
	return len(e.IDs)
}

// Batch holds several encodings packed for inference. All slices are flat
// [Size * SeqLen], padded to the longest sequence.
type Batch struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Size          int64
	SeqLen        int64
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithMaxTokens sets the sequence budget. Values below 3 are ignored since
// [CLS] and [SEP] alone take two slots.
func WithMaxTokens(n int) Option {
	return func(t *Tokenizer) {
		if n >= 3 {
			t.maxTokens = n
		}
	}
}

// WithLowercase toggles lowercasing and accent stripping (do_lower_case).
// Default: true.
func WithLowercase(on bool) Option {
	return func(t *Tokenizer) { t.lowercase = on }
}

// Tokenizer performs BERT-style WordPiece tokenization. It is read-only after
// construction and safe for concurrent use.
type Tokenizer struct {
	vocab     *vocab
	maxTokens int
	lowercase bool
}

// Load creates a Tokenizer from a vocab.txt file.
func Load(vocabPath string, opts ...Option) (*Tokenizer, error) {
	tokens, err := readVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return New(tokens, opts...)
}

// New creates a Tokenizer from an in-memory vocabulary in ID order.
func New(tokens []string, opts ...Option) (*Tokenizer, error) {
	v, err := newVocab(tokens)
	if err != nil {
		return nil, err
	}
	t := &Tokenizer{vocab: v, maxTokens: DefaultMaxTokens, lowercase: true}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// MaxTokens returns the sequence budget including [CLS] and [SEP].
func (t *Tokenizer) MaxTokens() int {
	return t.maxTokens
}

// VocabSize returns the number of entries in the vocabulary.
func (t *Tokenizer) VocabSize() int {
	return t.vocab.size()
}

// Encode converts text into [CLS] tokens... [SEP]. Word pieces past the
// budget are dropped from the end, so the kept tokens are always a prefix of
// the full tokenization.
func (t *Tokenizer) Encode(text string) Encoding {
	pieces := t.Tokens(text)

	truncated := false
	if limit := t.maxTokens - 2; len(pieces) > limit {
		pieces = pieces[:limit]
		truncated = true
	}

	n := len(pieces) + 2
	ids := make([]int64, n)
	mask := make([]int64, n)
	typeIDs := make([]int64, n) // single segment, all zeros

	ids[0] = t.vocab.clsID
	for i, p := range pieces {
		ids[i+1] = t.vocab.lookup(p)
	}
	ids[n-1] = t.vocab.sepID
	for i := range mask {
		mask[i] = 1
	}

	return Encoding{IDs: ids, AttentionMask: mask, TokenTypeIDs: typeIDs, Truncated: truncated}
}

// EncodeBatch tokenizes several texts and pads them to the longest one.
func (t *Tokenizer) EncodeBatch(texts []string) Batch {
	if len(texts) == 0 {
		return Batch{}
	}

	encs := make([]Encoding, len(texts))
	maxLen := 0
	for i, text := range texts {
		encs[i] = t.Encode(text)
		if encs[i].Len() > maxLen {
			maxLen = encs[i].Len()
		}
	}
	return Pack(encs, maxLen, t.vocab.padID)
}

// Pack lays out encodings into flat slices of width seqLen, filling the tail
// of shorter sequences with padID and a zero attention mask.
func Pack(encs []Encoding, seqLen int, padID int64) Batch {
	size := len(encs)
	total := size * seqLen
	b := Batch{
		InputIDs:      make([]int64, total),
		AttentionMask: make([]int64, total),
		TokenTypeIDs:  make([]int64, total),
		Size:          int64(size),
		SeqLen:        int64(seqLen),
	}
	for i, e := range encs {
		off := i * seqLen
		for j := 0; j < seqLen; j++ {
			if j < e.Len() {
				b.InputIDs[off+j] = e.IDs[j]
				b.AttentionMask[off+j] = e.AttentionMask[j]
				b.TokenTypeIDs[off+j] = e.TokenTypeIDs[j]
				continue
			}
			b.InputIDs[off+j] = padID
		}
	}
	return b
}

// PadID returns the [PAD] token ID.
func (t *Tokenizer) PadID() int64 {
	return t.vocab.padID
}

// Tokens returns the WordPiece tokens for text without special tokens or
// truncation.
func (t *Tokenizer) Tokens(text string) []string {
	return t.wordpiece(t.basicTokenize(text))
}

// Decode maps IDs back to tokens. Unknown IDs render as [UNK].
func (t *Tokenizer) Decode(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || int(id) >= t.vocab.size() {
			out[i] = "[UNK]"
			continue
		}
		out[i] = t.vocab.idToToken[id]
	}
	return out
}

func (t *Tokenizer) String() string {
	return fmt.Sprintf("wordpiece(vocab=%d, max=%d, lower=%t)", t.vocab.size(), t.maxTokens, t.lowercase)
}

// basicTokenize applies BERT's BasicTokenizer: clean, lowercase, strip
// accents, split on whitespace and punctuation, handle CJK characters.
func (t *Tokenizer) basicTokenize(text string) []string {
	text = cleanText(text)
	text = tokenizeChineseChars(text)
	if t.lowercase {
		text = strings.ToLower(text)
		text = stripAccents(text)
	}

	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

func (t *Tokenizer) wordpiece(tokens []string) []string {
	var result []string
	for _, token := range tokens {
		if len(token) == 0 {
			continue
		}
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

// wordpieceToken decomposes a single basic token into WordPiece subwords
// using greedy longest-match-first.
func (t *Tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > maxWordChars {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}

// cleanText removes control characters and replaces whitespace with spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining diacritical marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizeChineseChars adds spaces around CJK Unified Ideographs so they
// become individual tokens.
func tokenizeChineseChars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isChineseChar(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitOnPunctuation splits a word at each punctuation character, keeping
// the punctuation as separate tokens.
func splitOnPunctuation(word string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range word {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Character classes below follow BERT's reference tokenizer.

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII 33-47, 58-64, 91-96, 123-126 count as punctuation even where
	// Unicode says otherwise ("$", "^", "`").
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
