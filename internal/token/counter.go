// Package token provides token counting for chunk budgeting.
//
// Counters are estimates, not exact tokenizer output. Each implementation
// documents its expected error margin; callers absorb that margin by shrinking
// the usable chunk budget with a padding factor (see chunk.Config).
package token

import (
	"strings"
	"unicode"
)

// Counter estimates the number of model tokens in a text span.
// Implementations differ only in accuracy and speed, never in interface.
type Counter interface {
	// Count returns the estimated token count for text.
	Count(text string) int

	// CountBatch returns estimated token counts for each text.
	CountBatch(texts []string) []int

	// Name returns the counter identifier used in configuration.
	Name() string
}

// Counter names accepted in configuration.
const (
	CounterHeuristic = "heuristic"
	CounterWord      = "word"
)

// charsPerToken is the byte-length heuristic ratio. English prose averages
// roughly 4 characters per BPE token.
const charsPerToken = 4

// tokensPerWord approximates BPE splitting of whitespace-delimited words.
// Common words map to one token, longer or rarer words split into several.
const tokensPerWord = 1.33

// HeuristicCounter estimates tokens from byte length (len/4).
//
// Fastest option, with the widest error margin: roughly +/-25% against real
// BPE tokenizers, worse on code or non-Latin scripts. Intended for use with a
// padding factor of 0.8 or lower.
type HeuristicCounter struct{}

// NewHeuristicCounter creates a byte-length heuristic counter.
func NewHeuristicCounter() *HeuristicCounter {
	return &HeuristicCounter{}
}

func (c *HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

func (c *HeuristicCounter) CountBatch(texts []string) []int {
	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = c.Count(t)
	}
	return counts
}

func (c *HeuristicCounter) Name() string { return CounterHeuristic }

// WordCounter estimates tokens from whitespace-delimited word count
// (words * 1.33, punctuation counted separately).
//
// Slower than HeuristicCounter but tighter on prose: roughly +/-15% against
// real BPE tokenizers. Intended for use with a padding factor around 0.85.
type WordCounter struct{}

// NewWordCounter creates a word-based counter.
func NewWordCounter() *WordCounter {
	return &WordCounter{}
}

func (c *WordCounter) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	words := 0
	punct := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
			inWord = false
		default:
			if !inWord {
				words++
				inWord = true
			}
		}
	}

	n := int(float64(words)*tokensPerWord) + punct
	if n == 0 {
		n = 1
	}
	return n
}

func (c *WordCounter) CountBatch(texts []string) []int {
	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = c.Count(t)
	}
	return counts
}

func (c *WordCounter) Name() string { return CounterWord }

// Verify interface implementations at compile time
var (
	_ Counter = (*HeuristicCounter)(nil)
	_ Counter = (*WordCounter)(nil)
)

// New creates a counter by name. Unknown names fall back to the heuristic
// counter; the factory never fails so chunking always has a counter.
func New(name string) Counter {
	switch name {
	case CounterWord:
		return NewWordCounter()
	default:
		return NewHeuristicCounter()
	}
}
