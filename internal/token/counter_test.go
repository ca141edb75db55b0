package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCounter_Count(t *testing.T) {
	c := NewHeuristicCounter()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short word rounds up to one", "hi", 1},
		{"eight chars is two tokens", "abcdefgh", 2},
		{"hundred chars", strings.Repeat("a", 100), 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Count(tt.text))
		})
	}
}

func TestWordCounter_Count(t *testing.T) {
	c := NewWordCounter()

	// Given: a ten-word sentence with one period
	text := "the quick brown fox jumps over the lazy sleeping dog."

	// Then: count is words*1.33 + punctuation = 13 + 1
	assert.Equal(t, 14, c.Count(text))

	// And: whitespace-only input counts as zero
	assert.Equal(t, 0, c.Count("   \n\t "))
}

func TestCountBatch_MatchesCount(t *testing.T) {
	texts := []string{"one", "two words here", "", strings.Repeat("x", 40)}

	for _, c := range []Counter{NewHeuristicCounter(), NewWordCounter()} {
		counts := c.CountBatch(texts)
		assert.Len(t, counts, len(texts))
		for i, text := range texts {
			assert.Equal(t, c.Count(text), counts[i], "counter %s index %d", c.Name(), i)
		}
	}
}

func TestNew_SelectsByName(t *testing.T) {
	assert.Equal(t, CounterWord, New("word").Name())
	assert.Equal(t, CounterHeuristic, New("heuristic").Name())
	// Unknown names fall back to heuristic rather than failing
	assert.Equal(t, CounterHeuristic, New("tiktoken").Name())
}
