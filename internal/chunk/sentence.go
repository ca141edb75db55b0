package chunk

import "strings"

// common abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "approx": true, "dept": true, "est": true,
	"fig": true, "no": true, "vol": true,
}

// SplitSentences splits a paragraph into sentences on terminal punctuation,
// skipping common abbreviations and decimal numbers. Useful for callers that
// want finer granularity than the paragraph-level chunker provides.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && !sentenceBoundary(runes, i) {
			continue
		}

		// Consume trailing closers like quotes and parens.
		end := i + 1
		for end < len(runes) && strings.ContainsRune(`"')]`, runes[end]) {
			end++
		}
		// A boundary needs following whitespace or end of text.
		if end < len(runes) && runes[end] != ' ' && runes[end] != '\n' && runes[end] != '\t' {
			continue
		}

		sentence := strings.TrimSpace(string(runes[start:end]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
		i = end - 1
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// sentenceBoundary reports whether the period at runes[i] ends a sentence.
func sentenceBoundary(runes []rune, i int) bool {
	// Decimal number: digit on both sides.
	if i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
		return false
	}

	// Walk back to the start of the preceding word.
	j := i
	for j > 0 && (isLetter(runes[j-1]) || runes[j-1] == '.') {
		j--
	}
	word := strings.ToLower(strings.TrimSuffix(string(runes[j:i]), "."))
	if abbreviations[word] {
		return false
	}

	// Single capital letter reads as an initial: "J. Smith".
	if i-j == 1 && runes[j] >= 'A' && runes[j] <= 'Z' {
		return false
	}
	return true
}

func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
