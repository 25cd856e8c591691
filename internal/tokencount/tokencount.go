// Package tokencount estimates token counts for prompt/completion usage
// accounting. Exact upstream token counts aren't available, so this package
// uses a Unicode-range heuristic rather than a real BPE tokenizer: CJK
// characters cost roughly one token per two characters, everything else
// roughly one token per four.
package tokencount

import "unicode"

const messageOverhead = 4

// CountText estimates the token count of a single string.
func CountText(s string) int {
	if s == "" {
		return 0
	}

	var cjk, other int
	for _, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}

	tokens := cjk/2 + other/4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// Message is the minimal shape tokencount needs from a chat message; callers
// adapt their own message types to it rather than this package importing
// apischema (avoids an import cycle, since apischema may eventually want
// token estimates too).
type Message struct {
	Role    string
	Content string
}

// CountMessages estimates the token count of a message list, including a
// small per-message format overhead for role/separators.
func CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		if m.Role != "" {
			total += CountText(m.Role)
		}
		if m.Content != "" {
			total += CountText(m.Content)
		}
		total += messageOverhead
	}
	return total
}

// contextWindow returns the token budget associated with a model family.
// Known Claude families get 200,000; everything else gets the 100,000
// default.
func contextWindow(model string) int {
	if len(model) >= 6 && model[:6] == "claude" {
		return 200000
	}
	return 100000
}

// PromptTokensFromRatio converts a context_window_info utilization ratio
// (0..1) into an estimated prompt token count for the given model. Callers
// must first check that the ratio is present and within 0..1; this function
// does not validate range.
func PromptTokensFromRatio(model string, ratio float64) int {
	return int(ratio*float64(contextWindow(model)) + 0.5)
}
