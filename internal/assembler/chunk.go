package assembler

import (
	"fmt"
	"strings"

	"github.com/relaywave/agentbridge/internal/wireproto"
)

const chunkSize = 1000

var splitMarkers = []string{"\n\n", "\n", ". ", "。", "！", "？", ", ", "，", " "}

// chunkText splits text into pieces of at most chunkSize characters,
// preferring to break on a paragraph/sentence boundary, and prefixes/suffixes
// multi-chunk output with "[i/n]" segment markers.
func chunkText(text string) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		best := end
		window := string(runes[start:end])
		for _, marker := range splitMarkers {
			if pos := strings.LastIndex(window, marker); pos > 0 {
				best = start + len([]rune(window[:pos])) + len([]rune(marker))
				break
			}
		}

		chunks = append(chunks, string(runes[start:best]))
		start = best
	}

	if len(chunks) <= 1 {
		return chunks
	}

	n := len(chunks)
	for i, c := range chunks {
		switch {
		case i == 0:
			chunks[i] = fmt.Sprintf("%s [1/%d]", c, n)
		default:
			chunks[i] = fmt.Sprintf("[%d/%d] %s", i+1, n, c)
		}
	}
	return chunks
}

// segmentsToWarpResults builds the upstream tool_call_result.success.results
// list from a plain text result, chunked per chunkText.
func segmentsToWarpResults(text string) []wireproto.Value {
	var results []wireproto.Value
	for _, chunk := range chunkText(text) {
		results = append(results, wireproto.Map(map[string]wireproto.Value{
			"text": wireproto.Map(map[string]wireproto.Value{
				"text": wireproto.Text(chunk),
			}),
		}))
	}
	return results
}
