package client

import (
	"strings"
)

// FilterResult returns the last line of a decoder output, ignoring trailing
// newlines and spaces. Decoders print partial hypotheses line by line,
// so the last line is the final one.
func FilterResult(fullResult string) string {
	trimmed := strings.TrimRight(fullResult, "\n ")
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
