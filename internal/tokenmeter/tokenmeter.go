// Package tokenmeter counts tokens of strings and serialized values, and
// produces bounded snippets at sentence/word boundaries (C2 in
// SPEC_FULL.md). See DESIGN.md for why this is implemented entirely on the
// standard library: no tokenizer library appears anywhere in the retrieval
// pack, and the teacher's own token-budget code (internal/agent/memory/manager.go,
// deleted — see DESIGN.md) only ever estimates the same way.
package tokenmeter

import (
	"encoding/json"
	"math"
	"strings"
)

// charsPerToken is the conservative under-estimate of character-per-token
// ratio specified by spec §4.2.
const charsPerToken = 3.5

// CountText estimates the token count of s.
func CountText(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(s))) / charsPerToken))
}

// CountObject estimates the token count of v's canonical serialized form.
// Canonical here means deterministic, stable key order: json.Marshal over a
// map produces lexicographically sorted keys, which is what "deterministic,
// stable key order" (spec §4.2) requires for a map-shaped value; struct
// values are already stable by field declaration order.
func CountObject(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return CountText(string(b))
}

// sentenceTerminators all count equally as a sentence end. The window is
// scanned backward from its end and the first terminator found wins, so the
// cut lands on whichever terminator is nearest the end of the window.
var sentenceTerminators = []byte{'.', '!', '?'}

// Snippet returns a prefix of s cut at the last sentence terminator above
// 0.6*maxChars, else the last word boundary above 0.8*maxChars, else a hard
// cut at maxChars. An ellipsis is appended whenever truncation occurred.
func Snippet(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars || maxChars <= 0 {
		return s
	}

	sentenceFloor := int(math.Floor(0.6 * float64(maxChars)))
	if cut := lastByteIndexAfter(runes, maxChars, sentenceFloor, sentenceTerminators); cut >= 0 {
		return strings.TrimSpace(string(runes[:cut+1])) + "…"
	}

	wordFloor := int(math.Floor(0.8 * float64(maxChars)))
	if cut := lastWordBoundaryAfter(runes, maxChars, wordFloor); cut >= 0 {
		return strings.TrimSpace(string(runes[:cut])) + "…"
	}

	return string(runes[:maxChars]) + "…"
}

func lastByteIndexAfter(runes []rune, maxChars, floor int, terminators []byte) int {
	limit := maxChars
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := limit - 1; i >= floor; i-- {
		for _, t := range terminators {
			if runes[i] == rune(t) {
				return i
			}
		}
	}
	return -1
}

func lastWordBoundaryAfter(runes []rune, maxChars, floor int) int {
	limit := maxChars
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := limit - 1; i >= floor; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return i
		}
	}
	return -1
}
