package textgen

import "strings"

// StopMatch is the result of scanning text for stop sequences.
type StopMatch struct {
	// Found reports whether any stop sequence occurs in the text.
	Found bool
	// Offset is the byte index of the first occurrence of Sequence.
	Offset int
	// Sequence is the stop sequence that matched.
	Sequence string
}

// ScanStop reports where a stop sequence occurs in text.
//
// Sequences are checked in order and every sequence present overwrites
// the previous match, so when several sequences occur the last one in
// stops wins, regardless of position in text. Offset is the first
// occurrence of the winning sequence.
//
// Streaming scans one fragment at a time; a sequence split across two
// fragments is not found.
func ScanStop(text string, stops []string) StopMatch {
	var m StopMatch
	for _, s := range stops {
		if s == "" {
			continue
		}
		if strings.Contains(text, s) {
			m = StopMatch{Found: true, Sequence: s}
		}
	}
	if m.Found {
		m.Offset = strings.Index(text, m.Sequence)
	}
	return m
}

// TrimTrailingStop removes stop sequences from the end of a complete
// response. Each sequence is checked in order against the text trimmed
// so far and removed once when it is a suffix.
func TrimTrailingStop(text string, stops []string) string {
	for _, s := range stops {
		if s == "" {
			continue
		}
		text = strings.TrimSuffix(text, s)
	}
	return text
}

// cutAtStop returns the usable part of a fragment and whether a stop
// sequence ended it.
func cutAtStop(fragment string, stops []string) (string, bool) {
	m := ScanStop(fragment, stops)
	if !m.Found {
		return fragment, false
	}
	return fragment[:m.Offset], true
}
