package wire

import (
	"strconv"
	"strings"
)

// MonitorSelection is the parsed result of a MONITOR payload: which
// channels (1-based) were named under each classification keyword.
type MonitorSelection struct {
	Normal []int
	Latch  []int
}

// ParseMonitor tokenizes a MONITOR payload (the text after the verb,
// MAC token included or not — it is ignored either way) on whitespace
// and the ",[]()=" delimiters, matching keywords case-insensitively.
// The count token immediately following a keyword is skipped; every
// pure integer in 1..40 following it is added to that keyword's list,
// until the next keyword or end of input. Anything else (a trailing MAC,
// stray punctuation) is silently ignored, matching the grammar's
// leniency.
func ParseMonitor(payload string, maxChan int) (MonitorSelection, error) {
	tokens := strings.FieldsFunc(payload, func(r rune) bool {
		switch r {
		case ' ', '\t', ',', '[', ']', '(', ')', '=':
			return true
		}
		return false
	})

	var sel MonitorSelection
	var cur *[]int
	expectCount := false

	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		switch upper {
		case "NORMAL":
			cur = &sel.Normal
			expectCount = true
			continue
		case "CONTACTLESS", "LATCH":
			cur = &sel.Latch
			expectCount = true
			continue
		}

		if expectCount {
			// The count token itself is ignored; it may or may not be a
			// pure integer (some callers write the literal channel count).
			expectCount = false
			continue
		}

		if cur == nil {
			continue // no class selected yet; ignore leading junk
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > maxChan {
			continue // not a pure integer channel token (e.g. trailing MAC)
		}
		*cur = append(*cur, n)
	}
	return sel, nil
}
