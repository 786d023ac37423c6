package ingestion

import (
	"strconv"
	"strings"
)

// nullTokens are cell values treated as "no number here".
var nullTokens = map[string]bool{
	"":     true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
	"--":   true,
	"n/a":  true,
	"na":   true,
}

// ParseNumber converts free-form custodial numeric text into a signed float.
// The second return is false for null-like or unparsable input.
//
// Handles quote artifacts (`"""$18,723.00"""`), currency symbols, thousands
// separators, internal whitespace, parenthesized negatives ("(10)" -> -10)
// and percent signs. Percent-suffixed values keep their face value:
// "5%" parses to 5, not 0.05.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, `"""`, "")
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.TrimSpace(s)
	if nullTokens[strings.ToLower(s)] {
		return 0, false
	}

	neg := (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")) || strings.HasPrefix(s, "-")
	s = strings.Trim(s, "()- ")

	for _, sym := range []string{",", "$", "€", "£", "%"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.Join(strings.Fields(s), "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}
