package ingestion

import "strings"

// signatureSeparator joins normalized headers into a signature. Fixed so
// signatures stay stable across runs and releases.
const signatureSeparator = "|"

// HeaderSignature derives the deterministic fingerprint of a header row used
// as the mapping-memory key. Each header is whitespace-collapsed and
// lower-cased; order is preserved, so two files with the same columns in the
// same order share a signature regardless of data contents.
func HeaderSignature(headers []string) string {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = strings.ToLower(strings.Join(strings.Fields(h), " "))
	}
	return strings.Join(norm, signatureSeparator)
}
