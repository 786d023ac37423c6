package ingestion

import "strings"

// delimiterCandidates is the fixed voting slate, in tie-break order.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// dialectSampleLines caps how many non-blank lines vote on the delimiter.
const dialectSampleLines = 30

// DetectDelimiter picks a field delimiter by voting across sample lines:
// each line votes for every candidate it contains at least once, and the
// candidate with the most votes wins. Ties break in candidate order (comma
// first); empty input defaults to comma.
func DetectDelimiter(lines []string) rune {
	sample := make([]string, 0, dialectSampleLines)
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		sample = append(sample, ln)
		if len(sample) == dialectSampleLines {
			break
		}
	}
	if len(sample) == 0 {
		return ','
	}

	best, bestVotes := delimiterCandidates[0], -1
	for _, cand := range delimiterCandidates {
		votes := 0
		for _, ln := range sample {
			if strings.ContainsRune(ln, cand) {
				votes++
			}
		}
		if votes > bestVotes {
			best, bestVotes = cand, votes
		}
	}
	return best
}
