package ingestion

import (
	"regexp"
	"strings"
)

// headerScanRows caps how deep the locator looks for a header row; banner
// and disclaimer blocks in custodial exports can push it well down the file.
const headerScanRows = 25

// Heuristic fallback weights for rows that do not pass the data-header test.
const (
	wordTokenWeight    = 1.5
	uniqueTokenWeight  = 0.25
	numericTokenWeight = 0.5
	dataHeaderScore    = 1000
	minHeaderCells     = 2
	minAliasMatches    = 2
)

var numericLikeRx = regexp.MustCompile(`^[$()\d,.\-\s%]+$`)

// cleanCell strips custodial quoting artifacts and surrounding whitespace.
func cleanCell(c string) string {
	c = strings.ReplaceAll(c, `"""`, "")
	c = strings.ReplaceAll(c, `"`, "")
	return strings.TrimSpace(c)
}

// cleanBodyCell keeps embedded quotes but removes the tripled artifact.
func cleanBodyCell(c string) string {
	return strings.TrimSpace(strings.ReplaceAll(c, `"""`, ""))
}

func joinedLower(row []string, limit int) string {
	parts := make([]string, len(row))
	for i, c := range row {
		parts[i] = strings.ToLower(c)
	}
	joined := strings.Join(parts, " ")
	if len(joined) > limit {
		joined = joined[:limit]
	}
	return joined
}

// looksCustodianMetadata flags banner rows such as
// "Charles Schwab & Co., Inc." or "Account: 123-456".
func (s *Schema) looksCustodianMetadata(row []string) bool {
	head := joinedLower(row, 200)
	for _, c := range s.Custodians {
		if strings.Contains(head, c.Variant) {
			return true
		}
	}
	for _, marker := range s.MetadataMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

// looksTotalRow flags subtotal/footer rows.
func (s *Schema) looksTotalRow(row []string) bool {
	head := joinedLower(row, 100)
	for _, marker := range s.TotalMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

// isDataHeader reports whether at least two cleaned cells fuzzy-match a
// canonical-field alias, which is a near-certain header signal.
func (s *Schema) isDataHeader(row []string) bool {
	matches := 0
	for _, c := range row {
		h := canonize(cleanCell(c))
		if h == "" {
			continue
		}
		for _, aliases := range s.Aliases {
			if _, score := bestMatch([]string{h}, aliases, nil); score > 0 {
				matches++
				break
			}
		}
		if matches >= minAliasMatches {
			return true
		}
	}
	return false
}

// headerScore rates a candidate row. Data headers score very high; others
// fall back to a heuristic rewarding many distinct word-like tokens and
// penalizing numeric-looking ones.
func (s *Schema) headerScore(row []string) float64 {
	if s.isDataHeader(row) {
		return dataHeaderScore
	}
	var numLike, wordLike int
	uniq := make(map[string]bool)
	for _, c := range row {
		t := cleanCell(c)
		if t == "" {
			continue
		}
		uniq[t] = true
		if numericLikeRx.MatchString(t) {
			numLike++
		} else {
			wordLike++
		}
	}
	return float64(wordLike)*wordTokenWeight + float64(len(uniq))*uniqueTokenWeight - float64(numLike)*numericTokenWeight
}

// LocateHeader scans the leading rows of a RawTable for the row that is
// actually a column-header row, skipping custodian banners and
// subtotal/footer lines. Returns the cleaned headers and the normalized
// body rows, or (nil, nil) when no plausible header exists.
func (s *Schema) LocateHeader(rows [][]string) ([]string, [][]string) {
	var candidates []int
	limit := len(rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}
		if s.looksCustodianMetadata(row) || s.looksTotalRow(row) {
			continue
		}
		nonEmpty := 0
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				nonEmpty++
			}
		}
		if nonEmpty >= minHeaderCells {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	bestIdx := candidates[0]
	bestScore := -1.0
	for _, i := range candidates {
		if score := s.headerScore(rows[i]); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	headers := make([]string, 0, len(rows[bestIdx]))
	for _, c := range rows[bestIdx] {
		headers = append(headers, cleanCell(c))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return nil, nil
	}

	var body [][]string
	for _, row := range rows[bestIdx+1:] {
		if s.looksTotalRow(row) {
			continue
		}
		out := make([]string, len(headers))
		for j := range headers {
			if j < len(row) {
				out[j] = cleanBodyCell(row[j])
			}
		}
		hasData := false
		for _, c := range out {
			if c != "" {
				hasData = true
				break
			}
		}
		if hasData {
			body = append(body, out)
		}
	}
	return headers, body
}
