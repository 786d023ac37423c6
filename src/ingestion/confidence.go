package ingestion

// Confidence scoring constants. The score is a heuristic 10-99 rating of
// how trustworthy an inferred FieldMap is; the thresholds are unit-tested
// in isolation so tie-break and bonus values stay visible.
const (
	coreFieldWeight   = 20
	someRowsBonus     = 10 // at least one parsed row
	manyRowsBonus     = 20 // at least manyRowsThreshold parsed rows
	manyRowsThreshold = 5
	coreCoverageBonus = 10 // three or more core fields resolved
	minConfidence     = 10
	maxConfidence     = 99
)

// coreFields drive the confidence base score.
var coreFields = []string{FieldSymbol, FieldShares, FieldPrice, FieldMarketValue}

func coreFieldsResolved(fm FieldMap) int {
	n := 0
	for _, f := range coreFields {
		if _, ok := fm[f]; ok {
			n++
		}
	}
	return n
}

// ConfidenceScore rates a resolved FieldMap given how many rows it parsed.
func ConfidenceScore(fm FieldMap, parsedCount int) int {
	core := coreFieldsResolved(fm)
	score := core * coreFieldWeight
	switch {
	case parsedCount >= manyRowsThreshold:
		score += manyRowsBonus
	case parsedCount >= 1:
		score += someRowsBonus
	}
	if core >= 3 {
		score += coreCoverageBonus
	}
	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}

// RequiresMapping flags files that need manual mapping confirmation:
// unknown kind, low confidence, a positions file whose non-empty body
// produced no records, or parsed rows none of which carry a positive price
// or market value.
func RequiresMapping(kind string, confidence, threshold, parsedCount, bodyRows int, hasPositiveValue bool) bool {
	if kind == KindUnknown {
		return true
	}
	if confidence < threshold {
		return true
	}
	if kind == KindPositions && parsedCount == 0 && bodyRows > 0 {
		return true
	}
	if parsedCount > 0 && !hasPositiveValue {
		return true
	}
	return false
}
