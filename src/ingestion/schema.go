package ingestion

import (
	"sort"
	"strings"
)

// Canonical field names every custodian-specific header is mapped onto.
const (
	FieldSymbol      = "symbol"
	FieldName        = "name"
	FieldShares      = "shares"
	FieldPrice       = "price"
	FieldMarketValue = "market_value"
	FieldCostBasis   = "cost_basis"
	FieldCurrency    = "currency"
	FieldSector      = "sector"
	FieldDate        = "date"
	FieldType        = "type"
)

// File kinds the resolver can classify a file into.
const (
	KindPositions    = "positions"
	KindPrices       = "prices"
	KindTransactions = "transactions"
	KindUnknown      = "unknown"
)

// FieldMap maps a canonical field name to a zero-based column index in a
// specific header row. Indices are unique: fields are resolved in a fixed
// priority order and a claimed column is excluded from later matches.
type FieldMap map[string]int

// Tiered fuzzy match scores. Exact beats affix beats plain containment.
const (
	scoreExact     = 300
	scoreAffix     = 200
	scoreSubstring = 120
)

// Custodian pairs a lower-cased name variant with its canonical display name.
type Custodian struct {
	Variant string
	Display string
}

// Schema is the immutable configuration driving header discovery and field
// resolution. Construct one at startup (usually DefaultSchema) and pass it
// explicitly; there is no package-level mutable state.
type Schema struct {
	// Aliases lists known header spellings per canonical field, already
	// canonicalized to lower-case alphanumerics.
	Aliases map[string][]string
	// FieldOrder fixes the priority in which fields claim columns.
	FieldOrder []string
	// Custodians is scanned in order against preview text and filenames.
	Custodians []Custodian
	// MetadataMarkers flag custodian banner/metadata rows.
	MetadataMarkers []string
	// TotalMarkers flag subtotal/footer rows.
	TotalMarkers []string
}

// DefaultSchema returns the alias and custodian tables observed across
// custodial exports. Tests may substitute a smaller schema.
func DefaultSchema() *Schema {
	return &Schema{
		Aliases: map[string][]string{
			FieldSymbol:      {"symbol", "ticker", "security", "securitysymbol", "securityid", "cusip", "isin", "sedol", "underlying", "product"},
			FieldName:        {"name", "securityname", "securitydescription", "description", "longname", "seclongname", "issue"},
			FieldShares:      {"shares", "quantity", "qty", "units", "position", "amountshares", "positionqty", "positionquantity", "holdings", "unitsheld"},
			FieldPrice:       {"price", "unitprice", "shareprice", "pricepershare", "lastprice", "closeprice", "marketprice", "currentprice", "nav", "px"},
			FieldMarketValue: {"marketvalue", "value", "mv", "currentvalue", "positionvalue", "marketval", "marketvalueusd", "currentmarketvalue", "valusd", "valueusd", "mktvalue", "mvusd"},
			FieldCostBasis:   {"costbasis", "cost", "bookvalue", "avgcost", "averagecost", "bookcost", "purchaseprice", "purchasecost", "taxcost", "basis", "averageprice", "avgprice", "unitcost", "totalcost"},
			FieldCurrency:    {"currency", "curr", "ccy", "fx"},
			FieldSector:      {"sector", "industry", "gicssector", "category"},
			FieldDate:        {"date", "asof", "pricedate", "tradedate", "valuationdate", "reportdate"},
			FieldType:        {"type", "action", "transactiontype", "activity", "activitytype"},
		},
		FieldOrder: []string{
			FieldSymbol, FieldName, FieldShares, FieldPrice, FieldMarketValue,
			FieldCostBasis, FieldCurrency, FieldSector, FieldDate, FieldType,
		},
		Custodians: []Custodian{
			{"charles schwab", "Charles Schwab"},
			{"schwab", "Charles Schwab"},
			{"fidelity", "Fidelity"},
			{"td ameritrade", "TD Ameritrade"},
			{"tdameritrade", "TD Ameritrade"},
			{"ameritrade", "TD Ameritrade"},
			{"interactive brokers", "Interactive Brokers"},
			{"ibkr", "Interactive Brokers"},
			{"etrade", "E*Trade"},
			{"e*trade", "E*Trade"},
			{"vanguard", "Vanguard"},
			{"merrill", "Merrill"},
			{"morgan stanley", "Morgan Stanley"},
			{"ubs", "UBS"},
			{"wells fargo", "Wells Fargo"},
			{"raymond james", "Raymond James"},
			{"jpmorgan", "JPMorgan"},
			{"j.p. morgan", "JPMorgan"},
			{"lpl financial", "LPL Financial"},
			{"ally invest", "Ally Invest"},
			{"rbc", "RBC"},
			{"pershing", "Pershing"},
			{"sei", "SEI"},
			{"apex", "Apex"},
			{"betterment", "Betterment"},
		},
		MetadataMarkers: []string{
			"account:", "owner:", "as of", "positions export",
		},
		TotalMarkers: []string{
			"total", "grand total", "summary", "account total", "page", "report", "***",
		},
	}
}

// canonize strips a header down to lower-case alphanumerics so that
// "Market Value ($)" and "market_value" compare equal.
func canonize(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchScore rates how well a canonicalized header matches a single alias.
// Zero means no match.
func matchScore(header, alias string) int {
	if header == "" || alias == "" {
		return 0
	}
	switch {
	case header == alias:
		return scoreExact
	case strings.HasSuffix(header, alias) || strings.HasSuffix(alias, header):
		return scoreAffix
	case strings.Contains(header, alias):
		return scoreSubstring
	}
	return 0
}

// bestMatch finds the header index scoring highest against any of the
// aliases, skipping claimed columns. Ties go to the first header index.
func bestMatch(canonHeaders []string, aliases []string, claimed map[int]bool) (int, int) {
	bestIdx, bestScore := -1, 0
	for i, h := range canonHeaders {
		if claimed[i] {
			continue
		}
		for _, alias := range aliases {
			if score := matchScore(h, alias); score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
	}
	return bestIdx, bestScore
}

// ResolveFieldMap maps canonical fields to column indices for a header row.
// Explicit user-supplied column names win over the alias table: an exact
// canonical match is attempted first, then a fuzzy match. Remaining fields
// are filled from the alias table in priority order, each claiming its
// column so no two fields share an index.
func (s *Schema) ResolveFieldMap(headers []string, explicit map[string]string) FieldMap {
	canonHeaders := make([]string, len(headers))
	for i, h := range headers {
		canonHeaders[i] = canonize(h)
	}

	out := make(FieldMap)
	claimed := make(map[int]bool)

	assign := func(field string, idx int) {
		out[field] = idx
		claimed[idx] = true
	}

	for _, field := range s.FieldOrder {
		colName, ok := explicit[field]
		if !ok {
			continue
		}
		want := canonize(colName)
		found := false
		for i, h := range canonHeaders {
			if !claimed[i] && h == want {
				assign(field, i)
				found = true
				break
			}
		}
		if !found {
			if idx, score := bestMatch(canonHeaders, []string{want}, claimed); score > 0 {
				assign(field, idx)
			}
		}
	}

	for _, field := range s.FieldOrder {
		if _, done := out[field]; done {
			continue
		}
		if idx, score := bestMatch(canonHeaders, s.Aliases[field], claimed); score > 0 {
			assign(field, idx)
		}
	}
	return out
}

// fieldPresent reports whether any header column matches the field's aliases.
func (s *Schema) fieldPresent(canonHeaders []string, field string) bool {
	_, score := bestMatch(canonHeaders, s.Aliases[field], nil)
	return score > 0
}

// DetectCustodian scans decoded preview lines and the filename for a known
// custodian name variant and returns its display name, or "Unknown".
func (s *Schema) DetectCustodian(preview []string, filename string) string {
	blob := strings.ToLower(strings.Join(preview, " ") + " " + filename)
	for _, c := range s.Custodians {
		if strings.Contains(blob, c.Variant) {
			return c.Display
		}
	}
	return "Unknown"
}

// GuessFileKind classifies a header row as positions, prices or transactions
// by presence scoring. A shares- or market-value-like header is a strong
// positions signal and wins even when a date+price pair is also present,
// since position exports routinely carry an as-of date column.
func (s *Schema) GuessFileKind(headers []string) string {
	canonHeaders := make([]string, len(headers))
	for i, h := range headers {
		canonHeaders[i] = canonize(h)
	}

	present := func(field string) int {
		if s.fieldPresent(canonHeaders, field) {
			return 1
		}
		return 0
	}

	hasShares := present(FieldShares)
	hasValue := present(FieldMarketValue)

	pos := present(FieldSymbol) + maxInt(hasShares, hasValue)
	prc := present(FieldSymbol) + present(FieldPrice) + present(FieldDate)
	txn := present(FieldSymbol) + present(FieldType)

	if pos <= 0 && prc <= 0 && txn <= 0 {
		return KindUnknown
	}
	if (hasShares == 1 || hasValue == 1) && pos > 0 {
		return KindPositions
	}
	switch {
	case pos >= prc && pos >= txn:
		return KindPositions
	case prc >= txn:
		return KindPrices
	default:
		return KindTransactions
	}
}

// CanonicalFields returns the fixed field set in priority order.
func (s *Schema) CanonicalFields() []string {
	fields := make([]string, len(s.FieldOrder))
	copy(fields, s.FieldOrder)
	return fields
}

// IsCanonicalField reports whether name belongs to the fixed field set.
func (s *Schema) IsCanonicalField(name string) bool {
	for _, f := range s.FieldOrder {
		if f == name {
			return true
		}
	}
	return false
}

// Validate checks a field map against a header row: known fields, in-range
// indices, no shared columns.
func (s *Schema) Validate(fm FieldMap, headerLen int) error {
	seen := make(map[int]string)
	fields := make([]string, 0, len(fm))
	for f := range fm {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		idx := fm[f]
		if !s.IsCanonicalField(f) {
			return &FieldMapError{Field: f, Reason: "not a canonical field"}
		}
		if idx < 0 || idx >= headerLen {
			return &FieldMapError{Field: f, Reason: "column index out of range"}
		}
		if other, dup := seen[idx]; dup {
			return &FieldMapError{Field: f, Reason: "column already mapped to " + other}
		}
		seen[idx] = f
	}
	return nil
}

// FieldMapError reports an invalid entry in a user-supplied field map.
type FieldMapError struct {
	Field  string
	Reason string
}

func (e *FieldMapError) Error() string {
	return "invalid field map entry " + e.Field + ": " + e.Reason
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
