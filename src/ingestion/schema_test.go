package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonize(t *testing.T) {
	assert.Equal(t, "marketvalue", canonize("Market Value ($)"))
	assert.Equal(t, "costbasis", canonize("Cost_Basis"))
	assert.Equal(t, "qty", canonize(" QTY "))
	assert.Equal(t, "", canonize("***"))
}

func TestMatchScoreTiers(t *testing.T) {
	assert.Equal(t, scoreExact, matchScore("price", "price"))
	assert.Equal(t, scoreAffix, matchScore("currentprice", "price"))
	assert.Equal(t, scoreSubstring, matchScore("priceusd", "price"))
	assert.Equal(t, 0, matchScore("sector", "price"))
	assert.Equal(t, 0, matchScore("", "price"))
	assert.Equal(t, 0, matchScore("price", ""))
}

func TestResolveFieldMapSchwabLayout(t *testing.T) {
	schema := DefaultSchema()
	headers := []string{"Symbol", "Description", "Qty (Quantity)", "Price", "Mkt Val (Market Value)", "Cost Basis", "Security Type"}

	fm := schema.ResolveFieldMap(headers, nil)

	assert.Equal(t, 0, fm[FieldSymbol])
	assert.Equal(t, 1, fm[FieldName])
	assert.Equal(t, 2, fm[FieldShares])
	assert.Equal(t, 3, fm[FieldPrice])
	assert.Equal(t, 4, fm[FieldMarketValue])
	assert.Equal(t, 5, fm[FieldCostBasis])
	assert.Equal(t, 6, fm[FieldType])
}

func TestResolveFieldMapUniqueColumns(t *testing.T) {
	schema := DefaultSchema()
	fm := schema.ResolveFieldMap([]string{"Symbol", "Symbol"}, nil)

	// The duplicate column is claimed exactly once.
	assert.Equal(t, 0, fm[FieldSymbol])
	seen := make(map[int]bool)
	for _, idx := range fm {
		assert.False(t, seen[idx], "column %d mapped twice", idx)
		seen[idx] = true
	}
}

func TestResolveFieldMapExplicitWins(t *testing.T) {
	schema := DefaultSchema()
	headers := []string{"Ticker", "Close", "Last Price"}

	fm := schema.ResolveFieldMap(headers, map[string]string{FieldPrice: "Close"})

	assert.Equal(t, 1, fm[FieldPrice], "explicit column beats the alias table")
	assert.Equal(t, 0, fm[FieldSymbol])
}

func TestDetectCustodian(t *testing.T) {
	schema := DefaultSchema()

	got := schema.DetectCustodian([]string{"Charles Schwab & Co., Inc.", "Positions"}, "positions.csv")
	assert.Equal(t, "Charles Schwab", got)

	got = schema.DetectCustodian(nil, "fidelity_positions_2024.csv")
	assert.Equal(t, "Fidelity", got)

	got = schema.DetectCustodian([]string{"Symbol,Qty"}, "holdings.csv")
	assert.Equal(t, "Unknown", got)
}

func TestGuessFileKind(t *testing.T) {
	schema := DefaultSchema()
	tests := []struct {
		name    string
		headers []string
		want    string
	}{
		{"positions", []string{"Symbol", "Quantity", "Market Value"}, KindPositions},
		{"positions beats prices when shares present", []string{"Symbol", "Quantity", "Price", "As Of Date"}, KindPositions},
		{"prices", []string{"Symbol", "Date", "Close Price"}, KindPrices},
		{"transactions", []string{"Symbol", "Action", "Amount"}, KindTransactions},
		{"unknown", []string{"Foo", "Bar", "Baz"}, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schema.GuessFileKind(tt.headers))
		})
	}
}

func TestValidateFieldMap(t *testing.T) {
	schema := DefaultSchema()

	assert.NoError(t, schema.Validate(FieldMap{FieldSymbol: 0, FieldPrice: 1}, 3))

	err := schema.Validate(FieldMap{"bogus": 0}, 3)
	require.Error(t, err)
	var fmErr *FieldMapError
	require.ErrorAs(t, err, &fmErr)
	assert.Equal(t, "bogus", fmErr.Field)

	err = schema.Validate(FieldMap{FieldSymbol: 5}, 2)
	require.ErrorAs(t, err, &fmErr)
	assert.Equal(t, FieldSymbol, fmErr.Field)

	err = schema.Validate(FieldMap{FieldSymbol: 0, FieldName: 0}, 2)
	assert.Error(t, err, "two fields must not share a column")
}
