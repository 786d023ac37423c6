package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionsFieldMap() FieldMap {
	return FieldMap{
		FieldSymbol:      0,
		FieldName:        1,
		FieldShares:      2,
		FieldPrice:       3,
		FieldMarketValue: 4,
		FieldCostBasis:   5,
	}
}

func TestExtractPositionsReconcilesMarketValue(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"AAPL", "Apple", "10", "5", "", ""},
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 1)
	assert.InDelta(t, 50.0, holdings[0].MarketValue, 1e-9, "missing market value reconciled from |shares| x price")
}

func TestExtractPositionsEstimatesCostBasis(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"AAPL", "Apple", "10", "5", "50", ""},
		{"MSFT", "Microsoft", "2", "10", "20", "15"},
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 2)
	assert.InDelta(t, 45.0, holdings[0].CostBasis, 1e-9)
	assert.True(t, holdings[0].CostBasisEstimated)
	assert.InDelta(t, 15.0, holdings[1].CostBasis, 1e-9)
	assert.False(t, holdings[1].CostBasisEstimated)
}

func TestExtractPositionsDropsNoise(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"", "", "", "", "", ""},                        // blank
		{"*** Total", "", "", "", "100", ""},            // footer
		{"", "", "1", "2", "3", ""},                     // no symbol or name
		{"ZZZ", "", "", "", "", ""},                     // no shares and no value
		{"AAPL", "Apple", "10", "150", "1500", "1400"},  // the one real row
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
}

func TestExtractPositionsNegativeShares(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"SHRT", "Short Position", "(10)", "5", "", ""},
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 1)
	assert.InDelta(t, -10.0, holdings[0].Shares, 1e-9)
	assert.InDelta(t, 50.0, holdings[0].MarketValue, 1e-9, "reconciliation uses |shares|")
}

func TestExtractPositionsDefaults(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"aapl", "", "1", "2", "", ""},
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, "AAPL", holdings[0].Name, "name defaults to the upper-cased symbol")
	assert.Equal(t, "USD", holdings[0].Currency)
}

func TestExtractPositionsQuoteArtifacts(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	body := [][]string{
		{"IBM", "Intl Business Machines", "125", "$149.78", `"""$18,723.00"""`, "$16,000.00"},
	}

	holdings := e.ExtractPositions(body, positionsFieldMap())

	require.Len(t, holdings, 1)
	assert.InDelta(t, 18723.0, holdings[0].MarketValue, 1e-9)
	assert.InDelta(t, 149.78, holdings[0].Price, 1e-9)
}

func TestExtractPrices(t *testing.T) {
	e := NewExtractor(DefaultSchema(), 0.9)
	fm := FieldMap{FieldSymbol: 0, FieldPrice: 1, FieldDate: 2}
	body := [][]string{
		{"aapl", "190.5", "2024-06-30"},
		{"", "10", ""},       // no symbol
		{"MSFT", "n/a", ""},  // unparsable price
		{"", "", ""},         // blank
	}

	prices := e.ExtractPrices(body, fm)

	require.Len(t, prices, 1)
	assert.Equal(t, "AAPL", prices[0].Symbol)
	assert.InDelta(t, 190.5, prices[0].Price, 1e-9)
	assert.Equal(t, "2024-06-30", prices[0].Date)
}
