package ingestion

import (
	"math"
	"strings"

	"github.com/username/portfolioxray/backend/src/models"
)

// Extractor turns normalized body rows into canonical records using a
// resolved FieldMap.
type Extractor struct {
	schema *Schema
	// costBasisFactor synthesizes a missing cost basis as this fraction of
	// price x |shares|. Records built that way carry CostBasisEstimated so
	// downstream consumers can tell guesses from measured values.
	costBasisFactor float64
}

func NewExtractor(schema *Schema, costBasisFactor float64) *Extractor {
	return &Extractor{schema: schema, costBasisFactor: costBasisFactor}
}

// cellValue reads the mapped column of a row, cleaned of quote artifacts.
func cellValue(row []string, fm FieldMap, field string) string {
	idx, ok := fm[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanCell(row[idx])
}

// looksFooter catches total/grand-total lines that slipped past the header
// locator into the body.
func looksFooter(row []string) bool {
	joined := strings.ToLower(strings.Join(row, " "))
	return strings.Contains(joined, "total") &&
		(strings.Contains(joined, "market") || strings.Contains(joined, "***"))
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ExtractPositions converts body rows into holding records. Rows with no
// symbol are dropped; a missing market value is reconciled from
// |shares| x price; rows with neither value nor shares are noise.
func (e *Extractor) ExtractPositions(body [][]string, fm FieldMap) []models.HoldingRecord {
	var out []models.HoldingRecord
	for _, row := range body {
		if isBlankRow(row) || looksFooter(row) {
			continue
		}

		symbol := cellValue(row, fm, FieldSymbol)
		if symbol == "" {
			symbol = cellValue(row, fm, FieldName)
		}
		if symbol == "" {
			continue
		}

		name := cellValue(row, fm, FieldName)
		sector := cellValue(row, fm, FieldSector)
		currency := cellValue(row, fm, FieldCurrency)
		if currency == "" {
			currency = "USD"
		}

		shares, _ := ParseNumber(cellValue(row, fm, FieldShares))
		price, hasPrice := ParseNumber(cellValue(row, fm, FieldPrice))
		mv, hasMV := ParseNumber(cellValue(row, fm, FieldMarketValue))

		if (!hasMV || mv == 0) && hasPrice && shares != 0 {
			mv = math.Abs(shares) * price
			hasMV = true
		}
		if (!hasMV || mv == 0) && shares == 0 {
			continue
		}

		cost, hasCost := ParseNumber(cellValue(row, fm, FieldCostBasis))
		estimated := false
		if !hasCost {
			cost = e.costBasisFactor * price * math.Abs(shares)
			estimated = true
		}

		upper := strings.ToUpper(symbol)
		if name == "" {
			name = upper
		}
		out = append(out, models.HoldingRecord{
			Symbol:             upper,
			Name:               name,
			Shares:             shares,
			Price:              price,
			MarketValue:        mv,
			CostBasis:          cost,
			CostBasisEstimated: estimated,
			Sector:             sector,
			Currency:           currency,
		})
	}
	return out
}

// ExtractPrices converts body rows of a prices-kind file. Rows lacking a
// symbol or a parsable price are dropped.
func (e *Extractor) ExtractPrices(body [][]string, fm FieldMap) []models.PriceRecord {
	var out []models.PriceRecord
	for _, row := range body {
		if isBlankRow(row) {
			continue
		}
		symbol := cellValue(row, fm, FieldSymbol)
		if symbol == "" {
			continue
		}
		price, ok := ParseNumber(cellValue(row, fm, FieldPrice))
		if !ok {
			continue
		}
		out = append(out, models.PriceRecord{
			Symbol: strings.ToUpper(symbol),
			Price:  price,
			Date:   cellValue(row, fm, FieldDate),
		})
	}
	return out
}
