package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/patrickmn/go-cache"
	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/models"
	"github.com/username/portfolioxray/backend/src/utils"
)

const topHoldingsCount = 5

type analyticsServiceImpl struct {
	resultCache *cache.Cache
}

func NewAnalyticsService(resultCache *cache.Cache) AnalyticsService {
	return &analyticsServiceImpl{resultCache: resultCache}
}

// Summary computes concentration, sector allocation and a diversification
// score from the latest persisted batch of an organization.
func (s *analyticsServiceImpl) Summary(orgID int64) (*models.AnalyticsSummary, error) {
	cacheKey := fmt.Sprintf(ckAnalyticsSummary, orgID)
	if cached, found := s.resultCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for analytics summary", "orgID", orgID)
		return cached.(*models.AnalyticsSummary), nil
	}

	holdings, err := fetchLatestBatchPositions(orgID)
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		return nil, ErrNoBatchFound
	}

	summary := buildSummary(holdings)
	s.resultCache.Set(cacheKey, summary, DefaultCacheExpiration)
	return summary, nil
}

func buildSummary(holdings []models.HoldingRecord) *models.AnalyticsSummary {
	totalValue := 0.0
	for _, h := range holdings {
		totalValue += h.MarketValue
	}

	sectors := make(map[string]float64)
	hhi := 0.0
	for i := range holdings {
		if totalValue > 0 {
			holdings[i].Weight = holdings[i].MarketValue / totalValue
		} else {
			holdings[i].Weight = 0
		}
		hhi += holdings[i].Weight * holdings[i].Weight

		sector := holdings[i].Sector
		if sector == "" {
			sector = "Unknown"
		}
		sectors[sector] += holdings[i].MarketValue
	}

	sorted := make([]models.HoldingRecord, len(holdings))
	copy(sorted, holdings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MarketValue > sorted[j].MarketValue
	})

	top := sorted
	if len(top) > topHoldingsCount {
		top = top[:topHoldingsCount]
	}
	concentration := 0.0
	for _, h := range top {
		concentration += h.Weight
	}

	// Diversification as the complement of the Herfindahl index, scaled to
	// 0-100: a single-holding book scores 0, a broad equal-weight book
	// approaches 100.
	diversification := 0.0
	if len(holdings) > 0 && totalValue > 0 {
		diversification = utils.RoundFloat((1-hhi)*100, 2)
	}

	return &models.AnalyticsSummary{
		TotalValue:           utils.RoundFloat(totalValue, 2),
		HoldingsCount:        len(holdings),
		TopHoldings:          top,
		TopFiveConcentration: utils.RoundFloat(concentration, 4),
		SectorAllocation:     sectors,
		DiversificationScore: diversification,
	}
}

// fetchLatestBatchPositions returns the positions of the organization's
// most recent batch, or nil when none exists.
func fetchLatestBatchPositions(orgID int64) ([]models.HoldingRecord, error) {
	var batchID int64
	err := database.DB.QueryRow(`SELECT id FROM batches WHERE org_id = ? ORDER BY id DESC LIMIT 1`, orgID).Scan(&batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying latest batch for orgID %d: %w", orgID, err)
	}

	rows, err := database.DB.Query(`SELECT symbol, name, shares, price, market_value, cost_basis, cost_basis_estimated, currency, sector, weight
		FROM positions WHERE batch_id = ? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("error querying positions for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	holdings := []models.HoldingRecord{}
	for rows.Next() {
		var h models.HoldingRecord
		var sector, currency *string
		if err := rows.Scan(&h.Symbol, &h.Name, &h.Shares, &h.Price, &h.MarketValue,
			&h.CostBasis, &h.CostBasisEstimated, &currency, &sector, &h.Weight); err != nil {
			return nil, fmt.Errorf("error scanning position row for batch %d: %w", batchID, err)
		}
		if sector != nil {
			h.Sector = *sector
		}
		if currency != nil {
			h.Currency = *currency
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows for batch %d: %w", batchID, err)
	}
	return holdings, nil
}
