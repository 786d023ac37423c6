package services_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/mappings"
	"github.com/username/portfolioxray/backend/src/services"
)

func setupAnalytics(t *testing.T) (services.IngestionService, services.AnalyticsService) {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	schema := ingestion.DefaultSchema()
	extractor := ingestion.NewExtractor(schema, 0.9)
	store := mappings.NewStore(database.DB, schema)
	resultCache := cache.New(5*time.Minute, 10*time.Minute)
	ingestionSvc := services.NewIngestionService(schema, extractor, store, resultCache, 2, 60)
	analyticsSvc := services.NewAnalyticsService(resultCache)
	return ingestionSvc, analyticsSvc
}

func TestSummaryNoBatch(t *testing.T) {
	_, analyticsSvc := setupAnalytics(t)

	_, err := analyticsSvc.Summary(42)
	assert.ErrorIs(t, err, services.ErrNoBatchFound)
}

func TestSummaryFromLatestBatch(t *testing.T) {
	ingestionSvc, analyticsSvc := setupAnalytics(t)

	csv := "Symbol,Qty,Price,Market Value,Sector\n" +
		"AAA,1,1,400,Tech\n" +
		"BBB,1,1,600,Health\n"
	result := ingestionSvc.ProcessBatch(7, 0, "2024-06-30", []services.UploadedFile{{Filename: "h.csv", Data: []byte(csv)}}, nil)
	require.Greater(t, result.BatchID, int64(0))

	summary, err := analyticsSvc.Summary(7)
	require.NoError(t, err)

	assert.InDelta(t, 1000.0, summary.TotalValue, 1e-9)
	assert.Equal(t, 2, summary.HoldingsCount)
	assert.InDelta(t, 400.0, summary.SectorAllocation["Tech"], 1e-9)
	assert.InDelta(t, 600.0, summary.SectorAllocation["Health"], 1e-9)

	require.NotEmpty(t, summary.TopHoldings)
	assert.Equal(t, "BBB", summary.TopHoldings[0].Symbol, "largest position first")
	assert.InDelta(t, 1.0, summary.TopFiveConcentration, 1e-6, "two holdings are fully covered by the top five")

	// HHI of 0.4/0.6 weights is 0.52, so the score is 48.
	assert.InDelta(t, 48.0, summary.DiversificationScore, 1e-9)
}

func TestSummaryDefaultsUnknownSector(t *testing.T) {
	ingestionSvc, analyticsSvc := setupAnalytics(t)

	csv := "Symbol,Qty,Price,Market Value\nAAA,1,1,500\n"
	ingestionSvc.ProcessBatch(9, 0, "", []services.UploadedFile{{Filename: "h.csv", Data: []byte(csv)}}, nil)

	summary, err := analyticsSvc.Summary(9)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, summary.SectorAllocation["Unknown"], 1e-9)
}

func TestSummaryUsesLatestBatchOnly(t *testing.T) {
	ingestionSvc, analyticsSvc := setupAnalytics(t)

	first := "Symbol,Qty,Price,Market Value\nOLD,1,1,100\n"
	second := "Symbol,Qty,Price,Market Value\nNEW,1,1,900\n"
	ingestionSvc.ProcessBatch(3, 0, "", []services.UploadedFile{{Filename: "a.csv", Data: []byte(first)}}, nil)
	ingestionSvc.ProcessBatch(3, 0, "", []services.UploadedFile{{Filename: "b.csv", Data: []byte(second)}}, nil)

	summary, err := analyticsSvc.Summary(3)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HoldingsCount)
	assert.Equal(t, "NEW", summary.TopHoldings[0].Symbol)
	assert.InDelta(t, 900.0, summary.TotalValue, 1e-9)
}
