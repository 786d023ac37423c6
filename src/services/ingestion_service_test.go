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

func setupIngestion(t *testing.T) (services.IngestionService, *mappings.Store) {
	t.Helper()
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	schema := ingestion.DefaultSchema()
	extractor := ingestion.NewExtractor(schema, 0.9)
	store := mappings.NewStore(database.DB, schema)
	resultCache := cache.New(5*time.Minute, 10*time.Minute)
	svc := services.NewIngestionService(schema, extractor, store, resultCache, 2, 60)
	return svc, store
}

const schwabCSV = "Charles Schwab & Co., Inc.\n" +
	"Positions Export as of 06/30/2024\n" +
	"\n" +
	"Symbol,Description,Qty,Price,Market Value,Cost Basis\n" +
	"AAPL,APPLE INC,100,$150.00,\"$15,000.00\",\"$12,000.00\"\n" +
	"MSFT,MICROSOFT CORP,50,$300.00,\"$15,000.00\",\"$10,000.00\"\n" +
	"Total,,,,\"$30,000.00\",\n"

func TestProcessBatchSchwabExport(t *testing.T) {
	svc, _ := setupIngestion(t)

	files := []services.UploadedFile{{Filename: "schwab_positions.csv", Data: []byte(schwabCSV)}}
	result := svc.ProcessBatch(1, 0, "2024-06-30", files, nil)

	require.NotNil(t, result)
	assert.Greater(t, result.BatchID, int64(0))
	assert.Equal(t, 2, result.Totals.PositionsCount)
	assert.InDelta(t, 30000.0, result.Totals.TotalValue, 1e-9)
	assert.Equal(t, "Charles Schwab", result.Metadata.CustodianDetected)
	assert.Equal(t, 95, result.Metadata.Confidence)

	require.Len(t, result.Holdings, 2)
	assert.Equal(t, "AAPL", result.Holdings[0].Symbol)
	assert.InDelta(t, 0.5, result.Holdings[0].Weight, 1e-9)
	assert.False(t, result.Holdings[0].CostBasisEstimated)

	require.Len(t, result.Metadata.Files, 1)
	preview := result.Metadata.Files[0]
	assert.Equal(t, ingestion.KindPositions, preview.Kind)
	assert.False(t, preview.RequiresMapping)
	assert.GreaterOrEqual(t, preview.Confidence, 60)
	assert.Equal(t, 2, preview.RecordCount)

	cached, found := svc.LatestBatchResult(1)
	require.True(t, found)
	assert.Equal(t, result.BatchID, cached.BatchID)

	var positions int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM positions WHERE batch_id = ?`, result.BatchID).Scan(&positions))
	assert.Equal(t, 2, positions)

	var fileCount int
	require.NoError(t, database.DB.QueryRow(`SELECT COUNT(*) FROM ingested_files WHERE batch_id = ?`, result.BatchID).Scan(&fileCount))
	assert.Equal(t, 1, fileCount)
}

func TestProcessBatchWeights(t *testing.T) {
	svc, _ := setupIngestion(t)

	csv := "Symbol,Qty,Price,Market Value\nA,1,1,100\nB,1,1,300\nC,1,1,600\n"
	result := svc.ProcessBatch(1, 0, "", []services.UploadedFile{{Filename: "h.csv", Data: []byte(csv)}}, nil)

	require.Len(t, result.Holdings, 3)
	assert.InDelta(t, 0.1, result.Holdings[0].Weight, 1e-9)
	assert.InDelta(t, 0.3, result.Holdings[1].Weight, 1e-9)
	assert.InDelta(t, 0.6, result.Holdings[2].Weight, 1e-9)
}

func TestProcessBatchZeroValueBatch(t *testing.T) {
	svc, _ := setupIngestion(t)

	csv := "Symbol,Qty,Price,Market Value\nA,5,0,0\n"
	result := svc.ProcessBatch(1, 0, "", []services.UploadedFile{{Filename: "z.csv", Data: []byte(csv)}}, nil)

	require.Len(t, result.Holdings, 1)
	assert.InDelta(t, 0.0, result.Holdings[0].Weight, 1e-9, "zero total value must not divide")
	assert.InDelta(t, 0.0, result.Totals.TotalValue, 1e-9)
	require.Len(t, result.Metadata.Files, 1)
	assert.True(t, result.Metadata.Files[0].RequiresMapping, "rows without any positive value need review")
}

func TestProcessBatchUnknownLayout(t *testing.T) {
	svc, _ := setupIngestion(t)

	csv := "Foo,Bar\nsomething,else\n"
	result := svc.ProcessBatch(1, 0, "", []services.UploadedFile{{Filename: "odd.csv", Data: []byte(csv)}}, nil)

	assert.Empty(t, result.Holdings)
	assert.Equal(t, 30, result.Metadata.Confidence)
	require.Len(t, result.Metadata.Files, 1)
	preview := result.Metadata.Files[0]
	assert.Equal(t, ingestion.KindUnknown, preview.Kind)
	assert.True(t, preview.RequiresMapping)
}

func TestProcessBatchNoHeader(t *testing.T) {
	svc, _ := setupIngestion(t)

	result := svc.ProcessBatch(1, 0, "", []services.UploadedFile{{Filename: "junk.csv", Data: []byte("12\n34\n")}}, nil)

	assert.Empty(t, result.Holdings)
	require.Len(t, result.Metadata.Files, 1)
	preview := result.Metadata.Files[0]
	assert.True(t, preview.RequiresMapping)
	assert.Contains(t, preview.Errors, "no_header_found")
}

func TestProcessBatchExplicitMappingPersists(t *testing.T) {
	svc, store := setupIngestion(t)

	csv := "Tick,Units,Px\nAAPL,10,5\n"
	files := []services.UploadedFile{{Filename: "custom.csv", Data: []byte(csv)}}

	// Without help the symbol column cannot be found and nothing extracts.
	result := svc.ProcessBatch(1, 0, "", files, nil)
	assert.Empty(t, result.Holdings)
	assert.True(t, result.Metadata.Files[0].RequiresMapping)

	explicit := services.ExplicitMapping{"custom.csv": {ingestion.FieldSymbol: "Tick"}}
	result = svc.ProcessBatch(1, 0, "", files, explicit)
	require.Len(t, result.Holdings, 1)
	assert.Equal(t, "AAPL", result.Holdings[0].Symbol)
	assert.InDelta(t, 50.0, result.Holdings[0].MarketValue, 1e-9)
	assert.False(t, result.Metadata.Files[0].RequiresMapping)

	// The correction is remembered: the same layout now works unassisted.
	m, err := store.Lookup(1, []string{"Tick", "Units", "Px"})
	require.NoError(t, err)
	require.NotNil(t, m)

	result = svc.ProcessBatch(1, 0, "", files, nil)
	require.Len(t, result.Holdings, 1)
	assert.Equal(t, "AAPL", result.Holdings[0].Symbol)
}

func TestProcessBatchMultipleFiles(t *testing.T) {
	svc, _ := setupIngestion(t)

	files := []services.UploadedFile{
		{Filename: "a.csv", Data: []byte("Symbol,Qty,Price,Market Value\nA,1,1,100\n")},
		{Filename: "b.csv", Data: []byte("Symbol,Qty,Price,Market Value\nB,1,1,300\n")},
	}
	result := svc.ProcessBatch(1, 0, "", files, nil)

	require.Len(t, result.Holdings, 2)
	assert.Equal(t, "A", result.Holdings[0].Symbol, "holdings keep input-file order")
	assert.Equal(t, "B", result.Holdings[1].Symbol)
	assert.InDelta(t, 0.25, result.Holdings[0].Weight, 1e-9)
	assert.InDelta(t, 0.75, result.Holdings[1].Weight, 1e-9)
	require.Len(t, result.Metadata.Files, 2)
	assert.Equal(t, "a.csv", result.Metadata.Files[0].Filename)
	assert.Equal(t, "b.csv", result.Metadata.Files[1].Filename)
}
