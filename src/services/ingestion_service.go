package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/mappings"
	"github.com/username/portfolioxray/backend/src/models"
	"github.com/username/portfolioxray/backend/src/security/validation"
)

const (
	ckLatestBatchResult = "latest_batch_org_%d"
	ckAnalyticsSummary  = "analytics_summary_org_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute

	sampleRowCount = 5

	// Batch-level confidence is coarse: holdings came out or they did not.
	batchConfidenceWithHoldings = 95
	batchConfidenceEmpty        = 30
)

type ingestionServiceImpl struct {
	schema              *ingestion.Schema
	extractor           *ingestion.Extractor
	mappingStore        *mappings.Store
	resultCache         *cache.Cache
	workers             int
	confidenceThreshold int
}

func NewIngestionService(
	schema *ingestion.Schema,
	extractor *ingestion.Extractor,
	mappingStore *mappings.Store,
	resultCache *cache.Cache,
	workers int,
	confidenceThreshold int,
) IngestionService {
	if workers < 1 {
		workers = 1
	}
	return &ingestionServiceImpl{
		schema:              schema,
		extractor:           extractor,
		mappingStore:        mappingStore,
		resultCache:         resultCache,
		workers:             workers,
		confidenceThreshold: confidenceThreshold,
	}
}

// fileOutcome is the per-file result of the pipeline, gathered by input
// index so aggregation order stays deterministic.
type fileOutcome struct {
	preview  models.FilePreview
	holdings []models.HoldingRecord
	prices   []models.PriceRecord
}

func (s *ingestionServiceImpl) ProcessBatch(orgID, clientID int64, asOfDate string, files []UploadedFile, explicit ExplicitMapping) *models.BatchResult {
	startTime := time.Now()
	logger.L.Info("ProcessBatch START", "orgID", orgID, "fileCount", len(files))

	outcomes := make([]fileOutcome, len(files))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f UploadedFile) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = s.processFile(orgID, f, explicit[f.Filename])
		}(i, f)
	}
	wg.Wait()

	result := s.reduce(orgID, clientID, asOfDate, files, outcomes)
	s.resultCache.Set(fmt.Sprintf(ckLatestBatchResult, orgID), result, DefaultCacheExpiration)
	s.resultCache.Delete(fmt.Sprintf(ckAnalyticsSummary, orgID))

	logger.L.Info("ProcessBatch END", "orgID", orgID, "batchID", result.BatchID,
		"positions", result.Totals.PositionsCount, "duration", time.Since(startTime))
	return result
}

// processFile runs the per-file pipeline. It never panics outward: any
// failure degrades to an error preview so sibling files keep processing.
func (s *ingestionServiceImpl) processFile(orgID int64, f UploadedFile, explicit map[string]string) (out fileOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Error("Panic while processing file", "filename", f.Filename, "panic", r)
			out = fileOutcome{preview: models.FilePreview{
				Filename:        f.Filename,
				Kind:            ingestion.KindUnknown,
				RequiresMapping: true,
				Errors:          []string{fmt.Sprintf("internal_error: %v", r)},
			}}
		}
	}()

	table, softErrors := ingestion.DecodeTable(f.Filename, f.Data)
	custodian := s.schema.DetectCustodian(table.Preview, f.Filename)

	headers, body := s.schema.LocateHeader(table.Rows)
	if len(headers) == 0 {
		logger.L.Warn("No plausible header row found", "filename", f.Filename)
		return fileOutcome{preview: models.FilePreview{
			Filename:        f.Filename,
			Kind:            ingestion.KindUnknown,
			Custodian:       custodian,
			FieldMap:        map[string]int{},
			Confidence:      ingestion.ConfidenceScore(nil, 0),
			RequiresMapping: true,
			Errors:          append(softErrors, "no_header_found"),
		}}
	}

	var fieldMap ingestion.FieldMap
	if len(explicit) > 0 {
		fieldMap = s.schema.ResolveFieldMap(headers, explicit)
		if err := s.mappingStore.Save(orgID, headers, custodian, fieldMap); err != nil {
			logger.L.Warn("Failed to persist explicit mapping", "filename", f.Filename, "error", err)
			softErrors = append(softErrors, fmt.Sprintf("mapping_save_failed: %v", err))
		}
	} else {
		var err error
		fieldMap, err = s.mappingStore.Resolve(orgID, headers, custodian)
		if err != nil {
			// Storage trouble must not fail the file; infer in-process.
			logger.L.Warn("Mapping memory unavailable, inferring", "filename", f.Filename, "error", err)
			softErrors = append(softErrors, fmt.Sprintf("mapping_memory_failed: %v", err))
			fieldMap = s.schema.ResolveFieldMap(headers, nil)
		}
	}

	kind := s.schema.GuessFileKind(headers)

	var holdings []models.HoldingRecord
	var prices []models.PriceRecord
	parsedCount := 0
	hasPositiveValue := false
	switch kind {
	case ingestion.KindPositions:
		holdings = s.extractor.ExtractPositions(body, fieldMap)
		parsedCount = len(holdings)
		for _, h := range holdings {
			if h.Price > 0 || h.MarketValue > 0 {
				hasPositiveValue = true
				break
			}
		}
	case ingestion.KindPrices:
		prices = s.extractor.ExtractPrices(body, fieldMap)
		parsedCount = len(prices)
		for _, p := range prices {
			if p.Price > 0 {
				hasPositiveValue = true
				break
			}
		}
	}

	confidence := ingestion.ConfidenceScore(fieldMap, parsedCount)
	requires := ingestion.RequiresMapping(kind, confidence, s.confidenceThreshold, parsedCount, len(body), hasPositiveValue)

	sample := body
	if len(sample) > sampleRowCount {
		sample = sample[:sampleRowCount]
	}
	if softErrors == nil {
		softErrors = []string{}
	}

	return fileOutcome{
		preview: models.FilePreview{
			Filename:        f.Filename,
			Kind:            kind,
			Headers:         headers,
			SampleRows:      sample,
			FieldMap:        fieldMap,
			Confidence:      confidence,
			RequiresMapping: requires,
			Custodian:       custodian,
			Errors:          softErrors,
			RecordCount:     parsedCount,
		},
		holdings: holdings,
		prices:   prices,
	}
}

// reduce aggregates per-file outcomes in input-file order, computes
// weights, and persists the batch. Any unexpected panic here degrades to an
// empty, well-typed result instead of failing the whole upload.
func (s *ingestionServiceImpl) reduce(orgID, clientID int64, asOfDate string, files []UploadedFile, outcomes []fileOutcome) (result *models.BatchResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.L.Error("Panic while aggregating batch", "orgID", orgID, "panic", r)
			result = emptyBatchResult(outcomes)
		}
	}()

	totalValue := 0.0
	for _, o := range outcomes {
		for _, h := range o.holdings {
			totalValue += h.MarketValue
		}
	}

	var combined []models.HoldingRecord
	for i := range outcomes {
		for j := range outcomes[i].holdings {
			if totalValue > 0 {
				outcomes[i].holdings[j].Weight = outcomes[i].holdings[j].MarketValue / totalValue
			} else {
				outcomes[i].holdings[j].Weight = 0
			}
		}
		combined = append(combined, outcomes[i].holdings...)
	}

	custodian := "Unknown"
	previews := make([]models.FilePreview, 0, len(outcomes))
	for _, o := range outcomes {
		if custodian == "Unknown" && o.preview.Custodian != "" && o.preview.Custodian != "Unknown" {
			custodian = o.preview.Custodian
		}
		previews = append(previews, o.preview)
	}

	confidence := batchConfidenceEmpty
	if len(combined) > 0 {
		confidence = batchConfidenceWithHoldings
	}

	batchID, err := s.persistBatch(orgID, clientID, asOfDate, files, outcomes)
	if err != nil {
		// The caller still gets the parsed result; BatchID 0 signals the
		// batch was not recorded and the upload can be retried.
		logger.L.Error("Failed to persist batch", "orgID", orgID, "error", err)
		batchID = 0
	}

	if combined == nil {
		combined = []models.HoldingRecord{}
	}
	return &models.BatchResult{
		BatchID:  batchID,
		Holdings: combined,
		Totals: models.BatchTotals{
			TotalValue:     totalValue,
			PositionsCount: len(combined),
		},
		Metadata: models.BatchMetadata{
			CustodianDetected: custodian,
			Confidence:        confidence,
			Files:             previews,
		},
	}
}

func emptyBatchResult(outcomes []fileOutcome) *models.BatchResult {
	previews := make([]models.FilePreview, 0, len(outcomes))
	for _, o := range outcomes {
		previews = append(previews, o.preview)
	}
	return &models.BatchResult{
		Holdings: []models.HoldingRecord{},
		Metadata: models.BatchMetadata{
			CustodianDetected: "Unknown",
			Confidence:        batchConfidenceEmpty,
			Files:             previews,
		},
	}
}

// persistBatch records the batch, its files and the extracted positions in
// one transaction: a batch either fully records or the caller can retry.
func (s *ingestionServiceImpl) persistBatch(orgID, clientID int64, asOfDate string, files []UploadedFile, outcomes []fileOutcome) (int64, error) {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.Exec(`INSERT INTO batches (org_id, client_id, as_of_date, status) VALUES (?, ?, ?, 'ingested')`,
		orgID, clientID, asOfDate)
	if err != nil {
		return 0, fmt.Errorf("error inserting batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading batch id: %w", err)
	}

	posStmt, err := dbTx.Prepare(`INSERT INTO positions
		(batch_id, file_id, symbol, name, shares, price, market_value, cost_basis, cost_basis_estimated, currency, sector, weight, as_of_date, source_row)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing position insert: %w", err)
	}
	defer posStmt.Close()

	for i, o := range outcomes {
		fileRes, err := dbTx.Exec(`INSERT INTO ingested_files
			(batch_id, filename, size_bytes, kind, custodian, confidence, requires_mapping)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			batchID, o.preview.Filename, len(files[i].Data), o.preview.Kind,
			o.preview.Custodian, o.preview.Confidence, o.preview.RequiresMapping)
		if err != nil {
			return 0, fmt.Errorf("error inserting file record (%s): %w", o.preview.Filename, err)
		}
		fileID, err := fileRes.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("error reading file id: %w", err)
		}

		for row, h := range o.holdings {
			_, err := posStmt.Exec(batchID, fileID,
				cleanForStorage(h.Symbol), cleanForStorage(h.Name),
				h.Shares, h.Price, h.MarketValue, h.CostBasis, h.CostBasisEstimated,
				h.Currency, cleanForStorage(h.Sector), h.Weight, asOfDate, row+1)
			if err != nil {
				return 0, fmt.Errorf("error inserting position (%s): %w", h.Symbol, err)
			}
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing batch: %w", err)
	}
	return batchID, nil
}

// cleanForStorage neutralizes formula-injection prefixes and unprintable
// characters in text destined for later spreadsheet export.
func cleanForStorage(s string) string {
	return validation.SanitizeForFormulaInjection(validation.StripUnprintable(s))
}

func (s *ingestionServiceImpl) LatestBatchResult(orgID int64) (*models.BatchResult, bool) {
	if cached, found := s.resultCache.Get(fmt.Sprintf(ckLatestBatchResult, orgID)); found {
		return cached.(*models.BatchResult), true
	}
	return nil, false
}
