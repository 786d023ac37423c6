package services

import (
	"errors"

	"github.com/username/portfolioxray/backend/src/models"
)

var (
	ErrMappingInvalid = errors.New("mapping payload invalid")
	ErrNoBatchFound   = errors.New("no ingested batch for organization")
)

// UploadedFile is one file of an ingestion batch, already read into memory
// by the HTTP adapter.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// ExplicitMapping maps filename -> canonical field -> column name, supplied
// by a user overriding inference for specific files.
type ExplicitMapping map[string]map[string]string

// IngestionService runs the adaptive ingestion pipeline over a batch of
// custodian files and persists the outcome.
type IngestionService interface {
	// ProcessBatch never fails on malformed file contents; degradation is
	// reported per file inside the returned BatchResult.
	ProcessBatch(orgID, clientID int64, asOfDate string, files []UploadedFile, explicit ExplicitMapping) *models.BatchResult
	LatestBatchResult(orgID int64) (*models.BatchResult, bool)
}

// AnalyticsService consumes persisted holdings downstream of ingestion.
type AnalyticsService interface {
	Summary(orgID int64) (*models.AnalyticsSummary, error)
}
