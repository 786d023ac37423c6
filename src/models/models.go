package models

import "time"

// HoldingRecord is the canonical output of the ingestion pipeline. Every
// custodian export row that survives extraction is normalized into one of
// these before aggregation and persistence.
type HoldingRecord struct {
	Symbol             string  `json:"symbol"`
	Name               string  `json:"name"`
	Shares             float64 `json:"shares"`
	Price              float64 `json:"price"`
	MarketValue        float64 `json:"market_value"`
	CostBasis          float64 `json:"cost_basis"`
	CostBasisEstimated bool    `json:"cost_basis_estimated"`
	Sector             string  `json:"sector,omitempty"`
	Currency           string  `json:"currency"`
	Weight             float64 `json:"weight"`
}

// PriceRecord is the canonical row for prices-kind files.
type PriceRecord struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Date   string  `json:"date,omitempty"`
}

// FilePreview is the per-file diagnostic record handed back to the caller.
// It is informational only and never persisted as authoritative state.
type FilePreview struct {
	Filename        string         `json:"filename"`
	Kind            string         `json:"type"`
	Headers         []string       `json:"headers"`
	SampleRows      [][]string     `json:"sample_rows"`
	FieldMap        map[string]int `json:"field_map"`
	Confidence      int            `json:"confidence"`
	RequiresMapping bool           `json:"requires_mapping"`
	Custodian       string         `json:"custodian"`
	Errors          []string       `json:"errors"`
	RecordCount     int            `json:"record_count"`
}

// BatchTotals summarises the aggregated positions of one ingestion batch.
type BatchTotals struct {
	TotalValue     float64 `json:"total_value"`
	PositionsCount int     `json:"positions_count"`
}

// BatchMetadata carries batch-level diagnostics alongside the holdings.
type BatchMetadata struct {
	CustodianDetected string        `json:"custodian_detected"`
	Confidence        int           `json:"confidence"`
	Files             []FilePreview `json:"files"`
}

// BatchResult is the full response of one ingestion call. A batch upload
// always yields one of these, never a hard failure; malformed files degrade
// to previews with errors and a requires_mapping flag.
type BatchResult struct {
	BatchID  int64           `json:"batch_id"`
	Holdings []HoldingRecord `json:"holdings"`
	Totals   BatchTotals     `json:"totals"`
	Metadata BatchMetadata   `json:"metadata"`
}

// Mapping is the persisted association between an organization's header
// signature and a resolved column map. One row per (org, signature).
type Mapping struct {
	ID              int64     `json:"id"`
	OrgID           int64     `json:"org_id"`
	CustodianHint   string    `json:"custodian_hint,omitempty"`
	HeaderSignature string    `json:"header_signature"`
	JSONMapping     string    `json:"json_mapping"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

// Client is a CRUD row owned by the surrounding storage collaborator.
type Client struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Account struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	Name      string    `json:"name"`
	Custodian string    `json:"custodian,omitempty"`
	Number    string    `json:"number,omitempty"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type Batch struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	ClientID  int64     `json:"client_id"`
	AsOfDate  string    `json:"as_of_date"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyticsSummary is the downstream view computed from the latest
// persisted positions of an organization.
type AnalyticsSummary struct {
	TotalValue           float64            `json:"total_value"`
	HoldingsCount        int                `json:"holdings_count"`
	TopHoldings          []HoldingRecord    `json:"top_holdings"`
	TopFiveConcentration float64            `json:"top_five_concentration"`
	SectorAllocation     map[string]float64 `json:"sector_allocation"`
	DiversificationScore float64            `json:"diversification_score"`
}
