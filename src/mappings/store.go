// Package mappings is the persisted mapping memory: one row per
// (organization, header signature), remembering the column map accepted or
// inferred for that layout so repeat files skip inference.
package mappings

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/models"
)

type Store struct {
	db     *sql.DB
	schema *ingestion.Schema
}

func NewStore(db *sql.DB, schema *ingestion.Schema) *Store {
	return &Store{db: db, schema: schema}
}

// Resolve returns the FieldMap for an organization's header row. A stored
// mapping wins; otherwise one is inferred, persisted at version 1 and
// returned. Creation is idempotent by signature: two concurrent callers
// racing on the same unseen layout both end up reading the single winning
// row, thanks to the UNIQUE(org_id, header_signature) constraint.
func (s *Store) Resolve(orgID int64, headers []string, custodianHint string) (ingestion.FieldMap, error) {
	sig := ingestion.HeaderSignature(headers)

	m, err := s.lookup(orgID, sig)
	if err != nil {
		return nil, err
	}
	if m != nil {
		logger.L.Debug("Mapping memory hit", "orgID", orgID, "signature", sig)
		return s.decode(m.JSONMapping, len(headers)), nil
	}

	inferred := s.schema.ResolveFieldMap(headers, nil)
	encoded, err := json.Marshal(inferred)
	if err != nil {
		return nil, fmt.Errorf("error encoding inferred mapping: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO mappings (org_id, custodian_hint, header_signature, json_mapping, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(org_id, header_signature) DO NOTHING`,
		orgID, custodianHint, sig, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("error inserting mapping for orgID %d: %w", orgID, err)
	}

	// Re-read so a losing concurrent writer adopts the winner's record.
	m, err = s.lookup(orgID, sig)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return inferred, nil
	}
	logger.L.Info("Mapping memory miss, inferred and stored", "orgID", orgID, "signature", sig, "fields", len(inferred))
	return s.decode(m.JSONMapping, len(headers)), nil
}

// Save explicitly upserts a user-confirmed mapping, replacing the stored
// column map and custodian hint in place when the signature already exists.
func (s *Store) Save(orgID int64, headers []string, custodianHint string, fm ingestion.FieldMap) error {
	if err := s.schema.Validate(fm, len(headers)); err != nil {
		return err
	}
	sig := ingestion.HeaderSignature(headers)
	encoded, err := json.Marshal(fm)
	if err != nil {
		return fmt.Errorf("error encoding mapping: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO mappings (org_id, custodian_hint, header_signature, json_mapping, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(org_id, header_signature) DO UPDATE SET
			json_mapping = excluded.json_mapping,
			custodian_hint = excluded.custodian_hint`,
		orgID, custodianHint, sig, string(encoded))
	if err != nil {
		return fmt.Errorf("error saving mapping for orgID %d: %w", orgID, err)
	}
	logger.L.Info("Mapping saved", "orgID", orgID, "signature", sig, "fields", len(fm))
	return nil
}

// Lookup returns the stored Mapping for (org, signature), or nil.
func (s *Store) Lookup(orgID int64, headers []string) (*models.Mapping, error) {
	return s.lookup(orgID, ingestion.HeaderSignature(headers))
}

func (s *Store) lookup(orgID int64, sig string) (*models.Mapping, error) {
	var m models.Mapping
	var hint sql.NullString
	err := s.db.QueryRow(`SELECT id, org_id, custodian_hint, header_signature, json_mapping, version, created_at
		FROM mappings WHERE org_id = ? AND header_signature = ?`, orgID, sig).
		Scan(&m.ID, &m.OrgID, &hint, &m.HeaderSignature, &m.JSONMapping, &m.Version, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying mapping for orgID %d: %w", orgID, err)
	}
	m.CustodianHint = hint.String
	return &m, nil
}

// decode deserializes a stored column map, dropping entries whose index no
// longer fits the header row.
func (s *Store) decode(jsonMapping string, headerLen int) ingestion.FieldMap {
	raw := make(map[string]int)
	if err := json.Unmarshal([]byte(jsonMapping), &raw); err != nil {
		logger.L.Warn("Stored mapping is not valid JSON, ignoring", "error", err)
		return ingestion.FieldMap{}
	}
	fm := make(ingestion.FieldMap, len(raw))
	for field, idx := range raw {
		if idx >= 0 && idx < headerLen && s.schema.IsCanonicalField(field) {
			fm[field] = idx
		}
	}
	return fm
}
