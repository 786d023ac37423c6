// backend/src/handlers/mapping_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/portfolioxray/backend/src/ingestion"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/mappings"
	"github.com/username/portfolioxray/backend/src/utils"
)

type MappingHandler struct {
	store *mappings.Store
}

func NewMappingHandler(store *mappings.Store) *MappingHandler {
	return &MappingHandler{store: store}
}

type resolveMappingRequest struct {
	OrgID         int64    `json:"org_id"`
	Headers       []string `json:"headers"`
	CustodianHint string   `json:"custodian_hint,omitempty"`
}

type resolveMappingResponse struct {
	HeaderSignature string             `json:"header_signature"`
	FieldMap        ingestion.FieldMap `json:"field_map"`
}

type saveMappingRequest struct {
	OrgID         int64              `json:"org_id"`
	Headers       []string           `json:"headers"`
	CustodianHint string             `json:"custodian_hint,omitempty"`
	FieldMap      ingestion.FieldMap `json:"field_map"`
}

// HandleResolveMapping returns the stored column map for a header layout,
// inferring and memorizing one on first sight.
func (h *MappingHandler) HandleResolveMapping(w http.ResponseWriter, r *http.Request) {
	var req resolveMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}
	if req.OrgID <= 0 {
		utils.SendJSONError(w, "missing or invalid 'org_id'", http.StatusBadRequest)
		return
	}
	if len(req.Headers) == 0 {
		utils.SendJSONError(w, "missing 'headers'", http.StatusBadRequest)
		return
	}

	fm, err := h.store.Resolve(req.OrgID, req.Headers, req.CustodianHint)
	if err != nil {
		logger.L.Error("Error resolving mapping", "orgID", req.OrgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while resolving the mapping.", http.StatusInternalServerError)
		return
	}

	resp := resolveMappingResponse{
		HeaderSignature: ingestion.HeaderSignature(req.Headers),
		FieldMap:        fm,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.L.Error("Error encoding mapping resolve response", "orgID", req.OrgID, "error", err)
	}
}

// HandleSaveMapping overwrites the stored column map for a header layout
// with a user-confirmed one.
func (h *MappingHandler) HandleSaveMapping(w http.ResponseWriter, r *http.Request) {
	var req saveMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}
	if req.OrgID <= 0 {
		utils.SendJSONError(w, "missing or invalid 'org_id'", http.StatusBadRequest)
		return
	}
	if len(req.Headers) == 0 {
		utils.SendJSONError(w, "missing 'headers'", http.StatusBadRequest)
		return
	}
	if len(req.FieldMap) == 0 {
		utils.SendJSONError(w, "missing 'field_map'", http.StatusBadRequest)
		return
	}

	if err := h.store.Save(req.OrgID, req.Headers, req.CustodianHint, req.FieldMap); err != nil {
		var fmErr *ingestion.FieldMapError
		if errors.As(err, &fmErr) {
			logger.L.Warn("Rejecting invalid field map", "orgID", req.OrgID, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Invalid field map: %v", err), http.StatusBadRequest)
			return
		}
		logger.L.Error("Error saving mapping", "orgID", req.OrgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while saving the mapping.", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Mapping saved", "orgID", req.OrgID, "headerSignature", ingestion.HeaderSignature(req.Headers))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "mapping saved"})
}

// HandleGetMapping looks up the stored mapping row for a header layout
// without creating one.
func (h *MappingHandler) HandleGetMapping(w http.ResponseWriter, r *http.Request) {
	orgID, err := parseOrgID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	headers := r.URL.Query()["header"]
	if len(headers) == 0 {
		utils.SendJSONError(w, "missing 'header' query parameters", http.StatusBadRequest)
		return
	}

	mapping, err := h.store.Lookup(orgID, headers)
	if err != nil {
		logger.L.Error("Error looking up mapping", "orgID", orgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while looking up the mapping.", http.StatusInternalServerError)
		return
	}
	if mapping == nil {
		utils.SendJSONError(w, "No stored mapping for this header layout", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(mapping); err != nil {
		logger.L.Error("Error encoding mapping response", "orgID", orgID, "error", err)
	}
}
