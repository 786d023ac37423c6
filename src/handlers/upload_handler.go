// backend/src/handlers/upload_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/portfolioxray/backend/src/config"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/security/validation"
	"github.com/username/portfolioxray/backend/src/services"
	"github.com/username/portfolioxray/backend/src/utils"
)

type UploadHandler struct {
	ingestionService services.IngestionService
}

func NewUploadHandler(service services.IngestionService) *UploadHandler {
	return &UploadHandler{
		ingestionService: service,
	}
}

// parseOrgID extracts the organization identifier from the form or query
// string. Multi-tenancy is keyed on this value everywhere downstream.
func parseOrgID(r *http.Request) (int64, error) {
	raw := r.FormValue("org_id")
	if raw == "" {
		raw = r.URL.Query().Get("org_id")
	}
	if raw == "" {
		return 0, fmt.Errorf("missing required 'org_id' parameter")
	}
	orgID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orgID <= 0 {
		return 0, fmt.Errorf("invalid 'org_id' parameter: %q", raw)
	}
	return orgID, nil
}

func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	orgID, err := parseOrgID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var clientID int64
	if raw := r.FormValue("client_id"); raw != "" {
		clientID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("invalid 'client_id' parameter: %q", raw), http.StatusBadRequest)
			return
		}
	}
	asOfDate := r.FormValue("as_of")

	// Explicit mapping overrides are an optional JSON form value keyed by
	// filename. Malformed JSON rejects the whole batch before any work runs.
	var explicit services.ExplicitMapping
	if rawMapping := r.FormValue("mapping"); rawMapping != "" {
		if err := json.Unmarshal([]byte(rawMapping), &explicit); err != nil {
			logger.L.Warn("Malformed explicit mapping payload", "orgID", orgID, "error", err)
			utils.SendJSONError(w, "Malformed 'mapping' payload. Expecting {filename: {field: column}}.", http.StatusBadRequest)
			return
		}
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		utils.SendJSONError(w, "No files in request. Ensure the 'files' field is used.", http.StatusBadRequest)
		return
	}

	uploaded := make([]services.UploadedFile, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
			logger.L.Warn("Uploaded file header reports size too large", "orgID", orgID, "filename", fileHeader.Filename, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
			utils.SendJSONError(w, fmt.Sprintf("File '%s' too large, max %d MB", fileHeader.Filename, config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
			return
		}

		clientContentType := fileHeader.Header.Get("Content-Type")
		if err := validation.ValidateClientContentType(clientContentType); err != nil {
			logger.L.Warn("Invalid client-declared file type", "orgID", orgID, "filename", fileHeader.Filename, "contentType", clientContentType, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			logger.L.Error("Failed to open uploaded file part", "orgID", orgID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Failed to read file '%s' from request.", fileHeader.Filename), http.StatusBadRequest)
			return
		}

		detectedContentType, err := validation.ValidateFileContentByMagicBytes(fileHeader.Filename, file)
		if err != nil {
			file.Close()
			logger.L.Warn("Server-side file content validation failed", "orgID", orgID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Debug("File content validated by magic bytes", "orgID", orgID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			logger.L.Error("Failed to read uploaded file into memory", "orgID", orgID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Failed to read file '%s' from request.", fileHeader.Filename), http.StatusBadRequest)
			return
		}
		uploaded = append(uploaded, services.UploadedFile{Filename: fileHeader.Filename, Data: data})
	}

	logger.L.Info("Processing ingestion batch", "orgID", orgID, "clientID", clientID, "fileCount", len(uploaded))
	result := h.ingestionService.ProcessBatch(orgID, clientID, asOfDate, uploaded, explicit)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error encoding JSON response for batch result", "orgID", orgID, "error", err)
	}
}

func (h *UploadHandler) HandleGetLatestBatch(w http.ResponseWriter, r *http.Request) {
	orgID, err := parseOrgID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Debug("Handling latest batch request with ETag support", "orgID", orgID)

	result, found := h.ingestionService.LatestBatchResult(orgID)
	if !found {
		utils.SendJSONError(w, fmt.Sprintf("No ingested batch found for organization %d", orgID), http.StatusNotFound)
		return
	}

	currentETag, etagErr := utils.GenerateETag(result)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for batch result", "orgID", orgID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		clientETags := strings.Split(clientETag, ",")
		for _, cETag := range clientETags {
			if strings.TrimSpace(cETag) == quotedETag {
				logger.L.Info("ETag match for batch result", "orgID", orgID, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		if clientETag != "" {
			logger.L.Debug("ETag mismatch", "orgID", orgID, "clientETags", clientETag, "serverETag", quotedETag)
		}
	} else {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error or empty ETag", "orgID", orgID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error generating JSON response for batch result", "orgID", orgID, "error", err)
	}
}
