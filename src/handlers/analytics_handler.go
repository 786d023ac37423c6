// backend/src/handlers/analytics_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/models"
	"github.com/username/portfolioxray/backend/src/services"
	"github.com/username/portfolioxray/backend/src/utils"
)

type AnalyticsHandler struct {
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(service services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: service}
}

func (h *AnalyticsHandler) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	orgID, err := parseOrgID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Debug("Handling portfolio analytics request with ETag support", "orgID", orgID)

	summary, err := h.analyticsService.Summary(orgID)
	if err != nil {
		if errors.Is(err, services.ErrNoBatchFound) {
			utils.SendJSONError(w, fmt.Sprintf("No ingested batch found for organization %d", orgID), http.StatusNotFound)
			return
		}
		logger.L.Error("Error computing analytics summary", "orgID", orgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while computing analytics.", http.StatusInternalServerError)
		return
	}

	if summary.TopHoldings == nil {
		summary.TopHoldings = []models.HoldingRecord{}
	}
	if summary.SectorAllocation == nil {
		summary.SectorAllocation = make(map[string]float64)
	}

	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for analytics summary", "orgID", orgID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		clientETags := strings.Split(clientETag, ",")
		for _, cETag := range clientETags {
			if strings.TrimSpace(cETag) == quotedETag {
				logger.L.Info("ETag match for analytics summary", "orgID", orgID, "etag", currentETag)
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
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error generating JSON response for analytics summary", "orgID", orgID, "error", err)
	}
}
