// backend/src/handlers/crud_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/portfolioxray/backend/src/database"
	"github.com/username/portfolioxray/backend/src/logger"
	"github.com/username/portfolioxray/backend/src/models"
	"github.com/username/portfolioxray/backend/src/security/validation"
	"github.com/username/portfolioxray/backend/src/utils"
)

// CrudHandler serves the thin bookkeeping surface around ingestion:
// clients, their accounts, and the batch history.
type CrudHandler struct{}

func NewCrudHandler() *CrudHandler {
	return &CrudHandler{}
}

type createClientRequest struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
}

func (h *CrudHandler) HandleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(validation.StripUnprintable(req.Name))
	if req.Name == "" {
		utils.SendJSONError(w, "missing 'name'", http.StatusBadRequest)
		return
	}
	req.ExternalID = strings.TrimSpace(validation.StripUnprintable(req.ExternalID))

	res, err := database.DB.Exec(`INSERT INTO clients (name, external_id) VALUES (?, ?)`, req.Name, req.ExternalID)
	if err != nil {
		logger.L.Error("Error inserting client", "error", err)
		utils.SendJSONError(w, "An internal error occurred while creating the client.", http.StatusInternalServerError)
		return
	}
	id, _ := res.LastInsertId()
	logger.L.Info("Client created", "clientID", id, "name", req.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

func (h *CrudHandler) HandleListClients(w http.ResponseWriter, r *http.Request) {
	rows, err := database.DB.Query(`SELECT id, name, external_id, created_at FROM clients ORDER BY name ASC`)
	if err != nil {
		logger.L.Error("Error querying clients", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing clients.", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		var c models.Client
		var externalID *string
		if err := rows.Scan(&c.ID, &c.Name, &externalID, &c.CreatedAt); err != nil {
			logger.L.Error("Error scanning client row", "error", err)
			utils.SendJSONError(w, "An internal error occurred while listing clients.", http.StatusInternalServerError)
			return
		}
		if externalID != nil {
			c.ExternalID = *externalID
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		logger.L.Error("Error iterating client rows", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing clients.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clients)
}

type createAccountRequest struct {
	ClientID  int64  `json:"client_id"`
	Name      string `json:"name"`
	Custodian string `json:"custodian,omitempty"`
	Number    string `json:"number,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

func (h *CrudHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}
	if req.ClientID <= 0 {
		utils.SendJSONError(w, "missing or invalid 'client_id'", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(validation.StripUnprintable(req.Name))
	if req.Name == "" {
		utils.SendJSONError(w, "missing 'name'", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	var exists int
	if err := database.DB.QueryRow(`SELECT COUNT(1) FROM clients WHERE id = ?`, req.ClientID).Scan(&exists); err != nil || exists == 0 {
		utils.SendJSONError(w, fmt.Sprintf("client %d not found", req.ClientID), http.StatusNotFound)
		return
	}

	res, err := database.DB.Exec(`INSERT INTO accounts (client_id, name, custodian, number, currency) VALUES (?, ?, ?, ?, ?)`,
		req.ClientID, req.Name, strings.TrimSpace(req.Custodian), strings.TrimSpace(req.Number), strings.ToUpper(req.Currency))
	if err != nil {
		logger.L.Error("Error inserting account", "clientID", req.ClientID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while creating the account.", http.StatusInternalServerError)
		return
	}
	id, _ := res.LastInsertId()
	logger.L.Info("Account created", "accountID", id, "clientID", req.ClientID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

func (h *CrudHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, client_id, name, custodian, number, currency, created_at FROM accounts`
	args := []interface{}{}
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.SendJSONError(w, fmt.Sprintf("invalid 'client_id' parameter: %q", raw), http.StatusBadRequest)
			return
		}
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY id ASC`

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		logger.L.Error("Error querying accounts", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing accounts.", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		var custodian, number *string
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Name, &custodian, &number, &a.Currency, &a.CreatedAt); err != nil {
			logger.L.Error("Error scanning account row", "error", err)
			utils.SendJSONError(w, "An internal error occurred while listing accounts.", http.StatusInternalServerError)
			return
		}
		if custodian != nil {
			a.Custodian = *custodian
		}
		if number != nil {
			a.Number = *number
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		logger.L.Error("Error iterating account rows", "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing accounts.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

func (h *CrudHandler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	orgID, err := parseOrgID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := database.DB.Query(`SELECT id, org_id, client_id, as_of_date, status, notes, created_at
		FROM batches WHERE org_id = ? ORDER BY id DESC`, orgID)
	if err != nil {
		logger.L.Error("Error querying batches", "orgID", orgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing batches.", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	batches := []models.Batch{}
	for rows.Next() {
		var b models.Batch
		var clientID *int64
		var asOfDate, notes *string
		if err := rows.Scan(&b.ID, &b.OrgID, &clientID, &asOfDate, &b.Status, &notes, &b.CreatedAt); err != nil {
			logger.L.Error("Error scanning batch row", "orgID", orgID, "error", err)
			utils.SendJSONError(w, "An internal error occurred while listing batches.", http.StatusInternalServerError)
			return
		}
		if clientID != nil {
			b.ClientID = *clientID
		}
		if asOfDate != nil {
			b.AsOfDate = *asOfDate
		}
		if notes != nil {
			b.Notes = *notes
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		logger.L.Error("Error iterating batch rows", "orgID", orgID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while listing batches.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batches)
}
