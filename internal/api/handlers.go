/**
 * @description
 * HTTP handlers for the taxform-service: operator endpoints to run a pass or
 * inspect a document, and the HelloWorks completion callback.
 */
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/app"
	"github.com/transfa/taxform-service/internal/domain"
	"github.com/transfa/taxform-service/internal/store"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body.
const SignatureHeader = "X-HelloWorks-Signature"

// StatusCompleted is the callback status of a signed workflow.
const StatusCompleted = "completed"

// Runner runs eligibility passes.
type Runner interface {
	RunYear(ctx context.Context, year int) (app.RunResult, error)
}

// DocumentStore reads and updates tax form records.
type DocumentStore interface {
	FindAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindDocument(ctx context.Context, accountID uuid.UUID, year int) (*domain.LegalDocument, error)
	SaveStatus(ctx context.Context, accountID uuid.UUID, year int, status domain.RequestStatus, data map[string]any) (*domain.LegalDocument, error)
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	runner         Runner
	documents      DocumentStore
	callbackSecret string
	logger         *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(runner Runner, documents DocumentStore, callbackSecret string, logger *slog.Logger) *Handler {
	return &Handler{
		runner:         runner,
		documents:      documents,
		callbackSecret: callbackSecret,
		logger:         logger,
	}
}

type callbackPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata struct {
		AccountID string `json:"accountId"`
		Year      string `json:"year"`
	} `json:"metadata"`
}

func (h *Handler) handleRunYear(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, chi.URLParam(r, "year"))
	if !ok {
		return
	}

	result, err := h.runner.RunYear(r.Context(), year)
	if errors.Is(err, app.ErrInvalidYear) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, app.ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("tax form run failed", "year", year, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, chi.URLParam(r, "year"))
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	if _, err := h.documents.FindAccount(r.Context(), accountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load account", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	doc, err := h.documents.FindDocument(r.Context(), accountID, year)
	if errors.Is(err, store.ErrDocumentNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load tax form", "account_id", accountID, "year", year, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleHelloWorksCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.isValidSignature(r.Header.Get(SignatureHeader), body) {
		h.logger.Warn("rejected helloworks callback with invalid signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	accountID, err := uuid.Parse(payload.Metadata.AccountID)
	if err != nil {
		http.Error(w, "Invalid metadata.accountId", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(payload.Metadata.Year)
	if err != nil {
		http.Error(w, "Invalid metadata.year", http.StatusBadRequest)
		return
	}

	logger := h.logger.With("account_id", accountID, "year", year, "instance_id", payload.ID, "status", payload.Status)

	if _, err := h.documents.FindDocument(r.Context(), accountID, year); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			logger.Warn("helloworks callback for unknown tax form")
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Error("failed to load tax form for callback", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if !strings.EqualFold(payload.Status, StatusCompleted) {
		logger.Info("ignoring helloworks callback")
		w.WriteHeader(http.StatusOK)
		return
	}

	doc, err := h.documents.SaveStatus(r.Context(), accountID, year, domain.RequestStatusReceived, map[string]any{
		"helloWorks": map[string]any{
			"callback": map[string]any{"id": payload.ID, "status": payload.Status},
		},
	})
	if err != nil {
		logger.Error("failed to mark tax form received", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info("tax form received")
	respondWithJSON(w, http.StatusOK, doc)
}

func (h *Handler) isValidSignature(signatureHeader string, body []byte) bool {
	if h.callbackSecret == "" {
		return true
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.callbackSecret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

func parseYear(w http.ResponseWriter, raw string) (int, bool) {
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return 0, false
	}
	return year, true
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
