package handler

import (
	"net/http"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type startValidationRequest struct {
	AccountID string           `json:"account_id"`
	Payer     domain.PayerInfo `json:"payer"`
}

// POST /v1/caixinhas/{caixinhaId}/banking/pix-validation
//
// Opens a validation session and generates its first charge. A failed
// charge still returns 201 with the error embedded in the session
// state, because the session exists and can be retried.
func startPixValidationHandler(mgr *service.PixSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caixinhaID := chi.URLParam(r, "caixinhaId")

		var req startValidationRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.AccountID == "" {
			handleServiceError(w, &domain.ErrValidation{Field: "account_id", Message: "conta é obrigatória"}, logger)
			return
		}

		state, err := mgr.StartSession(r.Context(), caixinhaID, req.AccountID, req.Payer)
		if err != nil && state.SessionID == "" {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, state)
	}
}

// GET /v1/pix-validation/{sessionId}
func getPixValidationHandler(mgr *service.PixSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := mgr.Session(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// POST /v1/pix-validation/{sessionId}/retry
func retryPixValidationHandler(mgr *service.PixSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := mgr.RetrySession(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// DELETE /v1/pix-validation/{sessionId}
func closePixValidationHandler(mgr *service.PixSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.CloseSession(chi.URLParam(r, "sessionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}
