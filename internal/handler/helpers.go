package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "corpo da requisição inválido"}
	}
	return nil
}

func parseAmount(r *http.Request, param string) (float64, bool) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var gateway *domain.ErrGateway
	var expired *domain.ErrPaymentExpired
	var notValidated *domain.ErrPaymentNotValidated
	var sessionClosed *domain.ErrSessionClosed
	var invalidStep *domain.ErrInvalidStep
	var unauthorized *domain.ErrUnauthorized
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gateway):
		logger.Warn("gateway rejected operation", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &expired):
		logger.Debug("payment expired", zap.String("payment_id", expired.PaymentID))
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &notValidated):
		logger.Error("payment confirmed but validation failed",
			zap.String("transaction_id", notValidated.TransactionID),
			zap.Error(err))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &sessionClosed):
		logger.Debug("session closed", zap.String("session_id", sessionClosed.SessionID))
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &invalidStep):
		logger.Debug("operation out of order", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &external):
		logger.Error("external service failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
