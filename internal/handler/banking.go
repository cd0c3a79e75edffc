package handler

import (
	"net/http"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GET /v1/caixinhas/{caixinhaId}/banking
func getBankingInfoHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caixinhaID := chi.URLParam(r, "caixinhaId")

		info, err := svc.BankingInfo(r.Context(), caixinhaID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// GET /v1/caixinhas/{caixinhaId}/banking/history
func getBankingHistoryHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caixinhaID := chi.URLParam(r, "caixinhaId")

		history, err := svc.BankingHistory(r.Context(), caixinhaID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

// POST /v1/caixinhas/{caixinhaId}/banking/register
func registerBankAccountHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caixinhaID := chi.URLParam(r, "caixinhaId")

		var req domain.RegisterBankAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		account, err := svc.RegisterBankAccount(r.Context(), caixinhaID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

// POST /v1/caixinhas/{caixinhaId}/banking/validate
func validateBankAccountHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ValidateBankAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		req.CaixinhaID = chi.URLParam(r, "caixinhaId")

		account, err := svc.ValidateBankAccount(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// POST /v1/banking/transfer
func transferFundsHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.TransferFundsRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := svc.TransferFunds(r.Context(), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /v1/transactions/{transactionId}
func getTransactionHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID := chi.URLParam(r, "transactionId")

		tx, err := svc.TransactionDetails(r.Context(), transactionID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

// POST /v1/caixinhas/{caixinhaId}/transactions/{transactionId}/cancel
func cancelTransactionHandler(svc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caixinhaID := chi.URLParam(r, "caixinhaId")
		transactionID := chi.URLParam(r, "transactionId")

		if err := svc.CancelTransaction(r.Context(), caixinhaID, transactionID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

// GET /v1/metrics/payments
func paymentMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.PaymentSnapshot())
	}
}
