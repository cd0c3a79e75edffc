package handler

import (
	"net/http"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/port"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type createCheckoutRequest struct {
	CaixinhaID string  `json:"caixinha_id"`
	Amount     float64 `json:"amount"`
}

// POST /v1/checkout/sessions
func createCheckoutHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCheckoutRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		state, err := mgr.CreateSession(req.CaixinhaID, req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, state)
	}
}

// GET /v1/checkout/sessions/{sessionId}
func getCheckoutHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := mgr.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, flow.State())
	}
}

// PUT /v1/checkout/sessions/{sessionId}/card
//
// Stores the card form data in the session. The data never appears in
// any response or log.
func setCheckoutCardHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := mgr.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var card domain.CardFields
		if err := decodeJSON(r, &card); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := flow.SetCard(r.Context(), card); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, flow.State())
	}
}

type confirmCheckoutRequest struct {
	Payer domain.PayerInfo `json:"payer"`
}

// POST /v1/checkout/sessions/{sessionId}/confirm
func confirmCheckoutHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := mgr.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req confirmCheckoutRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := flow.Submit(r.Context(), req.Payer); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, flow.State())
	}
}

// POST /v1/checkout/sessions/{sessionId}/reset
func resetCheckoutHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := mgr.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		flow.Reset()
		writeJSON(w, http.StatusOK, flow.State())
	}
}

// DELETE /v1/checkout/sessions/{sessionId}
func closeCheckoutHandler(mgr *service.CardSessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.CloseSession(chi.URLParam(r, "sessionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

// ============================================================
// Gateway passthroughs
// ============================================================

// GET /v1/gateway/session
func gatewaySessionHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := gw.GenerateSessionID(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
	}
}

// GET /v1/gateway/payment-methods
func gatewayPaymentMethodsHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := gw.GetPaymentMethods(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, methods)
	}
}

// GET /v1/gateway/identification-types
func gatewayIdentificationTypesHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kinds, err := gw.GetIdentificationTypes(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, kinds)
	}
}

// GET /v1/gateway/payment-methods/{methodId}/issuers?bin=..
func gatewayIssuersHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuers, err := gw.GetIssuers(r.Context(), chi.URLParam(r, "methodId"), r.URL.Query().Get("bin"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, issuers)
	}
}

// GET /v1/gateway/installments?amount=..&bin=..
func gatewayInstallmentsHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, ok := parseAmount(r, "amount")
		if !ok || amount <= 0 {
			handleServiceError(w, &domain.ErrValidation{Field: "amount", Message: "valor inválido"}, logger)
			return
		}

		installments, err := gw.GetInstallments(r.Context(), amount, r.URL.Query().Get("bin"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, installments)
	}
}

// GET /v1/gateway/payments/{paymentId}
func gatewayPaymentStatusHandler(gw port.PaymentGateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tx, err := gw.GetPaymentStatus(r.Context(), chi.URLParam(r, "paymentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}
