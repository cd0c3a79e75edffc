package handler

import (
	"net/http"

	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GET /v1/address/{cep}
func addressHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := svc.Address(r.Context(), chi.URLParam(r, "cep"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, addr)
	}
}

// GET /v1/banks
func banksHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		banks, err := svc.Banks(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, banks)
	}
}
