package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/handler"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/cache"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/client"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/resilience"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const integrationSecret = "integration-test-secret"

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-integration-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(integrationSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return "Bearer " + signed
}

// buildRouter wires real services against the given banking API mock,
// the same way main does, with timings shortened for tests.
func buildRouter(t *testing.T, bankingURL string) (http.Handler, *observability.Metrics) {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("integration")
	resCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	bankingClient := client.NewBankingClient(httpClient, bankingURL, "test-key", cb, resCfg)

	infoCache := cache.NewWithStaleness[*domain.BankingInfo](5*time.Minute, 30*time.Second)
	histCache := cache.NewWithStaleness[*domain.BankingHistory](15*time.Minute, time.Minute)

	notifier := service.NewLogNotifier(logger, metrics)
	bankSvc := service.NewBankingService(bankingClient, infoCache, histCache, notifier, metrics, logger)

	pixCfg := service.PixFlowConfig{
		PollInterval:   20 * time.Millisecond,
		CountdownTick:  10 * time.Millisecond,
		SuccessDelay:   time.Minute,
		FallbackExpiry: 15 * time.Minute,
	}
	pixFlows := service.NewPixSessionManager(bankingClient, bankSvc, metrics, logger, pixCfg)
	t.Cleanup(pixFlows.CloseAll)

	router := handler.NewRouter(handler.Deps{
		Banking:   bankSvc,
		PixFlows:  pixFlows,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: integrationSecret,
	})
	return router, metrics
}

// TestIntegration_PixValidationFullFlow drives a PIX validation session
// end to end against a mock banking API: charge generation, status
// polling and the final account validation call.
func TestIntegration_PixValidationFullFlow(t *testing.T) {
	var infoCalls, validateCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/caixinhas/cx-int-1/banking", func(w http.ResponseWriter, r *http.Request) {
		infoCalls.Add(1)
		json.NewEncoder(w).Encode(domain.BankingInfo{
			CaixinhaID: "cx-int-1",
			Account: &domain.BankAccount{
				ID:         "acc-int-1",
				CaixinhaID: "cx-int-1",
				BankCode:   "341",
				Status:     domain.AccountStatusPending,
			},
			Balance:   1250.75,
			UpdatedAt: time.Now(),
		})
	})
	mux.HandleFunc("GET /v1/caixinhas/cx-int-1/banking/history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.BankingHistory{CaixinhaID: "cx-int-1"})
	})
	mux.HandleFunc("POST /v1/caixinhas/cx-int-1/banking/validation-pix", func(w http.ResponseWriter, r *http.Request) {
		var chargeReq domain.ValidationPixRequest
		if err := json.NewDecoder(r.Body).Decode(&chargeReq); err != nil {
			t.Errorf("bad charge request body: %v", err)
		}
		if chargeReq.AccountID != "acc-int-1" {
			t.Errorf("expected the account ID in the charge request, got %q", chargeReq.AccountID)
		}
		if chargeReq.Amount <= 0 {
			t.Errorf("expected a positive charge amount, got %v", chargeReq.Amount)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"payment_id": "pix-pay-int-1",
			"qr_code":    "00020126580014br.gov.bcb.pix",
			"expires_at": time.Now().Add(10 * time.Minute).Format(time.RFC3339),
			"amount":     0.01,
		})
	})
	mux.HandleFunc("GET /v1/transactions/pix-pay-int-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pix-pay-int-1",
			"status": "concluido",
			"amount": 0.01,
		})
	})
	mux.HandleFunc("POST /v1/caixinhas/cx-int-1/banking/validate", func(w http.ResponseWriter, r *http.Request) {
		validateCalls.Add(1)
		json.NewEncoder(w).Encode(domain.BankAccount{
			ID:         "acc-int-1",
			CaixinhaID: "cx-int-1",
			Status:     domain.AccountStatusActive,
		})
	})
	bankingServer := httptest.NewServer(mux)
	defer bankingServer.Close()

	router, _ := buildRouter(t, bankingServer.URL)

	// Open the session.
	body, _ := json.Marshal(map[string]any{
		"account_id": "acc-int-1",
		"payer": domain.PayerInfo{
			FirstName: "Maria",
			LastName:  "Integration",
			Email:     "maria@example.com",
			Document:  "529.982.247-25",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/caixinhas/cx-int-1/banking/pix-validation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var state domain.PixValidationState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if state.SessionID == "" {
		t.Fatal("expected session_id to be present")
	}
	if state.Step != domain.PixStepQRCode {
		t.Fatalf("expected QR code step, got %d (error: %s)", state.Step, state.Error)
	}
	if state.Payment == nil || state.Payment.QRCode == "" {
		t.Fatal("expected payment with QR code")
	}

	// Poll the session until the flow reports success.
	deadline := time.Now().Add(3 * time.Second)
	for {
		getReq := httptest.NewRequest(http.MethodGet, "/v1/pix-validation/"+state.SessionID, nil)
		getRec := httptest.NewRecorder()
		router.ServeHTTP(getRec, getReq)
		if getRec.Code != http.StatusOK {
			t.Fatalf("expected 200 on session get, got %d", getRec.Code)
		}
		if err := json.NewDecoder(getRec.Body).Decode(&state); err != nil {
			t.Fatalf("failed to decode state: %v", err)
		}
		if state.Status == domain.FlowStatusSucceeded {
			break
		}
		if state.Status == domain.FlowStatusFailed {
			t.Fatalf("flow failed: %s", state.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("flow did not succeed in time, last status %q step %d", state.Status, state.Step)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := validateCalls.Load(); got != 1 {
		t.Errorf("expected exactly 1 validate call, got %d", got)
	}
	// The validation refetches banking info through the provider.
	if infoCalls.Load() == 0 {
		t.Error("expected banking info to be refetched after validation")
	}

	fmt.Printf("✅ PIX validation flow succeeded for session %s\n", state.SessionID)
}

// TestIntegration_BankingInfoCached checks repeated reads hit the cache
// instead of the upstream API.
func TestIntegration_BankingInfoCached(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/caixinhas/cx-cache-1/banking", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(domain.BankingInfo{CaixinhaID: "cx-cache-1", Balance: 42})
	})
	bankingServer := httptest.NewServer(mux)
	defer bankingServer.Close()

	router, _ := buildRouter(t, bankingServer.URL)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/caixinhas/cx-cache-1/banking", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
}

// TestIntegration_BankingInfoNotFound tests 404 propagation from the
// banking API.
func TestIntegration_BankingInfoNotFound(t *testing.T) {
	bankingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bankingServer.Close()

	router, _ := buildRouter(t, bankingServer.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/caixinhas/nonexistent/banking", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d. Body: %s", rec.Code, rec.Body.String())
	}
}

// TestIntegration_TransferRequiresAuth checks the JWT middleware guards
// mutating routes.
func TestIntegration_TransferRequiresAuth(t *testing.T) {
	bankingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called without a token")
	}))
	defer bankingServer.Close()

	router, _ := buildRouter(t, bankingServer.URL)

	body, _ := json.Marshal(domain.TransferFundsRequest{CaixinhaID: "cx-1", Amount: 10})
	req := httptest.NewRequest(http.MethodPost, "/v1/banking/transfer", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
