package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/handler"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/cache"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

// stubAPI is a minimal upstream for router tests.
type stubAPI struct{}

func (stubAPI) GetBankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error) {
	return &domain.BankingInfo{CaixinhaID: caixinhaID, Balance: 42}, nil
}

func (stubAPI) GetBankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error) {
	return &domain.BankingHistory{CaixinhaID: caixinhaID}, nil
}

func (stubAPI) RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error) {
	return &domain.BankAccount{ID: "acc-1", CaixinhaID: caixinhaID, Status: domain.AccountStatusPending}, nil
}

func (stubAPI) ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error) {
	return &domain.BankAccount{ID: req.AccountID, Status: domain.AccountStatusActive}, nil
}

func (stubAPI) TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error) {
	return &domain.TransferFundsResponse{TransactionID: "tx-1", Status: domain.TransactionPending}, nil
}

func (stubAPI) GetTransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return &domain.Transaction{ID: transactionID, Status: domain.TransactionPending}, nil
}

func (stubAPI) CancelTransaction(ctx context.Context, transactionID string) error { return nil }

func (stubAPI) GenerateValidationPix(ctx context.Context, caixinhaID string, req domain.ValidationPixRequest) (*domain.ValidationPixPayment, error) {
	return &domain.ValidationPixPayment{
		PaymentID: "pix-1",
		QRCode:    "qr-payload",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	api := stubAPI{}

	banking := service.NewBankingService(
		api,
		cache.New[*domain.BankingInfo](time.Minute),
		cache.New[*domain.BankingHistory](time.Minute),
		service.NewLogNotifier(logger, metrics),
		metrics,
		logger,
	)
	pixFlows := service.NewPixSessionManager(api, banking, metrics, logger, service.DefaultPixFlowConfig())
	t.Cleanup(pixFlows.CloseAll)

	return handler.NewRouter(handler.Deps{
		Banking:   banking,
		PixFlows:  pixFlows,
		Checkout:  service.NewCardSessionManager(nil, metrics, logger),
		Directory: nil,
		Gateway:   nil,
		Metrics:   metrics,
		Logger:    logger,
		JWTSecret: testSecret,
	})
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return "Bearer " + signed
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t)
	handler.SetReady(true)
	defer handler.SetReady(false)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGetBankingInfo(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/caixinhas/cx-1/banking", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info domain.BankingInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if info.CaixinhaID != "cx-1" || info.Balance != 42 {
		t.Errorf("unexpected payload: %+v", info)
	}
}

func TestRegisterRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	body := bytes.NewBufferString(`{"bank_code":"341"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/caixinhas/cx-1/banking/register", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRegisterWithToken(t *testing.T) {
	router := newTestRouter(t)

	payload := domain.RegisterBankAccountRequest{
		BankCode:       "341",
		BankName:       "Itaú",
		Agency:         "0001",
		AccountNumber:  "12345-6",
		AccountType:    domain.AccountTypeChecking,
		HolderName:     "Maria Silva",
		HolderDocument: "529.982.247-25",
	}
	raw, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/v1/caixinhas/cx-1/banking/register", bytes.NewReader(raw))
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPixValidationSessionLifecycle(t *testing.T) {
	router := newTestRouter(t)

	raw, _ := json.Marshal(map[string]any{
		"account_id": "acc-1",
		"payer": domain.PayerInfo{
			FirstName: "Maria",
			LastName:  "Silva",
			Email:     "maria@example.com",
			Document:  "529.982.247-25",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/caixinhas/cx-1/banking/pix-validation", bytes.NewReader(raw))
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var state domain.PixValidationState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if state.Step != domain.PixStepQRCode || state.Payment == nil {
		t.Fatalf("unexpected session state: %+v", state)
	}

	// Public status read
	req = httptest.NewRequest(http.MethodGet, "/v1/pix-validation/"+state.SessionID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Close, then the session is gone
	req = httptest.NewRequest(http.MethodDelete, "/v1/pix-validation/"+state.SessionID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/pix-validation/"+state.SessionID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for closed session, got %d", rec.Code)
	}
}

func TestPaymentMetricsSnapshot(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/payments", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snapshot domain.PaymentMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if snapshot.Period != "all_time" {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
}
