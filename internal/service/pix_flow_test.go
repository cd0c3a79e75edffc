package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"

	"go.uber.org/zap"
)

// mockProvider stubs the caching provider; only account validation
// matters to the flow.
type mockProvider struct {
	mu            sync.Mutex
	validateCalls int
	validateErr   error
	lastRequest   domain.ValidateBankAccountRequest
}

func (p *mockProvider) ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validateCalls++
	p.lastRequest = req
	if p.validateErr != nil {
		return nil, p.validateErr
	}
	return &domain.BankAccount{ID: req.AccountID, Status: domain.AccountStatusActive}, nil
}

func (p *mockProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validateCalls
}

func (p *mockProvider) BankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error) {
	return &domain.BankingInfo{CaixinhaID: caixinhaID}, nil
}

func (p *mockProvider) BankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error) {
	return &domain.BankingHistory{CaixinhaID: caixinhaID}, nil
}

func (p *mockProvider) RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error) {
	return &domain.BankAccount{CaixinhaID: caixinhaID}, nil
}

func (p *mockProvider) TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error) {
	return &domain.TransferFundsResponse{}, nil
}

func (p *mockProvider) TransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return &domain.Transaction{ID: transactionID}, nil
}

func (p *mockProvider) CancelTransaction(ctx context.Context, caixinhaID, transactionID string) error {
	return nil
}
func (p *mockProvider) Invalidate(caixinhaID string) {}

func fastFlowConfig() PixFlowConfig {
	return PixFlowConfig{
		PollInterval:   5 * time.Millisecond,
		CountdownTick:  5 * time.Millisecond,
		SuccessDelay:   10 * time.Millisecond,
		FallbackExpiry: 99 * time.Second,
	}
}

func validPayer() domain.PayerInfo {
	return domain.PayerInfo{
		FirstName: "Maria",
		LastName:  "Silva",
		Email:     "maria@example.com",
		Document:  "529.982.247-25",
	}
}

func newFlow(api *mockBankingAPI, provider *mockProvider) *PixValidationFlow {
	return NewPixValidationFlow(
		"cx-1", "acc-1", validPayer(),
		api, provider,
		observability.NewMetrics(), zap.NewNop(),
		fastFlowConfig(),
	)
}

func TestPixFlow_StartAdvancesToQRStep(t *testing.T) {
	api := &mockBankingAPI{}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := flow.State()
	if state.Step != domain.PixStepQRCode {
		t.Errorf("expected QR step, got %d", state.Step)
	}
	if state.Payment == nil || state.Payment.QRCode == "" {
		t.Error("expected a QR code in the state")
	}
	if state.Remaining <= 0 {
		t.Errorf("expected a positive countdown, got %d", state.Remaining)
	}
}

func TestPixFlow_RejectsBadPayerBeforeNetwork(t *testing.T) {
	cases := []struct {
		name  string
		payer domain.PayerInfo
		field string
	}{
		{
			name: "short document",
			payer: domain.PayerInfo{
				FirstName: "Maria", LastName: "Silva",
				Email: "maria@example.com", Document: "123",
			},
			field: "document",
		},
		{
			name: "bad email",
			payer: domain.PayerInfo{
				FirstName: "Maria", LastName: "Silva",
				Email: "not-an-email", Document: "529.982.247-25",
			},
			field: "email",
		},
		{
			name: "short first name",
			payer: domain.PayerInfo{
				FirstName: " M ", LastName: "Silva",
				Email: "maria@example.com", Document: "529.982.247-25",
			},
			field: "first_name",
		},
		{
			name: "missing last name",
			payer: domain.PayerInfo{
				FirstName: "Maria", LastName: "",
				Email: "maria@example.com", Document: "529.982.247-25",
			},
			field: "last_name",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &mockBankingAPI{}
			flow := NewPixValidationFlow(
				"cx-1", "acc-1", tc.payer,
				api, &mockProvider{},
				observability.NewMetrics(), zap.NewNop(), fastFlowConfig(),
			)
			defer flow.Close()

			err := flow.Start(context.Background())
			var vErr *domain.ErrValidation
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Errorf("expected %q violation, got %q", tc.field, vErr.Field)
			}
			if api.pixCalls != 0 {
				t.Errorf("expected no charge call, got %d", api.pixCalls)
			}
		})
	}
}

func TestPixFlow_ChargeCarriesAccountAndAmount(t *testing.T) {
	api := &mockBankingAPI{}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	api.mu.Lock()
	req := api.lastPixReq
	api.mu.Unlock()
	if req.AccountID != "acc-1" {
		t.Errorf("expected the account ID in the charge request, got %q", req.AccountID)
	}
	if req.Amount != 0.01 {
		t.Errorf("expected the symbolic charge amount, got %v", req.Amount)
	}
	if req.Description == "" {
		t.Error("expected a charge description")
	}
	if req.Payer.Email != "maria@example.com" {
		t.Errorf("unexpected payer in charge request: %+v", req.Payer)
	}
}

func TestPixFlow_MissingQRCodeIsRetryable(t *testing.T) {
	api := &mockBankingAPI{
		pixFn: func() (*domain.ValidationPixPayment, error) {
			return &domain.ValidationPixPayment{PaymentID: "pix-1"}, nil
		},
	}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	err := flow.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for missing QR code")
	}
	if !strings.Contains(err.Error(), "QR Code") {
		t.Errorf("expected error to name the QR Code, got %q", err.Error())
	}

	state := flow.State()
	if state.Step != domain.PixStepForm {
		t.Errorf("expected retryable form step, got %d", state.Step)
	}
	if state.Payment != nil {
		t.Error("expected no payment in state")
	}
}

func TestPixFlow_MissingPaymentIDIsRetryable(t *testing.T) {
	api := &mockBankingAPI{
		pixFn: func() (*domain.ValidationPixPayment, error) {
			return &domain.ValidationPixPayment{QRCode: "qr-payload"}, nil
		},
	}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	err := flow.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for missing payment ID")
	}

	state := flow.State()
	if state.Step != domain.PixStepForm {
		t.Errorf("expected retryable form step, got %d", state.Step)
	}
	if state.Payment != nil {
		t.Error("expected no payment in state")
	}

	// No charge means nothing to poll.
	time.Sleep(30 * time.Millisecond)
	api.mu.Lock()
	polls := api.detailCalls
	api.mu.Unlock()
	if polls != 0 {
		t.Errorf("expected no status polls, got %d", polls)
	}
}

func TestPixFlow_FallbackExpiryForBadTimestamp(t *testing.T) {
	api := &mockBankingAPI{
		pixFn: func() (*domain.ValidationPixPayment, error) {
			// Expiry 48h out is treated as a bad timestamp.
			return &domain.ValidationPixPayment{
				PaymentID: "pix-1",
				QRCode:    "qr",
				ExpiresAt: time.Now().Add(48 * time.Hour),
			}, nil
		},
	}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := flow.State().Remaining; got != 99 {
		t.Errorf("expected fallback countdown of 99s, got %d", got)
	}
}

func TestPixFlow_CountdownExpires(t *testing.T) {
	api := &mockBankingAPI{
		pixFn: func() (*domain.ValidationPixPayment, error) {
			// Sub-second expiry: the first tick expires the charge.
			return &domain.ValidationPixPayment{
				PaymentID: "pix-1",
				QRCode:    "qr",
				ExpiresAt: time.Now().Add(500 * time.Millisecond),
			}, nil
		},
		detailFn: func(id string) (*domain.Transaction, error) {
			return &domain.Transaction{ID: id, Status: domain.TransactionPending}, nil
		},
	}
	flow := newFlow(api, &mockProvider{})
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		state := flow.State()
		if state.Step == domain.PixStepForm {
			if state.Payment != nil {
				t.Error("expected payment data cleared on expiry")
			}
			if !strings.Contains(state.Error, "expirado") {
				t.Errorf("expected expiry error, got %q", state.Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("countdown never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPixFlow_PaidThenValidated(t *testing.T) {
	api := &mockBankingAPI{
		detailFn: func(id string) (*domain.Transaction, error) {
			return &domain.Transaction{ID: id, Status: domain.TransactionSucceeded}, nil
		},
	}
	provider := &mockProvider{}
	flow := newFlow(api, provider)
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		state := flow.State()
		if state.Status == domain.FlowStatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flow never succeeded, state: %+v", state)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if provider.calls() != 1 {
		t.Errorf("expected exactly one validation call, got %d", provider.calls())
	}
	provider.mu.Lock()
	req := provider.lastRequest
	provider.mu.Unlock()
	if req.AccountID != "acc-1" || req.TransactionID != "pix-1" {
		t.Errorf("unexpected validation request: %+v", req)
	}
}

func TestPixFlow_PaidButValidationFails(t *testing.T) {
	api := &mockBankingAPI{
		detailFn: func(id string) (*domain.Transaction, error) {
			return &domain.Transaction{ID: id, Status: domain.TransactionSucceeded}, nil
		},
	}
	provider := &mockProvider{validateErr: errors.New("conta não encontrada")}
	flow := newFlow(api, provider)
	defer flow.Close()

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		state := flow.State()
		if state.Status == domain.FlowStatusFailed {
			if !strings.Contains(state.Error, "validação da conta falhou") {
				t.Errorf("expected the paid-but-not-validated message, got %q", state.Error)
			}
			if !strings.Contains(state.Error, "pix-1") {
				t.Errorf("expected the transaction ID in the message, got %q", state.Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("flow never failed, state: %+v", state)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPixFlow_CloseStopsTimers(t *testing.T) {
	api := &mockBankingAPI{
		detailFn: func(id string) (*domain.Transaction, error) {
			return &domain.Transaction{ID: id, Status: domain.TransactionPending}, nil
		},
	}
	flow := newFlow(api, &mockProvider{})

	if err := flow.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	flow.Close()
	flow.Close() // second close is a no-op

	time.Sleep(20 * time.Millisecond)
	api.mu.Lock()
	after := api.detailCalls
	api.mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	api.mu.Lock()
	final := api.detailCalls
	api.mu.Unlock()

	if final != after {
		t.Errorf("poller still running after close: %d -> %d", after, final)
	}
	if !flow.Closed() {
		t.Error("expected flow to report closed")
	}
}

func TestPixSessionManager_Lifecycle(t *testing.T) {
	api := &mockBankingAPI{}
	mgr := NewPixSessionManager(api, &mockProvider{}, observability.NewMetrics(), zap.NewNop(), fastFlowConfig())
	defer mgr.CloseAll()

	state, err := mgr.StartSession(context.Background(), "cx-1", "acc-1", validPayer())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.SessionID == "" {
		t.Fatal("expected a session ID")
	}

	got, err := mgr.Session(state.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Step != domain.PixStepQRCode {
		t.Errorf("expected QR step, got %d", got.Step)
	}

	if err := mgr.CloseSession(state.SessionID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.Session(state.SessionID); err == nil {
		t.Error("expected closed session to be forgotten")
	}
}

func TestPixSessionManager_RejectsBadPayer(t *testing.T) {
	api := &mockBankingAPI{}
	mgr := NewPixSessionManager(api, &mockProvider{}, observability.NewMetrics(), zap.NewNop(), fastFlowConfig())

	_, err := mgr.StartSession(context.Background(), "cx-1", "acc-1", domain.PayerInfo{Document: "000"})
	var vErr *domain.ErrValidation
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
