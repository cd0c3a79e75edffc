package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var pixTracer = otel.Tracer("service/pixflow")

// maxPixExpiry caps how far in the future a charge may claim to expire.
// Anything beyond it is treated as a bad timestamp and replaced by the
// fallback window.
const maxPixExpiry = 24 * time.Hour

// Validation charges are symbolic: one cent, refunded by the provider
// once the account is validated.
const (
	validationChargeAmount      = 0.01
	validationChargeDescription = "Validação de conta bancária"
)

// PixFlowConfig tunes the validation flow timers.
type PixFlowConfig struct {
	PollInterval   time.Duration
	CountdownTick  time.Duration
	SuccessDelay   time.Duration
	FallbackExpiry time.Duration
}

// DefaultPixFlowConfig returns production timer values.
func DefaultPixFlowConfig() PixFlowConfig {
	return PixFlowConfig{
		PollInterval:   3 * time.Second,
		CountdownTick:  time.Second,
		SuccessDelay:   2 * time.Second,
		FallbackExpiry: 15 * time.Minute,
	}
}

// PixValidationFlow drives one bank account validation session: it
// generates a PIX micro-charge, counts its expiry down, polls the
// transaction status and, once the charge is paid, validates the
// account. Every goroutine it spawns is bound to the session context,
// so Close reliably stops both timers, exactly once.
type PixValidationFlow struct {
	ID         string
	CaixinhaID string
	AccountID  string

	api      port.BankingAPI
	provider port.BankingProvider
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      PixFlowConfig

	mu        sync.Mutex
	step      int
	status    string
	payer     domain.PayerInfo
	payment   *domain.ValidationPixPayment
	remaining int
	lastErr   error

	sessionCtx    context.Context
	cancelSession context.CancelFunc
	cancelAttempt context.CancelFunc
	closeOnce     sync.Once
}

// NewPixValidationFlow creates a validation flow session at the form step.
func NewPixValidationFlow(
	caixinhaID, accountID string,
	payer domain.PayerInfo,
	api port.BankingAPI,
	provider port.BankingProvider,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg PixFlowConfig,
) *PixValidationFlow {
	ctx, cancel := context.WithCancel(context.Background())
	return &PixValidationFlow{
		ID:            uuid.NewString(),
		CaixinhaID:    caixinhaID,
		AccountID:     accountID,
		api:           api,
		provider:      provider,
		metrics:       metrics,
		logger:        logger,
		cfg:           cfg,
		step:          domain.PixStepForm,
		status:        domain.FlowStatusActive,
		payer:         payer,
		sessionCtx:    ctx,
		cancelSession: cancel,
	}
}

// Start generates the validation charge and moves the session to the QR
// display step. Callable from the form step only; a failed attempt
// stays at the form step so the caller can retry.
func (f *PixValidationFlow) Start(ctx context.Context) error {
	ctx, span := pixTracer.Start(ctx, "PixValidationFlow.Start")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", f.ID))

	f.mu.Lock()
	if f.sessionCtx.Err() != nil {
		f.mu.Unlock()
		return &domain.ErrSessionClosed{SessionID: f.ID}
	}
	if f.step != domain.PixStepForm || f.status != domain.FlowStatusActive {
		step := f.step
		f.mu.Unlock()
		return &domain.ErrInvalidStep{Operation: "start", Step: step}
	}
	if err := validatePayer(f.payer); err != nil {
		f.mu.Unlock()
		return err
	}
	f.lastErr = nil
	payer := f.payer
	f.mu.Unlock()

	payment, err := f.api.GenerateValidationPix(ctx, f.CaixinhaID, domain.ValidationPixRequest{
		AccountID:   f.AccountID,
		Amount:      validationChargeAmount,
		Description: validationChargeDescription,
		Payer:       payer,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionCtx.Err() != nil {
		return &domain.ErrSessionClosed{SessionID: f.ID}
	}
	if err != nil {
		f.lastErr = err
		return err
	}
	// Without a payment ID the poller has nothing to watch, so a charge
	// missing either field is unusable.
	if payment.PaymentID == "" || payment.QRCode == "" {
		f.lastErr = &domain.ErrGateway{
			Operation: "generate_validation_pix",
			Message:   "Não foi possível gerar o QR Code PIX. Tente novamente.",
		}
		return f.lastErr
	}

	f.payment = payment
	f.remaining = expirySeconds(payment.ExpiresAt, f.cfg.FallbackExpiry)
	f.step = domain.PixStepQRCode
	f.metrics.IncrPaymentCreated("pix")

	attemptCtx, cancel := context.WithCancel(f.sessionCtx)
	f.cancelAttempt = cancel
	go f.countdown(attemptCtx)
	go f.poll(attemptCtx)
	return nil
}

// validatePayer checks the charge payer before anything touches the
// network. Identification only needs enough digits to look like a
// document here; full check-digit validation happens on the mutations
// that persist the account.
func validatePayer(p domain.PayerInfo) error {
	if len(strings.TrimSpace(p.FirstName)) < 2 {
		return &domain.ErrValidation{Field: "first_name", Message: "nome do pagador deve ter ao menos 2 caracteres"}
	}
	if len(strings.TrimSpace(p.LastName)) < 2 {
		return &domain.ErrValidation{Field: "last_name", Message: "sobrenome do pagador deve ter ao menos 2 caracteres"}
	}
	if !emailPattern.MatchString(p.Email) {
		return &domain.ErrValidation{Field: "email", Message: "e-mail do pagador inválido"}
	}
	if len(document.Digits(p.Document)) < 11 {
		return &domain.ErrValidation{Field: "document", Message: "CPF ou CNPJ do pagador inválido"}
	}
	return nil
}

// expirySeconds converts an expiry timestamp into a countdown. Missing,
// past or implausibly distant timestamps fall back to the configured
// window.
func expirySeconds(expiresAt time.Time, fallback time.Duration) int {
	if expiresAt.IsZero() {
		return int(fallback.Seconds())
	}
	d := time.Until(expiresAt)
	if d <= 0 || d > maxPixExpiry {
		return int(fallback.Seconds())
	}
	return int(d.Seconds())
}

// countdown ticks the remaining seconds down and expires the charge at
// zero. Expiry is retryable: the session returns to the form step.
func (f *PixValidationFlow) countdown(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.step != domain.PixStepQRCode {
				f.mu.Unlock()
				return
			}
			f.remaining--
			if f.remaining > 0 {
				f.mu.Unlock()
				continue
			}
			f.expireLocked()
			f.mu.Unlock()
			return
		}
	}
}

// expireLocked discards the charge and rolls back to the form step.
// Caller holds f.mu.
func (f *PixValidationFlow) expireLocked() {
	paymentID := ""
	if f.payment != nil {
		paymentID = f.payment.PaymentID
	}
	f.payment = nil
	f.remaining = 0
	f.step = domain.PixStepForm
	f.lastErr = &domain.ErrPaymentExpired{PaymentID: paymentID}
	if f.cancelAttempt != nil {
		f.cancelAttempt()
	}
	f.metrics.IncrValidation("expired")
	f.logger.Info("validation charge expired",
		zap.String("session_id", f.ID),
		zap.String("payment_id", paymentID))
}

// poll watches the transaction status until the attempt ends. A paid
// charge advances the flow to validation; a rejected one rolls back to
// the form step with the failure recorded.
func (f *PixValidationFlow) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.PollInterval):
		}

		f.mu.Lock()
		if f.step != domain.PixStepQRCode || f.payment == nil {
			f.mu.Unlock()
			return
		}
		paymentID := f.payment.PaymentID
		f.mu.Unlock()

		f.metrics.IncrStatusPoll()
		tx, err := f.api.GetTransactionDetails(ctx, paymentID)
		if err != nil {
			f.logger.Warn("status poll failed",
				zap.String("session_id", f.ID), zap.Error(err))
			continue
		}

		switch tx.Status {
		case domain.TransactionSucceeded:
			f.onPaid(ctx, tx)
			return
		case domain.TransactionFailed:
			f.mu.Lock()
			f.payment = nil
			f.step = domain.PixStepForm
			f.lastErr = &domain.ErrGateway{
				Operation: "validation_pix",
				Message:   "Pagamento PIX recusado. Tente novamente.",
			}
			if f.cancelAttempt != nil {
				f.cancelAttempt()
			}
			f.mu.Unlock()
			f.metrics.IncrValidation("failed")
			return
		case domain.TransactionExpired:
			f.mu.Lock()
			f.expireLocked()
			f.mu.Unlock()
			return
		}
	}
}

// onPaid runs once the charge is confirmed paid: advance to the
// validating step and activate the account. A validation failure here
// is terminal and distinct from a payment failure, because the money
// already moved.
func (f *PixValidationFlow) onPaid(ctx context.Context, tx *domain.Transaction) {
	f.mu.Lock()
	if f.step != domain.PixStepQRCode {
		f.mu.Unlock()
		return
	}
	f.step = domain.PixStepValidating
	if f.cancelAttempt != nil {
		f.cancelAttempt()
	}
	f.mu.Unlock()

	// The attempt context is already cancelled; validation runs on the
	// session context so Close still aborts it.
	vctx, cancel := context.WithTimeout(f.sessionCtx, 30*time.Second)
	defer cancel()

	_, err := f.provider.ValidateBankAccount(vctx, domain.ValidateBankAccountRequest{
		AccountID:     f.AccountID,
		TransactionID: tx.ID,
		CaixinhaID:    f.CaixinhaID,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.status = domain.FlowStatusFailed
		f.lastErr = &domain.ErrPaymentNotValidated{TransactionID: tx.ID, Err: err}
		f.metrics.IncrValidation("not_validated")
		f.logger.Error("payment confirmed but validation failed",
			zap.String("session_id", f.ID),
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return
	}

	f.status = domain.FlowStatusSucceeded
	f.logger.Info("bank account validated",
		zap.String("session_id", f.ID),
		zap.String("account_id", f.AccountID))

	// Hold the final state briefly before the session self-closes, so a
	// client polling the session sees the success at least once.
	go func() {
		select {
		case <-f.sessionCtx.Done():
		case <-time.After(f.cfg.SuccessDelay):
			f.Close()
		}
	}()
}

// Retry restarts the flow after a retryable failure. Only valid at the
// form step.
func (f *PixValidationFlow) Retry(ctx context.Context) error {
	f.mu.Lock()
	if f.step != domain.PixStepForm {
		step := f.step
		f.mu.Unlock()
		return &domain.ErrInvalidStep{Operation: "retry", Step: step}
	}
	f.mu.Unlock()
	return f.Start(ctx)
}

// State returns an observable snapshot of the session.
func (f *PixValidationFlow) State() domain.PixValidationState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := domain.PixValidationState{
		SessionID:  f.ID,
		CaixinhaID: f.CaixinhaID,
		Step:       f.step,
		Status:     f.status,
		Payment:    f.payment,
		Remaining:  f.remaining,
	}
	if f.lastErr != nil {
		state.Error = f.lastErr.Error()
	}
	return state
}

// Closed reports whether the session context is done.
func (f *PixValidationFlow) Closed() bool {
	return f.sessionCtx.Err() != nil
}

// Close cancels the session context, stopping the countdown and the
// poller. Safe to call multiple times; only the first has effect.
func (f *PixValidationFlow) Close() {
	f.closeOnce.Do(func() {
		f.cancelSession()
		f.logger.Info("validation session closed", zap.String("session_id", f.ID))
	})
}

// ============================================================
// Session manager
// ============================================================

// PixSessionManager owns the live validation sessions.
type PixSessionManager struct {
	api      port.BankingAPI
	provider port.BankingProvider
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      PixFlowConfig

	mu       sync.Mutex
	sessions map[string]*PixValidationFlow
}

// NewPixSessionManager creates an empty session manager.
func NewPixSessionManager(
	api port.BankingAPI,
	provider port.BankingProvider,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg PixFlowConfig,
) *PixSessionManager {
	return &PixSessionManager{
		api:      api,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[string]*PixValidationFlow),
	}
}

// StartSession creates a session and triggers its first charge. The
// session is kept even when the first attempt fails, so the caller can
// inspect the error and retry.
func (m *PixSessionManager) StartSession(ctx context.Context, caixinhaID, accountID string, payer domain.PayerInfo) (domain.PixValidationState, error) {
	flow := NewPixValidationFlow(caixinhaID, accountID, payer, m.api, m.provider, m.metrics, m.logger, m.cfg)

	err := flow.Start(ctx)
	var invalid *domain.ErrValidation
	if errors.As(err, &invalid) {
		// Bad input never creates a session.
		flow.Close()
		return domain.PixValidationState{}, err
	}

	m.mu.Lock()
	m.sessions[flow.ID] = flow
	m.mu.Unlock()
	return flow.State(), err
}

// Session returns a live session's state.
func (m *PixSessionManager) Session(sessionID string) (domain.PixValidationState, error) {
	flow, err := m.get(sessionID)
	if err != nil {
		return domain.PixValidationState{}, err
	}
	return flow.State(), nil
}

// RetrySession re-runs a retryable session.
func (m *PixSessionManager) RetrySession(ctx context.Context, sessionID string) (domain.PixValidationState, error) {
	flow, err := m.get(sessionID)
	if err != nil {
		return domain.PixValidationState{}, err
	}
	if flow.Closed() {
		return domain.PixValidationState{}, &domain.ErrSessionClosed{SessionID: sessionID}
	}
	if err := flow.Retry(ctx); err != nil {
		return flow.State(), err
	}
	return flow.State(), nil
}

// CloseSession stops a session's timers and forgets it.
func (m *PixSessionManager) CloseSession(sessionID string) error {
	m.mu.Lock()
	flow, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return &domain.ErrNotFound{Resource: "pix_validation_session", ID: sessionID}
	}
	flow.Close()
	return nil
}

// CloseAll stops every live session. Called on shutdown.
func (m *PixSessionManager) CloseAll() {
	m.mu.Lock()
	flows := make([]*PixValidationFlow, 0, len(m.sessions))
	for _, f := range m.sessions {
		flows = append(flows, f)
	}
	m.sessions = make(map[string]*PixValidationFlow)
	m.mu.Unlock()

	for _, f := range flows {
		f.Close()
	}
}

func (m *PixSessionManager) get(sessionID string) (*PixValidationFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.sessions[sessionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "pix_validation_session", ID: sessionID}
	}
	return flow, nil
}
