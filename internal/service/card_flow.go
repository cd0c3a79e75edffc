package service

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var cardTracer = otel.Tracer("service/cardflow")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CardCheckoutFlow drives one card payment: collect the card data,
// tokenize it, charge the token. The raw card fields and the token
// live only inside this struct and are wiped on reset. The card is
// tokenized when the form is accepted; a failed charge returns to the
// confirm step with the token intact, so a resubmit charges the same
// token instead of tokenizing again.
type CardCheckoutFlow struct {
	ID         string
	CaixinhaID string
	Amount     float64

	gateway port.PaymentGateway
	metrics *observability.Metrics
	logger  *zap.Logger

	mu        sync.Mutex
	step      int
	status    string
	card      domain.CardFields
	token     *domain.CardPaymentToken
	paymentID string
	lastErr   error
}

// NewCardCheckoutFlow creates a checkout session at the form step.
func NewCardCheckoutFlow(caixinhaID string, amount float64, gateway port.PaymentGateway, metrics *observability.Metrics, logger *zap.Logger) *CardCheckoutFlow {
	return &CardCheckoutFlow{
		ID:         uuid.NewString(),
		CaixinhaID: caixinhaID,
		Amount:     amount,
		gateway:    gateway,
		metrics:    metrics,
		logger:     logger,
		step:       domain.CardStepForm,
		status:     domain.FlowStatusActive,
	}
}

// SetCard validates the card form data and tokenizes it, advancing the
// session to the confirm step. All violations are collected and
// reported in a single error so the payer fixes the form once, not
// field by field. A tokenization failure keeps the session at the form
// step.
func (f *CardCheckoutFlow) SetCard(ctx context.Context, card domain.CardFields) error {
	ctx, span := cardTracer.Start(ctx, "CardCheckoutFlow.SetCard")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", f.ID))

	f.mu.Lock()
	if f.step != domain.CardStepForm {
		step := f.step
		f.mu.Unlock()
		return &domain.ErrInvalidStep{Operation: "set_card", Step: step}
	}
	if err := validateCard(card); err != nil {
		f.lastErr = err
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	token, err := f.gateway.CreateCardToken(ctx, card)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.lastErr = err
		return err
	}
	f.card = card
	f.token = token
	f.lastErr = nil
	f.step = domain.CardStepConfirm
	return nil
}

// Submit charges the token held since the confirm step. A gateway
// failure rolls the session back to confirm with the provider's message
// preserved and the token kept, so the payer can resubmit without
// re-entering the card.
func (f *CardCheckoutFlow) Submit(ctx context.Context, payer domain.PayerInfo) error {
	ctx, span := cardTracer.Start(ctx, "CardCheckoutFlow.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", f.ID))

	f.mu.Lock()
	if f.step != domain.CardStepConfirm {
		step := f.step
		f.mu.Unlock()
		return &domain.ErrInvalidStep{Operation: "submit", Step: step}
	}
	if f.token == nil {
		f.mu.Unlock()
		return &domain.ErrValidation{Field: "card", Message: "dados do cartão não informados"}
	}
	token := f.token.Token
	f.step = domain.CardStepProcessing
	f.lastErr = nil
	f.mu.Unlock()

	tx, err := f.gateway.CreatePayment(ctx, token, f.Amount, payer)
	if err != nil {
		f.failSubmit(err)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = domain.CardStepDone
	f.status = domain.FlowStatusSucceeded
	f.paymentID = tx.ID
	f.metrics.IncrPaymentCreated("card")
	f.logger.Info("card payment created",
		zap.String("session_id", f.ID),
		zap.String("payment_id", tx.ID))
	return nil
}

func (f *CardCheckoutFlow) failSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = domain.CardStepConfirm
	f.lastErr = err
	f.logger.Warn("card payment failed",
		zap.String("session_id", f.ID), zap.Error(err))
}

// Reset wipes the card data, the token and any recorded error, and
// returns the session to the form step.
func (f *CardCheckoutFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.card = domain.CardFields{}
	f.token = nil
	f.paymentID = ""
	f.lastErr = nil
	f.step = domain.CardStepForm
	f.status = domain.FlowStatusActive
}

// State returns an observable snapshot. Card data and token never leave
// the session.
func (f *CardCheckoutFlow) State() domain.CardCheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := domain.CardCheckoutState{
		SessionID: f.ID,
		Step:      f.step,
		Status:    f.status,
		Amount:    f.Amount,
		PaymentID: f.paymentID,
	}
	if f.lastErr != nil {
		state.Error = f.lastErr.Error()
	}
	return state
}

// validateCard collects every violation into one error.
func validateCard(card domain.CardFields) error {
	var violations []string

	if len(document.Digits(card.Number)) < 13 {
		violations = append(violations, "número do cartão inválido")
	}
	if strings.TrimSpace(card.ExpiryMonth) == "" {
		violations = append(violations, "mês de validade é obrigatório")
	}
	if strings.TrimSpace(card.ExpiryYear) == "" {
		violations = append(violations, "ano de validade é obrigatório")
	}
	if len(document.Digits(card.CVV)) < 3 {
		violations = append(violations, "código de segurança inválido")
	}
	if len(strings.TrimSpace(card.HolderName)) < 3 {
		violations = append(violations, "nome do titular é obrigatório")
	}
	if !emailPattern.MatchString(card.Email) {
		violations = append(violations, "e-mail inválido")
	}
	if len(document.Digits(card.Document)) < 11 {
		violations = append(violations, "CPF ou CNPJ inválido")
	}

	if len(violations) == 0 {
		return nil
	}
	return &domain.ErrValidation{Field: "card", Message: strings.Join(violations, "; ")}
}

// ============================================================
// Session manager
// ============================================================

// CardSessionManager owns the live checkout sessions.
type CardSessionManager struct {
	gateway port.PaymentGateway
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*CardCheckoutFlow
}

// NewCardSessionManager creates an empty manager.
func NewCardSessionManager(gateway port.PaymentGateway, metrics *observability.Metrics, logger *zap.Logger) *CardSessionManager {
	return &CardSessionManager{
		gateway:  gateway,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*CardCheckoutFlow),
	}
}

// CreateSession opens a checkout session for an amount.
func (m *CardSessionManager) CreateSession(caixinhaID string, amount float64) (domain.CardCheckoutState, error) {
	if amount <= 0 {
		return domain.CardCheckoutState{}, &domain.ErrValidation{Field: "amount", Message: "valor deve ser maior que zero"}
	}
	flow := NewCardCheckoutFlow(caixinhaID, amount, m.gateway, m.metrics, m.logger)

	m.mu.Lock()
	m.sessions[flow.ID] = flow
	m.mu.Unlock()
	return flow.State(), nil
}

// Get returns a live checkout flow.
func (m *CardSessionManager) Get(sessionID string) (*CardCheckoutFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.sessions[sessionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "checkout_session", ID: sessionID}
	}
	return flow, nil
}

// CloseSession forgets a session, wiping its card data.
func (m *CardSessionManager) CloseSession(sessionID string) error {
	m.mu.Lock()
	flow, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return &domain.ErrNotFound{Resource: "checkout_session", ID: sessionID}
	}
	flow.Reset()
	return nil
}
