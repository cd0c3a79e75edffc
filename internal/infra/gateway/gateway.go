// Package gateway wraps the MercadoPago-compatible payment provider
// used for card tokenization and PIX charges.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("gateway")

// sessionWait bounds how long GenerateSessionID waits for a pending
// initialization before falling back to a locally generated ID.
// Vars so tests can shrink the wait.
var (
	sessionWait     = 5 * time.Second
	sessionWaitStep = 100 * time.Millisecond
)

// Client is the payment gateway client. Initialization is lazy and
// idempotent: the first call that needs a session triggers it, later
// calls reuse the result, and a missing public key leaves the gateway
// disabled without error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	token      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config

	mu          sync.Mutex
	initialized bool
	sessionID   string
}

// New creates a gateway client. An empty publicKey disables the gateway:
// Initialize returns (nil, nil) and Ready reports false.
func New(httpClient *http.Client, baseURL, publicKey, token string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		publicKey:  publicKey,
		token:      token,
		cb:         cb,
		cfg:        cfg,
	}
}

// Session identifies an initialized gateway session.
type Session struct {
	ID string `json:"id"`
}

// Initialize establishes the gateway session. Safe to call any number
// of times and from any goroutine; only the first call does work. With
// no public key configured it returns (nil, nil).
func (c *Client) Initialize(ctx context.Context) (*Session, error) {
	if c.publicKey == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return &Session{ID: c.sessionID}, nil
	}

	ctx, span := tracer.Start(ctx, "Gateway.Initialize")
	defer span.End()

	// A payment-methods fetch is the cheapest call that proves the key
	// is accepted. A failure is not latched: the next call tries again.
	if _, err := c.fetchPaymentMethods(ctx); err != nil {
		return nil, err
	}

	c.initialized = true
	c.sessionID = "ELOS_" + uuid.NewString()
	span.SetAttributes(attribute.String("gateway.session_id", c.sessionID))
	return &Session{ID: c.sessionID}, nil
}

// Ready reports whether the gateway has a usable session, initializing
// it on first use.
func (c *Client) Ready(ctx context.Context) bool {
	s, err := c.Initialize(ctx)
	return err == nil && s != nil
}

// GenerateSessionID returns the current session ID, waiting a bounded
// time for a concurrent initialization. When no session materializes it
// falls back to a locally generated ID so checkout can proceed.
func (c *Client) GenerateSessionID(ctx context.Context) (string, error) {
	deadline := time.Now().Add(sessionWait)
	for {
		s, err := c.Initialize(ctx)
		if err == nil && s != nil {
			return s.ID, nil
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sessionWaitStep):
		}
	}

	frag := "nokey"
	if len(c.publicKey) >= 6 {
		frag = c.publicKey[:6]
	}
	id := fmt.Sprintf("ELOS_%d_%s_%s", time.Now().UnixMilli(), uuid.NewString()[:8], frag)
	return id, nil
}

type cardTokenRow struct {
	ID       string `json:"id"`
	LastFour string `json:"last_four_digits"`
	Expires  string `json:"date_due"`
}

// CreateCardToken exchanges raw card data for an opaque token. The card
// fields never leave this call.
func (c *Client) CreateCardToken(ctx context.Context, card domain.CardFields) (*domain.CardPaymentToken, error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreateCardToken")
	defer span.End()

	if card.Number == "" || card.CVV == "" || card.ExpiryMonth == "" || card.ExpiryYear == "" {
		return nil, &domain.ErrValidation{Field: "card", Message: "dados do cartão incompletos"}
	}
	if _, err := c.Initialize(ctx); err != nil {
		return nil, &domain.ErrGateway{Operation: "create_card_token", Message: err.Error()}
	}

	payload := map[string]any{
		"card_number":      strings.ReplaceAll(card.Number, " ", ""),
		"expiration_month": card.ExpiryMonth,
		"expiration_year":  card.ExpiryYear,
		"security_code":    card.CVV,
		"cardholder": map[string]any{
			"name": card.HolderName,
			"identification": map[string]string{
				"type":   docType(card.Document),
				"number": card.Document,
			},
		},
	}

	var row cardTokenRow
	path := "/v1/card_tokens?public_key=" + c.publicKey
	if err := c.post(ctx, path, payload, &row); err != nil {
		return nil, err
	}

	tok := &domain.CardPaymentToken{Token: row.ID, LastFour: row.LastFour}
	if t, err := time.Parse(time.RFC3339, row.Expires); err == nil {
		tok.ExpiresAt = t
	}
	return tok, nil
}

type paymentRow struct {
	ID         json.Number `json:"id"`
	Status     string      `json:"status"`
	Amount     float64     `json:"transaction_amount"`
	CreatedAt  string      `json:"date_created"`
	ApprovedAt string      `json:"date_approved"`
}

func (r paymentRow) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:        r.ID.String(),
		Status:    domain.NormalizeTransactionStatus(r.Status),
		RawStatus: r.Status,
		Amount:    r.Amount,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		tx.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.ApprovedAt); err == nil {
		tx.ApprovedAt = &t
	}
	return tx
}

// CreatePayment charges a previously tokenized card.
func (c *Client) CreatePayment(ctx context.Context, token string, amount float64, payer domain.PayerInfo) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Gateway.CreatePayment")
	defer span.End()
	span.SetAttributes(attribute.Float64("payment.amount", amount))

	payload := map[string]any{
		"token":              token,
		"transaction_amount": amount,
		"installments":       1,
		"payer": map[string]any{
			"email":      payer.Email,
			"first_name": payer.FirstName,
			"last_name":  payer.LastName,
			"identification": map[string]string{
				"type":   docType(payer.Document),
				"number": payer.Document,
			},
		},
	}

	var row paymentRow
	if err := c.post(ctx, "/v1/payments", payload, &row); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetPaymentStatus fetches the current state of a gateway payment.
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetPaymentStatus")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	var row paymentRow
	if err := c.get(ctx, "/v1/payments/"+paymentID, &row); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

type installmentRow struct {
	PayerCosts []struct {
		Installments    int     `json:"installments"`
		InstallmentRate float64 `json:"installment_rate"`
		Amount          float64 `json:"installment_amount"`
		TotalAmount     float64 `json:"total_amount"`
	} `json:"payer_costs"`
}

// GetInstallments quotes installment options for an amount and card BIN.
func (c *Client) GetInstallments(ctx context.Context, amount float64, bin string) ([]domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetInstallments")
	defer span.End()

	var rows []installmentRow
	path := fmt.Sprintf("/v1/payment_methods/installments?public_key=%s&amount=%.2f&bin=%s", c.publicKey, amount, bin)
	if err := c.get(ctx, path, &rows); err != nil {
		return nil, err
	}

	var out []domain.Installment
	for _, r := range rows {
		for _, pc := range r.PayerCosts {
			out = append(out, domain.Installment{
				Quantity:          pc.Installments,
				InstallmentAmount: pc.Amount,
				TotalAmount:       pc.TotalAmount,
				Rate:              pc.InstallmentRate,
			})
		}
	}
	return out, nil
}

// GetPaymentMethods lists payment methods advertised by the gateway.
func (c *Client) GetPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetPaymentMethods")
	defer span.End()
	return c.fetchPaymentMethods(ctx)
}

// GetIdentificationTypes lists the payer document kinds the gateway
// accepts.
func (c *Client) GetIdentificationTypes(ctx context.Context) ([]domain.IdentificationType, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetIdentificationTypes")
	defer span.End()

	var out []domain.IdentificationType
	if err := c.get(ctx, "/v1/identification_types?public_key="+c.publicKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type issuerRow struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Thumbnail string      `json:"thumbnail"`
}

// GetIssuers lists card issuers for a payment method and BIN.
func (c *Client) GetIssuers(ctx context.Context, methodID, bin string) ([]domain.Issuer, error) {
	ctx, span := tracer.Start(ctx, "Gateway.GetIssuers")
	defer span.End()

	var rows []issuerRow
	path := fmt.Sprintf("/v1/payment_methods/card_issuers?public_key=%s&payment_method_id=%s&bin=%s", c.publicKey, methodID, bin)
	if err := c.get(ctx, path, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Issuer, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Issuer{ID: r.ID.String(), Name: r.Name, Thumbnail: r.Thumbnail})
	}
	return out, nil
}

type methodRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PaymentType string `json:"payment_type_id"`
	Thumbnail   string `json:"thumbnail"`
}

func (c *Client) fetchPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var rows []methodRow
	if err := c.get(ctx, "/v1/payment_methods?public_key="+c.publicKey, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.PaymentMethod, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PaymentMethod{
			ID:        r.ID,
			Name:      r.Name,
			Type:      r.PaymentType,
			Thumbnail: r.Thumbnail,
		})
	}
	return out, nil
}

// post runs a JSON POST through the breaker and retry policy. Gateway
// 4xx responses surface verbatim as ErrGateway so the caller sees the
// provider's own message.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.roundTrip(ctx, http.MethodPost, path, in, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	// One idempotency key per logical request, stable across retries.
	idemKey := uuid.NewString()

	_, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var body *bytes.Reader
			if in != nil {
				raw, err := json.Marshal(in)
				if err != nil {
					return resilience.Permanent(err)
				}
				body = bytes.NewReader(raw)
			} else {
				body = bytes.NewReader(nil)
			}

			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}
			req.Header.Set("X-Idempotency-Key", idemKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				var gwErr struct {
					Message string `json:"message"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&gwErr)
				if gwErr.Message == "" {
					gwErr.Message = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
				}
				return resilience.Permanent(&domain.ErrGateway{Operation: method + " " + path, Message: gwErr.Message})
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("gateway returned status %d", resp.StatusCode)
			}

			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return nil, nil
	})
	if err != nil {
		if _, ok := err.(*domain.ErrGateway); ok {
			return err
		}
		return &domain.ErrExternalService{Service: "gateway", Err: err}
	}
	return nil
}

// docType guesses the identification type from the digit count.
func docType(doc string) string {
	digits := 0
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits == 14 {
		return "CNPJ"
	}
	return "CPF"
}
