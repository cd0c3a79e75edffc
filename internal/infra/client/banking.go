package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// BankingClient calls the upstream banking service REST API.
type BankingClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewBankingClient creates a new BankingClient.
func NewBankingClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *BankingClient {
	return &BankingClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

// do runs one JSON request through the circuit breaker and retry policy.
// 404s become ErrNotFound, other 4xx are permanent (no retry), and any
// remaining failure surfaces as ErrExternalService.
func (c *BankingClient) do(ctx context.Context, method, path string, in, out any, notFoundResource, notFoundID string) error {
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
			if c.apiKey != "" {
				req.Header.Set("X-API-Key", c.apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resilience.Permanent(&domain.ErrNotFound{Resource: notFoundResource, ID: notFoundID})
			case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
				return resilience.Permanent(&domain.ErrUnauthorized{Message: "credenciais inválidas para o serviço bancário"})
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				var apiErr struct {
					Error string `json:"error"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&apiErr)
				if apiErr.Error == "" {
					apiErr.Error = fmt.Sprintf("banking API returned status %d", resp.StatusCode)
				}
				return resilience.Permanent(&domain.ErrValidation{Field: "request", Message: apiErr.Error})
			case resp.StatusCode >= 300:
				return fmt.Errorf("banking API returned status %d", resp.StatusCode)
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
		if isDomainErr(err) {
			return err
		}
		return &domain.ErrExternalService{Service: "banking", Err: err}
	}
	return nil
}

// isDomainErr reports whether err already carries a user-meaningful type
// that the handler layer maps on its own.
func isDomainErr(err error) bool {
	switch err.(type) {
	case *domain.ErrNotFound, *domain.ErrUnauthorized, *domain.ErrValidation:
		return true
	}
	return false
}

// GetBankingInfo fetches the banking state of a caixinha.
func (c *BankingClient) GetBankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.GetBankingInfo")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	var info domain.BankingInfo
	path := fmt.Sprintf("/v1/caixinhas/%s/banking", caixinhaID)
	if err := c.do(ctx, http.MethodGet, path, nil, &info, "banking_info", caixinhaID); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBankingHistory fetches accounts and transactions of a caixinha.
func (c *BankingClient) GetBankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.GetBankingHistory")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	var history domain.BankingHistory
	path := fmt.Sprintf("/v1/caixinhas/%s/banking/history", caixinhaID)
	if err := c.do(ctx, http.MethodGet, path, nil, &history, "banking_history", caixinhaID); err != nil {
		return nil, err
	}
	return &history, nil
}

// RegisterBankAccount creates a pending bank account for a caixinha.
func (c *BankingClient) RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.RegisterBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	var account domain.BankAccount
	path := fmt.Sprintf("/v1/caixinhas/%s/banking/accounts", caixinhaID)
	if err := c.do(ctx, http.MethodPost, path, req, &account, "caixinha", caixinhaID); err != nil {
		return nil, err
	}
	return &account, nil
}

// ValidateBankAccount activates a pending account after its validation
// payment was confirmed.
func (c *BankingClient) ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.ValidateBankAccount")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", req.AccountID),
		attribute.String("transaction.id", req.TransactionID),
	)

	var account domain.BankAccount
	path := fmt.Sprintf("/v1/caixinhas/%s/banking/validate", req.CaixinhaID)
	if err := c.do(ctx, http.MethodPost, path, req, &account, "bank_account", req.AccountID); err != nil {
		return nil, err
	}
	return &account, nil
}

// TransferFunds moves money out of a caixinha account.
func (c *BankingClient) TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.TransferFunds")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", req.CaixinhaID))

	var resp domain.TransferFundsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/banking/transfer", req, &resp, "account", req.SourceAccountID); err != nil {
		return nil, err
	}
	return &resp, nil
}

// transactionRow is the wire shape the banking API uses for transactions.
type transactionRow struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
	ApprovedAt  string  `json:"approved_at"`
}

func (r transactionRow) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:          r.ID,
		Status:      domain.NormalizeTransactionStatus(r.Status),
		RawStatus:   r.Status,
		Amount:      r.Amount,
		Description: r.Description,
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		tx.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, r.ApprovedAt); err == nil {
		tx.ApprovedAt = &t
	}
	return tx
}

// GetTransactionDetails fetches one transaction with its status
// normalized to the statuses this service exposes.
func (c *BankingClient) GetTransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.GetTransactionDetails")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	var row transactionRow
	path := fmt.Sprintf("/v1/transactions/%s", transactionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &row, "transaction", transactionID); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// CancelTransaction cancels a pending transaction.
func (c *BankingClient) CancelTransaction(ctx context.Context, transactionID string) error {
	ctx, span := tracer.Start(ctx, "BankingClient.CancelTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	path := fmt.Sprintf("/v1/transactions/%s/cancel", transactionID)
	return c.do(ctx, http.MethodPost, path, nil, nil, "transaction", transactionID)
}

// pixRow is the wire shape of a generated validation charge.
type pixRow struct {
	PaymentID    string  `json:"payment_id"`
	QRCode       string  `json:"qr_code"`
	QRCodeBase64 string  `json:"qr_code_base64"`
	PixKey       string  `json:"pix_key"`
	ExpiresAt    string  `json:"expires_at"`
	Amount       float64 `json:"amount"`
	TicketURL    string  `json:"ticket_url"`
}

// GenerateValidationPix asks the banking service for a PIX micro-charge
// that proves ownership of the account being validated. An unparseable
// expires_at is left as the zero time; the validation flow applies its
// own fallback expiry.
func (c *BankingClient) GenerateValidationPix(ctx context.Context, caixinhaID string, req domain.ValidationPixRequest) (*domain.ValidationPixPayment, error) {
	ctx, span := tracer.Start(ctx, "BankingClient.GenerateValidationPix")
	defer span.End()
	span.SetAttributes(
		attribute.String("caixinha.id", caixinhaID),
		attribute.String("account.id", req.AccountID),
	)

	var row pixRow
	path := fmt.Sprintf("/v1/caixinhas/%s/banking/validation-pix", caixinhaID)
	if err := c.do(ctx, http.MethodPost, path, req, &row, "caixinha", caixinhaID); err != nil {
		return nil, err
	}

	payment := &domain.ValidationPixPayment{
		PaymentID:    row.PaymentID,
		QRCode:       row.QRCode,
		QRCodeBase64: row.QRCodeBase64,
		PixKey:       row.PixKey,
		Amount:       row.Amount,
		TicketURL:    row.TicketURL,
	}
	if t, err := time.Parse(time.RFC3339, row.ExpiresAt); err == nil {
		payment.ExpiresAt = t
	}
	return payment, nil
}
