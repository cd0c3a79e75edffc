package domain

import (
	"strings"
	"time"
)

// ============================================================
// PIX validation payments
// ============================================================

// ValidationPixPayment is the micro-charge generated to validate
// ownership of a bank account. The QR code fields come straight from
// the payment gateway.
type ValidationPixPayment struct {
	PaymentID    string    `json:"payment_id"`
	QRCode       string    `json:"qr_code"`
	QRCodeBase64 string    `json:"qr_code_base64,omitempty"`
	PixKey       string    `json:"pix_key,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Amount       float64   `json:"amount"`
	TicketURL    string    `json:"ticket_url,omitempty"`
}

// PayerInfo identifies who is paying the validation charge.
type PayerInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Document  string `json:"document"`
}

// ValidationPixRequest is the charge request sent to the banking API
// when a validation PIX is generated for an account.
type ValidationPixRequest struct {
	AccountID   string    `json:"account_id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Payer       PayerInfo `json:"payer"`
}

// PIX validation flow steps. The flow is a small state machine: it starts
// at the form step, advances to the QR display once a charge exists, then
// to the validating step once the charge is paid.
const (
	PixStepForm       = 0
	PixStepQRCode     = 1
	PixStepValidating = 2
)

// Terminal flow statuses reported alongside the step.
const (
	FlowStatusActive    = "active"
	FlowStatusSucceeded = "succeeded"
	FlowStatusFailed    = "failed"
)

// PixValidationState is an observable snapshot of a validation session.
type PixValidationState struct {
	SessionID  string                `json:"session_id"`
	CaixinhaID string                `json:"caixinha_id"`
	Step       int                   `json:"step"`
	Status     string                `json:"status"`
	Payment    *ValidationPixPayment `json:"payment,omitempty"`
	Remaining  int                   `json:"remaining_seconds"`
	Error      string                `json:"error,omitempty"`
}

// ============================================================
// Card payments
// ============================================================

// CardFields holds the raw card form data. It lives in memory only and
// is never persisted or logged.
type CardFields struct {
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
	Email       string `json:"email"`
	Document    string `json:"document"`
}

// CardPaymentToken is the opaque token the gateway returns for a card.
// Only the token travels onward; the card data never leaves the session.
type CardPaymentToken struct {
	Token     string    `json:"token"`
	LastFour  string    `json:"last_four,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Card checkout flow steps. The card is tokenized when the form is
// accepted; the confirm step holds the token until the payer submits.
const (
	CardStepForm       = 1
	CardStepConfirm    = 2
	CardStepProcessing = 3
	CardStepDone       = 4
)

// CardCheckoutState is an observable snapshot of a card checkout session.
type CardCheckoutState struct {
	SessionID string  `json:"session_id"`
	Step      int     `json:"step"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	PaymentID string  `json:"payment_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Installment is one installment option quoted by the gateway for a
// given amount and card BIN.
type Installment struct {
	Quantity          int     `json:"quantity"`
	InstallmentAmount float64 `json:"installment_amount"`
	TotalAmount       float64 `json:"total_amount"`
	Rate              float64 `json:"rate"`
}

// PaymentMethod is a payment method advertised by the gateway.
type PaymentMethod struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// IdentificationType is a payer document kind accepted by the gateway
// (CPF, CNPJ).
type IdentificationType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MinLength int    `json:"min_length"`
	MaxLength int    `json:"max_length"`
}

// Issuer is a card issuer for a payment method and BIN.
type Issuer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// ============================================================
// Status normalization
// ============================================================

// NormalizeTransactionStatus maps a gateway-reported status onto the
// four statuses this service exposes. Matching is case-insensitive and
// tolerant of the pt-BR variants the banking provider emits.
func NormalizeTransactionStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "concluido", "concluído", "succeeded", "completed", "approved":
		return TransactionSucceeded
	case "rejected", "failed", "cancelled", "canceled", "recusado":
		return TransactionFailed
	case "expired", "expirado":
		return TransactionExpired
	default:
		return TransactionPending
	}
}
