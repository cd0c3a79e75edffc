package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input). Validation
// errors are always raised before any network call is made.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrGateway indicates a tokenization or payment-processing failure
// reported by the payment gateway. The gateway's message is surfaced
// verbatim to the caller.
type ErrGateway struct {
	Operation string
	Message   string
}

func (e *ErrGateway) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("gateway error during %s", e.Operation)
}

// ErrPaymentExpired indicates the validation PIX expired before payment
// was confirmed. Expiration is an error state, not a silent reset.
type ErrPaymentExpired struct {
	PaymentID string
}

func (e *ErrPaymentExpired) Error() string {
	return "Pagamento PIX expirado. Gere um novo QR Code para continuar."
}

// ErrPaymentNotValidated marks the case where the validation payment
// succeeded but the account validation call failed afterwards. It is
// deliberately distinct from a generic failure: the money moved, so the
// user needs a different support/retry path.
type ErrPaymentNotValidated struct {
	TransactionID string
	Err           error
}

func (e *ErrPaymentNotValidated) Error() string {
	return fmt.Sprintf("Pagamento confirmado, mas a validação da conta falhou (transação %s). Entre em contato com o suporte.", e.TransactionID)
}

func (e *ErrPaymentNotValidated) Unwrap() error {
	return e.Err
}

// ErrSessionClosed indicates an operation on a payment session that was
// already cancelled or completed.
type ErrSessionClosed struct {
	SessionID string
}

func (e *ErrSessionClosed) Error() string {
	return fmt.Sprintf("payment session closed: %s", e.SessionID)
}

// ErrInvalidStep indicates a flow operation attempted out of order.
type ErrInvalidStep struct {
	Operation string
	Step      int
}

func (e *ErrInvalidStep) Error() string {
	return fmt.Sprintf("cannot %s at step %d", e.Operation, e.Step)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
