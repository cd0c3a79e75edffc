// Package port declares the interfaces between the service layer and the
// outside world. Services depend on these, never on concrete clients, so
// every external system can be swapped in tests.
package port

import (
	"context"

	"github.com/eloscloud/caixinha-banking-go/internal/domain"
)

// BankingAPI talks to the upstream banking service.
type BankingAPI interface {
	GetBankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error)
	GetBankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error)
	RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error)
	ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error)
	TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error)
	GetTransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, transactionID string) error
	GenerateValidationPix(ctx context.Context, caixinhaID string, req domain.ValidationPixRequest) (*domain.ValidationPixPayment, error)
}

// PaymentGateway wraps the external card and PIX payment provider.
type PaymentGateway interface {
	// Ready reports whether the gateway session is usable. Initialization
	// is lazy and idempotent; callers never trigger it directly.
	Ready(ctx context.Context) bool
	CreateCardToken(ctx context.Context, card domain.CardFields) (*domain.CardPaymentToken, error)
	CreatePayment(ctx context.Context, token string, amount float64, payer domain.PayerInfo) (*domain.Transaction, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*domain.Transaction, error)
	GenerateSessionID(ctx context.Context) (string, error)
	GetInstallments(ctx context.Context, amount float64, bin string) ([]domain.Installment, error)
	GetPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	GetIdentificationTypes(ctx context.Context) ([]domain.IdentificationType, error)
	GetIssuers(ctx context.Context, methodID, bin string) ([]domain.Issuer, error)
}

// Notifier receives the loading, success and error transitions of banking
// mutations. Implementations must tolerate concurrent calls.
type Notifier interface {
	Loading(operation string)
	Success(operation, message string)
	Error(operation string, err error)
}

// AddressLookup resolves Brazilian postal codes.
type AddressLookup interface {
	Lookup(ctx context.Context, cep string) (*domain.Address, error)
}

// BankDirectory lists the Brazilian bank registry.
type BankDirectory interface {
	ListBanks(ctx context.Context) ([]domain.Bank, error)
}

// BankingProvider is the caching read/mutate surface the handlers use.
type BankingProvider interface {
	BankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error)
	BankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error)
	RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error)
	ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error)
	TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error)
	TransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, caixinhaID, transactionID string) error
	Invalidate(caixinhaID string)
}
