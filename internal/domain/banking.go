package domain

import "time"

// ============================================================
// Bank Accounts
// ============================================================

// Account types accepted by the banking service.
const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
	AccountTypeSalary   = "salary"
	AccountTypePayment  = "payment"
	AccountTypeDigital  = "digital"
)

// PIX key types.
const (
	PixKeyCPF    = "cpf"
	PixKeyCNPJ   = "cnpj"
	PixKeyEmail  = "email"
	PixKeyPhone  = "phone"
	PixKeyRandom = "random"
)

// Bank account activation status. An account is created as pending and
// becomes active exactly once, after its validation payment is confirmed
// and the validation call succeeds.
const (
	AccountStatusPending = "pending"
	AccountStatusActive  = "active"
)

// BankAccount is a bank account registered for a caixinha.
type BankAccount struct {
	ID            string    `json:"id"`
	CaixinhaID    string    `json:"caixinha_id"`
	BankCode      string    `json:"bank_code"`
	BankName      string    `json:"bank_name"`
	Agency        string    `json:"agency"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	HolderName    string    `json:"holder_name"`
	PixKey        string    `json:"pix_key,omitempty"`
	PixKeyType    string    `json:"pix_key_type,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterBankAccountRequest is the payload to register a new account.
type RegisterBankAccountRequest struct {
	BankCode       string `json:"bank_code"`
	BankName       string `json:"bank_name"`
	Agency         string `json:"agency"`
	AccountNumber  string `json:"account_number"`
	AccountType    string `json:"account_type"`
	HolderName     string `json:"holder_name"`
	HolderDocument string `json:"holder_document"`
	PixKey         string `json:"pix_key,omitempty"`
	PixKeyType     string `json:"pix_key_type,omitempty"`
}

// ValidateBankAccountRequest ties a successful validation payment to the
// pending account it proves ownership of.
type ValidateBankAccountRequest struct {
	AccountID     string `json:"account_id"`
	TransactionID string `json:"transaction_id"`
	CaixinhaID    string `json:"caixinha_id"`
}

// BankingInfo is the current banking state of a caixinha.
type BankingInfo struct {
	CaixinhaID string       `json:"caixinha_id"`
	Account    *BankAccount `json:"account,omitempty"`
	Balance    float64      `json:"balance"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// BankingHistory is the account + transaction history of a caixinha.
type BankingHistory struct {
	CaixinhaID   string        `json:"caixinha_id"`
	Accounts     []BankAccount `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// ============================================================
// Transactions
// ============================================================

// Normalized transaction statuses. Gateways report a wider, source-system
// dependent set; clients of this package only ever see these four.
const (
	TransactionPending   = "pending"
	TransactionSucceeded = "succeeded"
	TransactionFailed    = "failed"
	TransactionExpired   = "expired"
)

// Transaction is a payment transaction as seen by this flow: read-only,
// fetched by polling.
type Transaction struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	RawStatus   string     `json:"raw_status,omitempty"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}

// TransferFundsRequest is the payload for a fund transfer between a
// caixinha account and an external destination.
type TransferFundsRequest struct {
	CaixinhaID          string  `json:"caixinha_id"`
	SourceAccountID     string  `json:"source_account_id"`
	DestinationBankCode string  `json:"destination_bank_code"`
	DestinationAgency   string  `json:"destination_agency"`
	DestinationAccount  string  `json:"destination_account"`
	DestinationName     string  `json:"destination_name"`
	DestinationDocument string  `json:"destination_document"`
	Amount              float64 `json:"amount"`
	Description         string  `json:"description,omitempty"`
}

// TransferFundsResponse is returned by the banking service for a transfer.
type TransferFundsResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Timestamp     string  `json:"timestamp"`
}
