// Package service provides the business logic layer (use cases).
// BankingService fronts the upstream banking API with caching and
// mutation notifications; the flow services drive account validation
// and card checkout.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/format"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/cache"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var bankTracer = otel.Tracer("service/banking")

const (
	infoCacheName    = "banking_info"
	historyCacheName = "banking_history"

	refreshTimeout = 10 * time.Second
)

// BankingService caches reads from the banking API and keeps the cache
// coherent across mutations: every successful mutation invalidates and
// refetches both the info and history entries before returning.
type BankingService struct {
	api       port.BankingAPI
	infoCache *cache.InMemory[*domain.BankingInfo]
	histCache *cache.InMemory[*domain.BankingHistory]
	notifier  port.Notifier
	metrics   *observability.Metrics
	logger    *zap.Logger

	refreshing sync.Map // cache key -> struct{}, guards background refreshes
}

// NewBankingService creates a new banking service.
func NewBankingService(
	api port.BankingAPI,
	infoCache *cache.InMemory[*domain.BankingInfo],
	histCache *cache.InMemory[*domain.BankingHistory],
	notifier port.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BankingService {
	return &BankingService{
		api:       api,
		infoCache: infoCache,
		histCache: histCache,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

func infoKey(caixinhaID string) string    { return "banking:info:" + caixinhaID }
func historyKey(caixinhaID string) string { return "banking:history:" + caixinhaID }

// ============================================================
// Reads
// ============================================================

// BankingInfo returns the banking state of a caixinha. Fresh cache
// entries are served directly; stale-but-valid entries are served too,
// with a refresh kicked off in the background.
func (s *BankingService) BankingInfo(ctx context.Context, caixinhaID string) (*domain.BankingInfo, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.BankingInfo")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	key := infoKey(caixinhaID)
	if info, stale, ok := s.infoCache.GetWithStaleness(key); ok {
		s.metrics.IncrCacheHit(infoCacheName)
		if stale {
			s.refreshInfoAsync(caixinhaID)
		}
		return info, nil
	}
	s.metrics.IncrCacheMiss(infoCacheName)

	info, err := s.api.GetBankingInfo(ctx, caixinhaID)
	if err != nil {
		return nil, err
	}
	s.infoCache.Set(key, info)
	return info, nil
}

// BankingHistory returns accounts and transactions of a caixinha, with
// the same stale-while-revalidate behavior as BankingInfo.
func (s *BankingService) BankingHistory(ctx context.Context, caixinhaID string) (*domain.BankingHistory, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.BankingHistory")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	key := historyKey(caixinhaID)
	if history, stale, ok := s.histCache.GetWithStaleness(key); ok {
		s.metrics.IncrCacheHit(historyCacheName)
		if stale {
			s.refreshHistoryAsync(caixinhaID)
		}
		return history, nil
	}
	s.metrics.IncrCacheMiss(historyCacheName)

	history, err := s.api.GetBankingHistory(ctx, caixinhaID)
	if err != nil {
		return nil, err
	}
	s.histCache.Set(key, history)
	return history, nil
}

func (s *BankingService) refreshInfoAsync(caixinhaID string) {
	key := infoKey(caixinhaID)
	if _, loaded := s.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	go func() {
		defer s.refreshing.Delete(key)
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		info, err := s.api.GetBankingInfo(ctx, caixinhaID)
		if err != nil {
			s.logger.Warn("background info refresh failed",
				zap.String("caixinha_id", caixinhaID), zap.Error(err))
			return
		}
		s.infoCache.Set(key, info)
	}()
}

func (s *BankingService) refreshHistoryAsync(caixinhaID string) {
	key := historyKey(caixinhaID)
	if _, loaded := s.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	go func() {
		defer s.refreshing.Delete(key)
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		history, err := s.api.GetBankingHistory(ctx, caixinhaID)
		if err != nil {
			s.logger.Warn("background history refresh failed",
				zap.String("caixinha_id", caixinhaID), zap.Error(err))
			return
		}
		s.histCache.Set(key, history)
	}()
}

// ============================================================
// Mutations
// ============================================================

// RegisterBankAccount registers a new pending account. Input is
// validated before any network call; on success both cache entries are
// refetched before this method returns, so the next read is current.
func (s *BankingService) RegisterBankAccount(ctx context.Context, caixinhaID string, req domain.RegisterBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.RegisterBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("caixinha.id", caixinhaID))

	const op = "register_bank_account"
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(op, time.Since(start)) }()

	if err := validateRegisterRequest(req); err != nil {
		return nil, err
	}

	s.notifier.Loading(op)
	account, err := s.api.RegisterBankAccount(ctx, caixinhaID, req)
	if err != nil {
		s.metrics.IncrExternalError("banking")
		s.notifier.Error(op, err)
		return nil, err
	}

	if err := s.refetchBoth(ctx, caixinhaID); err != nil {
		s.logger.Warn("post-mutation refetch failed",
			zap.String("caixinha_id", caixinhaID), zap.Error(err))
	}
	s.notifier.Success(op, fmt.Sprintf("Conta bancária de %s cadastrada. Valide a conta para ativá-la.", format.Document(req.HolderDocument)))
	return account, nil
}

// ValidateBankAccount activates a pending account once its validation
// payment is confirmed.
func (s *BankingService) ValidateBankAccount(ctx context.Context, req domain.ValidateBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.ValidateBankAccount")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", req.AccountID),
		attribute.String("transaction.id", req.TransactionID),
	)

	const op = "validate_bank_account"
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(op, time.Since(start)) }()

	if req.AccountID == "" || req.TransactionID == "" || req.CaixinhaID == "" {
		return nil, &domain.ErrValidation{Field: "request", Message: "account_id, transaction_id e caixinha_id são obrigatórios"}
	}

	s.notifier.Loading(op)
	account, err := s.api.ValidateBankAccount(ctx, req)
	if err != nil {
		s.metrics.IncrExternalError("banking")
		s.metrics.IncrValidation("failed")
		s.notifier.Error(op, err)
		return nil, err
	}

	if err := s.refetchBoth(ctx, req.CaixinhaID); err != nil {
		s.logger.Warn("post-mutation refetch failed",
			zap.String("caixinha_id", req.CaixinhaID), zap.Error(err))
	}
	s.metrics.IncrValidation("succeeded")
	s.notifier.Success(op, "Conta bancária validada com sucesso.")
	return account, nil
}

// TransferFunds transfers money out of a caixinha account.
func (s *BankingService) TransferFunds(ctx context.Context, req domain.TransferFundsRequest) (*domain.TransferFundsResponse, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.TransferFunds")
	defer span.End()
	span.SetAttributes(
		attribute.String("caixinha.id", req.CaixinhaID),
		attribute.Float64("transfer.amount", req.Amount),
	)

	const op = "transfer_funds"
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(op, time.Since(start)) }()

	if err := validateTransferRequest(req); err != nil {
		return nil, err
	}

	s.notifier.Loading(op)
	resp, err := s.api.TransferFunds(ctx, req)
	if err != nil {
		s.metrics.IncrExternalError("banking")
		s.notifier.Error(op, err)
		return nil, err
	}

	if err := s.refetchBoth(ctx, req.CaixinhaID); err != nil {
		s.logger.Warn("post-mutation refetch failed",
			zap.String("caixinha_id", req.CaixinhaID), zap.Error(err))
	}
	s.notifier.Success(op, fmt.Sprintf("Transferência de %s realizada.", format.CurrencyValue(req.Amount)))
	return resp, nil
}

// TransactionDetails fetches one transaction, uncached.
func (s *BankingService) TransactionDetails(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.TransactionDetails")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	s.metrics.IncrStatusPoll()
	return s.api.GetTransactionDetails(ctx, transactionID)
}

// CancelTransaction cancels a pending transaction and refreshes the
// owning caixinha's cached info and history before returning.
func (s *BankingService) CancelTransaction(ctx context.Context, caixinhaID, transactionID string) error {
	ctx, span := bankTracer.Start(ctx, "BankingService.CancelTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("caixinha.id", caixinhaID),
		attribute.String("transaction.id", transactionID),
	)

	const op = "cancel_transaction"
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration(op, time.Since(start)) }()

	s.notifier.Loading(op)
	if err := s.api.CancelTransaction(ctx, transactionID); err != nil {
		s.metrics.IncrExternalError("banking")
		s.notifier.Error(op, err)
		return err
	}

	if err := s.refetchBoth(ctx, caixinhaID); err != nil {
		s.logger.Warn("post-mutation refetch failed",
			zap.String("caixinha_id", caixinhaID), zap.Error(err))
	}
	s.notifier.Success(op, "Transação cancelada.")
	return nil
}

// Invalidate drops both cache entries for a caixinha.
func (s *BankingService) Invalidate(caixinhaID string) {
	s.infoCache.Delete(infoKey(caixinhaID))
	s.histCache.Delete(historyKey(caixinhaID))
}

// refetchBoth invalidates and re-fetches info and history concurrently,
// waiting for both so callers return with a coherent cache.
func (s *BankingService) refetchBoth(ctx context.Context, caixinhaID string) error {
	s.Invalidate(caixinhaID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := s.api.GetBankingInfo(ctx, caixinhaID)
		if err != nil {
			return err
		}
		s.infoCache.Set(infoKey(caixinhaID), info)
		return nil
	})
	g.Go(func() error {
		history, err := s.api.GetBankingHistory(ctx, caixinhaID)
		if err != nil {
			return err
		}
		s.histCache.Set(historyKey(caixinhaID), history)
		return nil
	})
	return g.Wait()
}

// ============================================================
// Validation
// ============================================================

func validateRegisterRequest(req domain.RegisterBankAccountRequest) error {
	switch {
	case strings.TrimSpace(req.BankCode) == "":
		return &domain.ErrValidation{Field: "bank_code", Message: "código do banco é obrigatório"}
	case strings.TrimSpace(req.Agency) == "":
		return &domain.ErrValidation{Field: "agency", Message: "agência é obrigatória"}
	case strings.TrimSpace(req.AccountNumber) == "":
		return &domain.ErrValidation{Field: "account_number", Message: "número da conta é obrigatório"}
	case strings.TrimSpace(req.HolderName) == "":
		return &domain.ErrValidation{Field: "holder_name", Message: "nome do titular é obrigatório"}
	}
	if !validAccountType(req.AccountType) {
		return &domain.ErrValidation{Field: "account_type", Message: "tipo de conta inválido"}
	}
	if !document.Validate(req.HolderDocument) {
		return &domain.ErrValidation{Field: "holder_document", Message: "CPF ou CNPJ do titular inválido"}
	}
	if req.PixKey != "" && !validPixKeyType(req.PixKeyType) {
		return &domain.ErrValidation{Field: "pix_key_type", Message: "tipo de chave PIX inválido"}
	}
	return nil
}

func validateTransferRequest(req domain.TransferFundsRequest) error {
	switch {
	case req.CaixinhaID == "":
		return &domain.ErrValidation{Field: "caixinha_id", Message: "caixinha é obrigatória"}
	case req.SourceAccountID == "":
		return &domain.ErrValidation{Field: "source_account_id", Message: "conta de origem é obrigatória"}
	case req.Amount <= 0:
		return &domain.ErrValidation{Field: "amount", Message: "valor deve ser maior que zero"}
	}
	if !document.Validate(req.DestinationDocument) {
		return &domain.ErrValidation{Field: "destination_document", Message: "documento do destinatário inválido"}
	}
	return nil
}

func validAccountType(t string) bool {
	switch t {
	case domain.AccountTypeChecking, domain.AccountTypeSavings, domain.AccountTypeSalary,
		domain.AccountTypePayment, domain.AccountTypeDigital:
		return true
	}
	return false
}

func validPixKeyType(t string) bool {
	switch t {
	case domain.PixKeyCPF, domain.PixKeyCNPJ, domain.PixKeyEmail, domain.PixKeyPhone, domain.PixKeyRandom:
		return true
	}
	return false
}
