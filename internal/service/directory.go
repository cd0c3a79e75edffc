package service

import (
	"context"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/format"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/cache"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/observability"
	"github.com/eloscloud/caixinha-banking-go/internal/port"

	"go.opentelemetry.io/otel"
)

var dirTracer = otel.Tracer("service/directory")

// DirectoryService caches address lookups and the bank registry. Both
// change rarely, so entries live for hours.
type DirectoryService struct {
	addresses port.AddressLookup
	banks     port.BankDirectory
	addrCache *cache.InMemory[*domain.Address]
	bankCache *cache.InMemory[[]domain.Bank]
	metrics   *observability.Metrics
}

// NewDirectoryService creates a new directory service.
func NewDirectoryService(
	addresses port.AddressLookup,
	banks port.BankDirectory,
	addrCache *cache.InMemory[*domain.Address],
	bankCache *cache.InMemory[[]domain.Bank],
	metrics *observability.Metrics,
) *DirectoryService {
	return &DirectoryService{
		addresses: addresses,
		banks:     banks,
		addrCache: addrCache,
		bankCache: bankCache,
		metrics:   metrics,
	}
}

// Address resolves a postal code, serving repeats from cache.
func (s *DirectoryService) Address(ctx context.Context, cep string) (*domain.Address, error) {
	ctx, span := dirTracer.Start(ctx, "DirectoryService.Address")
	defer span.End()

	key := "address:" + document.Digits(cep)
	if addr, ok := s.addrCache.Get(key); ok {
		s.metrics.IncrCacheHit("address")
		return addr, nil
	}
	s.metrics.IncrCacheMiss("address")

	addr, err := s.addresses.Lookup(ctx, cep)
	if err != nil {
		return nil, err
	}
	addr.CEP = format.CEP(addr.CEP)
	s.addrCache.Set(key, addr)
	return addr, nil
}

// Banks lists the bank registry, cached as a whole.
func (s *DirectoryService) Banks(ctx context.Context) ([]domain.Bank, error) {
	ctx, span := dirTracer.Start(ctx, "DirectoryService.Banks")
	defer span.End()

	if banks, ok := s.bankCache.Get("banks"); ok {
		s.metrics.IncrCacheHit("banks")
		return banks, nil
	}
	s.metrics.IncrCacheMiss("banks")

	banks, err := s.banks.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	s.bankCache.Set("banks", banks)
	return banks, nil
}
