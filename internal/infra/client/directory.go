package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/eloscloud/caixinha-banking-go/internal/document"
	"github.com/eloscloud/caixinha-banking-go/internal/domain"
	"github.com/eloscloud/caixinha-banking-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// DirectoryClient resolves postal codes via ViaCEP and lists the bank
// registry via BrasilAPI. Both are public read-only APIs.
type DirectoryClient struct {
	httpClient *http.Client
	viaCEPURL  string
	brasilURL  string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewDirectoryClient creates a new DirectoryClient.
func NewDirectoryClient(httpClient *http.Client, viaCEPURL, brasilURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *DirectoryClient {
	return &DirectoryClient{
		httpClient: httpClient,
		viaCEPURL:  viaCEPURL,
		brasilURL:  brasilURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type viaCEPRow struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Erro        bool   `json:"erro"`
}

// Lookup resolves a Brazilian postal code to an address.
func (c *DirectoryClient) Lookup(ctx context.Context, cep string) (*domain.Address, error) {
	ctx, span := tracer.Start(ctx, "DirectoryClient.Lookup")
	defer span.End()

	digits := document.Digits(cep)
	if len(digits) != 8 {
		return nil, &domain.ErrValidation{Field: "cep", Message: "CEP deve conter 8 dígitos"}
	}
	span.SetAttributes(attribute.String("cep", digits))

	var row viaCEPRow
	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/ws/%s/json/", c.viaCEPURL, digits)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("viacep returned status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&row)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		if row.Erro {
			return nil, resilience.Permanent(&domain.ErrNotFound{Resource: "address", ID: digits})
		}
		return &domain.Address{
			CEP:          row.CEP,
			Street:       row.Logradouro,
			Complement:   row.Complemento,
			Neighborhood: row.Bairro,
			City:         row.Localidade,
			State:        row.UF,
		}, nil
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, &domain.ErrExternalService{Service: "viacep", Err: err}
	}
	return result.(*domain.Address), nil
}

type bankRow struct {
	ISPB     string `json:"ispb"`
	Name     string `json:"name"`
	Code     *int   `json:"code"`
	FullName string `json:"fullName"`
}

// ListBanks fetches the Brazilian bank registry. Entries without a COMPE
// code (payment institutions) are skipped.
func (c *DirectoryClient) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	ctx, span := tracer.Start(ctx, "DirectoryClient.ListBanks")
	defer span.End()

	var rows []bankRow
	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := c.brasilURL + "/api/banks/v1"
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("brasilapi returned status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&rows)
		})
		if innerErr != nil {
			return nil, innerErr
		}

		banks := make([]domain.Bank, 0, len(rows))
		for _, r := range rows {
			if r.Code == nil {
				continue
			}
			banks = append(banks, domain.Bank{
				Code:     fmt.Sprintf("%03d", *r.Code),
				ISPB:     r.ISPB,
				Name:     r.Name,
				FullName: r.FullName,
			})
		}
		return banks, nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "brasilapi", Err: err}
	}
	return result.([]domain.Bank), nil
}
