package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"liverymarket/internal/config"

	"github.com/shopspring/decimal"
)

const unknownCarName = "Unknown Car"

// Source fetches the full catalog document.
type Source interface {
	Fetch(ctx context.Context) ([]Car, error)
}

// HTTPSource reads the catalog JSON document over HTTP(S).
type HTTPSource struct {
	url        string
	currency   string
	httpClient *http.Client
}

func NewHTTPSource(cfg *config.CatalogConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		url:        cfg.URL,
		currency:   cfg.Currency,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type documentCar struct {
	CarName  string           `json:"carName"`
	Liveries []documentLivery `json:"liveries"`
}

type documentLivery struct {
	ID    string                     `json:"id"`
	Name  string                     `json:"name"`
	Price map[string]decimal.Decimal `json:"price"`
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Car, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch catalog: unexpected HTTP status %d", resp.StatusCode)
	}

	var doc map[string]documentCar
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return parseDocument(doc, s.currency), nil
}

// parseDocument drops liveries without an id or a name.
func parseDocument(doc map[string]documentCar, currency string) []Car {
	cars := make([]Car, 0, len(doc))
	for code, dc := range doc {
		name := dc.CarName
		if name == "" {
			name = unknownCarName
		}
		car := Car{Code: code, Name: name}
		for _, dl := range dc.Liveries {
			if dl.ID == "" || dl.Name == "" {
				continue
			}
			car.Liveries = append(car.Liveries, Livery{
				ID:      dl.ID,
				Name:    dl.Name,
				CarCode: code,
				CarName: name,
				Price:   dl.Price[currency],
			})
		}
		cars = append(cars, car)
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].Code < cars[j].Code })
	return cars
}
