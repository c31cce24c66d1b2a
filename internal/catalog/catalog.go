// Package catalog keeps the livery catalog in memory. The catalog is
// display-only data; a stale snapshot is acceptable.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"liverymarket/internal/infrastructure/metrics"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = errors.New("livery not found in catalog")
	ErrUnavailable = errors.New("catalog unavailable")
)

type Livery struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	CarCode string          `json:"car_code"`
	CarName string          `json:"car_name"`
	Price   decimal.Decimal `json:"price"`
}

type Car struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Liveries []Livery `json:"liveries"`
}

type snapshot struct {
	byID  map[string]Livery
	byCar map[string]*Car
	cars  []Car    // sorted by name, code
	all   []Livery // sorted by car name, livery name, id
}

// newSnapshot indexes cars. A livery id listed under several cars belongs to
// the car with the smallest code.
func newSnapshot(cars []Car) *snapshot {
	cars = append([]Car(nil), cars...)
	sort.Slice(cars, func(i, j int) bool { return cars[i].Code < cars[j].Code })

	s := &snapshot{
		byID:  make(map[string]Livery),
		byCar: make(map[string]*Car, len(cars)),
		cars:  make([]Car, 0, len(cars)),
	}
	for _, car := range cars {
		liveries := make([]Livery, 0, len(car.Liveries))
		for _, l := range car.Liveries {
			if _, dup := s.byID[l.ID]; dup {
				continue
			}
			s.byID[l.ID] = l
			liveries = append(liveries, l)
		}
		sortLiveries(liveries)
		car.Liveries = liveries
		s.cars = append(s.cars, car)
		s.all = append(s.all, liveries...)
	}
	sort.Slice(s.cars, func(i, j int) bool {
		if s.cars[i].Name != s.cars[j].Name {
			return s.cars[i].Name < s.cars[j].Name
		}
		return s.cars[i].Code < s.cars[j].Code
	})
	for i := range s.cars {
		s.byCar[s.cars[i].Code] = &s.cars[i]
	}
	sortLiveries(s.all)
	return s
}

func sortLiveries(ls []Livery) {
	sort.Slice(ls, func(i, j int) bool {
		a, b := ls[i], ls[j]
		if a.CarName != b.CarName {
			return a.CarName < b.CarName
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Service owns the catalog snapshot. It loads lazily on first use and is
// reloaded only through Refresh.
type Service struct {
	source Source
	logger *logrus.Logger

	mu     sync.RWMutex
	snap   *snapshot
	loadMu sync.Mutex
}

func NewService(source Source, logger *logrus.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// Refresh replaces the snapshot. On failure the previous snapshot is kept.
func (s *Service) Refresh(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) error {
	cars, err := s.source.Fetch(ctx)
	if err != nil {
		s.logger.WithError(err).Error("catalog refresh failed, keeping previous snapshot")
		return err
	}
	snap := newSnapshot(cars)

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	metrics.CatalogItems.Set(float64(len(snap.all)))
	s.logger.WithFields(logrus.Fields{
		"cars":     len(snap.cars),
		"liveries": len(snap.all),
	}).Info("catalog loaded")
	return nil
}

func (s *Service) current(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.RLock()
	snap = s.snap
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *Service) Get(ctx context.Context, id string) (Livery, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return Livery{}, err
	}
	l, ok := snap.byID[id]
	if !ok {
		return Livery{}, ErrNotFound
	}
	return l, nil
}

// Cars lists every car group with its liveries.
func (s *Service) Cars(ctx context.Context) ([]Car, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return snap.cars, nil
}

func (s *Service) Car(ctx context.Context, code string) (Car, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return Car{}, err
	}
	car, ok := snap.byCar[code]
	if !ok {
		return Car{}, ErrNotFound
	}
	return *car, nil
}

// Search matches query case-insensitively against livery and car names.
// limit <= 0 returns every match.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Livery, error) {
	_, page, err := s.SearchPage(ctx, query, 0, limit)
	return page, err
}

// SearchPage returns the total match count and the requested page.
func (s *Service) SearchPage(ctx context.Context, query string, offset, limit int) (int, []Livery, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return 0, nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	matches := make([]Livery, 0)
	for _, l := range snap.all {
		if strings.Contains(strings.ToLower(l.Name), q) || strings.Contains(strings.ToLower(l.CarName), q) {
			matches = append(matches, l)
		}
	}

	total := len(matches)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return total, []Livery{}, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return total, matches[offset:end], nil
}
