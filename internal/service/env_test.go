package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"liverymarket/internal/catalog"
	"liverymarket/internal/config"
	"liverymarket/internal/infrastructure/database"
	"liverymarket/internal/model"
	"liverymarket/internal/upstream"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db      *gorm.DB
	redis   *redis.Client
	mr      *miniredis.Miniredis
	cfg     *config.Config
	logger  *logrus.Logger
	catalog *catalog.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			UserNotify:  "user.notify",
			AdminNotify: "admin.notify",
		}},
		Business: config.BusinessConfig{InjectionCost: 1, LockTTL: time.Minute},
		Admin:    config.AdminConfig{IDs: []int64{900}},
		Payment: config.PaymentConfig{QRISAssets: map[string]string{
			"10000": "qris/10k.png",
			"25000": "qris/25k.png",
		}},
	}

	return &testEnv{
		db:      db,
		redis:   rdb,
		mr:      mr,
		cfg:     cfg,
		logger:  logger,
		catalog: catalog.NewService(staticSource{}, logger),
	}
}

type staticSource struct{}

func (staticSource) Fetch(context.Context) ([]catalog.Car, error) {
	return []catalog.Car{{
		Code: "GT",
		Name: "Street GT",
		Liveries: []catalog.Livery{
			{ID: "livery-42", Name: "Night Runner", CarCode: "GT", CarName: "Street GT"},
			{ID: "livery-7", Name: "Sunset", CarCode: "GT", CarName: "Street GT"},
		},
	}}, nil
}

func (e *testEnv) createAccount(t *testing.T, chatID, credit int64, linked bool) *model.Account {
	t.Helper()
	account := &model.Account{ChatID: chatID, DisplayName: "user", Credit: credit}
	if linked {
		token, external := "token-ok", "PF-1"
		account.AuthToken = &token
		account.ExternalID = &external
	}
	if err := e.db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func (e *testEnv) createProduct(t *testing.T, price, credits int64, active bool) *model.Product {
	t.Helper()
	product := &model.Product{
		Name:         "bundle",
		CreditAmount: credits,
		Price:        decimal.NewFromInt(price),
		IsActive:     active,
	}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func (e *testEnv) balance(t *testing.T, accountID int64) int64 {
	t.Helper()
	var account model.Account
	if err := e.db.First(&account, accountID).Error; err != nil {
		t.Fatalf("load account: %v", err)
	}
	return account.Credit
}

func (e *testEnv) count(t *testing.T, m interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// gameBackend is an httptest cloud-script endpoint with canned answers per
// function name.
type gameBackend struct {
	mu        sync.Mutex
	responses map[string]cannedResponse
	requests  atomic.Int32
}

type cannedResponse struct {
	status int
	body   string
}

func (g *gameBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.requests.Add(1)
	var req struct {
		FunctionName string `json:"FunctionName"`
	}
	_ = decodeJSON(r.Body, &req)

	g.mu.Lock()
	resp, ok := g.responses[req.FunctionName]
	g.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func newUpstream(t *testing.T, env *testEnv, responses map[string]cannedResponse) (*upstream.Client, *gameBackend) {
	t.Helper()
	backend := &gameBackend{responses: responses}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client := upstream.NewClient(&config.UpstreamConfig{
		BaseURL:            srv.URL,
		RequestTimeout:     time.Second,
		StabilizationDelay: time.Millisecond,
	}, env.logger)
	return client, backend
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
