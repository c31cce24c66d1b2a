package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the whole service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Business BusinessConfig `mapstructure:"business"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"` // snowflake worker id, unique per instance
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	UserNotify  string `mapstructure:"user_notify"`
	AdminNotify string `mapstructure:"admin_notify"`
}

// UpstreamConfig points at the game backend cloud-script endpoint.
type UpstreamConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	StabilizationDelay time.Duration `mapstructure:"stabilization_delay"`
}

type CatalogConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Currency string        `mapstructure:"currency"`
}

type BusinessConfig struct {
	InjectionCost int64         `mapstructure:"injection_cost"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	MaxRetryCount int           `mapstructure:"max_retry_count"`
	SeedProducts  bool          `mapstructure:"seed_products"`
}

type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// PaymentConfig maps a product price to the QRIS image shown to the payer.
type PaymentConfig struct {
	QRISAssets map[string]string `mapstructure:"qris_assets"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DefaultUpstreamURL        = "https://be38c.playfabapi.com/Client/ExecuteCloudScript"
	DefaultStabilizationDelay = 2 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("kafka.topic.user_notify", "livery.user.notify")
	v.SetDefault("kafka.topic.admin_notify", "livery.admin.notify")
	v.SetDefault("upstream.base_url", DefaultUpstreamURL)
	v.SetDefault("upstream.request_timeout", 30*time.Second)
	v.SetDefault("upstream.stabilization_delay", DefaultStabilizationDelay)
	v.SetDefault("catalog.timeout", 10*time.Second)
	v.SetDefault("catalog.currency", "MN")
	v.SetDefault("business.injection_cost", 1)
	v.SetDefault("business.lock_ttl", 2*time.Minute)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads the yaml file at configPath. A .env file in the working
// directory is loaded first; LIVERY_* environment variables override the file
// (LIVERY_MYSQL_PASSWORD overrides mysql.password).
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LIVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("upstream.request_timeout must be positive")
	}
	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog.url is required")
	}
	if c.Business.InjectionCost <= 0 {
		return fmt.Errorf("business.injection_cost must be positive")
	}
	if floor := c.MinLockTTL(); c.Business.LockTTL <= floor {
		return fmt.Errorf("business.lock_ttl must exceed %v (two upstream timeouts plus the stabilization delay)", floor)
	}
	for price := range c.Payment.QRISAssets {
		if _, err := parsePrice(price); err != nil {
			return fmt.Errorf("payment.qris_assets: %w", err)
		}
	}
	return nil
}

// MinLockTTL is the longest one injection can hold the account lock.
func (c *Config) MinLockTTL() time.Duration {
	return 2*c.Upstream.RequestTimeout + c.Upstream.StabilizationDelay
}

// IsAdmin reports whether chatID is in the configured admin list.
func (c *AdminConfig) IsAdmin(chatID int64) bool {
	for _, id := range c.IDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// PriceAsset is one entry of the price to payment image table.
type PriceAsset struct {
	Price int64  `json:"price"`
	Path  string `json:"path"`
}

// Assets returns the QRIS table sorted by price.
func (p *PaymentConfig) Assets() []PriceAsset {
	assets := make([]PriceAsset, 0, len(p.QRISAssets))
	for k, path := range p.QRISAssets {
		price, err := parsePrice(k)
		if err != nil {
			continue
		}
		assets = append(assets, PriceAsset{Price: price, Path: path})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Price < assets[j].Price })
	return assets
}

func parsePrice(s string) (int64, error) {
	price, err := strconv.ParseInt(s, 10, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price key %q", s)
	}
	return price, nil
}
