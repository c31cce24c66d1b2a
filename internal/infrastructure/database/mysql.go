package database

import (
	"context"
	"fmt"
	"time"

	"liverymarket/internal/config"
	"liverymarket/internal/model"
	"liverymarket/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMySQL opens the pool and migrates the schema.
func NewMySQL(cfg *config.MySQLConfig, logLevel string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(logLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Account{},
		&model.Product{},
		&model.Transaction{},
		&model.InjectionRecord{},
		&model.CreditEntry{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DefaultProducts is the starter price list written into an empty products
// table.
func DefaultProducts() []*model.Product {
	return []*model.Product{
		{Name: "5 Credits", CreditAmount: 5, Price: decimal.NewFromInt(10000), IsActive: true},
		{Name: "12 Credits", CreditAmount: 12, Price: decimal.NewFromInt(20000), IsActive: true},
		{Name: "30 Credits", CreditAmount: 30, Price: decimal.NewFromInt(45000), IsActive: true},
	}
}

// SeedProducts writes DefaultProducts when no product exists yet.
func SeedProducts(ctx context.Context, db *gorm.DB) (bool, error) {
	return repository.NewProductRepository(db).SeedIfEmpty(ctx, DefaultProducts())
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
