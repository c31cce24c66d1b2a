package repository

import (
	"context"
	"errors"

	"liverymarket/internal/model"

	"gorm.io/gorm"
)

var ErrProductNotFound = errors.New("product not found")

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *ProductRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Product, error) {
	if tx == nil {
		tx = r.db
	}
	var product model.Product
	err := tx.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// ListActive returns purchasable products, cheapest first.
func (r *ProductRepository) ListActive(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC").
		Order("id ASC").
		Find(&products).Error
	return products, err
}

// SeedIfEmpty inserts products only into an empty table.
func (r *ProductRepository) SeedIfEmpty(ctx context.Context, products []*model.Product) (bool, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return false, err
	}
	if total > 0 {
		return false, nil
	}
	if err := r.db.WithContext(ctx).Create(&products).Error; err != nil {
		return false, err
	}
	return true, nil
}
