package repository

import (
	"context"
	"errors"

	"shopwallet/internal/model"

	"gorm.io/gorm"
)

var ErrPriceNotFound = errors.New("商品定价不存在")

type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// Get 查询定价，variantID 为 nil 时取商品本体价格（variant_id=0）
func (r *PriceRepository) Get(ctx context.Context, productID int64, variantID *int64) (*model.ProductPrice, error) {
	var vid int64
	if variantID != nil {
		vid = *variantID
	}

	var price model.ProductPrice
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, vid).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPriceNotFound
		}
		return nil, err
	}
	return &price, nil
}

func (r *PriceRepository) Upsert(ctx context.Context, price *model.ProductPrice) error {
	return r.db.WithContext(ctx).Save(price).Error
}
