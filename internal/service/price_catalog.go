package service

import (
	"context"
	"fmt"

	"shopwallet/internal/repository"

	"gorm.io/gorm"
)

// CatalogPriceResolver 从定价表解析单价，按会员层级取零售价或批发价
type CatalogPriceResolver struct {
	priceRepo *repository.PriceRepository
}

func NewCatalogPriceResolver(db *gorm.DB) *CatalogPriceResolver {
	return &CatalogPriceResolver{priceRepo: repository.NewPriceRepository(db)}
}

func (r *CatalogPriceResolver) Resolve(ctx context.Context, productID int64, variantID *int64, tier string) (int64, error) {
	price, err := r.priceRepo.Get(ctx, productID, variantID)
	if err != nil {
		if variantID != nil {
			// 变体没有单独定价时回落到商品本体
			price, err = r.priceRepo.Get(ctx, productID, nil)
		}
		if err != nil {
			return 0, fmt.Errorf("%w: productID=%d", ErrInvalidPrice, productID)
		}
	}

	if tier == TierWholesale {
		return price.WholesalePriceTWD, nil
	}
	return price.RetailPriceTWD, nil
}
