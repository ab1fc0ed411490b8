package model

import "time"

// ProductPrice 商品定价
// 零售价与批发价分列，变体价格缺省时回落到商品本体价格
type ProductPrice struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID         int64     `gorm:"not null;uniqueIndex:uk_product_variant" json:"product_id"`
	VariantID         int64     `gorm:"not null;default:0;uniqueIndex:uk_product_variant" json:"variant_id"` // 0 表示商品本体
	RetailPriceTWD    int64     `gorm:"column:retail_price_twd;not null" json:"retail_price_twd"`
	WholesalePriceTWD int64     `gorm:"column:wholesale_price_twd;not null" json:"wholesale_price_twd"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (ProductPrice) TableName() string {
	return "product_price"
}
