package service

import (
	"context"
	"fmt"
	"testing"

	"shopwallet/internal/config"
	"shopwallet/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一份独立的内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.WalletAccount{},
		&model.LedgerEntry{},
		&model.Order{},
		&model.OrderItem{},
		&model.TopupRequest{},
		&model.ProductPrice{},
		&model.OutboxMessage{},
	))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				OrderResult:  "order-result",
				RefundResult: "refund-result",
				TopupResult:  "topup-result",
			},
		},
		Business: config.BusinessConfig{
			TaxRateBP:     500,
			MaxRetryCount: 3,
		},
		Shipping: config.ShippingConfig{
			Intl: []config.IntlRateConfig{
				{Country: "JP", Method: model.ShippingMethodPost, MaxGram: 1000, FeeTWD: 150},
				{Country: "JP", Method: model.ShippingMethodPost, MaxGram: 0, FeeTWD: 150, BaseGram: 1000, PerKilo: 80},
				{Country: "JP", Method: model.ShippingMethodBlackCat, MaxGram: 0, FeeTWD: 200, BaseGram: 1000, PerKilo: 100},
				{Country: "KR", Method: model.ShippingMethodPost, MaxGram: 0, FeeTWD: 180, BaseGram: 1000, PerKilo: 90},
			},
			Domestic: []config.DomRateConfig{
				{Method: model.ShippingMethodPost, FeeTWD: 60},
				{Method: model.ShippingMethodBlackCat, FeeTWD: 100},
				{Method: model.ShippingMethodCVS, FeeTWD: 65},
			},
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret"},
	}
}

// seedBalance 通过台账入账铺底余额，保证余额和台账始终对得上
func seedBalance(t *testing.T, db *gorm.DB, rdb *redis.Client, userID, amount int64) *WalletService {
	t.Helper()

	wallet := NewWalletService(db, rdb)
	ctx := context.Background()

	_, err := wallet.GetAccount(ctx, userID)
	require.NoError(t, err)

	if amount > 0 {
		err = db.Transaction(func(tx *gorm.DB) error {
			_, err := wallet.Credit(ctx, tx, userID, model.LedgerTypeTopup, amount, "", "测试铺底")
			return err
		})
		require.NoError(t, err)
	}
	return wallet
}

// fixedPriceResolver 测试用固定价表
type fixedPriceResolver struct {
	prices map[int64]int64
}

func (r *fixedPriceResolver) Resolve(_ context.Context, productID int64, _ *int64, _ string) (int64, error) {
	price, ok := r.prices[productID]
	if !ok {
		return 0, fmt.Errorf("%w: productID=%d", ErrInvalidPrice, productID)
	}
	return price, nil
}
