package repository

import (
	"context"
	"fmt"
	"testing"

	"shopwallet/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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
		&model.OutboxMessage{},
	))
	return db
}

func TestDeductDistinguishesFailures(t *testing.T) {
	db := newTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	account, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Increase(ctx, nil, 100, 1000))

	// 版本已被 Increase 推进，拿旧版本扣款是过期写
	err = repo.Deduct(ctx, nil, 100, 200, account.Version)
	assert.ErrorIs(t, err, ErrStaleWrite)

	// 重读后用新版本扣款成功
	account, err = repo.GetByUserID(ctx, nil, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Deduct(ctx, nil, 100, 200, account.Version))

	account, err = repo.GetByUserID(ctx, nil, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(800), account.BalanceTWD)

	// 余额不够是另一种失败
	err = repo.Deduct(ctx, nil, 100, 900, account.Version)
	assert.ErrorIs(t, err, ErrBalanceNotEnough)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.BalanceTWD)

	second, err := repo.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&model.WalletAccount{}).Where("user_id = ?", 100).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestListBatchCursor(t *testing.T) {
	db := newTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_, err := repo.GetOrCreate(ctx, i)
		require.NoError(t, err)
	}

	batch, err := repo.ListBatch(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	batch, err = repo.ListBatch(ctx, batch[len(batch)-1].ID, 3)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}
