package service

import (
	"context"
	"sync"
	"testing"

	"shopwallet/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckoutService(t *testing.T) (*CheckoutService, *WalletService) {
	t.Helper()

	db := newTestDB(t)
	rdb := newTestRedis(t)
	wallet := seedBalance(t, db, rdb, 100, 1000)

	prices := &fixedPriceResolver{prices: map[int64]int64{
		1: 300,
		2: 200,
	}}
	return NewCheckoutService(db, rdb, newTestConfig(), prices), wallet
}

func TestCheckout(t *testing.T) {
	svc, wallet := newCheckoutService(t)
	ctx := context.Background()

	// 300×2 + 200×1 = 800，税 5% 向下取整 = 40，应扣 840
	resp, err := svc.Checkout(ctx, &CheckoutRequest{
		RequestID: "req-001",
		UserID:    100,
		Tier:      TierRetail,
		Lines: []CartLine{
			{ProductID: 1, Qty: 2},
			{ProductID: 2, Qty: 1},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.OrderNo)
	assert.Equal(t, int64(840), resp.TotalTWD)
	assert.Equal(t, int64(160), resp.NewBalance)

	order, err := svc.GetOrder(ctx, resp.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, model.ItemStatusNormal, item.Status)
	}

	// 扣款台账引用订单号
	entries, _, err := wallet.ListEntries(ctx, 100, 1, 10)
	require.NoError(t, err)
	var debit *model.LedgerEntry
	for _, e := range entries {
		if e.Type == model.LedgerTypeDebit {
			debit = e
		}
	}
	require.NotNil(t, debit)
	assert.Equal(t, resp.OrderNo, debit.ExternalRef)
	assert.Equal(t, int64(840), debit.AmountTWD)

	// 发件箱里有下单结果消息
	var outboxCount int64
	svc.db.Model(&model.OutboxMessage{}).Where("message_key = ?", resp.OrderNo).Count(&outboxCount)
	assert.Equal(t, int64(1), outboxCount)
}

func TestCheckoutIdempotent(t *testing.T) {
	svc, _ := newCheckoutService(t)
	ctx := context.Background()

	req := &CheckoutRequest{
		RequestID: "req-dup",
		UserID:    100,
		Tier:      TierRetail,
		Lines:     []CartLine{{ProductID: 2, Qty: 1}},
	}

	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	// 同一 request_id 重放：返回原订单，不再扣款
	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderNo, second.OrderNo)
	assert.Equal(t, first.NewBalance, second.NewBalance)

	var orderCount int64
	svc.db.Model(&model.Order{}).Where("user_id = ?", 100).Count(&orderCount)
	assert.Equal(t, int64(1), orderCount)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _ := newCheckoutService(t)

	_, err := svc.Checkout(context.Background(), &CheckoutRequest{
		RequestID: "req-empty",
		UserID:    100,
		Tier:      TierRetail,
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutInvalidQuantity(t *testing.T) {
	svc, _ := newCheckoutService(t)

	for _, qty := range []int{0, -1} {
		_, err := svc.Checkout(context.Background(), &CheckoutRequest{
			RequestID: "req-qty",
			UserID:    100,
			Tier:      TierRetail,
			Lines:     []CartLine{{ProductID: 1, Qty: qty}},
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc, _ := newCheckoutService(t)

	_, err := svc.Checkout(context.Background(), &CheckoutRequest{
		RequestID: "req-unknown",
		UserID:    100,
		Tier:      TierRetail,
		Lines:     []CartLine{{ProductID: 999, Qty: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCheckoutInsufficientBalanceRollsBack(t *testing.T) {
	svc, wallet := newCheckoutService(t)
	ctx := context.Background()

	// 300×4 = 1200 + 税 60 = 1260 > 1000
	_, err := svc.Checkout(ctx, &CheckoutRequest{
		RequestID: "req-poor",
		UserID:    100,
		Tier:      TierRetail,
		Lines:     []CartLine{{ProductID: 1, Qty: 4}},
	})

	var insufficientErr *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(260), insufficientErr.Shortfall)

	// 整体回滚：没有订单、没有明细、没有消息，余额原封不动
	var orderCount, itemCount, outboxCount int64
	svc.db.Model(&model.Order{}).Count(&orderCount)
	svc.db.Model(&model.OrderItem{}).Count(&itemCount)
	svc.db.Model(&model.OutboxMessage{}).Count(&outboxCount)
	assert.Equal(t, int64(0), orderCount)
	assert.Equal(t, int64(0), itemCount)
	assert.Equal(t, int64(0), outboxCount)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(1000), balance)
}

func TestCheckoutConcurrentOverBudget(t *testing.T) {
	svc, wallet := newCheckoutService(t)
	ctx := context.Background()

	// 余额 1000，两个并发下单各需 840：钱包锁串行化后恰好一成一败
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, requestID := range []string{"req-race-a", "req-race-b"} {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			_, err := svc.Checkout(ctx, &CheckoutRequest{
				RequestID: requestID,
				UserID:    100,
				Tier:      TierRetail,
				Lines:     []CartLine{{ProductID: 2, Qty: 4}},
			})
			results <- err
		}(requestID)
	}
	wg.Wait()
	close(results)

	succeeded, insufficient := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficientErr *InsufficientBalanceError
		require.ErrorAs(t, err, &insufficientErr, "非预期错误: %v", err)
		insufficient++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	balance, err := wallet.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(160), balance)

	var orderCount int64
	svc.db.Model(&model.Order{}).Where("user_id = ?", 100).Count(&orderCount)
	assert.Equal(t, int64(1), orderCount)
}

func TestCheckoutWholesaleTier(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	seedBalance(t, db, rdb, 300, 10000)

	// 批发层级走批发价
	resolver := NewCatalogPriceResolver(db)
	require.NoError(t, db.Create(&model.ProductPrice{
		ProductID:         7,
		RetailPriceTWD:    500,
		WholesalePriceTWD: 400,
	}).Error)

	svc := NewCheckoutService(db, rdb, newTestConfig(), resolver)
	resp, err := svc.Checkout(context.Background(), &CheckoutRequest{
		RequestID: "req-wholesale",
		UserID:    300,
		Tier:      TierWholesale,
		Lines:     []CartLine{{ProductID: 7, Qty: 10}},
	})
	require.NoError(t, err)

	// 400×10 = 4000，税 200
	assert.Equal(t, int64(4200), resp.TotalTWD)
}
