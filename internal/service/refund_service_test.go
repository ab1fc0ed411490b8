package service

import (
	"context"
	"testing"

	"shopwallet/internal/model"
	"shopwallet/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedOrder 直接落一张已付款订单
func seedOrder(t *testing.T, db *gorm.DB, userID int64, orderNo string, items []model.OrderItem) *model.Order {
	t.Helper()

	var total int64
	for i := range items {
		items[i].OrderNo = orderNo
		if items[i].Status == "" {
			items[i].Status = model.ItemStatusNormal
		}
		total += items[i].UnitPrice * int64(items[i].Qty)
	}

	order := &model.Order{
		OrderNo:   orderNo,
		RequestID: orderNo,
		UserID:    userID,
		Status:    model.OrderStatusPending,
		TotalTWD:  total,
		Items:     items,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRefundPartial(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	wallet := seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())
	ctx := context.Background()

	order := seedOrder(t, db, 100, "ORD-R1", []model.OrderItem{
		{ProductID: 1, Qty: 5, UnitPrice: 100},
	})
	itemID := order.Items[0].ID

	// 5 件退 2 件：退 200，明细打成部分缺货
	resp, err := svc.RefundBatch(ctx, &RefundBatchRequest{
		OrderNo: "ORD-R1",
		Entries: []RefundEntry{{ItemID: itemID, RefundQty: 2}},
		Reason:  "到货短装",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(200), resp.TotalAmount)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, model.ItemStatusPartialOOS, resp.Items[0].Status)

	var item model.OrderItem
	require.NoError(t, db.First(&item, itemID).Error)
	assert.Equal(t, 2, item.RefundedQty)
	assert.Equal(t, int64(200), item.RefundAmount)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(200), balance)

	entries, _, err := wallet.ListEntries(ctx, 100, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerTypeRefund, entries[0].Type)
}

func TestRefundFullQuantity(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	wallet := seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())
	ctx := context.Background()

	order := seedOrder(t, db, 100, "ORD-R2", []model.OrderItem{
		{ProductID: 1, Qty: 3, UnitPrice: 150},
	})
	itemID := order.Items[0].ID

	resp, err := svc.RefundBatch(ctx, &RefundBatchRequest{
		OrderNo: "ORD-R2",
		Entries: []RefundEntry{{ItemID: itemID, RefundQty: 3}},
		Reason:  "整单缺货",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(450), resp.TotalAmount)
	assert.Equal(t, model.ItemStatusOutOfStock, resp.Items[0].Status)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(450), balance)
}

func TestRefundMultipleItemsChainsLedger(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	wallet := seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())
	ctx := context.Background()

	order := seedOrder(t, db, 100, "ORD-R7", []model.OrderItem{
		{ProductID: 1, Qty: 2, UnitPrice: 100},
		{ProductID: 2, Qty: 1, UnitPrice: 300},
	})

	// 同一批退两条明细：两笔入账都在一个事务里落地
	resp, err := svc.RefundBatch(ctx, &RefundBatchRequest{
		OrderNo: "ORD-R7",
		Entries: []RefundEntry{
			{ItemID: order.Items[0].ID, RefundQty: 2},
			{ItemID: order.Items[1].ID, RefundQty: 1},
		},
		Reason: "整批缺货",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), resp.TotalAmount)

	// 第二笔台账必须接在第一笔之后，余额快照首尾相连
	var entries []*model.LedgerEntry
	require.NoError(t, db.Where("user_id = ?", 100).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(0), entries[0].BalanceBefore)
	assert.Equal(t, int64(200), entries[0].BalanceAfter)
	assert.Equal(t, entries[0].BalanceAfter, entries[1].BalanceBefore)
	assert.Equal(t, int64(500), entries[1].BalanceAfter)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(500), balance)

	result, err := wallet.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}

func TestRefundOverQuantity(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())

	order := seedOrder(t, db, 100, "ORD-R3", []model.OrderItem{
		{ProductID: 1, Qty: 2, UnitPrice: 100, RefundedQty: 1, Status: model.ItemStatusPartialOOS},
	})

	_, err := svc.RefundBatch(context.Background(), &RefundBatchRequest{
		OrderNo: "ORD-R3",
		Entries: []RefundEntry{{ItemID: order.Items[0].ID, RefundQty: 2}},
	})

	// 终态明细可退件数为 0
	var qtyErr *InvalidRefundQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, 2, qtyErr.RequestedQty)
	assert.Equal(t, 0, qtyErr.RefundableQty)
}

func TestRefundBatchAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	wallet := seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())
	ctx := context.Background()

	order := seedOrder(t, db, 100, "ORD-R4", []model.OrderItem{
		{ProductID: 1, Qty: 5, UnitPrice: 100},
		{ProductID: 2, Qty: 1, UnitPrice: 300},
	})

	// 第二条超量，整批拒绝，第一条也不得入账
	_, err := svc.RefundBatch(ctx, &RefundBatchRequest{
		OrderNo: "ORD-R4",
		Entries: []RefundEntry{
			{ItemID: order.Items[0].ID, RefundQty: 1},
			{ItemID: order.Items[1].ID, RefundQty: 2},
		},
	})

	var qtyErr *InvalidRefundQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, order.Items[1].ID, qtyErr.ItemID)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(0), balance)

	var item model.OrderItem
	require.NoError(t, db.First(&item, order.Items[0].ID).Error)
	assert.Equal(t, model.ItemStatusNormal, item.Status)
	assert.Equal(t, 0, item.RefundedQty)
}

func TestRefundItemNotInOrder(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	seedBalance(t, db, rdb, 100, 0)
	svc := NewRefundService(db, rdb, newTestConfig())

	seedOrder(t, db, 100, "ORD-R5", []model.OrderItem{
		{ProductID: 1, Qty: 1, UnitPrice: 100},
	})

	_, err := svc.RefundBatch(context.Background(), &RefundBatchRequest{
		OrderNo: "ORD-R5",
		Entries: []RefundEntry{{ItemID: 99999, RefundQty: 1}},
	})
	assert.ErrorIs(t, err, repository.ErrItemNotInOrder)
}

func TestRefundEmptyBatch(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	svc := NewRefundService(db, rdb, newTestConfig())

	_, err := svc.RefundBatch(context.Background(), &RefundBatchRequest{OrderNo: "ORD-R6"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}
