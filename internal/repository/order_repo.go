package repository

import (
	"context"
	"errors"

	"shopwallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("订单不存在")
	ErrOrderItemNotFound = errors.New("订单明细不存在")
	ErrIllegalTransition = errors.New("状态流转不合法")
	ErrItemNotInOrder    = errors.New("明细不属于该订单")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) CreateItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(items).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("request_id = ?", requestID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 订单状态推进，WHERE 带旧状态做乐观校验
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo string, fromStatus, toStatus string) error {
	if !model.CanOrderTransition(fromStatus, toStatus) {
		return ErrIllegalTransition
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}

	return nil
}

// UpdateRecipient 运营修改收件信息/物流单号
// 影响行数为 0 还要回查订单是否存在：MySQL 对全等更新不计入影响行数，
// 原样重放不能误报不存在
func (r *OrderRepository) UpdateRecipient(ctx context.Context, orderNo string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ?", orderNo).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&model.Order{}).
			Where("order_no = ?", orderNo).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderNotFound
		}
	}
	return nil
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// ============================================================
// 明细维度操作
// ============================================================

func (r *OrderRepository) GetItem(ctx context.Context, itemID int64) (*model.OrderItem, error) {
	var item model.OrderItem
	err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateItemStatus 明细履约状态推进，WHERE 带旧状态，被并发抢先时返回 ErrStaleWrite
func (r *OrderRepository) UpdateItemStatus(ctx context.Context, tx *gorm.DB, itemID int64, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("id = ? AND status = ?", itemID, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}

	return nil
}

// UpdateItemShipping 回写发货字段与重算后的运费
// 和 UpdateRecipient 一样区分"明细不存在"和"字段没变化"，重放视为成功
func (r *OrderRepository) UpdateItemShipping(ctx context.Context, tx *gorm.DB, itemID int64, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("id = ?", itemID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).
			Model(&model.OrderItem{}).
			Where("id = ?", itemID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderItemNotFound
		}
	}
	return nil
}

// ApplyItemRefund 累加退款并落终态，WHERE 带旧状态防止并发重复退
func (r *OrderRepository) ApplyItemRefund(ctx context.Context, tx *gorm.DB, itemID int64, fromStatus, toStatus string, refundAmount int64, refundQty int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("id = ? AND status = ?", itemID, fromStatus).
		Updates(map[string]interface{}{
			"status":        toStatus,
			"refund_amount": gorm.Expr("refund_amount + ?", refundAmount),
			"refunded_qty":  gorm.Expr("refunded_qty + ?", refundQty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
