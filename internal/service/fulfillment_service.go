package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"shopwallet/internal/model"
	"shopwallet/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrShippingNotEditable = errors.New("明细尚未到达集运点，不能录入发货信息")
	ErrPartialOOSViaRefund = errors.New("部分缺货请走退款接口并指定退货件数")
)

// FulfillmentService 履约状态机
// 所有流转都由运营显式触发，合法性只认 model 里那张集中流转表，
// 不在任何界面逻辑里私设判断
type FulfillmentService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
	refund    *RefundService
	calc      *ShippingCalculator
}

func NewFulfillmentService(db *gorm.DB, refund *RefundService, calc *ShippingCalculator) *FulfillmentService {
	return &FulfillmentService{
		db:        db,
		orderRepo: repository.NewOrderRepository(db),
		refund:    refund,
		calc:      calc,
	}
}

func (s *FulfillmentService) getOrderItem(ctx context.Context, orderNo string, itemID int64) (*model.OrderItem, error) {
	item, err := s.orderRepo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OrderNo != orderNo {
		return nil, repository.ErrItemNotInOrder
	}
	return item, nil
}

// UpdateItemStatus 推进明细履约状态
//
// 强转 OUT_OF_STOCK 等价于"剩余件数全部缺货"，直接委托退款批处理，
// 保证入账和状态落地在同一个事务；PARTIAL_OOS 必须带件数，只能走退款接口
func (s *FulfillmentService) UpdateItemStatus(ctx context.Context, orderNo string, itemID int64, target string) (*model.OrderItem, error) {
	item, err := s.getOrderItem(ctx, orderNo, itemID)
	if err != nil {
		return nil, err
	}

	switch target {
	case model.ItemStatusPartialOOS:
		return nil, ErrPartialOOSViaRefund

	case model.ItemStatusOutOfStock:
		if model.IsItemTerminal(item.Status) {
			return nil, repository.ErrIllegalTransition
		}
		remaining := item.Qty - item.RefundedQty
		_, err := s.refund.RefundBatch(ctx, &RefundBatchRequest{
			OrderNo: orderNo,
			Entries: []RefundEntry{{ItemID: itemID, RefundQty: remaining}},
			Reason:  "缺货下架",
		})
		if err != nil {
			return nil, err
		}

	default:
		if !model.CanItemTransition(item.Status, target) {
			return nil, fmt.Errorf("%w: %s -> %s", repository.ErrIllegalTransition, item.Status, target)
		}
		if err := s.orderRepo.UpdateItemStatus(ctx, nil, itemID, item.Status, target); err != nil {
			return nil, err
		}
		log.Printf("明细状态推进: orderNo=%s, itemID=%d, %s -> %s", orderNo, itemID, item.Status, target)
	}

	return s.orderRepo.GetItem(ctx, itemID)
}

// ShippingUpdate 发货字段录入
type ShippingUpdate struct {
	WeightGram      int64  `json:"weight" binding:"required"`
	ShippingCountry string `json:"shipping_country" binding:"required"`
	ShippingMethod  string `json:"shipping_method" binding:"required"`
	BoxFee          int64  `json:"box_fee"`
	BoxCount        int    `json:"box_count"`
}

// UpdateItemShipping 录入发货字段并重算运费
// 实重只有货到集运点才称得出来，ARRIVED 之前一律拒收
func (s *FulfillmentService) UpdateItemShipping(ctx context.Context, orderNo string, itemID int64, upd *ShippingUpdate) (*model.OrderItem, error) {
	item, err := s.getOrderItem(ctx, orderNo, itemID)
	if err != nil {
		return nil, err
	}

	if !model.ReachedConsolidation(item.Status) {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrShippingNotEditable, item.Status)
	}

	// 先套用新字段再询价，询价失败什么都不落库
	draft := *item
	draft.WeightGram = upd.WeightGram
	draft.ShippingCountry = upd.ShippingCountry
	draft.ShippingMethod = upd.ShippingMethod
	draft.BoxFee = upd.BoxFee
	draft.BoxCount = upd.BoxCount

	quote, err := s.calc.Quote(&draft)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"weight_gram":          upd.WeightGram,
		"shipping_country":     upd.ShippingCountry,
		"shipping_method":      upd.ShippingMethod,
		"box_fee":              upd.BoxFee,
		"box_count":            upd.BoxCount,
		"shipping_fee_intl":    quote.IntlFee,
		"shipping_fee_dom":     quote.DomesticFee,
		"member_shipping_code": quote.PickupCode,
	}

	if err := s.orderRepo.UpdateItemShipping(ctx, nil, itemID, fields); err != nil {
		return nil, err
	}

	log.Printf("运费重算: orderNo=%s, itemID=%d, intl=%d, dom=%d, box=%d",
		orderNo, itemID, quote.IntlFee, quote.DomesticFee, quote.BoxFeeTotal)

	return s.orderRepo.GetItem(ctx, itemID)
}

// MarkShippingPaid 会员线下补缴运费差额后，由运营置位
func (s *FulfillmentService) MarkShippingPaid(ctx context.Context, orderNo string, itemID int64) (*model.OrderItem, error) {
	if _, err := s.getOrderItem(ctx, orderNo, itemID); err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateItemShipping(ctx, nil, itemID, map[string]interface{}{"shipping_paid": true}); err != nil {
		return nil, err
	}
	return s.orderRepo.GetItem(ctx, itemID)
}

// OrderUpdate 运营修改订单
type OrderUpdate struct {
	Status          string `json:"status"`
	RecipientName   string `json:"recipient_name"`
	RecipientPhone  string `json:"phone"`
	ShippingAddress string `json:"shipping_address"`
	TrackingNumber  string `json:"tracking_number"`
}

// UpdateOrder 运营修改订单状态/收件信息/物流单号
func (s *FulfillmentService) UpdateOrder(ctx context.Context, orderNo string, upd *OrderUpdate) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	if upd.Status != "" && upd.Status != order.Status {
		if !model.CanOrderTransition(order.Status, upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", repository.ErrIllegalTransition, order.Status, upd.Status)
		}
		if err := s.orderRepo.UpdateStatus(ctx, nil, orderNo, order.Status, upd.Status); err != nil {
			return nil, err
		}
	}

	fields := map[string]interface{}{}
	if upd.RecipientName != "" {
		fields["recipient_name"] = upd.RecipientName
	}
	if upd.RecipientPhone != "" {
		fields["recipient_phone"] = upd.RecipientPhone
	}
	if upd.ShippingAddress != "" {
		fields["shipping_address"] = upd.ShippingAddress
	}
	if upd.TrackingNumber != "" {
		fields["tracking_number"] = upd.TrackingNumber
	}
	if len(fields) > 0 {
		if err := s.orderRepo.UpdateRecipient(ctx, orderNo, fields); err != nil {
			return nil, err
		}
	}

	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}
