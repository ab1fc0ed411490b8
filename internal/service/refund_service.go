package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"shopwallet/internal/config"
	"shopwallet/internal/infrastructure/lock"
	"shopwallet/internal/model"
	"shopwallet/internal/repository"
	"shopwallet/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvalidRefundQuantityError 退款数量不合法，指明具体是哪条明细出的问题
type InvalidRefundQuantityError struct {
	ItemID        int64
	RequestedQty  int
	RefundableQty int
}

func (e *InvalidRefundQuantityError) Error() string {
	return fmt.Sprintf("明细 %d 退款数量不合法: 申请 %d 件，可退 %d 件", e.ItemID, e.RequestedQty, e.RefundableQty)
}

// RefundService 缺货退款
// 把缺货换算成钱包入账，同时把明细打入缺货终态；整批一荣俱荣一损俱损
type RefundService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	wallet      *WalletService
	outboxRepo  *repository.OutboxRepository
}

func NewRefundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RefundService {
	return &RefundService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		wallet:      NewWalletService(db, redisClient),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type RefundEntry struct {
	ItemID    int64 `json:"item_id" binding:"required"`
	RefundQty int   `json:"refund_qty" binding:"required"`
}

type RefundBatchRequest struct {
	OrderNo string        `json:"-"`
	Entries []RefundEntry `json:"items" binding:"required"`
	Reason  string        `json:"reason"`
}

type RefundedItem struct {
	ItemID       int64  `json:"item_id"`
	RefundAmount int64  `json:"refund_amount"`
	Status       string `json:"status"`
}

type RefundBatchResponse struct {
	RefundNo    string         `json:"refund_no"`
	OrderNo     string         `json:"order_no"`
	TotalAmount int64          `json:"total_amount"`
	Items       []RefundedItem `json:"items"`
}

// RefundBatch 批量缺货退款
//
// 整批在一个事务里执行：任何一条校验失败，所有入账和状态变更一律不落地。
// 退款金额 = 退货件数 × 下单时单价快照；运费不参与退款。
func (s *RefundService) RefundBatch(ctx context.Context, req *RefundBatchRequest) (*RefundBatchResponse, error) {
	if len(req.Entries) == 0 {
		return nil, ErrEmptyCart
	}

	order, err := s.orderRepo.GetByOrderNo(ctx, req.OrderNo)
	if err != nil {
		return nil, err
	}

	// 预校验：明细归属、数量上限；真正的并发防护靠事务里的条件更新
	items := make(map[int64]*model.OrderItem, len(order.Items))
	for i := range order.Items {
		items[order.Items[i].ID] = &order.Items[i]
	}

	for _, entry := range req.Entries {
		item, ok := items[entry.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: itemID=%d", repository.ErrItemNotInOrder, entry.ItemID)
		}
		refundable := item.Qty - item.RefundedQty
		if model.IsItemTerminal(item.Status) {
			refundable = 0
		}
		if entry.RefundQty <= 0 || entry.RefundQty > refundable {
			return nil, &InvalidRefundQuantityError{
				ItemID:        entry.ItemID,
				RequestedQty:  entry.RefundQty,
				RefundableQty: refundable,
			}
		}
	}

	// 退款入账也要动钱包，同样按用户串行
	walletLock := lock.NewWalletLock(s.redisClient, order.UserID, uuid.NewString())
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	refundNo := idgen.GenerateRefundNo()
	var totalAmount int64
	refunded := make([]RefundedItem, 0, len(req.Entries))

	err = s.db.Transaction(func(tx *gorm.DB) error {
		totalAmount = 0
		refunded = refunded[:0]

		for _, entry := range req.Entries {
			item := items[entry.ItemID]
			refundAmount := int64(entry.RefundQty) * item.UnitPrice

			// 全量缺货与部分缺货都是终态
			toStatus := model.ItemStatusPartialOOS
			if item.RefundedQty+entry.RefundQty == item.Qty {
				toStatus = model.ItemStatusOutOfStock
			}

			if err := s.orderRepo.ApplyItemRefund(ctx, tx, item.ID, item.Status, toStatus, refundAmount, entry.RefundQty); err != nil {
				return fmt.Errorf("更新明细失败 itemID=%d: %w", item.ID, err)
			}

			ref := fmt.Sprintf("%s/%d", req.OrderNo, item.ID)
			if _, err := s.wallet.Credit(ctx, tx, order.UserID, model.LedgerTypeRefund, refundAmount, ref,
				fmt.Sprintf("缺货退款-%s-%s", refundNo, req.Reason)); err != nil {
				return err
			}

			totalAmount += refundAmount
			refunded = append(refunded, RefundedItem{
				ItemID:       item.ID,
				RefundAmount: refundAmount,
				Status:       toStatus,
			})
		}

		msgPayload := map[string]interface{}{
			"refund_no":    refundNo,
			"order_no":     req.OrderNo,
			"user_id":      order.UserID,
			"total_amount": totalAmount,
			"reason":       req.Reason,
			"refunded_at":  time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: refundNo,
			Topic:      s.cfg.Kafka.Topic.RefundResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Printf("退款成功: refundNo=%s, orderNo=%s, total=%d, items=%d", refundNo, req.OrderNo, totalAmount, len(refunded))

	return &RefundBatchResponse{
		RefundNo:    refundNo,
		OrderNo:     req.OrderNo,
		TotalAmount: totalAmount,
		Items:       refunded,
	}, nil
}
