package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"shopwallet/internal/config"
	"shopwallet/internal/infrastructure/lock"
	"shopwallet/internal/model"
	"shopwallet/internal/repository"
	"shopwallet/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrEmptyCart       = errors.New("购物车为空")
	ErrInvalidQuantity = errors.New("商品数量必须大于0")
	ErrInvalidPrice    = errors.New("商品定价异常")
)

// 会员级别，决定取零售价还是批发价
const (
	TierRetail    = "RETAIL"
	TierWholesale = "WHOLESALE"
)

// PriceResolver 商品目录定价接口（外部协作方）
// 单价一律以服务端解析结果为准，客户端报价只当参考，绝不入账
type PriceResolver interface {
	Resolve(ctx context.Context, productID int64, variantID *int64, tier string) (int64, error)
}

// CheckoutService 下单提交
// 把一份已校验的购物车变成持久化订单，并在同一个事务里扣减钱包余额
type CheckoutService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	wallet      *WalletService
	outboxRepo  *repository.OutboxRepository
	prices      PriceResolver
}

func NewCheckoutService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, prices PriceResolver) *CheckoutService {
	return &CheckoutService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		wallet:      NewWalletService(db, redisClient),
		outboxRepo:  repository.NewOutboxRepository(db),
		prices:      prices,
	}
}

// CartLine 购物车行，单价由服务端解析，客户端只传数量
type CartLine struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id"`
	Qty       int    `json:"qty" binding:"required"`
}

type CheckoutRequest struct {
	RequestID       string     `json:"request_id"` // 幂等ID，客户端生成；缺省时服务端补一个
	UserID          int64      `json:"-"`
	Tier            string     `json:"-"`
	Lines           []CartLine `json:"items"` // 空购物车由业务层报出，不在绑定层拦
	RecipientName   string     `json:"recipient_name" binding:"required"`
	RecipientPhone  string     `json:"phone"`
	ShippingAddress string     `json:"shipping_address" binding:"required"`
	Note            string     `json:"note"`
}

type CheckoutResponse struct {
	OrderNo    string `json:"order_id"`
	NewBalance int64  `json:"new_balance"`
	TotalTWD   int64  `json:"total_twd"`
	Message    string `json:"message,omitempty"`
}

// Checkout 提交订单
//
// 【关键点】下单是整个系统最核心的操作：
// 1. 幂等性：相同的 request_id 只会产生一笔订单
// 2. 原子性：订单落库、明细落库、余额扣减、台账追加必须同时成功或同时失败
// 3. 并发安全：按用户维度的分布式锁 + 账户乐观锁，防止并发双扣
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	// 幂等校验
	existing, err := s.orderRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		balance, _ := s.wallet.GetBalance(ctx, req.UserID)
		return &CheckoutResponse{
			OrderNo:    existing.OrderNo,
			NewBalance: balance,
			TotalTWD:   existing.TotalTWD,
			Message:    "订单已存在",
		}, nil
	}

	// 服务端重新定价，绝不信任客户端金额
	unitPrices := make([]int64, len(req.Lines))
	var subtotal int64
	for i, line := range req.Lines {
		price, err := s.prices.Resolve(ctx, line.ProductID, line.VariantID, req.Tier)
		if err != nil {
			return nil, fmt.Errorf("解析商品定价失败: %w", err)
		}
		if price <= 0 {
			return nil, fmt.Errorf("%w: productID=%d", ErrInvalidPrice, line.ProductID)
		}
		unitPrices[i] = price
		subtotal += price * int64(line.Qty)
	}

	// 税额向下取整；运费此时不计，由运营在到货后按明细补录
	tax := subtotal * int64(s.cfg.Business.TaxRateBP) / 10000
	total := subtotal + tax

	// 确保账户存在（零余额建档）
	if _, err := s.wallet.GetAccount(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	// 按用户维度加锁，串行化该用户的所有动账
	walletLock := lock.NewWalletLock(s.redisClient, req.UserID, req.RequestID)
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	// 拿锁后二次幂等校验
	existing, err = s.orderRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		balance, _ := s.wallet.GetBalance(ctx, req.UserID)
		return &CheckoutResponse{
			OrderNo:    existing.OrderNo,
			NewBalance: balance,
			TotalTWD:   existing.TotalTWD,
			Message:    "订单已存在",
		}, nil
	}

	orderNo := idgen.GenerateOrderNo()
	order := &model.Order{
		OrderNo:         orderNo,
		RequestID:       req.RequestID,
		UserID:          req.UserID,
		Status:          model.OrderStatusPending,
		TotalTWD:        total,
		RecipientName:   req.RecipientName,
		RecipientPhone:  req.RecipientPhone,
		ShippingAddress: req.ShippingAddress,
		Note:            req.Note,
	}

	var newBalance int64

	// 下单事务：订单 + 明细 + 扣款 + 台账 + 发件箱，任一失败整体回滚，
	// 不会留下未付款的半截订单
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		items := make([]*model.OrderItem, len(req.Lines))
		for i, line := range req.Lines {
			items[i] = &model.OrderItem{
				OrderID:   order.ID,
				OrderNo:   orderNo,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Qty:       line.Qty,
				UnitPrice: unitPrices[i],
				Status:    model.ItemStatusNormal,
			}
		}
		if err := s.orderRepo.CreateItems(ctx, tx, items); err != nil {
			return fmt.Errorf("创建订单明细失败: %w", err)
		}

		entry, err := s.wallet.Debit(ctx, tx, req.UserID, total, orderNo, fmt.Sprintf("下单扣款-%s", orderNo))
		if err != nil {
			return err
		}
		newBalance = entry.BalanceAfter

		msgPayload := map[string]interface{}{
			"order_no":   orderNo,
			"user_id":    req.UserID,
			"total_twd":  total,
			"status":     model.OrderStatusPending,
			"created_at": time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: orderNo,
			Topic:      s.cfg.Kafka.Topic.OrderResult,
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

	log.Printf("下单成功: orderNo=%s, userID=%d, total=%d, balance=%d", orderNo, req.UserID, total, newBalance)

	return &CheckoutResponse{
		OrderNo:    orderNo,
		NewBalance: newBalance,
		TotalTWD:   total,
	}, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *CheckoutService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}
