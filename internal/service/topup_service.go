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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidBankLast5 = errors.New("汇款账号末五码必须是5位")

// TopupService 储值审核工作流
// 会员线下汇款后提交申请，运营核对凭证通过才产生 TOPUP 台账；
// 驳回不动钱包，审核结果一经落库不可翻案
type TopupService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	topupRepo   *repository.TopupRepository
	wallet      *WalletService
	outboxRepo  *repository.OutboxRepository
}

func NewTopupService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *TopupService {
	return &TopupService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		topupRepo:   repository.NewTopupRepository(db),
		wallet:      NewWalletService(db, redisClient),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type SubmitTopupRequest struct {
	UserID           int64  `json:"-"`
	AmountTWD        int64  `json:"amount_twd" binding:"required"`
	BankAccountLast5 string `json:"bank_account_last_5" binding:"required"`
	ProofImage       string `json:"proof_image"`
}

// Submit 会员提交储值申请
func (s *TopupService) Submit(ctx context.Context, req *SubmitTopupRequest) (*model.TopupRequest, error) {
	if req.AmountTWD <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(req.BankAccountLast5) != 5 {
		return nil, ErrInvalidBankLast5
	}

	topup := &model.TopupRequest{
		RequestNo:        idgen.GenerateTopupNo(),
		UserID:           req.UserID,
		AmountTWD:        req.AmountTWD,
		BankAccountLast5: req.BankAccountLast5,
		ProofImage:       req.ProofImage,
		Status:           model.TopupStatusPending,
	}

	if err := s.topupRepo.Create(ctx, topup); err != nil {
		return nil, fmt.Errorf("创建储值申请失败: %w", err)
	}

	log.Printf("储值申请已提交: requestNo=%s, userID=%d, amount=%d", topup.RequestNo, req.UserID, req.AmountTWD)
	return topup, nil
}

// Approve 审核通过：状态翻转、入账、台账、发件箱在同一个事务落地
// 对已审核申请重复操作返回 ErrAlreadyReviewed
func (s *TopupService) Approve(ctx context.Context, requestID int64, note string) (*model.TopupRequest, error) {
	topup, err := s.topupRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if topup.Status != model.TopupStatusPending {
		return nil, repository.ErrAlreadyReviewed
	}

	// 入账前确保账户存在
	if _, err := s.wallet.GetAccount(ctx, topup.UserID); err != nil {
		return nil, err
	}

	walletLock := lock.NewWalletLock(s.redisClient, topup.UserID, uuid.NewString())
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 条件更新兜底：两个运营同时点通过，只有一个能翻转状态
		if err := s.topupRepo.Review(ctx, tx, requestID, model.TopupStatusApproved, note); err != nil {
			return err
		}

		entry, err := s.wallet.Credit(ctx, tx, topup.UserID, model.LedgerTypeTopup, topup.AmountTWD,
			topup.RequestNo, fmt.Sprintf("储值审核通过-%s", topup.RequestNo))
		if err != nil {
			return err
		}

		msgPayload := map[string]interface{}{
			"request_no":  topup.RequestNo,
			"user_id":     topup.UserID,
			"amount_twd":  topup.AmountTWD,
			"status":      model.TopupStatusApproved,
			"balance":     entry.BalanceAfter,
			"reviewed_at": time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: topup.RequestNo,
			Topic:      s.cfg.Kafka.Topic.TopupResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return nil, err
	}

	log.Printf("储值审核通过: requestNo=%s, userID=%d, amount=%d", topup.RequestNo, topup.UserID, topup.AmountTWD)
	return s.topupRepo.GetByID(ctx, requestID)
}

// Reject 审核驳回：只翻状态、记备注，不产生任何台账
func (s *TopupService) Reject(ctx context.Context, requestID int64, note string) (*model.TopupRequest, error) {
	topup, err := s.topupRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if topup.Status != model.TopupStatusPending {
		return nil, repository.ErrAlreadyReviewed
	}

	if err := s.topupRepo.Review(ctx, nil, requestID, model.TopupStatusRejected, note); err != nil {
		return nil, err
	}

	log.Printf("储值审核驳回: requestNo=%s, userID=%d, note=%s", topup.RequestNo, topup.UserID, note)
	return s.topupRepo.GetByID(ctx, requestID)
}

func (s *TopupService) ListPending(ctx context.Context, page, pageSize int) ([]*model.TopupRequest, int64, error) {
	return s.topupRepo.ListPending(ctx, page, pageSize)
}
