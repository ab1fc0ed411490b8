package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shopwallet/internal/infrastructure/lock"
	"shopwallet/internal/model"
	"shopwallet/internal/repository"
	"shopwallet/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InsufficientBalanceError 余额不足
// 带上差额，前台提示会员还差多少钱
type InsufficientBalanceError struct {
	Balance   int64
	Required  int64
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足，当前余额 %d 元，尚缺 %d 元", e.Balance, e.Shortfall)
}

var ErrInvalidAmount = errors.New("金额必须大于0")

// deductMaxRetries 乐观锁冲突时的重试上限
const deductMaxRetries = 3

// WalletService 钱包台账
// 余额只是台账的物化投影：每一次动账都在同一个事务里追加台账并更新余额
type WalletService struct {
	db          *gorm.DB
	walletRepo  *repository.WalletRepository
	ledgerRepo  *repository.LedgerRepository
	redisClient *redis.Client
}

func NewWalletService(db *gorm.DB, redisClient *redis.Client) *WalletService {
	return &WalletService{
		db:          db,
		walletRepo:  repository.NewWalletRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		redisClient: redisClient,
	}
}

func (s *WalletService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.BalanceTWD, nil
}

func (s *WalletService) GetAccount(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	return s.walletRepo.GetOrCreate(ctx, userID)
}

// Debit 在调用方事务内扣款并追加 DEBIT 台账
// 余额不足返回 *InsufficientBalanceError；
// 乐观锁冲突重读账户重试，连续失败后原样抛出 ErrStaleWrite，由外层事务整体回滚
func (s *WalletService) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64, ref, note string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	for i := 0; i < deductMaxRetries; i++ {
		// 快照读走调用方事务，保证 before/after 能和同事务内先行的动账衔接
		account, err := s.walletRepo.GetByUserID(ctx, tx, userID)
		if err != nil {
			return nil, err
		}

		if account.BalanceTWD < amount {
			return nil, &InsufficientBalanceError{
				Balance:   account.BalanceTWD,
				Required:  amount,
				Shortfall: amount - account.BalanceTWD,
			}
		}

		err = s.walletRepo.Deduct(ctx, tx, userID, amount, account.Version)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return nil, &InsufficientBalanceError{
					Balance:   account.BalanceTWD,
					Required:  amount,
					Shortfall: amount - account.BalanceTWD,
				}
			}
			if errors.Is(err, repository.ErrStaleWrite) {
				continue
			}
			return nil, fmt.Errorf("扣款失败: %w", err)
		}

		entry := &model.LedgerEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			UserID:        userID,
			Type:          model.LedgerTypeDebit,
			AmountTWD:     amount,
			ExternalRef:   ref,
			Note:          note,
			BalanceBefore: account.BalanceTWD,
			BalanceAfter:  account.BalanceTWD - amount,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("记录台账失败: %w", err)
		}
		return entry, nil
	}

	return nil, repository.ErrStaleWrite
}

// Credit 在调用方事务内入账并追加台账（退款/储值/管理员调整）
// 余额只有下限没有上限，账户存在即成功
func (s *WalletService) Credit(ctx context.Context, tx *gorm.DB, userID int64, entryType string, amount int64, ref, note string) (*model.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	// 同一事务里连续入账时（批量退款），后一笔必须看到前一笔写入的余额
	account, err := s.walletRepo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.walletRepo.Increase(ctx, tx, userID, amount); err != nil {
		return nil, fmt.Errorf("入账失败: %w", err)
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        userID,
		Type:          entryType,
		AmountTWD:     amount,
		ExternalRef:   ref,
		Note:          note,
		BalanceBefore: account.BalanceTWD,
		BalanceAfter:  account.BalanceTWD + amount,
	}
	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("记录台账失败: %w", err)
	}
	return entry, nil
}

// DirectTopup 运营后台直接储值，绕过审核工作流，备注必须注明操作缘由
func (s *WalletService) DirectTopup(ctx context.Context, userID int64, amount int64, note string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	if _, err := s.walletRepo.GetOrCreate(ctx, userID); err != nil {
		return 0, err
	}

	walletLock := lock.NewWalletLock(s.redisClient, userID, uuid.NewString())
	if err := walletLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return 0, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer walletLock.Unlock(ctx)

	var newBalance int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.Credit(ctx, tx, userID, model.LedgerTypeTopup, amount, "", fmt.Sprintf("管理员储值: %s", note))
		if err != nil {
			return err
		}
		newBalance = entry.BalanceAfter
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Printf("管理员储值成功: userID=%d, amount=%d, balance=%d", userID, amount, newBalance)
	return newBalance, nil
}

// ListEntries 分页查询会员台账
func (s *WalletService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	UserID     int64 `json:"user_id"`
	BalanceTWD int64 `json:"balance_twd"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// Reconcile 校验物化余额与台账带符号求和是否一致
// 台账是唯一事实来源，不一致说明余额投影出了问题
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	account, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	sum, err := s.ledgerRepo.SumSigned(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ReconcileResult{
		UserID:     userID,
		BalanceTWD: account.BalanceTWD,
		LedgerSum:  sum,
		Consistent: account.BalanceTWD == sum,
	}, nil
}
