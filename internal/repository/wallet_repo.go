package repository

import (
	"context"
	"errors"

	"shopwallet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("钱包账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrStaleWrite       = errors.New("并发写入冲突，请重试")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByUserID 读取账户
// 动账事务内的快照读必须传事务句柄，跨连接读会拿到事务开始前的旧值
func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.WalletAccount, error) {
	if tx == nil {
		tx = r.db
	}
	var account model.WalletAccount
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListBatch 按主键游标分批扫描账户，供对账任务遍历全量账户用
func (r *WalletRepository) ListBatch(ctx context.Context, afterID int64, limit int) ([]*model.WalletAccount, error) {
	var accounts []*model.WalletAccount
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Deduct 条件扣款
// WHERE 同时带上 余额充足 和 版本号，两种失败原因通过回查余额区分：
// 余额不够返回 ErrBalanceNotEnough，版本号被别人动过返回 ErrStaleWrite
func (r *WalletRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.WalletAccount{}).
		Where("user_id = ? AND balance_twd >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"balance_twd": gorm.Expr("balance_twd - ?", amount),
			"version":     gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account.BalanceTWD < amount {
			return ErrBalanceNotEnough
		}
		return ErrStaleWrite
	}

	return nil
}

// Increase 入账（退款/储值），余额没有上限，只要账户存在就成功
func (r *WalletRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.WalletAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance_twd": gorm.Expr("balance_twd + ?", amount),
			"version":     gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// GetOrCreate 账户随首次访问惰性建档，余额为零
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID int64) (*model.WalletAccount, error) {
	account, err := r.GetByUserID(ctx, nil, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.WalletAccount{
		UserID:     userID,
		BalanceTWD: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, nil, userID)
}
