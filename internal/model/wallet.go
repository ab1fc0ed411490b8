package model

import (
	"time"
)

// WalletAccount 钱包账户表
// 记录会员的预付余额（新台币整数），是整个下单扣款链路的核心数据
type WalletAccount struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`      // 会员ID，由外部会员系统传入
	BalanceTWD int64     `gorm:"not null;default:0" json:"balance_twd"`    // 可用余额（整数新台币，不允许为负）
	Version    int       `gorm:"not null;default:0" json:"version"`        // 乐观锁版本号
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_account"
}

// ============================================================================
// 台账类型常量
// ============================================================================

const (
	LedgerTypeTopup  = "TOPUP"  // 储值入账
	LedgerTypeDebit  = "DEBIT"  // 下单扣款
	LedgerTypeRefund = "REFUND" // 缺货退款
	LedgerTypeAdjust = "ADJUST" // 管理员调整
)

// ============================================================================
// 钱包台账实体
// ============================================================================

// LedgerEntry 钱包台账表
// 记录每一笔余额变动，是对账的唯一事实来源，余额只是它的物化投影
//
// 【重要】台账表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 金额恒为正数，方向由 Type 决定 —— DEBIT 出账，其余入账
// 3. 记录变动前后余额 —— 便于校验余额一致性
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                         // 会员ID
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                 // 台账类型
	AmountTWD     int64     `gorm:"not null" json:"amount_twd"`                            // 金额（恒为正，方向看 Type）
	ExternalRef   string    `gorm:"type:varchar(64);index" json:"external_ref"`            // 关联单号（订单号/退款号/储值单号）
	Note          string    `gorm:"type:varchar(256)" json:"note"`                         // 备注
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                        // 变动前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                         // 变动后余额
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// SignedAmount 带符号金额，出账为负，入账为正
// 对账公式：Σ SignedAmount == WalletAccount.BalanceTWD
func (e *LedgerEntry) SignedAmount() int64 {
	if e.Type == LedgerTypeDebit {
		return -e.AmountTWD
	}
	return e.AmountTWD
}
