package model

import (
	"time"
)

const (
	TopupStatusPending  = "PENDING"  // 待审核
	TopupStatusApproved = "APPROVED" // 已通过，已产生 TOPUP 台账
	TopupStatusRejected = "REJECTED" // 已驳回，不产生台账
)

// TopupRequest 储值申请表
// 会员线下汇款后提交申请，运营审核通过才入账；审核后不可再变更
type TopupRequest struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	UserID           int64      `gorm:"index;not null" json:"user_id"`
	AmountTWD        int64      `gorm:"not null" json:"amount_twd"`
	BankAccountLast5 string     `gorm:"type:varchar(5);not null" json:"bank_account_last_5"` // 汇款账号末五码
	ProofImage       string     `gorm:"type:varchar(512)" json:"proof_image"`                // 汇款凭证URL，存储由外部系统负责
	Status           string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	ReviewNote       string     `gorm:"type:varchar(256)" json:"review_note"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ReviewedAt       *time.Time `json:"reviewed_at"`
}

func (TopupRequest) TableName() string {
	return "topup_request"
}
