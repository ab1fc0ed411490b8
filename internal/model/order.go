package model

import (
	"time"
)

// ============================================================================
// 订单状态常量
// ============================================================================

const (
	OrderStatusPending        = "PENDING"         // 已付款，履约进行中
	OrderStatusCompleted      = "COMPLETED"       // 全部商品已签收
	OrderStatusCancelled      = "CANCELLED"       // 已取消
	OrderStatusDisputePending = "DISPUTE_PENDING" // 争议处理中
)

var ValidOrderTransitions = map[string][]string{
	OrderStatusPending:        {OrderStatusCompleted, OrderStatusCancelled, OrderStatusDisputePending},
	OrderStatusDisputePending: {OrderStatusCompleted, OrderStatusCancelled},
}

func CanOrderTransition(currentStatus, targetStatus string) bool {
	allowed, exists := ValidOrderTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Order 订单表
// TotalTWD 在下单时一次性定格（商品小计+税），之后运费只记在明细上，不回写总额
type Order struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	RequestID       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID
	UserID          int64     `gorm:"index;not null" json:"user_id"`
	Status          string    `gorm:"type:varchar(20);index;not null" json:"status"`
	TotalTWD        int64     `gorm:"not null" json:"total_twd"` // 商品小计 + 5% 税，下单后不变
	RecipientName   string    `gorm:"type:varchar(64);not null" json:"recipient_name"`
	RecipientPhone  string    `gorm:"type:varchar(32)" json:"recipient_phone"`
	ShippingAddress string    `gorm:"type:varchar(256)" json:"shipping_address"`
	TrackingNumber  string    `gorm:"type:varchar(64)" json:"tracking_number"`
	Note            string    `gorm:"type:varchar(256)" json:"note"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "shop_order"
}

// ============================================================================
// 订单明细履约状态
// ============================================================================
//
// 履约流转（每条明细独立推进）：
//
//	NORMAL -> ALLOCATED -> IN_TRANSIT -> ARRIVED -> SHIPPED -> RECEIVED
//	                                                  |  ^
//	                                                  v  |
//	                                           DELIVERY_FAILED
//
// 任意非终态都可被强制转入 OUT_OF_STOCK / PARTIAL_OOS（缺货退款，终态）

const (
	ItemStatusNormal         = "NORMAL"          // 初始态，已下单待采购
	ItemStatusAllocated      = "ALLOCATED"       // 已配货
	ItemStatusInTransit      = "IN_TRANSIT"      // 国际段运输中
	ItemStatusArrived        = "ARRIVED"         // 已到集运点，此后才能录入重量/运费
	ItemStatusShipped        = "SHIPPED"         // 末端已发货
	ItemStatusReceived       = "RECEIVED"        // 已签收（终态）
	ItemStatusDeliveryFailed = "DELIVERY_FAILED" // 派送失败，可重新发货
	ItemStatusOutOfStock     = "OUT_OF_STOCK"    // 全量缺货（终态，经退款进入）
	ItemStatusPartialOOS     = "PARTIAL_OOS"     // 部分缺货（终态，经退款进入）
)

var ValidItemTransitions = map[string][]string{
	ItemStatusNormal:         {ItemStatusAllocated},
	ItemStatusAllocated:      {ItemStatusInTransit},
	ItemStatusInTransit:      {ItemStatusArrived},
	ItemStatusArrived:        {ItemStatusShipped},
	ItemStatusShipped:        {ItemStatusReceived, ItemStatusDeliveryFailed},
	ItemStatusDeliveryFailed: {ItemStatusShipped},
}

func CanItemTransition(currentStatus, targetStatus string) bool {
	// 缺货终态不走普通流转表，只能由退款事务写入
	if targetStatus == ItemStatusOutOfStock || targetStatus == ItemStatusPartialOOS {
		return !IsItemTerminal(currentStatus)
	}
	allowed, exists := ValidItemTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsItemTerminal(status string) bool {
	return status == ItemStatusReceived ||
		status == ItemStatusOutOfStock ||
		status == ItemStatusPartialOOS
}

// ReachedConsolidation 明细是否已到达集运点
// 到达之前实重不可知，重量、运送方式、箱数等发货字段一律拒收
func ReachedConsolidation(status string) bool {
	switch status {
	case ItemStatusArrived, ItemStatusShipped, ItemStatusDeliveryFailed, ItemStatusReceived:
		return true
	}
	return false
}

// ============================================================================
// 运送方式常量
// ============================================================================

const (
	ShippingMethodPost           = "POST"            // 邮局
	ShippingMethodBlackCat       = "BLACK_CAT"       // 黑猫宅急便
	ShippingMethodHsinchu        = "HSINCHU"         // 新竹物流
	ShippingMethodCVS            = "CVS"             // 超商取货
	ShippingMethodWholesaleStore = "WHOLESALE_STORE" // 批发门市自取，凭取货码
)

// NeedsBoxFee 该运送方式是否需要实体装箱（按箱计费）
// 门市自取不装箱、不计运费，改为发放取货码
func NeedsBoxFee(method string) bool {
	switch method {
	case ShippingMethodPost, ShippingMethodBlackCat, ShippingMethodHsinchu, ShippingMethodCVS:
		return true
	}
	return false
}

// OrderItem 订单明细表
// 履约状态、运费字段、退款累计都记录在明细维度
type OrderItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64  `gorm:"index;not null" json:"order_id"`
	OrderNo   string `gorm:"type:varchar(64);index;not null" json:"order_no"`
	ProductID int64  `gorm:"not null" json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"` // 规格ID，可空
	Qty       int    `gorm:"not null" json:"qty"`
	UnitPrice int64  `gorm:"not null" json:"unit_price_twd"` // 服务端定价快照
	Status    string `gorm:"type:varchar(20);index;not null" json:"status"`

	// 发货字段，ARRIVED 之后才允许写入
	WeightGram         int64  `gorm:"not null;default:0" json:"weight"` // 实重（克）
	ShippingCountry    string `gorm:"type:varchar(8)" json:"shipping_country"`
	ShippingMethod     string `gorm:"type:varchar(20)" json:"shipping_method"`
	BoxCount           int    `gorm:"not null;default:0" json:"box_count"`
	BoxFee             int64  `gorm:"not null;default:0" json:"box_fee"` // 单箱包装费
	ShippingFeeIntl    int64  `gorm:"not null;default:0" json:"shipping_fee_intl"`
	ShippingFeeDom     int64  `gorm:"not null;default:0" json:"shipping_fee_domestic"`
	ShippingPaid       bool   `gorm:"not null;default:false" json:"shipping_paid"` // 运费差额是否已线下结清
	MemberShippingCode string `gorm:"type:varchar(32)" json:"member_shipping_code"`

	RefundAmount int64 `gorm:"not null;default:0" json:"refund_amount"` // 累计退款，不得超过 UnitPrice*Qty
	RefundedQty  int   `gorm:"not null;default:0" json:"refunded_qty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "shop_order_item"
}
