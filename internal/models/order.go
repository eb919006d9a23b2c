package models

import (
	"time"
)

// Order 资源租用订单
// 折扣与代金券金额为下单时刻的快照，后续规则/模板变更不回溯已结算订单
type Order struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID         int64      `gorm:"index;not null" json:"user_id"`
	ResourceID     int64      `gorm:"index;not null" json:"resource_id"`
	Quantity       int        `gorm:"not null;default:1" json:"quantity"`
	Duration       int        `gorm:"not null" json:"duration"`
	DurationUnit   string     `gorm:"type:varchar(10);not null;default:'hour'" json:"duration_unit"`
	OriginalPrice  float64    `gorm:"type:decimal(12,2);not null" json:"original_price"`
	DiscountAmount float64    `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	DiscountID     *int64     `json:"discount_id,omitempty"`
	DiscountRate   *float64   `gorm:"type:decimal(5,2)" json:"discount_rate,omitempty"`
	VoucherAmount  float64    `gorm:"type:decimal(12,2);not null;default:0" json:"voucher_amount"`
	UserVoucherID  *int64     `json:"user_voucher_id,omitempty"`
	FinalPrice     float64    `gorm:"type:decimal(12,2);not null" json:"final_price"`
	Status         int8       `gorm:"type:smallint;not null;default:0" json:"status"`
	PaymentMethod  *string    `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaymentTime    *time.Time `json:"payment_time,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	Remark         *string    `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Resource    *Resource     `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
	Discount    *DiscountRule `gorm:"foreignKey:DiscountID" json:"discount,omitempty"`
	UserVoucher *UserVoucher  `gorm:"foreignKey:UserVoucherID" json:"user_voucher,omitempty"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// OrderStatus 订单状态
const (
	OrderStatusPending   = 0 // 待支付
	OrderStatusPaid      = 1 // 已支付
	OrderStatusRunning   = 2 // 运行中
	OrderStatusCompleted = 3 // 已完成
	OrderStatusCancelled = 4 // 已取消
	OrderStatusFailed    = 5 // 失败
)

// PaymentMethod 支付方式
const (
	PaymentMethodBalance = "balance" // 余额支付
	PaymentMethodMixed   = "mixed"   // 代金券+余额混合支付
)

// RechargeOrder 充值单
// 支付网关为外部协作方，回调由 mock 网关模拟；回调处理必须幂等
type RechargeOrder struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RechargeNo string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"recharge_no"`
	UserID     int64      `gorm:"index;not null" json:"user_id"`
	Amount     float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Channel    string     `gorm:"type:varchar(20);not null;default:'mock'" json:"channel"`
	Status     int8       `gorm:"type:smallint;not null;default:0" json:"status"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (RechargeOrder) TableName() string {
	return "recharge_orders"
}

// RechargeStatus 充值单状态
const (
	RechargeStatusPending = 0 // 待支付
	RechargeStatusPaid    = 1 // 已到账
	RechargeStatusClosed  = 2 // 已关闭
)
