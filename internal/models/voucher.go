package models

import (
	"time"
)

// Voucher 代金券模板（管理端发放）
type Voucher struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code              string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name              string     `gorm:"type:varchar(100);not null" json:"name"`
	ProviderCode      *string    `gorm:"type:varchar(50)" json:"provider_code,omitempty"`
	Kind              string     `gorm:"type:varchar(20);not null" json:"kind"`
	Value             float64    `gorm:"type:decimal(10,2);not null" json:"value"`
	MinOrderAmount    float64    `gorm:"type:decimal(10,2);not null;default:0" json:"min_order_amount"`
	MaxDiscountAmount *float64   `gorm:"type:decimal(10,2)" json:"max_discount_amount,omitempty"`
	TotalQuantity     int        `gorm:"not null" json:"total_quantity"`
	ConsumedQuantity  int        `gorm:"not null;default:0" json:"consumed_quantity"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
	Description       *string    `gorm:"type:varchar(255)" json:"description,omitempty"`
	Status            int8       `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// 关联
	UserVouchers []UserVoucher `gorm:"foreignKey:VoucherID" json:"user_vouchers,omitempty"`
}

// TableName 表名
func (Voucher) TableName() string {
	return "vouchers"
}

// VoucherKind 代金券类型
const (
	VoucherKindAmount    = "amount"     // 固定金额抵扣
	VoucherKindPercent   = "percent"    // 百分比抵扣
	VoucherKindFreeHours = "free_hours" // 免费时长抵扣
)

// VoucherStatus 代金券状态
const (
	VoucherStatusDisabled = 0 // 禁用
	VoucherStatusActive   = 1 // 启用
)

// UserVoucher 用户持有的代金券实例
// (user_id, voucher_code) 唯一，领取幂等
type UserVoucher struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64      `gorm:"index;not null;uniqueIndex:uk_user_voucher_code" json:"user_id"`
	VoucherID   int64      `gorm:"index;not null" json:"voucher_id"`
	VoucherCode string     `gorm:"type:varchar(50);not null;uniqueIndex:uk_user_voucher_code" json:"voucher_code"`
	Status      int8       `gorm:"type:smallint;not null;default:0" json:"status"`
	OrderID     *int64     `gorm:"index" json:"order_id,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ClaimedAt   time.Time  `gorm:"autoCreateTime" json:"claimed_at"`

	// 关联
	Voucher *Voucher `gorm:"foreignKey:VoucherID" json:"voucher,omitempty"`
	Order   *Order   `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// TableName 表名
func (UserVoucher) TableName() string {
	return "user_vouchers"
}

// UserVoucherStatus 用户代金券状态
const (
	UserVoucherStatusUnused  = 0 // 未使用
	UserVoucherStatusUsed    = 1 // 已使用
	UserVoucherStatusExpired = 2 // 已过期
)
