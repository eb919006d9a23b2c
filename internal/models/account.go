package models

import (
	"time"
)

// Account 用户资金账户（与用户一对一）
type Account struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance          float64   `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	FrozenBalance    float64   `gorm:"type:decimal(12,2);not null;default:0" json:"frozen_balance"`
	TotalRecharge    float64   `gorm:"type:decimal(12,2);not null;default:0" json:"total_recharge"`
	TotalConsumption float64   `gorm:"type:decimal(12,2);not null;default:0" json:"total_consumption"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Account) TableName() string {
	return "accounts"
}

// AccountTransaction 账户流水（只追加，不修改不删除）
// 任意时刻对单用户的流水求和必须与账户余额对账一致
type AccountTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Amount        float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	BalanceBefore float64   `gorm:"type:decimal(12,2);not null" json:"balance_before"`
	BalanceAfter  float64   `gorm:"type:decimal(12,2);not null" json:"balance_after"`
	RelatedID     *int64    `gorm:"index" json:"related_id,omitempty"`
	RelatedType   *string   `gorm:"type:varchar(20)" json:"related_type,omitempty"`
	Remark        *string   `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (AccountTransaction) TableName() string {
	return "account_transactions"
}

// AccountTxType 账户流水类型
const (
	AccountTxTypeRecharge    = "recharge"    // 充值
	AccountTxTypeConsumption = "consumption" // 消费
	AccountTxTypeRefund      = "refund"      // 退款
	AccountTxTypeFreeze      = "freeze"      // 冻结
	AccountTxTypeUnfreeze    = "unfreeze"    // 解冻
)

// RelatedType 流水关联对象类型
const (
	RelatedTypeOrder    = "order"    // 租用订单
	RelatedTypeRecharge = "recharge" // 充值单
)
