package models

import (
	"time"
)

// DiscountRule 折扣规则
// 三个作用域字段均可为空，空值表示通配；同一订单最多命中一条规则
type DiscountRule struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string     `gorm:"type:varchar(100);not null" json:"name"`
	ProviderCode *string    `gorm:"type:varchar(50);index" json:"provider_code,omitempty"`
	Model        *string    `gorm:"type:varchar(100);index" json:"model,omitempty"`
	ResourceID   *int64     `gorm:"index" json:"resource_id,omitempty"`
	Rate         float64    `gorm:"type:decimal(5,2);not null" json:"rate"`
	Priority     int        `gorm:"not null;default:0" json:"priority"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	Status       int8       `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (DiscountRule) TableName() string {
	return "discount_rules"
}

// DiscountRuleStatus 折扣规则状态
const (
	DiscountRuleStatusDisabled = 0 // 禁用
	DiscountRuleStatusActive   = 1 // 启用
	DiscountRuleStatusExpired  = 2 // 已过期
)

// Matches 判断规则是否命中给定的资源维度
func (r *DiscountRule) Matches(providerCode, model string, resourceID int64) bool {
	if r.ProviderCode != nil && *r.ProviderCode != providerCode {
		return false
	}
	if r.Model != nil && *r.Model != model {
		return false
	}
	if r.ResourceID != nil && *r.ResourceID != resourceID {
		return false
	}
	return true
}

// ActiveAt 判断规则在给定时刻是否生效
func (r *DiscountRule) ActiveAt(now time.Time) bool {
	if r.Status != DiscountRuleStatusActive {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	return true
}
