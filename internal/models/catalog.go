// Package models 定义数据模型
package models

import (
	"time"
)

// Resource 算力/硬件资源
type Resource struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Category     string    `gorm:"type:varchar(20);not null;default:'gpu'" json:"category"`
	ProviderCode string    `gorm:"type:varchar(50);index;not null" json:"provider_code"`
	Model        string    `gorm:"type:varchar(100);index;not null" json:"model"`
	Region       *string   `gorm:"type:varchar(50)" json:"region,omitempty"`
	UnitPrice    float64   `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	UnitDuration string    `gorm:"type:varchar(10);not null;default:'hour'" json:"unit_duration"`
	Stock        int       `gorm:"not null;default:0" json:"stock"`
	Description  *string   `gorm:"type:text" json:"description,omitempty"`
	Status       int8      `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Resource) TableName() string {
	return "resources"
}

// ResourceCategory 资源类别
const (
	ResourceCategoryGPU      = "gpu"      // GPU 算力
	ResourceCategoryHardware = "hardware" // 物理硬件
	ResourceCategorySpace    = "space"    // 机位/空间
)

// ResourceStatus 资源状态
const (
	ResourceStatusOffline = 0 // 下架
	ResourceStatusActive  = 1 // 上架
)

// DurationUnit 计费时长单位
const (
	DurationUnitHour  = "hour"  // 小时
	DurationUnitDay   = "day"   // 天
	DurationUnitMonth = "month" // 月
	DurationUnitYear  = "year"  // 年
)
