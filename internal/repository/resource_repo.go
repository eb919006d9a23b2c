// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// ResourceRepository 资源仓储
type ResourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository 创建资源仓储
func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create 创建资源
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

// GetByID 根据 ID 获取资源
func (r *ResourceRepository) GetByID(ctx context.Context, id int64) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).First(&resource, id).Error
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// Update 更新资源
func (r *ResourceRepository) Update(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

// UpdateFields 更新指定字段
func (r *ResourceRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Resource{}).Where("id = ?", id).Updates(fields).Error
}

// ResourceListParams 资源列表查询参数
type ResourceListParams struct {
	Offset       int
	Limit        int
	Category     string
	ProviderCode string
	Region       string
	Status       *int8
	Keyword      string
}

// List 获取资源列表
func (r *ResourceRepository) List(ctx context.Context, params ResourceListParams) ([]*models.Resource, int64, error) {
	var resources []*models.Resource
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Resource{})

	// 过滤条件
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.ProviderCode != "" {
		query = query.Where("provider_code = ?", params.ProviderCode)
	}
	if params.Region != "" {
		query = query.Where("region = ?", params.Region)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Keyword != "" {
		query = query.Where("name LIKE ? OR model LIKE ?", "%"+params.Keyword+"%", "%"+params.Keyword+"%")
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 查询列表
	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&resources).Error; err != nil {
		return nil, 0, err
	}

	return resources, total, nil
}

// DecrementStock 扣减库存
// 带条件更新，库存不足时不生效
func (r *ResourceRepository) DecrementStock(ctx context.Context, id int64, quantity int) error {
	result := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementStock 回补库存
func (r *ResourceRepository) IncrementStock(ctx context.Context, id int64, quantity int) error {
	return r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error
}
