package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// DiscountRuleRepository 折扣规则仓储
type DiscountRuleRepository struct {
	db *gorm.DB
}

// NewDiscountRuleRepository 创建折扣规则仓储
func NewDiscountRuleRepository(db *gorm.DB) *DiscountRuleRepository {
	return &DiscountRuleRepository{db: db}
}

// Create 创建折扣规则
func (r *DiscountRuleRepository) Create(ctx context.Context, rule *models.DiscountRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// GetByID 根据 ID 获取折扣规则
func (r *DiscountRuleRepository) GetByID(ctx context.Context, id int64) (*models.DiscountRule, error) {
	var rule models.DiscountRule
	err := r.db.WithContext(ctx).First(&rule, id).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update 更新折扣规则
func (r *DiscountRuleRepository) Update(ctx context.Context, rule *models.DiscountRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

// UpdateFields 更新指定字段
func (r *DiscountRuleRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.DiscountRule{}).Where("id = ?", id).Updates(fields).Error
}

// Delete 删除折扣规则
func (r *DiscountRuleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.DiscountRule{}, id).Error
}

// FindBestMatch 查找命中资源维度的最优规则
// 空作用域字段视为通配；优先级高者优先，同优先级取折扣力度大者
func (r *DiscountRuleRepository) FindBestMatch(ctx context.Context, providerCode, model string, resourceID int64, now time.Time) (*models.DiscountRule, error) {
	var rule models.DiscountRule
	err := r.db.WithContext(ctx).
		Where("status = ?", models.DiscountRuleStatusActive).
		Where("provider_code IS NULL OR provider_code = ?", providerCode).
		Where("model IS NULL OR model = ?", model).
		Where("resource_id IS NULL OR resource_id = ?", resourceID).
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("valid_until IS NULL OR valid_until >= ?", now).
		Order("priority DESC, rate DESC, id ASC").
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// DiscountRuleListParams 折扣规则列表查询参数
type DiscountRuleListParams struct {
	Offset       int
	Limit        int
	Status       *int8
	ProviderCode string
	Keyword      string
}

// List 获取折扣规则列表
func (r *DiscountRuleRepository) List(ctx context.Context, params DiscountRuleListParams) ([]*models.DiscountRule, int64, error) {
	var rules []*models.DiscountRule
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DiscountRule{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.ProviderCode != "" {
		query = query.Where("provider_code = ?", params.ProviderCode)
	}
	if params.Keyword != "" {
		query = query.Where("name LIKE ?", "%"+params.Keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("priority DESC, created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// ExpireOutdated 将已过有效期的规则置为过期状态
func (r *DiscountRuleRepository) ExpireOutdated(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.DiscountRule{}).
		Where("status = ?", models.DiscountRuleStatusActive).
		Where("valid_until IS NOT NULL AND valid_until < ?", now).
		Update("status", models.DiscountRuleStatusExpired)
	return result.RowsAffected, result.Error
}
