package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// VoucherRepository 代金券模板仓储
type VoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建代金券模板仓储
func NewVoucherRepository(db *gorm.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// Create 创建代金券模板
func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

// GetByID 根据 ID 获取代金券模板
func (r *VoucherRepository) GetByID(ctx context.Context, id int64) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).First(&voucher, id).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetByCode 根据券码获取代金券模板
func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// UpdateFields 更新指定字段
func (r *VoucherRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Voucher{}).Where("id = ?", id).Updates(fields).Error
}

// VoucherListParams 代金券模板列表查询参数
type VoucherListParams struct {
	Offset  int
	Limit   int
	Status  *int8
	Kind    string
	Keyword string
}

// List 获取代金券模板列表
func (r *VoucherRepository) List(ctx context.Context, params VoucherListParams) ([]*models.Voucher, int64, error) {
	var vouchers []*models.Voucher
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Voucher{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.Keyword != "" {
		query = query.Where("name LIKE ? OR code LIKE ?", "%"+params.Keyword+"%", "%"+params.Keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}

	return vouchers, total, nil
}

// IncrementConsumedQuantity 增加已领取数量
// 带条件更新，发放量用尽时不生效
func (r *VoucherRepository) IncrementConsumedQuantity(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("id = ? AND total_quantity > consumed_quantity", id).
		UpdateColumn("consumed_quantity", gorm.Expr("consumed_quantity + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementConsumedQuantity 减少已领取数量（用于退券）
func (r *VoucherRepository) DecrementConsumedQuantity(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("id = ? AND consumed_quantity > 0", id).
		UpdateColumn("consumed_quantity", gorm.Expr("consumed_quantity - 1")).Error
}

// ListClaimable 获取可领取的代金券模板列表
func (r *VoucherRepository) ListClaimable(ctx context.Context, offset, limit int) ([]*models.Voucher, int64, error) {
	var vouchers []*models.Voucher
	var total int64
	now := time.Now()

	query := r.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("status = ?", models.VoucherStatusActive).
		Where("total_quantity > consumed_quantity").
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("valid_until IS NULL OR valid_until >= ?", now)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}

	return vouchers, total, nil
}
