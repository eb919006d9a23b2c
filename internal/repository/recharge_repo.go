package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// RechargeRepository 充值单仓储
type RechargeRepository struct {
	db *gorm.DB
}

// NewRechargeRepository 创建充值单仓储
func NewRechargeRepository(db *gorm.DB) *RechargeRepository {
	return &RechargeRepository{db: db}
}

// Create 创建充值单
func (r *RechargeRepository) Create(ctx context.Context, recharge *models.RechargeOrder) error {
	return r.db.WithContext(ctx).Create(recharge).Error
}

// GetByRechargeNo 根据充值单号获取充值单
func (r *RechargeRepository) GetByRechargeNo(ctx context.Context, rechargeNo string) (*models.RechargeOrder, error) {
	var recharge models.RechargeOrder
	err := r.db.WithContext(ctx).Where("recharge_no = ?", rechargeNo).First(&recharge).Error
	if err != nil {
		return nil, err
	}
	return &recharge, nil
}

// ListByUser 获取用户充值单列表
func (r *RechargeRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.RechargeOrder, int64, error) {
	var list []*models.RechargeOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RechargeOrder{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}
