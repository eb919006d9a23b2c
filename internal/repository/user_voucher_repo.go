package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// UserVoucherRepository 用户代金券仓储
type UserVoucherRepository struct {
	db *gorm.DB
}

// NewUserVoucherRepository 创建用户代金券仓储
func NewUserVoucherRepository(db *gorm.DB) *UserVoucherRepository {
	return &UserVoucherRepository{db: db}
}

// Create 创建用户代金券
func (r *UserVoucherRepository) Create(ctx context.Context, uv *models.UserVoucher) error {
	return r.db.WithContext(ctx).Create(uv).Error
}

// GetByID 根据 ID 获取用户代金券
func (r *UserVoucherRepository) GetByID(ctx context.Context, id int64) (*models.UserVoucher, error) {
	var uv models.UserVoucher
	err := r.db.WithContext(ctx).Preload("Voucher").First(&uv, id).Error
	if err != nil {
		return nil, err
	}
	return &uv, nil
}

// ListByUser 获取用户的代金券列表
func (r *UserVoucherRepository) ListByUser(ctx context.Context, userID int64, status *int8, offset, limit int) ([]*models.UserVoucher, int64, error) {
	var list []*models.UserVoucher
	var total int64

	query := r.db.WithContext(ctx).Model(&models.UserVoucher{}).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Voucher").Order("claimed_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// ListUsableByUser 获取用户未使用且未过期的代金券
// 按到期时间升序，先到期的先用
func (r *UserVoucherRepository) ListUsableByUser(ctx context.Context, userID int64, now time.Time) ([]*models.UserVoucher, error) {
	var list []*models.UserVoucher
	err := r.db.WithContext(ctx).Preload("Voucher").
		Where("user_id = ? AND status = ?", userID, models.UserVoucherStatusUnused).
		Where("expired_at IS NULL OR expired_at > ?", now).
		Order("expired_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

// MarkUsedTx 在事务内将未使用的代金券标记为已使用并绑定订单
// 带条件更新，已使用或已过期的券不生效
func (r *UserVoucherRepository) MarkUsedTx(ctx context.Context, tx *gorm.DB, id, orderID int64, usedAt time.Time) error {
	result := tx.WithContext(ctx).Model(&models.UserVoucher{}).
		Where("id = ? AND status = ?", id, models.UserVoucherStatusUnused).
		Updates(map[string]interface{}{
			"status":   models.UserVoucherStatusUsed,
			"order_id": orderID,
			"used_at":  usedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkUnusedTx 在事务内将已使用的代金券恢复为未使用并解绑订单
func (r *UserVoucherRepository) MarkUnusedTx(ctx context.Context, tx *gorm.DB, id int64) error {
	result := tx.WithContext(ctx).Model(&models.UserVoucher{}).
		Where("id = ? AND status = ?", id, models.UserVoucherStatusUsed).
		Updates(map[string]interface{}{
			"status":   models.UserVoucherStatusUnused,
			"order_id": nil,
			"used_at":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ExpireOutdated 将已过期的未使用代金券置为过期状态
func (r *UserVoucherRepository) ExpireOutdated(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.UserVoucher{}).
		Where("status = ?", models.UserVoucherStatusUnused).
		Where("expired_at IS NOT NULL AND expired_at < ?", now).
		Update("status", models.UserVoucherStatusExpired)
	return result.RowsAffected, result.Error
}
