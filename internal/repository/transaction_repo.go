package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// TransactionRepository 账户流水仓储
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建账户流水仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 创建流水记录
func (r *TransactionRepository) Create(ctx context.Context, txn *models.AccountTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// GetByTransactionNo 根据流水号获取流水记录
func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, no string) (*models.AccountTransaction, error) {
	var txn models.AccountTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", no).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransactionListParams 流水列表查询参数
type TransactionListParams struct {
	Offset    int
	Limit     int
	UserID    int64
	Type      string
	StartTime *time.Time
	EndTime   *time.Time
}

// List 获取流水列表
func (r *TransactionRepository) List(ctx context.Context, params TransactionListParams) ([]*models.AccountTransaction, int64, error) {
	var list []*models.AccountTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&models.AccountTransaction{}).Where("user_id = ?", params.UserID)

	if params.Type != "" {
		query = query.Where("type = ?", params.Type)
	}
	if params.StartTime != nil {
		query = query.Where("created_at >= ?", *params.StartTime)
	}
	if params.EndTime != nil {
		query = query.Where("created_at <= ?", *params.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// SumByUser 按用户汇总流水净额
// 收入为正、支出为负，与账户余额对账使用
func (r *TransactionRepository) SumByUser(ctx context.Context, userID int64) (float64, error) {
	var sum *float64
	err := r.db.WithContext(ctx).Model(&models.AccountTransaction{}).
		Select("SUM(amount)").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
