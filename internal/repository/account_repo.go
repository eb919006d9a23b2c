package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// AccountRepository 资金账户仓储
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建资金账户仓储
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create 创建账户
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByUserID 根据用户 ID 获取账户
func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 获取账户，不存在时创建
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	account = &models.Account{UserID: userID}
	if err := r.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Update 更新账户
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}
