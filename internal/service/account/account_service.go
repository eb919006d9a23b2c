// Package account 提供资金账户服务
package account

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
)

// AccountService 资金账户服务
type AccountService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

// NewAccountService 创建资金账户服务
func NewAccountService(db *gorm.DB, accountRepo *repository.AccountRepository, transactionRepo *repository.TransactionRepository) *AccountService {
	return &AccountService{
		db:              db,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
	}
}

// AccountInfo 账户信息
type AccountInfo struct {
	Balance          float64 `json:"balance"`
	FrozenBalance    float64 `json:"frozen_balance"`
	TotalRecharge    float64 `json:"total_recharge"`
	TotalConsumption float64 `json:"total_consumption"`
}

// GetAccount 获取账户信息，不存在时初始化
func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*AccountInfo, error) {
	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	return &AccountInfo{
		Balance:          account.Balance,
		FrozenBalance:    account.FrozenBalance,
		TotalRecharge:    account.TotalRecharge,
		TotalConsumption: account.TotalConsumption,
	}, nil
}

// GetTransactions 获取账户流水
func (s *AccountService) GetTransactions(ctx context.Context, userID int64, txType string, offset, limit int) ([]*models.AccountTransaction, int64, error) {
	list, total, err := s.transactionRepo.List(ctx, repository.TransactionListParams{
		Offset: offset,
		Limit:  limit,
		UserID: userID,
		Type:   txType,
	})
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return list, total, nil
}

// roundedExpr 字段相对增减并保留两位小数
// CAST 让 ROUND 在 postgres(numeric) 与 sqlite 下行为一致
func roundedExpr(column string, delta float64) clause.Expr {
	return gorm.Expr("ROUND(CAST("+column+" + ? AS NUMERIC), 2)", delta)
}

// Recharge 充值（增加余额）
func (s *AccountService) Recharge(ctx context.Context, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("充值金额必须大于0")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.RechargeTx(ctx, tx, userID, amount, relatedID, relatedType)
	})
}

// RechargeTx 在已有事务中充值（增加余额）
func (s *AccountService) RechargeTx(ctx context.Context, tx *gorm.DB, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("充值金额必须大于0")
	}

	if err := s.ensureAccount(ctx, tx, userID); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":        roundedExpr("balance", amount),
			"total_recharge": roundedExpr("total_recharge", amount),
		})
	if result.Error != nil {
		return errors.ErrDatabaseError.WithError(result.Error)
	}

	account, err := s.reloadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.appendTransaction(ctx, tx, &models.AccountTransaction{
		UserID:        userID,
		TransactionNo: utils.GenerateTransactionNo(),
		Type:          models.AccountTxTypeRecharge,
		Amount:        amount,
		BalanceBefore: utils.Round2(account.Balance - amount),
		BalanceAfter:  account.Balance,
		RelatedID:     &relatedID,
		RelatedType:   &relatedType,
		Remark:        utils.StringPtr("账户充值"),
	})
}

// Consume 消费（扣减余额）
func (s *AccountService) Consume(ctx context.Context, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("消费金额必须大于0")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ConsumeTx(ctx, tx, userID, amount, relatedID, relatedType)
	})
}

// ConsumeTx 在已有事务中消费（扣减余额）
// 余额校验与扣减在同一条守卫更新内完成，并发扣款不会基于旧余额覆盖写；
// 零元结算不产生流水
func (s *AccountService) ConsumeTx(ctx context.Context, tx *gorm.DB, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount < 0 {
		return errors.ErrAmountInvalid.WithMessage("消费金额不能为负")
	}
	if amount == 0 {
		return nil
	}

	result := tx.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":           roundedExpr("balance", -amount),
			"total_consumption": roundedExpr("total_consumption", amount),
		})
	if result.Error != nil {
		return errors.ErrDatabaseError.WithError(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrBalanceInsufficient
	}

	account, err := s.reloadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.appendTransaction(ctx, tx, &models.AccountTransaction{
		UserID:        userID,
		TransactionNo: utils.GenerateTransactionNo(),
		Type:          models.AccountTxTypeConsumption,
		Amount:        -amount,
		BalanceBefore: utils.Round2(account.Balance + amount),
		BalanceAfter:  account.Balance,
		RelatedID:     &relatedID,
		RelatedType:   &relatedType,
		Remark:        utils.StringPtr("订单结算"),
	})
}

// Refund 退款（增加余额）
func (s *AccountService) Refund(ctx context.Context, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("退款金额必须大于0")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.RefundTx(ctx, tx, userID, amount, relatedID, relatedType)
	})
}

// RefundTx 在已有事务中退款（增加余额）
func (s *AccountService) RefundTx(ctx context.Context, tx *gorm.DB, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("退款金额必须大于0")
	}

	if err := s.ensureAccount(ctx, tx, userID); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":           roundedExpr("balance", amount),
			"total_consumption": roundedExpr("total_consumption", -amount),
		})
	if result.Error != nil {
		return errors.ErrDatabaseError.WithError(result.Error)
	}

	account, err := s.reloadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.appendTransaction(ctx, tx, &models.AccountTransaction{
		UserID:        userID,
		TransactionNo: utils.GenerateTransactionNo(),
		Type:          models.AccountTxTypeRefund,
		Amount:        amount,
		BalanceBefore: utils.Round2(account.Balance - amount),
		BalanceAfter:  account.Balance,
		RelatedID:     &relatedID,
		RelatedType:   &relatedType,
		Remark:        utils.StringPtr("订单退款"),
	})
}

// Freeze 冻结余额
func (s *AccountService) Freeze(ctx context.Context, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("冻结金额必须大于0")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.FreezeTx(ctx, tx, userID, amount, relatedID, relatedType)
	})
}

// FreezeTx 在已有事务中冻结余额
func (s *AccountService) FreezeTx(ctx context.Context, tx *gorm.DB, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("冻结金额必须大于0")
	}

	result := tx.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":        roundedExpr("balance", -amount),
			"frozen_balance": roundedExpr("frozen_balance", amount),
		})
	if result.Error != nil {
		return errors.ErrDatabaseError.WithError(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrBalanceInsufficient
	}

	account, err := s.reloadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.appendTransaction(ctx, tx, &models.AccountTransaction{
		UserID:        userID,
		TransactionNo: utils.GenerateTransactionNo(),
		Type:          models.AccountTxTypeFreeze,
		Amount:        -amount,
		BalanceBefore: utils.Round2(account.Balance + amount),
		BalanceAfter:  account.Balance,
		RelatedID:     &relatedID,
		RelatedType:   &relatedType,
		Remark:        utils.StringPtr("余额冻结"),
	})
}

// Unfreeze 解冻余额
func (s *AccountService) Unfreeze(ctx context.Context, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("解冻金额必须大于0")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.UnfreezeTx(ctx, tx, userID, amount, relatedID, relatedType)
	})
}

// UnfreezeTx 在已有事务中解冻余额
func (s *AccountService) UnfreezeTx(ctx context.Context, tx *gorm.DB, userID int64, amount float64, relatedID int64, relatedType string) error {
	if amount <= 0 {
		return errors.ErrAmountInvalid.WithMessage("解冻金额必须大于0")
	}

	result := tx.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND frozen_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":        roundedExpr("balance", amount),
			"frozen_balance": roundedExpr("frozen_balance", -amount),
		})
	if result.Error != nil {
		return errors.ErrDatabaseError.WithError(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrFrozenInsufficient
	}

	account, err := s.reloadAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.appendTransaction(ctx, tx, &models.AccountTransaction{
		UserID:        userID,
		TransactionNo: utils.GenerateTransactionNo(),
		Type:          models.AccountTxTypeUnfreeze,
		Amount:        amount,
		BalanceBefore: utils.Round2(account.Balance - amount),
		BalanceAfter:  account.Balance,
		RelatedID:     &relatedID,
		RelatedType:   &relatedType,
		Remark:        utils.StringPtr("余额解冻"),
	})
}

// GetBalance 获取余额
func (s *AccountService) GetBalance(ctx context.Context, userID int64) (float64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, errors.ErrDatabaseError.WithError(err)
	}
	return account.Balance, nil
}

// Reconcile 对账：校验流水净额与余额一致
func (s *AccountService) Reconcile(ctx context.Context, userID int64) (bool, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, errors.ErrDatabaseError.WithError(err)
	}

	sum, err := s.transactionRepo.SumByUser(ctx, userID)
	if err != nil {
		return false, errors.ErrDatabaseError.WithError(err)
	}

	// 冻结与解冻均有流水，净额对应可用余额
	return utils.Round2(sum) == utils.Round2(account.Balance), nil
}

// ensureAccount 事务内确保账户行存在，不存在时初始化
func (s *AccountService) ensureAccount(ctx context.Context, tx *gorm.DB, userID int64) error {
	var account models.Account
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return errors.ErrDatabaseError.WithError(err)
	}

	account = models.Account{UserID: userID, CreatedAt: time.Now()}
	if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// reloadAccount 守卫更新之后回读账户，此时行锁已持有，读到的是本事务内的最新值
func (s *AccountService) reloadAccount(ctx context.Context, tx *gorm.DB, userID int64) (*models.Account, error) {
	var account models.Account
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return &account, nil
}

// appendTransaction 追加流水记录
func (s *AccountService) appendTransaction(ctx context.Context, tx *gorm.DB, txn *models.AccountTransaction) error {
	if err := tx.WithContext(ctx).Create(txn).Error; err != nil {
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}
