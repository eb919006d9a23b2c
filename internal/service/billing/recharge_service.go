package billing

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	"github.com/nebulink/gpu-market-backend/internal/common/metrics"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	"github.com/nebulink/gpu-market-backend/internal/service/account"
)

// 充值单号前缀
const rechargeNoPrefix = "RC"

// RechargeService 余额充值服务
// 支付网关为外部协作方，当前仅接入 mock 渠道
type RechargeService struct {
	db             *gorm.DB
	rechargeRepo   *repository.RechargeRepository
	accountService *account.AccountService
}

// NewRechargeService 创建充值服务
func NewRechargeService(db *gorm.DB, rechargeRepo *repository.RechargeRepository, accountService *account.AccountService) *RechargeService {
	return &RechargeService{
		db:             db,
		rechargeRepo:   rechargeRepo,
		accountService: accountService,
	}
}

// CreateRecharge 创建待支付充值单
func (s *RechargeService) CreateRecharge(ctx context.Context, userID int64, amount float64) (*models.RechargeOrder, error) {
	amount = utils.Round2(amount)
	if amount <= 0 {
		return nil, ErrRechargeAmount
	}

	recharge := &models.RechargeOrder{
		RechargeNo: utils.GenerateOrderNo(rechargeNoPrefix),
		UserID:     userID,
		Amount:     amount,
		Channel:    "mock",
		Status:     models.RechargeStatusPending,
	}
	if err := s.rechargeRepo.Create(ctx, recharge); err != nil {
		return nil, err
	}

	logger.Info("充值单已创建",
		logger.UserID(userID),
		zap.String("recharge_no", recharge.RechargeNo),
		logger.Amount(amount),
	)
	return recharge, nil
}

// HandleCallback 处理支付回调
// 回调可能重复投递，已到账的充值单幂等返回成功
func (s *RechargeService) HandleCallback(ctx context.Context, rechargeNo string) error {
	recharge, err := s.rechargeRepo.GetByRechargeNo(ctx, rechargeNo)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrRechargeNotFound
		}
		return err
	}
	if recharge.Status == models.RechargeStatusPaid {
		return nil
	}
	if recharge.Status != models.RechargeStatusPending {
		return ErrInvalidState
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		flip := tx.WithContext(ctx).Model(&models.RechargeOrder{}).
			Where("id = ? AND status = ?", recharge.ID, models.RechargeStatusPending).
			Updates(map[string]interface{}{
				"status":  models.RechargeStatusPaid,
				"paid_at": now,
			})
		if flip.Error != nil {
			return flip.Error
		}
		if flip.RowsAffected == 0 {
			// 并发回调已处理过
			return nil
		}
		return s.accountService.RechargeTx(ctx, tx, recharge.UserID, recharge.Amount, recharge.ID, "recharge")
	})
	if err != nil {
		metrics.GetMetrics().RecordPayment(recharge.Channel, "failed")
		return err
	}

	metrics.GetMetrics().RecordPayment(recharge.Channel, "success")
	logger.Info("充值到账",
		logger.UserID(recharge.UserID),
		zap.String("recharge_no", rechargeNo),
		logger.Amount(recharge.Amount),
	)
	return nil
}

// ListRecharges 获取充值单列表
func (s *RechargeService) ListRecharges(ctx context.Context, userID int64, offset, limit int) ([]*models.RechargeOrder, int64, error) {
	return s.rechargeRepo.ListByUser(ctx, userID, offset, limit)
}
