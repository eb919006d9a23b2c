package voucher

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
)

// VoucherService 代金券服务
type VoucherService struct {
	db              *gorm.DB
	voucherRepo     *repository.VoucherRepository
	userVoucherRepo *repository.UserVoucherRepository
}

// NewVoucherService 创建代金券服务
func NewVoucherService(db *gorm.DB, voucherRepo *repository.VoucherRepository, userVoucherRepo *repository.UserVoucherRepository) *VoucherService {
	return &VoucherService{
		db:              db,
		voucherRepo:     voucherRepo,
		userVoucherRepo: userVoucherRepo,
	}
}

// Claim 领取代金券
// 同一用户对同一券码只能领取一次，唯一索引兜底并发领取
func (s *VoucherService) Claim(ctx context.Context, userID int64, code string) (*models.UserVoucher, error) {
	var userVoucher *models.UserVoucher

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var voucher models.Voucher
		if err := tx.Where("code = ?", code).First(&voucher).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrVoucherNotFound
			}
			return err
		}

		now := time.Now()
		if voucher.Status != models.VoucherStatusActive {
			return ErrVoucherNotActive
		}
		if voucher.ValidFrom != nil && now.Before(*voucher.ValidFrom) {
			return ErrVoucherNotStarted
		}
		if voucher.ValidUntil != nil && now.After(*voucher.ValidUntil) {
			return ErrVoucherExpired
		}
		if voucher.ConsumedQuantity >= voucher.TotalQuantity {
			return ErrVoucherExhausted
		}

		// 检查是否已领取
		var claimed int64
		if err := tx.Model(&models.UserVoucher{}).
			Where("user_id = ? AND voucher_code = ?", userID, code).
			Count(&claimed).Error; err != nil {
			return err
		}
		if claimed > 0 {
			return ErrAlreadyClaimed
		}

		userVoucher = &models.UserVoucher{
			UserID:      userID,
			VoucherID:   voucher.ID,
			VoucherCode: voucher.Code,
			Status:      models.UserVoucherStatusUnused,
			ExpiredAt:   voucher.ValidUntil,
			ClaimedAt:   now,
		}
		if err := tx.Create(userVoucher).Error; err != nil {
			// 唯一索引冲突视为重复领取
			if strings.Contains(strings.ToLower(err.Error()), "unique") ||
				strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				return ErrAlreadyClaimed
			}
			return err
		}

		// 发放计数带条件自增，并发领完时回滚
		result := tx.Model(&models.Voucher{}).
			Where("id = ? AND total_quantity > consumed_quantity", voucher.ID).
			UpdateColumn("consumed_quantity", gorm.Expr("consumed_quantity + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVoucherExhausted
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Info("代金券领取成功",
		logger.UserID(userID),
		logger.VoucherCode(code),
	)

	return userVoucher, nil
}

// RedeemPreview 核销试算
// 只读校验与计算，不产生任何状态变更
func (s *VoucherService) RedeemPreview(ctx context.Context, userVoucherID, userID int64, orderAmount float64, providerCode string, hourlyRate float64) (float64, error) {
	uv, err := s.userVoucherRepo.GetByID(ctx, userVoucherID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, ErrUserVoucherNotFound
		}
		return 0, err
	}
	if uv.UserID != userID {
		return 0, ErrNotOwned
	}

	return s.preview(uv, orderAmount, providerCode, hourlyRate, time.Now())
}

// preview 校验可用性并计算抵扣金额
func (s *VoucherService) preview(uv *models.UserVoucher, orderAmount float64, providerCode string, hourlyRate float64, now time.Time) (float64, error) {
	if uv.Status == models.UserVoucherStatusUsed {
		return 0, ErrAlreadyUsed
	}
	if uv.Status == models.UserVoucherStatusExpired {
		return 0, ErrUserVoucherExpired
	}
	if uv.ExpiredAt != nil && now.After(*uv.ExpiredAt) {
		return 0, ErrUserVoucherExpired
	}

	voucher := uv.Voucher
	if voucher == nil {
		return 0, ErrVoucherNotFound
	}
	if voucher.ProviderCode != nil && *voucher.ProviderCode != providerCode {
		return 0, ErrScopeMismatch
	}
	if orderAmount < voucher.MinOrderAmount {
		return 0, ErrBelowMinimum
	}

	var amount float64
	switch voucher.Kind {
	case models.VoucherKindAmount:
		amount = voucher.Value
	case models.VoucherKindPercent:
		amount = utils.Round2(orderAmount * voucher.Value / 100)
	case models.VoucherKindFreeHours:
		amount = utils.Round2(voucher.Value * hourlyRate)
	default:
		return 0, ErrUnknownKind
	}

	if voucher.MaxDiscountAmount != nil && amount > *voucher.MaxDiscountAmount {
		amount = *voucher.MaxDiscountAmount
	}
	if amount > orderAmount {
		amount = orderAmount
	}

	return utils.Round2(amount), nil
}

// ConsumeTx 在已有事务中核销代金券并绑定订单
func (s *VoucherService) ConsumeTx(ctx context.Context, tx *gorm.DB, userVoucherID, orderID int64) error {
	err := s.userVoucherRepo.MarkUsedTx(ctx, tx, userVoucherID, orderID, time.Now())
	if err == gorm.ErrRecordNotFound {
		return ErrAlreadyUsed
	}
	return err
}

// ReleaseTx 在已有事务中恢复已核销的代金券
func (s *VoucherService) ReleaseTx(ctx context.Context, tx *gorm.DB, userVoucherID int64) error {
	err := s.userVoucherRepo.MarkUnusedTx(ctx, tx, userVoucherID)
	if err == gorm.ErrRecordNotFound {
		return ErrUserVoucherNotFound
	}
	return err
}

// VoucherApplication 多券组合核销的单券结果
type VoucherApplication struct {
	UserVoucherID int64   `json:"user_voucher_id"`
	VoucherCode   string  `json:"voucher_code"`
	Amount        float64 `json:"amount"`
}

// PreviewForAmount 多券组合试算
// 按到期时间升序（先到期先用）逐张抵扣，直到覆盖目标金额
func (s *VoucherService) PreviewForAmount(ctx context.Context, userID int64, providerCode string, amount float64, hourlyRate float64) ([]*VoucherApplication, float64, error) {
	if amount <= 0 {
		return nil, 0, nil
	}

	usable, err := s.userVoucherRepo.ListUsableByUser(ctx, userID, time.Now())
	if err != nil {
		return nil, 0, err
	}

	var applications []*VoucherApplication
	remaining := amount
	now := time.Now()

	for _, uv := range usable {
		if remaining <= 0 {
			break
		}
		deduct, err := s.preview(uv, remaining, providerCode, hourlyRate, now)
		if err != nil {
			// 不适用的券跳过，不中断组合
			continue
		}
		if deduct <= 0 {
			continue
		}
		applications = append(applications, &VoucherApplication{
			UserVoucherID: uv.ID,
			VoucherCode:   uv.VoucherCode,
			Amount:        deduct,
		})
		remaining = utils.Round2(remaining - deduct)
	}

	return applications, utils.Round2(amount - remaining), nil
}

// ConsumeForAmountTx 在已有事务中按组合核销多张代金券
// 逐张整券核销，先到期的先用；返回实际抵扣总额
func (s *VoucherService) ConsumeForAmountTx(ctx context.Context, tx *gorm.DB, userID int64, providerCode string, amount float64, hourlyRate float64, orderID int64) (float64, error) {
	if amount <= 0 {
		return 0, nil
	}

	var usable []*models.UserVoucher
	now := time.Now()
	err := tx.WithContext(ctx).Preload("Voucher").
		Where("user_id = ? AND status = ?", userID, models.UserVoucherStatusUnused).
		Where("expired_at IS NULL OR expired_at > ?", now).
		Order("expired_at ASC, id ASC").
		Find(&usable).Error
	if err != nil {
		return 0, err
	}

	var covered float64
	remaining := amount

	for _, uv := range usable {
		if remaining <= 0 {
			break
		}
		deduct, err := s.preview(uv, remaining, providerCode, hourlyRate, now)
		if err != nil || deduct <= 0 {
			continue
		}
		if err := s.ConsumeTx(ctx, tx, uv.ID, orderID); err != nil {
			return 0, err
		}
		covered = utils.Round2(covered + deduct)
		remaining = utils.Round2(remaining - deduct)
	}

	return covered, nil
}

// ExpireUserVouchers 批量过期用户代金券（调度任务）
func (s *VoucherService) ExpireUserVouchers(ctx context.Context) (int64, error) {
	return s.userVoucherRepo.ExpireOutdated(ctx, time.Now())
}

// ListClaimable 获取可领取的代金券模板列表
func (s *VoucherService) ListClaimable(ctx context.Context, offset, limit int) ([]*models.Voucher, int64, error) {
	return s.voucherRepo.ListClaimable(ctx, offset, limit)
}

// ListMine 获取用户的代金券列表
func (s *VoucherService) ListMine(ctx context.Context, userID int64, status *int8, offset, limit int) ([]*models.UserVoucher, int64, error) {
	return s.userVoucherRepo.ListByUser(ctx, userID, status, offset, limit)
}

// CreateVoucher 创建代金券模板（管理端）
func (s *VoucherService) CreateVoucher(ctx context.Context, voucher *models.Voucher) error {
	if voucher.Code == "" {
		voucher.Code = utils.GenerateVoucherCode(10)
	}
	return s.voucherRepo.Create(ctx, voucher)
}

// ListVouchers 获取代金券模板列表（管理端）
func (s *VoucherService) ListVouchers(ctx context.Context, params repository.VoucherListParams) ([]*models.Voucher, int64, error) {
	return s.voucherRepo.List(ctx, params)
}
