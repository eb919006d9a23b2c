// Package discount 提供折扣规则服务
package discount

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
)

// 折扣模块错误定义
var (
	ErrRuleNotFound = errors.New("折扣规则不存在")
	ErrInvalidRate  = errors.New("无效的折扣比例")
)

// DiscountService 折扣规则服务
type DiscountService struct {
	db       *gorm.DB
	ruleRepo *repository.DiscountRuleRepository
}

// NewDiscountService 创建折扣规则服务
func NewDiscountService(db *gorm.DB, ruleRepo *repository.DiscountRuleRepository) *DiscountService {
	return &DiscountService{
		db:       db,
		ruleRepo: ruleRepo,
	}
}

// Resolve 解析命中资源维度的折扣规则
// 未命中返回 nil，不视为错误；规则不叠加，最多返回一条
func (s *DiscountService) Resolve(ctx context.Context, providerCode, model string, resourceID int64) (*models.DiscountRule, error) {
	rule, err := s.ruleRepo.FindBestMatch(ctx, providerCode, model, resourceID, time.Now())
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return rule, nil
}

// Amount 计算折扣金额
// rate 为折扣百分比（10 表示九折减免 10%）
func (s *DiscountService) Amount(rule *models.DiscountRule, originalPrice float64) float64 {
	if rule == nil || originalPrice <= 0 {
		return 0
	}
	amount := utils.Round2(originalPrice * rule.Rate / 100)
	if amount > originalPrice {
		amount = originalPrice
	}
	return amount
}

// CreateRule 创建折扣规则（管理端）
func (s *DiscountService) CreateRule(ctx context.Context, rule *models.DiscountRule) error {
	if rule.Rate <= 0 || rule.Rate > 100 {
		return ErrInvalidRate
	}
	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// GetRule 获取折扣规则
func (s *DiscountService) GetRule(ctx context.Context, id int64) (*models.DiscountRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRuleNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return rule, nil
}

// ListRules 获取折扣规则列表（管理端）
func (s *DiscountService) ListRules(ctx context.Context, params repository.DiscountRuleListParams) ([]*models.DiscountRule, int64, error) {
	list, total, err := s.ruleRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperrors.ErrDatabaseError.WithError(err)
	}
	return list, total, nil
}

// DisableRule 禁用折扣规则
func (s *DiscountService) DisableRule(ctx context.Context, id int64) error {
	if err := s.ruleRepo.UpdateFields(ctx, id, map[string]interface{}{
		"status": models.DiscountRuleStatusDisabled,
	}); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// ExpireOutdatedRules 将过期规则置为过期状态（调度任务）
func (s *DiscountService) ExpireOutdatedRules(ctx context.Context) (int64, error) {
	return s.ruleRepo.ExpireOutdated(ctx, time.Now())
}
