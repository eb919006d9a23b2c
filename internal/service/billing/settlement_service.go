// Package billing 提供订单结算与订单状态机服务
package billing

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	"github.com/nebulink/gpu-market-backend/internal/common/metrics"
	"github.com/nebulink/gpu-market-backend/internal/common/tracing"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/service/catalog"
	"github.com/nebulink/gpu-market-backend/internal/service/discount"
	"github.com/nebulink/gpu-market-backend/internal/service/pricing"
	"github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// 订单号前缀
const orderNoPrefix = "GP"

// QuoteRequest 下单请求
type QuoteRequest struct {
	ResourceID    int64  `json:"resource_id" binding:"required"`
	Duration      int    `json:"duration" binding:"required,min=1"`
	DurationUnit  string `json:"duration_unit" binding:"required,oneof=hour day month year"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
	UserVoucherID *int64 `json:"user_voucher_id,omitempty"`
}

// SettlementService 订单结算服务
// 报价管道固定为：原价 -> 折扣 -> 代金券 -> 应付金额
type SettlementService struct {
	db              *gorm.DB
	catalogService  *catalog.CatalogService
	pricingService  *pricing.PricingService
	discountService *discount.DiscountService
	voucherService  *voucher.VoucherService
}

// NewSettlementService 创建订单结算服务
func NewSettlementService(
	db *gorm.DB,
	catalogService *catalog.CatalogService,
	pricingService *pricing.PricingService,
	discountService *discount.DiscountService,
	voucherService *voucher.VoucherService,
) *SettlementService {
	return &SettlementService{
		db:              db,
		catalogService:  catalogService,
		pricingService:  pricingService,
		discountService: discountService,
		voucherService:  voucherService,
	}
}

// Quote 结算报价并创建待支付订单
// 代金券不可用时降级为不使用代金券继续下单，只告警不阻断
func (s *SettlementService) Quote(ctx context.Context, userID int64, req *QuoteRequest) (*models.Order, error) {
	start := time.Now()
	ctx, span := tracing.GetTracer().StartSpan(ctx, "billing.quote",
		tracing.WithUserID(userID),
		tracing.WithResourceID(req.ResourceID),
	)
	defer span.End()

	resource, err := s.catalogService.GetRentableResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	originalPrice, err := s.pricingService.BasePrice(resource.UnitPrice, req.Duration, req.DurationUnit, req.Quantity)
	if err != nil {
		return nil, err
	}
	hourlyRate, err := s.pricingService.HourlyRate(resource.UnitPrice, resource.UnitDuration)
	if err != nil {
		return nil, err
	}

	// 折扣规则快照
	var discountAmount float64
	var discountID *int64
	var discountRate *float64
	rule, err := s.discountService.Resolve(ctx, resource.ProviderCode, resource.Model, resource.ID)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		discountAmount = s.discountService.Amount(rule, originalPrice)
		discountID = &rule.ID
		discountRate = &rule.Rate
	}

	// 代金券按折后金额抵扣
	afterDiscount := utils.Round2(originalPrice - discountAmount)
	var voucherAmount float64
	userVoucherID := req.UserVoucherID
	if userVoucherID != nil {
		voucherAmount, err = s.voucherService.RedeemPreview(ctx, *userVoucherID, userID, afterDiscount, resource.ProviderCode, hourlyRate)
		if err != nil {
			logger.Warn("代金券不可用，降级为不使用代金券",
				logger.UserID(userID),
				logger.ResourceID(resource.ID),
				zap.Int64("user_voucher_id", *userVoucherID),
				logger.Err(err),
			)
			metrics.GetMetrics().RecordVoucherRedeem("rejected")
			voucherAmount = 0
			userVoucherID = nil
		}
	}

	finalPrice := utils.Round2(originalPrice - discountAmount - voucherAmount)
	if finalPrice < 0 {
		finalPrice = 0
	}
	if finalPrice > originalPrice || utils.Round2(discountAmount+voucherAmount+finalPrice) < utils.Round2(originalPrice) {
		logger.Error("结算金额不变量被破坏",
			logger.UserID(userID),
			logger.ResourceID(resource.ID),
			logger.Amount(originalPrice),
			zap.Float64("discount_amount", discountAmount),
			zap.Float64("voucher_amount", voucherAmount),
			zap.Float64("final_price", finalPrice),
		)
		return nil, ErrSettlementInvalid
	}

	order := &models.Order{
		OrderNo:        utils.GenerateOrderNo(orderNoPrefix),
		UserID:         userID,
		ResourceID:     resource.ID,
		Quantity:       req.Quantity,
		Duration:       req.Duration,
		DurationUnit:   req.DurationUnit,
		OriginalPrice:  originalPrice,
		DiscountAmount: discountAmount,
		DiscountID:     discountID,
		DiscountRate:   discountRate,
		VoucherAmount:  voucherAmount,
		UserVoucherID:  userVoucherID,
		FinalPrice:     finalPrice,
		Status:         models.OrderStatusPending,
	}

	// 订单创建与代金券占用同事务，避免券被占而订单未落库
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(order).Error; err != nil {
			return err
		}
		if userVoucherID != nil {
			if err := s.voucherService.ConsumeTx(ctx, tx, *userVoucherID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if userVoucherID != nil {
		metrics.GetMetrics().RecordVoucherRedeem("consumed")
	}
	span.SetAttributes(tracing.WithOrderNo(order.OrderNo))
	metrics.GetMetrics().RecordSettlement(time.Since(start), originalPrice, discountAmount, voucherAmount, finalPrice)
	metrics.GetMetrics().RecordOrder("pending")

	logger.Info("订单结算完成",
		logger.UserID(userID),
		logger.ResourceID(resource.ID),
		logger.OrderNo(order.OrderNo),
		logger.Amount(finalPrice),
	)

	return order, nil
}
