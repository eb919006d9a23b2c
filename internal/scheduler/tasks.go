package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	billingService "github.com/nebulink/gpu-market-backend/internal/service/billing"
	discountService "github.com/nebulink/gpu-market-backend/internal/service/discount"
	voucherService "github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// 单轮批量处理上限
const taskBatchLimit = 100

// TaskHandler 任务处理器
type TaskHandler struct {
	orderService    *billingService.OrderService
	voucherService  *voucherService.VoucherService
	discountService *discountService.DiscountService
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(
	orderSvc *billingService.OrderService,
	voucherSvc *voucherService.VoucherService,
	discountSvc *discountService.DiscountService,
) *TaskHandler {
	return &TaskHandler{
		orderService:    orderSvc,
		voucherService:  voucherSvc,
		discountService: discountSvc,
	}
}

// CancelTimeoutOrders 取消超时未支付的订单
func (h *TaskHandler) CancelTimeoutOrders(ctx context.Context) error {
	count, err := h.orderService.CancelTimeoutOrders(ctx, taskBatchLimit)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("超时订单已批量取消", zap.Int("count", count))
	}
	return nil
}

// CompleteExpiredOrders 完成已到期的运行中订单
func (h *TaskHandler) CompleteExpiredOrders(ctx context.Context) error {
	count, err := h.orderService.CompleteExpiredOrders(ctx, taskBatchLimit)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("到期订单已批量完成", zap.Int("count", count))
	}
	return nil
}

// ExpireUserVouchers 过期用户代金券
func (h *TaskHandler) ExpireUserVouchers(ctx context.Context) error {
	count, err := h.voucherService.ExpireUserVouchers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("用户代金券已批量过期", zap.Int64("count", count))
	}
	return nil
}

// ExpireDiscountRules 过期失效的折扣规则
func (h *TaskHandler) ExpireDiscountRules(ctx context.Context) error {
	count, err := h.discountService.ExpireOutdatedRules(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("折扣规则已批量过期", zap.Int64("count", count))
	}
	return nil
}

// SetupTasks 设置所有任务
func SetupTasks(scheduler *Scheduler, handler *TaskHandler, orderInterval, voucherInterval time.Duration) {
	if orderInterval <= 0 {
		orderInterval = time.Minute
	}
	if voucherInterval <= 0 {
		voucherInterval = 5 * time.Minute
	}

	// 超时未支付订单自动取消
	scheduler.AddTask("CancelTimeoutOrders", orderInterval, handler.CancelTimeoutOrders)

	// 到期运行中订单自动完成
	scheduler.AddTask("CompleteExpiredOrders", orderInterval, handler.CompleteExpiredOrders)

	// 用户代金券过期
	scheduler.AddTask("ExpireUserVouchers", voucherInterval, handler.ExpireUserVouchers)

	// 折扣规则过期
	scheduler.AddTask("ExpireDiscountRules", voucherInterval, handler.ExpireDiscountRules)
}
