package billing

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	"github.com/nebulink/gpu-market-backend/internal/common/metrics"
	"github.com/nebulink/gpu-market-backend/internal/common/tracing"
	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	"github.com/nebulink/gpu-market-backend/internal/service/account"
	"github.com/nebulink/gpu-market-backend/internal/service/catalog"
	"github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// OrderService 订单状态机服务
// 状态流转：pending -> paid -> running -> completed，pending 可取消
type OrderService struct {
	db             *gorm.DB
	orderRepo      *repository.OrderRepository
	accountService *account.AccountService
	voucherService *voucher.VoucherService
	catalogService *catalog.CatalogService
	maxRetries     int
	paymentTimeout time.Duration
}

// NewOrderService 创建订单状态机服务
func NewOrderService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	accountService *account.AccountService,
	voucherService *voucher.VoucherService,
	catalogService *catalog.CatalogService,
	maxRetries int,
	paymentTimeout time.Duration,
) *OrderService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &OrderService{
		db:             db,
		orderRepo:      orderRepo,
		accountService: accountService,
		voucherService: voucherService,
		catalogService: catalogService,
		maxRetries:     maxRetries,
		paymentTimeout: paymentTimeout,
	}
}

// withRetry 对瞬时冲突（死锁、序列化失败、锁超时）有限次重试
func (s *OrderService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.GetMetrics().RecordTxRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		err = fn()
		if err == nil || !apperrors.IsTransient(err) {
			return err
		}
		logger.Warn("事务瞬时冲突，准备重试",
			zap.Int("attempt", attempt+1),
			logger.Err(err),
		)
	}
	return err
}

// getOrderTx 事务内按主键读取订单
func (s *OrderService) getOrderTx(ctx context.Context, tx *gorm.DB, orderID int64) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).First(&order, orderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Pay 余额支付订单
// 重复支付幂等返回成功；扣款、扣库存、状态流转同事务。
// 状态翻转先行：条件更新即行锁，并发支付只有一方翻转成功，失败方整体回滚
func (s *OrderService) Pay(ctx context.Context, userID, orderID int64) error {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "billing.pay",
		tracing.WithUserID(userID),
		tracing.WithOperation("pay"),
	)
	defer span.End()

	var resourceID int64
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order, err := s.getOrderTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if order.UserID != userID {
				return ErrOrderNotOwned
			}
			if order.Status == models.OrderStatusPaid {
				// 重复支付请求，幂等
				return nil
			}
			if order.Status != models.OrderStatusPending {
				return ErrInvalidState
			}

			now := time.Now()
			method := models.PaymentMethodBalance
			if order.VoucherAmount > 0 {
				method = models.PaymentMethodMixed
			}
			flip := tx.WithContext(ctx).Model(&models.Order{}).
				Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
				Updates(map[string]interface{}{
					"status":         models.OrderStatusPaid,
					"payment_method": method,
					"payment_time":   now,
				})
			if flip.Error != nil {
				return flip.Error
			}
			if flip.RowsAffected == 0 {
				// 并发支付对方先翻转：已支付则幂等成功
				current, err := s.getOrderTx(ctx, tx, orderID)
				if err != nil {
					return err
				}
				if current.Status == models.OrderStatusPaid {
					return nil
				}
				return ErrInvalidState
			}

			if err := s.accountService.ConsumeTx(ctx, tx, userID, order.FinalPrice, order.ID, "order"); err != nil {
				return err
			}

			// 库存扣减带余量守卫，并发下不超卖
			result := tx.WithContext(ctx).Model(&models.Resource{}).
				Where("id = ? AND stock >= ?", order.ResourceID, order.Quantity).
				Update("stock", gorm.Expr("stock - ?", order.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrOutOfStock
			}

			resourceID = order.ResourceID
			return nil
		})
	})
	if err != nil {
		metrics.GetMetrics().RecordPayment("balance", "failed")
		return err
	}

	if resourceID > 0 {
		s.catalogService.InvalidateResource(ctx, resourceID)
	}
	metrics.GetMetrics().RecordPayment("balance", "success")
	metrics.GetMetrics().RecordOrder("paid")
	logger.Info("订单支付成功",
		logger.UserID(userID),
		zap.Int64("order_id", orderID),
	)
	return nil
}

// Cancel 取消待支付订单
// 仅 pending 可取消；已占用的代金券回到未使用
func (s *OrderService) Cancel(ctx context.Context, userID, orderID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.getOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if userID > 0 && order.UserID != userID {
			return ErrOrderNotOwned
		}
		if order.Status != models.OrderStatusPending {
			return ErrInvalidState
		}

		// 条件更新即行锁，并发取消或支付只有一方生效
		flip := tx.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusCancelled,
				"cancelled_at": time.Now(),
			})
		if flip.Error != nil {
			return flip.Error
		}
		if flip.RowsAffected == 0 {
			return ErrInvalidState
		}

		if order.UserVoucherID != nil {
			if err := s.voucherService.ReleaseTx(ctx, tx, *order.UserVoucherID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.GetMetrics().RecordOrder("cancelled")
	logger.Info("订单已取消",
		logger.UserID(userID),
		zap.Int64("order_id", orderID),
	)
	return nil
}

// Fail 将订单置为失败（系统/管理端操作）
// pending 与 paid 可失败；已支付订单退款并回补库存，占用的代金券恢复
func (s *OrderService) Fail(ctx context.Context, orderID int64, reason string) error {
	var restockResourceID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.getOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusPaid {
			return ErrInvalidState
		}

		flip := tx.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(map[string]interface{}{
				"status":    models.OrderStatusFailed,
				"failed_at": time.Now(),
				"remark":    reason,
			})
		if flip.Error != nil {
			return flip.Error
		}
		if flip.RowsAffected == 0 {
			return ErrInvalidState
		}

		// 已支付订单补偿：退款并回补库存
		if order.Status == models.OrderStatusPaid {
			if order.FinalPrice > 0 {
				if err := s.accountService.RefundTx(ctx, tx, order.UserID, order.FinalPrice, order.ID, "order"); err != nil {
					return err
				}
			}
			restock := tx.WithContext(ctx).Model(&models.Resource{}).
				Where("id = ?", order.ResourceID).
				Update("stock", gorm.Expr("stock + ?", order.Quantity))
			if restock.Error != nil {
				return restock.Error
			}
			restockResourceID = order.ResourceID
		}

		if order.UserVoucherID != nil {
			if err := s.voucherService.ReleaseTx(ctx, tx, *order.UserVoucherID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if restockResourceID > 0 {
		s.catalogService.InvalidateResource(ctx, restockResourceID)
	}
	metrics.GetMetrics().RecordOrder("failed")
	logger.Warn("订单已置为失败",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason),
	)
	return nil
}

// Start 启动已支付订单
func (s *OrderService) Start(ctx context.Context, userID, orderID int64) error {
	order, err := s.getOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPaid {
		return ErrInvalidState
	}

	err = s.orderRepo.UpdateStatusFrom(ctx, orderID, models.OrderStatusPaid, models.OrderStatusRunning,
		map[string]interface{}{"started_at": time.Now()})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrInvalidState
		}
		return err
	}
	metrics.GetMetrics().RecordOrder("running")
	return nil
}

// Complete 完成运行中订单
// userID 为 0 时视为系统操作，跳过归属校验
func (s *OrderService) Complete(ctx context.Context, userID, orderID int64) error {
	order, err := s.getOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusRunning {
		return ErrInvalidState
	}

	err = s.orderRepo.UpdateStatusFrom(ctx, orderID, models.OrderStatusRunning, models.OrderStatusCompleted,
		map[string]interface{}{"completed_at": time.Now()})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrInvalidState
		}
		return err
	}
	metrics.GetMetrics().RecordOrder("completed")
	return nil
}

// GetOrder 获取订单详情
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	return s.getOwnedOrder(ctx, userID, orderID)
}

// GetOrderByNo 根据订单号获取订单
func (s *OrderService) GetOrderByNo(ctx context.Context, userID int64, orderNo string) (*models.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if userID > 0 && order.UserID != userID {
		return nil, ErrOrderNotOwned
	}
	return order, nil
}

// ListOrders 获取订单列表
func (s *OrderService) ListOrders(ctx context.Context, params repository.OrderListParams) ([]*models.Order, int64, error) {
	return s.orderRepo.List(ctx, params)
}

func (s *OrderService) getOwnedOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if userID > 0 && order.UserID != userID {
		return nil, ErrOrderNotOwned
	}
	return order, nil
}

// PaymentPlan 支付方式试算结果
type PaymentPlan struct {
	OrderID        int64                         `json:"order_id"`
	FinalPrice     float64                       `json:"final_price"`
	Balance        float64                       `json:"balance"`
	BalanceEnough  bool                          `json:"balance_enough"`
	Vouchers       []*voucher.VoucherApplication `json:"vouchers"`
	VoucherCovered float64                       `json:"voucher_covered"`
	NeedRecharge   float64                       `json:"need_recharge"`
}

// PreviewPaymentMethods 支付方式试算
// 展示余额是否足够，以及可用代金券组合能覆盖多少
func (s *OrderService) PreviewPaymentMethods(ctx context.Context, userID, orderID int64) (*PaymentPlan, error) {
	order, err := s.getOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, ErrInvalidState
	}

	balance, err := s.accountService.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	providerCode := ""
	hourlyRate := 0.0
	if order.Resource != nil {
		providerCode = order.Resource.ProviderCode
		if order.Duration > 0 {
			hourlyRate = utils.Round2(order.OriginalPrice / float64(order.Quantity) /
				float64(repository.RentalDuration(order.Duration, order.DurationUnit).Hours()))
		}
	}

	apps, covered, err := s.voucherService.PreviewForAmount(ctx, userID, providerCode, order.FinalPrice, hourlyRate)
	if err != nil {
		return nil, err
	}

	plan := &PaymentPlan{
		OrderID:        order.ID,
		FinalPrice:     order.FinalPrice,
		Balance:        balance,
		BalanceEnough:  balance >= order.FinalPrice,
		Vouchers:       apps,
		VoucherCovered: covered,
	}
	need := utils.Round2(order.FinalPrice - balance - covered)
	if need > 0 {
		plan.NeedRecharge = need
	}
	return plan, nil
}

// CancelTimeoutOrders 取消超时未支付订单，返回处理数量
func (s *OrderService) CancelTimeoutOrders(ctx context.Context, limit int) (int, error) {
	deadline := time.Now().Add(-s.paymentTimeout)
	orders, err := s.orderRepo.ListTimeoutPending(ctx, deadline, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range orders {
		if err := s.Cancel(ctx, 0, o.ID); err != nil {
			if err == ErrInvalidState {
				continue
			}
			logger.Warn("超时订单取消失败",
				zap.Int64("order_id", o.ID),
				logger.Err(err),
			)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// CompleteExpiredOrders 完成已到期的运行中订单，返回处理数量
func (s *OrderService) CompleteExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.ListExpiredRunning(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, o := range orders {
		if err := s.Complete(ctx, 0, o.ID); err != nil {
			if err == ErrInvalidState {
				continue
			}
			logger.Warn("到期订单完成失败",
				zap.Int64("order_id", o.ID),
				logger.Err(err),
			)
			continue
		}
		completed++
	}
	return completed, nil
}
