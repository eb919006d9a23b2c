package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/models"
)

// OrderRepository 订单仓储
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建订单
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Resource").First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据订单号获取订单
func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Resource").Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update 更新订单
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// UpdateFields 更新指定字段
func (r *OrderRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateStatusFrom 带前置状态校验的状态流转
// 当前状态不匹配时不生效，调用方据此判断状态冲突
func (r *OrderRepository) UpdateStatusFrom(ctx context.Context, id int64, fromStatus, toStatus int8, extra map[string]interface{}) error {
	fields := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		fields[k] = v
	}
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// OrderListParams 订单列表查询参数
type OrderListParams struct {
	Offset     int
	Limit      int
	UserID     int64
	ResourceID *int64
	Status     *int8
	StartTime  *time.Time
	EndTime    *time.Time
}

// List 获取订单列表
func (r *OrderRepository) List(ctx context.Context, params OrderListParams) ([]*models.Order, int64, error) {
	var orders []*models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})

	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.ResourceID != nil {
		query = query.Where("resource_id = ?", *params.ResourceID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
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

	if err := query.Preload("Resource").Order("created_at DESC").Offset(params.Offset).Limit(params.Limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// ListTimeoutPending 获取超时未支付的订单
func (r *OrderRepository) ListTimeoutPending(ctx context.Context, deadline time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, deadline).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListExpiredRunning 获取已到期的运行中订单
func (r *OrderRepository) ListExpiredRunning(ctx context.Context, now time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", models.OrderStatusRunning).
		Where("started_at IS NOT NULL").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	// 到期判断依赖时长单位，SQL 不便表达，内存过滤
	expired := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if o.StartedAt == nil {
			continue
		}
		if o.StartedAt.Add(RentalDuration(o.Duration, o.DurationUnit)).Before(now) {
			expired = append(expired, o)
		}
	}
	return expired, nil
}

// RentalDuration 计算租期真实时长
func RentalDuration(duration int, unit string) time.Duration {
	d := time.Duration(duration)
	switch unit {
	case models.DurationUnitHour:
		return d * time.Hour
	case models.DurationUnitDay:
		return d * 24 * time.Hour
	case models.DurationUnitMonth:
		return d * 720 * time.Hour
	case models.DurationUnitYear:
		return d * 8760 * time.Hour
	default:
		return d * time.Hour
	}
}
