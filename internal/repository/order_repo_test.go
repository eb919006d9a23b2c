// Package repository_test 订单仓储单元测试
package repository_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nebulink/gpu-market-backend/internal/common/utils"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
)

// setupOrderRepoTestDB 创建测试数据库
func setupOrderRepoTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(
		&models.Resource{},
		&models.Order{},
	)
	require.NoError(t, err)

	return db
}

// createRepoTestOrder 创建测试订单
func createRepoTestOrder(db *gorm.DB, opts ...func(*models.Order)) *models.Order {
	order := &models.Order{
		OrderNo:       utils.GenerateOrderNo("GP"),
		UserID:        1,
		ResourceID:    1,
		Quantity:      1,
		Duration:      24,
		DurationUnit:  models.DurationUnitHour,
		OriginalPrice: 43.20,
		FinalPrice:    43.20,
		Status:        models.OrderStatusPending,
	}

	for _, opt := range opts {
		opt(order)
	}

	db.Create(order)
	return order
}

// TestOrderRepository_UpdateStatusFrom 测试带前置状态校验的流转
func TestOrderRepository_UpdateStatusFrom(t *testing.T) {
	ctx := context.Background()
	db := setupOrderRepoTestDB(t)
	repo := repository.NewOrderRepository(db)

	order := createRepoTestOrder(db)

	t.Run("前置状态匹配时生效", func(t *testing.T) {
		err := repo.UpdateStatusFrom(ctx, order.ID, models.OrderStatusPending, models.OrderStatusPaid,
			map[string]interface{}{"payment_time": time.Now()})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, int8(models.OrderStatusPaid), got.Status)
		assert.NotNil(t, got.PaymentTime)
	})

	t.Run("前置状态不匹配时不生效", func(t *testing.T) {
		err := repo.UpdateStatusFrom(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled, nil)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, int8(models.OrderStatusPaid), got.Status)
	})
}

// TestOrderRepository_ListTimeoutPending 测试超时待支付查询
func TestOrderRepository_ListTimeoutPending(t *testing.T) {
	ctx := context.Background()
	db := setupOrderRepoTestDB(t)
	repo := repository.NewOrderRepository(db)

	old := createRepoTestOrder(db)
	createRepoTestOrder(db)
	paid := createRepoTestOrder(db, func(o *models.Order) {
		o.Status = models.OrderStatusPaid
	})

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Order{}).Where("id IN ?", []int64{old.ID, paid.ID}).
		Update("created_at", past).Error)

	list, err := repo.ListTimeoutPending(ctx, time.Now().Add(-15*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, old.ID, list[0].ID)
}

// TestOrderRepository_ListExpiredRunning 测试到期运行中查询
// 到期判断按时长单位换算，在内存过滤
func TestOrderRepository_ListExpiredRunning(t *testing.T) {
	ctx := context.Background()
	db := setupOrderRepoTestDB(t)
	repo := repository.NewOrderRepository(db)

	expired := createRepoTestOrder(db, func(o *models.Order) {
		o.Status = models.OrderStatusRunning
		o.Duration = 1
		o.StartedAt = utils.TimePtr(time.Now().Add(-2 * time.Hour))
	})
	createRepoTestOrder(db, func(o *models.Order) {
		o.Status = models.OrderStatusRunning
		o.Duration = 24
		o.StartedAt = utils.TimePtr(time.Now().Add(-2 * time.Hour))
	})
	createRepoTestOrder(db, func(o *models.Order) {
		o.Status = models.OrderStatusRunning
		o.Duration = 1
		o.DurationUnit = models.DurationUnitDay
		o.StartedAt = utils.TimePtr(time.Now().Add(-2 * time.Hour))
	})

	list, err := repo.ListExpiredRunning(ctx, time.Now(), 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)
}

// TestRentalDuration 测试租期换算
func TestRentalDuration(t *testing.T) {
	assert.Equal(t, 3*time.Hour, repository.RentalDuration(3, models.DurationUnitHour))
	assert.Equal(t, 48*time.Hour, repository.RentalDuration(2, models.DurationUnitDay))
	assert.Equal(t, 720*time.Hour, repository.RentalDuration(1, models.DurationUnitMonth))
	assert.Equal(t, 8760*time.Hour, repository.RentalDuration(1, models.DurationUnitYear))
	// 未知单位按小时兜底
	assert.Equal(t, 2*time.Hour, repository.RentalDuration(2, "unknown"))
}
