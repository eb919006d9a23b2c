// Package discount_test 折扣规则服务单元测试
package discount_test

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
	"github.com/nebulink/gpu-market-backend/internal/service/discount"
)

// setupDiscountTestDB 创建测试数据库
func setupDiscountTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(&models.DiscountRule{})
	require.NoError(t, err)

	return db
}

// createDiscountTestService 创建测试服务
func createDiscountTestService(db *gorm.DB) *discount.DiscountService {
	return discount.NewDiscountService(db, repository.NewDiscountRuleRepository(db))
}

// createTestRule 创建测试折扣规则
func createTestRule(db *gorm.DB, opts ...func(*models.DiscountRule)) *models.DiscountRule {
	rule := &models.DiscountRule{
		Name:   "测试折扣",
		Rate:   10,
		Status: models.DiscountRuleStatusActive,
	}

	for _, opt := range opts {
		opt(rule)
	}

	originalStatus := rule.Status

	db.Create(rule)

	// 状态为禁用(0)时需要显式更新，GORM 会跳过零值使用数据库默认值
	if originalStatus == models.DiscountRuleStatusDisabled {
		db.Model(rule).Update("status", originalStatus)
	}

	return rule
}

// TestDiscountService_Resolve 测试折扣规则解析
func TestDiscountService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("未命中返回空不报错", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("空作用域字段视为通配", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		created := createTestRule(db)

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, created.ID, rule.ID)
	})

	t.Run("供应商维度精确匹配", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) {
			r.ProviderCode = utils.StringPtr("aliyun")
		})

		rule, err := svc.Resolve(ctx, "tencent", "A100", 1)
		require.NoError(t, err)
		assert.Nil(t, rule)

		rule, err = svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		assert.NotNil(t, rule)
	})

	t.Run("型号与资源维度匹配", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) {
			r.Model = utils.StringPtr("A100")
			r.ResourceID = utils.Int64Ptr(7)
		})

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 7)
		require.NoError(t, err)
		assert.NotNil(t, rule)

		rule, err = svc.Resolve(ctx, "aliyun", "A100", 8)
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("优先级高者优先", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) {
			r.Rate = 20
			r.Priority = 1
		})
		high := createTestRule(db, func(r *models.DiscountRule) {
			r.Rate = 5
			r.Priority = 10
		})

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, high.ID, rule.ID)
	})

	t.Run("同优先级取折扣力度大者", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) { r.Rate = 10 })
		big := createTestRule(db, func(r *models.DiscountRule) { r.Rate = 30 })

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, big.ID, rule.ID)
	})

	t.Run("同优先级同力度取先创建者", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		first := createTestRule(db)
		createTestRule(db)

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		require.NotNil(t, rule)
		assert.Equal(t, first.ID, rule.ID)
	})

	t.Run("有效期外不命中", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) {
			r.ValidFrom = utils.TimePtr(time.Now().Add(time.Hour))
		})
		createTestRule(db, func(r *models.DiscountRule) {
			r.ValidUntil = utils.TimePtr(time.Now().Add(-time.Hour))
		})

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("禁用规则不命中", func(t *testing.T) {
		db := setupDiscountTestDB(t)
		svc := createDiscountTestService(db)
		createTestRule(db, func(r *models.DiscountRule) {
			r.Status = models.DiscountRuleStatusDisabled
		})

		rule, err := svc.Resolve(ctx, "aliyun", "A100", 1)
		require.NoError(t, err)
		assert.Nil(t, rule)
	})
}

// TestDiscountService_Amount 测试折扣金额计算
func TestDiscountService_Amount(t *testing.T) {
	svc := createDiscountTestService(nil)

	t.Run("按比例减免", func(t *testing.T) {
		rule := &models.DiscountRule{Rate: 10}
		assert.Equal(t, 4.32, svc.Amount(rule, 43.20))
	})

	t.Run("全额减免", func(t *testing.T) {
		rule := &models.DiscountRule{Rate: 100}
		assert.Equal(t, 50.0, svc.Amount(rule, 50))
	})

	t.Run("空规则为零", func(t *testing.T) {
		assert.Equal(t, 0.0, svc.Amount(nil, 43.20))
	})

	t.Run("零原价为零", func(t *testing.T) {
		rule := &models.DiscountRule{Rate: 10}
		assert.Equal(t, 0.0, svc.Amount(rule, 0))
	})
}

// TestDiscountService_CreateRule 测试创建折扣规则
func TestDiscountService_CreateRule(t *testing.T) {
	ctx := context.Background()
	db := setupDiscountTestDB(t)
	svc := createDiscountTestService(db)

	t.Run("创建成功", func(t *testing.T) {
		rule := &models.DiscountRule{
			Name:   "新用户折扣",
			Rate:   15,
			Status: models.DiscountRuleStatusActive,
		}
		err := svc.CreateRule(ctx, rule)
		require.NoError(t, err)
		assert.NotZero(t, rule.ID)
	})

	t.Run("比例为零", func(t *testing.T) {
		err := svc.CreateRule(ctx, &models.DiscountRule{Name: "无效", Rate: 0})
		assert.ErrorIs(t, err, discount.ErrInvalidRate)
	})

	t.Run("比例超过一百", func(t *testing.T) {
		err := svc.CreateRule(ctx, &models.DiscountRule{Name: "无效", Rate: 101})
		assert.ErrorIs(t, err, discount.ErrInvalidRate)
	})
}

// TestDiscountService_DisableRule 测试禁用折扣规则
func TestDiscountService_DisableRule(t *testing.T) {
	ctx := context.Background()
	db := setupDiscountTestDB(t)
	svc := createDiscountTestService(db)
	rule := createTestRule(db)

	err := svc.DisableRule(ctx, rule.ID)
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, "aliyun", "A100", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestDiscountService_ExpireOutdatedRules 测试过期规则批量处理
func TestDiscountService_ExpireOutdatedRules(t *testing.T) {
	ctx := context.Background()
	db := setupDiscountTestDB(t)
	svc := createDiscountTestService(db)

	expired := createTestRule(db, func(r *models.DiscountRule) {
		r.ValidUntil = utils.TimePtr(time.Now().Add(-time.Hour))
	})
	alive := createTestRule(db, func(r *models.DiscountRule) {
		r.ValidUntil = utils.TimePtr(time.Now().Add(time.Hour))
	})

	count, err := svc.ExpireOutdatedRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var got models.DiscountRule
	require.NoError(t, db.First(&got, expired.ID).Error)
	assert.Equal(t, int8(models.DiscountRuleStatusExpired), got.Status)

	require.NoError(t, db.First(&got, alive.ID).Error)
	assert.Equal(t, int8(models.DiscountRuleStatusActive), got.Status)
}
