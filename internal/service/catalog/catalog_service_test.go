// Package catalog_test 资源目录服务单元测试
package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nebulink/gpu-market-backend/internal/common/cache"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	"github.com/nebulink/gpu-market-backend/internal/service/catalog"
)

// setupCatalogTestDB 创建测试数据库
func setupCatalogTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(&models.Resource{})
	require.NoError(t, err)

	return db
}

// setupCatalogTestCache 注入内存 Redis
func setupCatalogTestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = client.Close()
	})
}

// createTestResource 创建测试资源
func createTestResource(db *gorm.DB, opts ...func(*models.Resource)) *models.Resource {
	resource := &models.Resource{
		Name:         "A100 80G",
		Category:     models.ResourceCategoryGPU,
		ProviderCode: "aliyun",
		Model:        "A100",
		UnitPrice:    1.8,
		UnitDuration: models.DurationUnitHour,
		Stock:        10,
		Status:       models.ResourceStatusActive,
	}

	for _, opt := range opts {
		opt(resource)
	}

	originalStatus := resource.Status
	originalStock := resource.Stock

	db.Create(resource)

	// 零值字段被 GORM 跳过，显式回写
	if originalStatus == models.ResourceStatusOffline {
		db.Model(resource).Update("status", originalStatus)
	}
	if originalStock == 0 {
		db.Model(resource).Update("stock", 0)
	}

	return resource
}

// TestCatalogService_GetResource 测试资源查询与缓存
func TestCatalogService_GetResource(t *testing.T) {
	ctx := context.Background()

	t.Run("命中数据库后写入缓存", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		setupCatalogTestCache(t)
		svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), time.Minute)
		resource := createTestResource(db)

		got, err := svc.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, resource.Name, got.Name)

		// 直接改库不失效缓存，第二次读仍是旧值
		require.NoError(t, db.Model(resource).Update("name", "H100 80G").Error)

		got, err = svc.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, "A100 80G", got.Name)
	})

	t.Run("缓存失效后读到新值", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		setupCatalogTestCache(t)
		svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), time.Minute)
		resource := createTestResource(db)

		_, err := svc.GetResource(ctx, resource.ID)
		require.NoError(t, err)

		require.NoError(t, db.Model(resource).Update("name", "H100 80G").Error)
		svc.InvalidateResource(ctx, resource.ID)

		got, err := svc.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, "H100 80G", got.Name)
	})

	t.Run("缓存关闭时直接读库", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)
		resource := createTestResource(db)

		got, err := svc.GetResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, resource.ID, got.ID)
	})

	t.Run("资源不存在", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)

		_, err := svc.GetResource(ctx, 999)
		assert.ErrorIs(t, err, catalog.ErrResourceNotFound)
	})
}

// TestCatalogService_GetRentableResource 测试可租用校验
func TestCatalogService_GetRentableResource(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)

	t.Run("上架且有库存", func(t *testing.T) {
		resource := createTestResource(db)

		got, err := svc.GetRentableResource(ctx, resource.ID)
		require.NoError(t, err)
		assert.Equal(t, resource.ID, got.ID)
	})

	t.Run("已下架", func(t *testing.T) {
		resource := createTestResource(db, func(r *models.Resource) {
			r.Status = models.ResourceStatusOffline
		})

		_, err := svc.GetRentableResource(ctx, resource.ID)
		assert.ErrorIs(t, err, catalog.ErrResourceUnavailable)
	})

	t.Run("无库存", func(t *testing.T) {
		resource := createTestResource(db, func(r *models.Resource) {
			r.Stock = 0
		})

		_, err := svc.GetRentableResource(ctx, resource.ID)
		assert.ErrorIs(t, err, catalog.ErrResourceUnavailable)
	})
}

// TestCatalogService_AdjustStock 测试库存调整
func TestCatalogService_AdjustStock(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)

	t.Run("补货", func(t *testing.T) {
		resource := createTestResource(db)

		require.NoError(t, svc.AdjustStock(ctx, resource.ID, 5))

		var got models.Resource
		require.NoError(t, db.First(&got, resource.ID).Error)
		assert.Equal(t, 15, got.Stock)
	})

	t.Run("下调", func(t *testing.T) {
		resource := createTestResource(db)

		require.NoError(t, svc.AdjustStock(ctx, resource.ID, -4))

		var got models.Resource
		require.NoError(t, db.First(&got, resource.ID).Error)
		assert.Equal(t, 6, got.Stock)
	})

	t.Run("下调超过库存", func(t *testing.T) {
		resource := createTestResource(db, func(r *models.Resource) {
			r.Stock = 3
		})

		err := svc.AdjustStock(ctx, resource.ID, -5)
		assert.ErrorIs(t, err, catalog.ErrResourceUnavailable)

		var got models.Resource
		require.NoError(t, db.First(&got, resource.ID).Error)
		assert.Equal(t, 3, got.Stock)
	})
}

// TestCatalogService_UpdateResource 测试资源更新
func TestCatalogService_UpdateResource(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)

	t.Run("更新字段", func(t *testing.T) {
		resource := createTestResource(db)

		err := svc.UpdateResource(ctx, resource.ID, map[string]interface{}{
			"unit_price": 2.5,
		})
		require.NoError(t, err)

		var got models.Resource
		require.NoError(t, db.First(&got, resource.ID).Error)
		assert.Equal(t, 2.5, got.UnitPrice)
	})

	t.Run("资源不存在", func(t *testing.T) {
		err := svc.UpdateResource(ctx, 999, map[string]interface{}{"unit_price": 2.5})
		assert.ErrorIs(t, err, catalog.ErrResourceNotFound)
	})
}

// TestCatalogService_ListResources 测试资源列表
func TestCatalogService_ListResources(t *testing.T) {
	ctx := context.Background()
	db := setupCatalogTestDB(t)
	svc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)

	createTestResource(db)
	createTestResource(db, func(r *models.Resource) {
		r.Name = "机柜 42U"
		r.Category = models.ResourceCategorySpace
		r.ProviderCode = "idc-bj"
		r.Model = "42U"
	})

	t.Run("全部资源", func(t *testing.T) {
		list, total, err := svc.ListResources(ctx, repository.ResourceListParams{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, list, 2)
	})

	t.Run("按类别过滤", func(t *testing.T) {
		list, total, err := svc.ListResources(ctx, repository.ResourceListParams{
			Limit:    10,
			Category: models.ResourceCategorySpace,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		assert.Equal(t, "机柜 42U", list[0].Name)
	})
}
