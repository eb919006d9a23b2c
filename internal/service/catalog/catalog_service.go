// Package catalog 提供资源目录服务
// 目录本身由外部系统维护，这里是结算侧的只读门面
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/common/cache"
	apperrors "github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/common/logger"
	"github.com/nebulink/gpu-market-backend/internal/common/metrics"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
)

// 目录模块错误定义
var (
	ErrResourceNotFound    = errors.New("资源不存在")
	ErrResourceUnavailable = errors.New("资源不可租用")
)

// CatalogService 资源目录服务
type CatalogService struct {
	db           *gorm.DB
	resourceRepo *repository.ResourceRepository
	cacheTTL     time.Duration
	cacheEnabled bool
}

// NewCatalogService 创建资源目录服务
func NewCatalogService(db *gorm.DB, resourceRepo *repository.ResourceRepository, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		db:           db,
		resourceRepo: resourceRepo,
		cacheTTL:     cacheTTL,
		cacheEnabled: cacheTTL > 0,
	}
}

// cacheKey 资源缓存键
func cacheKey(id int64) string {
	return fmt.Sprintf("%s%d", cache.KeyPrefixResource, id)
}

// GetResource 获取资源详情（带缓存）
func (s *CatalogService) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	if s.cacheEnabled && cache.GetClient() != nil {
		var cached models.Resource
		if err := cache.Get(ctx, cacheKey(id), &cached); err == nil {
			metrics.RecordCacheHitGlobal("resource")
			return &cached, nil
		}
		metrics.RecordCacheMissGlobal("resource")
	}

	resource, err := s.resourceRepo.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrResourceNotFound
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	if s.cacheEnabled && cache.GetClient() != nil {
		if err := cache.Set(ctx, cacheKey(id), resource, s.cacheTTL); err != nil {
			logger.Warn("资源缓存写入失败",
				logger.ResourceID(id),
				logger.Err(err),
			)
		}
	}

	return resource, nil
}

// GetRentableResource 获取可租用的资源
// 下架或无库存的资源不可进入结算
func (s *CatalogService) GetRentableResource(ctx context.Context, id int64) (*models.Resource, error) {
	resource, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if resource.Status != models.ResourceStatusActive || resource.Stock <= 0 {
		return nil, ErrResourceUnavailable
	}
	return resource, nil
}

// ListResources 获取资源列表
func (s *CatalogService) ListResources(ctx context.Context, params repository.ResourceListParams) ([]*models.Resource, int64, error) {
	list, total, err := s.resourceRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperrors.ErrDatabaseError.WithError(err)
	}
	return list, total, nil
}

// CreateResource 创建资源
func (s *CatalogService) CreateResource(ctx context.Context, resource *models.Resource) error {
	if err := s.resourceRepo.Create(ctx, resource); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// UpdateResource 更新资源字段
func (s *CatalogService) UpdateResource(ctx context.Context, id int64, fields map[string]interface{}) error {
	if _, err := s.resourceRepo.GetByID(ctx, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrResourceNotFound
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}
	if err := s.resourceRepo.UpdateFields(ctx, id, fields); err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	s.InvalidateResource(ctx, id)
	return nil
}

// AdjustStock 调整库存
// delta 为正补货，为负下调；下调不允许超过当前库存
func (s *CatalogService) AdjustStock(ctx context.Context, id int64, delta int) error {
	var err error
	if delta >= 0 {
		err = s.resourceRepo.IncrementStock(ctx, id, delta)
	} else {
		err = s.resourceRepo.DecrementStock(ctx, id, -delta)
	}
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrResourceUnavailable
		}
		return apperrors.ErrDatabaseError.WithError(err)
	}
	s.InvalidateResource(ctx, id)
	return nil
}

// InvalidateResource 失效资源缓存
// 库存变化后由结算侧调用
func (s *CatalogService) InvalidateResource(ctx context.Context, id int64) {
	if !s.cacheEnabled || cache.GetClient() == nil {
		return
	}
	if err := cache.Delete(ctx, cacheKey(id)); err != nil {
		logger.Warn("资源缓存失效失败",
			logger.ResourceID(id),
			logger.Err(err),
		)
	}
}
