// Package billing_test 订单结算单元测试
package billing_test

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
	"github.com/nebulink/gpu-market-backend/internal/service/account"
	"github.com/nebulink/gpu-market-backend/internal/service/billing"
	"github.com/nebulink/gpu-market-backend/internal/service/catalog"
	"github.com/nebulink/gpu-market-backend/internal/service/discount"
	"github.com/nebulink/gpu-market-backend/internal/service/pricing"
	"github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// billingTestEnv 结算测试环境
type billingTestEnv struct {
	db         *gorm.DB
	settlement *billing.SettlementService
	order      *billing.OrderService
	recharge   *billing.RechargeService
	account    *account.AccountService
	voucher    *voucher.VoucherService
	catalog    *catalog.CatalogService
}

// setupBillingTestEnv 创建结算测试环境
func setupBillingTestEnv(t *testing.T) *billingTestEnv {
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
		&models.DiscountRule{},
		&models.Voucher{},
		&models.UserVoucher{},
		&models.Order{},
		&models.Account{},
		&models.AccountTransaction{},
		&models.RechargeOrder{},
	)
	require.NoError(t, err)

	catalogSvc := catalog.NewCatalogService(db, repository.NewResourceRepository(db), 0)
	pricingSvc := pricing.NewPricingService()
	discountSvc := discount.NewDiscountService(db, repository.NewDiscountRuleRepository(db))
	voucherSvc := voucher.NewVoucherService(db,
		repository.NewVoucherRepository(db),
		repository.NewUserVoucherRepository(db),
	)
	accountSvc := account.NewAccountService(db,
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
	)

	return &billingTestEnv{
		db:         db,
		settlement: billing.NewSettlementService(db, catalogSvc, pricingSvc, discountSvc, voucherSvc),
		order: billing.NewOrderService(db,
			repository.NewOrderRepository(db),
			accountSvc, voucherSvc, catalogSvc,
			3, 15*time.Minute,
		),
		recharge: billing.NewRechargeService(db,
			repository.NewRechargeRepository(db),
			accountSvc,
		),
		account: accountSvc,
		voucher: voucherSvc,
		catalog: catalogSvc,
	}
}

// createBillingResource 创建测试资源
func createBillingResource(db *gorm.DB, opts ...func(*models.Resource)) *models.Resource {
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

	if originalStatus == models.ResourceStatusOffline {
		db.Model(resource).Update("status", originalStatus)
	}
	if originalStock == 0 {
		db.Model(resource).Update("stock", 0)
	}

	return resource
}

// createBillingVoucher 创建券模板并发给指定用户
func createBillingVoucher(db *gorm.DB, userID int64, opts ...func(*models.Voucher)) *models.UserVoucher {
	v := &models.Voucher{
		Code:          utils.GenerateVoucherCode(10),
		Name:          "测试代金券",
		Kind:          models.VoucherKindAmount,
		Value:         10,
		TotalQuantity: 100,
		Status:        models.VoucherStatusActive,
	}
	for _, opt := range opts {
		opt(v)
	}
	db.Create(v)

	uv := &models.UserVoucher{
		UserID:      userID,
		VoucherID:   v.ID,
		VoucherCode: v.Code,
		Status:      models.UserVoucherStatusUnused,
		ExpiredAt:   v.ValidUntil,
	}
	db.Create(uv)
	return uv
}

// TestSettlementService_Quote 测试结算报价管道
// 管道顺序固定：原价 -> 折扣 -> 代金券 -> 应付金额
func TestSettlementService_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("无折扣无代金券", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		require.NoError(t, err)
		assert.Equal(t, 43.20, order.OriginalPrice)
		assert.Equal(t, 0.0, order.DiscountAmount)
		assert.Equal(t, 0.0, order.VoucherAmount)
		assert.Equal(t, 43.20, order.FinalPrice)
		assert.Equal(t, int8(models.OrderStatusPending), order.Status)
		assert.True(t, strings.HasPrefix(order.OrderNo, "GP"))
	})

	t.Run("命中折扣规则", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		env.db.Create(&models.DiscountRule{
			Name:   "GPU九折",
			Rate:   10,
			Status: models.DiscountRuleStatusActive,
		})

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		require.NoError(t, err)
		assert.Equal(t, 43.20, order.OriginalPrice)
		assert.Equal(t, 4.32, order.DiscountAmount)
		assert.Equal(t, 38.88, order.FinalPrice)
		require.NotNil(t, order.DiscountRate)
		assert.Equal(t, 10.0, *order.DiscountRate)
		assert.NotNil(t, order.DiscountID)
	})

	t.Run("折扣与代金券叠加", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		env.db.Create(&models.DiscountRule{
			Name:   "GPU九折",
			Rate:   10,
			Status: models.DiscountRuleStatusActive,
		})
		uv := createBillingVoucher(env.db, 1)

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:    resource.ID,
			Duration:      24,
			DurationUnit:  models.DurationUnitHour,
			Quantity:      1,
			UserVoucherID: &uv.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, 43.20, order.OriginalPrice)
		assert.Equal(t, 4.32, order.DiscountAmount)
		assert.Equal(t, 10.0, order.VoucherAmount)
		assert.Equal(t, 28.88, order.FinalPrice)

		// 代金券在同一事务内核销并绑定订单
		var got models.UserVoucher
		require.NoError(t, env.db.First(&got, uv.ID).Error)
		assert.Equal(t, int8(models.UserVoucherStatusUsed), got.Status)
		require.NotNil(t, got.OrderID)
		assert.Equal(t, order.ID, *got.OrderID)
	})

	t.Run("免费时长券按小时单价抵扣", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		uv := createBillingVoucher(env.db, 1, func(v *models.Voucher) {
			v.Kind = models.VoucherKindFreeHours
			v.Value = 5
		})

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:    resource.ID,
			Duration:      24,
			DurationUnit:  models.DurationUnitHour,
			Quantity:      1,
			UserVoucherID: &uv.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, 9.0, order.VoucherAmount)
		assert.Equal(t, 34.20, order.FinalPrice)
	})

	t.Run("代金券覆盖全额时应付为零", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		uv := createBillingVoucher(env.db, 1, func(v *models.Voucher) {
			v.Value = 100
		})

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:    resource.ID,
			Duration:      24,
			DurationUnit:  models.DurationUnitHour,
			Quantity:      1,
			UserVoucherID: &uv.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, 43.20, order.VoucherAmount)
		assert.Equal(t, 0.0, order.FinalPrice)
	})

	t.Run("代金券不可用时降级下单", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		uv := createBillingVoucher(env.db, 1, func(v *models.Voucher) {
			v.ProviderCode = utils.StringPtr("tencent")
		})

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:    resource.ID,
			Duration:      24,
			DurationUnit:  models.DurationUnitHour,
			Quantity:      1,
			UserVoucherID: &uv.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, order.VoucherAmount)
		assert.Nil(t, order.UserVoucherID)
		assert.Equal(t, 43.20, order.FinalPrice)

		// 券保持未使用
		var got models.UserVoucher
		require.NoError(t, env.db.First(&got, uv.ID).Error)
		assert.Equal(t, int8(models.UserVoucherStatusUnused), got.Status)
	})

	t.Run("他人代金券降级下单", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)
		uv := createBillingVoucher(env.db, 2)

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:    resource.ID,
			Duration:      24,
			DurationUnit:  models.DurationUnitHour,
			Quantity:      1,
			UserVoucherID: &uv.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, order.VoucherAmount)
		assert.Nil(t, order.UserVoucherID)
	})

	t.Run("多数量按天计费", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db, func(r *models.Resource) {
			r.UnitPrice = 2.0
		})

		order, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     2,
			DurationUnit: models.DurationUnitDay,
			Quantity:     3,
		})
		require.NoError(t, err)
		assert.Equal(t, 288.0, order.OriginalPrice)
	})

	t.Run("资源已下架", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db, func(r *models.Resource) {
			r.Status = models.ResourceStatusOffline
		})

		_, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		assert.ErrorIs(t, err, catalog.ErrResourceUnavailable)
	})

	t.Run("资源无库存", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db, func(r *models.Resource) {
			r.Stock = 0
		})

		_, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		assert.ErrorIs(t, err, catalog.ErrResourceUnavailable)
	})

	t.Run("资源不存在", func(t *testing.T) {
		env := setupBillingTestEnv(t)

		_, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   999,
			Duration:     24,
			DurationUnit: models.DurationUnitHour,
			Quantity:     1,
		})
		assert.ErrorIs(t, err, catalog.ErrResourceNotFound)
	})

	t.Run("无效时长", func(t *testing.T) {
		env := setupBillingTestEnv(t)
		resource := createBillingResource(env.db)

		_, err := env.settlement.Quote(ctx, 1, &billing.QuoteRequest{
			ResourceID:   resource.ID,
			Duration:     24,
			DurationUnit: "week",
			Quantity:     1,
		})
		assert.ErrorIs(t, err, pricing.ErrInvalidUnit)
	})
}
