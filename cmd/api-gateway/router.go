// Package main 是应用程序入口
package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nebulink/gpu-market-backend/internal/common/config"
	"github.com/nebulink/gpu-market-backend/internal/common/jwt"
	"github.com/nebulink/gpu-market-backend/internal/common/metrics"
	accountHandler "github.com/nebulink/gpu-market-backend/internal/handler/account"
	adminHandler "github.com/nebulink/gpu-market-backend/internal/handler/admin"
	billingHandler "github.com/nebulink/gpu-market-backend/internal/handler/billing"
	catalogHandler "github.com/nebulink/gpu-market-backend/internal/handler/catalog"
	voucherHandler "github.com/nebulink/gpu-market-backend/internal/handler/voucher"
	"github.com/nebulink/gpu-market-backend/internal/middleware"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	"github.com/nebulink/gpu-market-backend/internal/scheduler"
	accountService "github.com/nebulink/gpu-market-backend/internal/service/account"
	billingService "github.com/nebulink/gpu-market-backend/internal/service/billing"
	catalogService "github.com/nebulink/gpu-market-backend/internal/service/catalog"
	discountService "github.com/nebulink/gpu-market-backend/internal/service/discount"
	pricingService "github.com/nebulink/gpu-market-backend/internal/service/pricing"
	voucherService "github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// appScheduler 后台任务调度器，随服务启停
var appScheduler *scheduler.Scheduler

// setupRouter 设置路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
) {
	// 创建 JWT 管理器
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	// 初始化仓储
	resourceRepo := repository.NewResourceRepository(db)
	discountRuleRepo := repository.NewDiscountRuleRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	userVoucherRepo := repository.NewUserVoucherRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	rechargeRepo := repository.NewRechargeRepository(db)

	// 初始化服务
	catalogSvc := catalogService.NewCatalogService(db, resourceRepo, cfg.Billing.CatalogCacheTTL())
	pricingSvc := pricingService.NewPricingService()
	discountSvc := discountService.NewDiscountService(db, discountRuleRepo)
	voucherSvc := voucherService.NewVoucherService(db, voucherRepo, userVoucherRepo)
	accountSvc := accountService.NewAccountService(db, accountRepo, transactionRepo)
	settlementSvc := billingService.NewSettlementService(db, catalogSvc, pricingSvc, discountSvc, voucherSvc)
	orderSvc := billingService.NewOrderService(db, orderRepo, accountSvc, voucherSvc, catalogSvc,
		cfg.Billing.TxMaxRetries, cfg.Billing.PaymentTimeout())
	rechargeSvc := billingService.NewRechargeService(db, rechargeRepo, accountSvc)

	// 初始化处理器
	catalogH := catalogHandler.NewHandler(catalogSvc)
	voucherH := voucherHandler.NewHandler(voucherSvc)
	accountH := accountHandler.NewHandler(accountSvc, rechargeSvc)
	billingH := billingHandler.NewHandler(settlementSvc, orderSvc)
	adminH := adminHandler.NewHandler(catalogSvc, discountSvc, voucherSvc, orderSvc)

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RealIP())
	r.Use(middleware.CORS(nil))
	r.Use(middleware.AccessLog(logger))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GetMetrics().Middleware())
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}
	if cfg.RateLimit.Enabled {
		r.Use(middleware.IPRateLimit(redisClient, cfg.RateLimit.RequestsPerSecond, time.Second))
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 公开接口（无需认证）
		public := v1.Group("")
		{
			// 资源目录
			catalogH.RegisterRoutes(public)

			// 可领取代金券列表
			public.GET("/vouchers/claimable", voucherH.ListClaimable)
		}

		// 支付回调（mock 网关，不需要认证）
		accountH.RegisterCallbackRoutes(v1)

		// 用户端接口（需要用户认证）
		user := v1.Group("")
		user.Use(middleware.UserAuth(jwtManager))
		{
			// 账户与充值
			accountH.RegisterRoutes(user)

			// 订单结算
			billingH.RegisterRoutes(user)

			// 代金券
			vouchers := user.Group("/vouchers")
			{
				vouchers.POST("/claim", voucherH.Claim)
				vouchers.POST("/preview", voucherH.Preview)
				vouchers.GET("/mine", voucherH.ListMine)
			}
		}
	}

	// 管理后台 API
	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminAuth(jwtManager))
	{
		adminH.RegisterRoutes(admin)
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    404,
			"message": "接口不存在",
		})
	})

	// 后台任务
	appScheduler = scheduler.NewScheduler()
	taskHandler := scheduler.NewTaskHandler(orderSvc, voucherSvc, discountSvc)
	scheduler.SetupTasks(appScheduler, taskHandler,
		time.Duration(cfg.Billing.OrderTimeoutInterval)*time.Second,
		time.Duration(cfg.Billing.VoucherExpireInterval)*time.Second,
	)
	appScheduler.Start()
}

// stopScheduler 停止后台任务调度器
func stopScheduler() {
	if appScheduler != nil {
		appScheduler.Stop()
	}
}
