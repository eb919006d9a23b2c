// Package account 提供账户与充值相关的 HTTP Handler
package account

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/nebulink/gpu-market-backend/internal/common/handler"
	"github.com/nebulink/gpu-market-backend/internal/common/response"
	accountService "github.com/nebulink/gpu-market-backend/internal/service/account"
	billingService "github.com/nebulink/gpu-market-backend/internal/service/billing"
)

// Handler 账户处理器
type Handler struct {
	accountService  *accountService.AccountService
	rechargeService *billingService.RechargeService
}

// NewHandler 创建账户处理器
func NewHandler(accountSvc *accountService.AccountService, rechargeSvc *billingService.RechargeService) *Handler {
	return &Handler{
		accountService:  accountSvc,
		rechargeService: rechargeSvc,
	}
}

// GetAccount 获取账户信息
// @Summary 获取账户信息
// @Tags 账户
// @Produce json
// @Security Bearer
// @Success 200 {object} response.Response{data=accountService.AccountInfo}
// @Router /api/v1/account [get]
func (h *Handler) GetAccount(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	info, err := h.accountService.GetAccount(c.Request.Context(), userID)
	handler.MustSucceed(c, err, info)
}

// ListTransactions 获取账户流水
// @Summary 获取账户流水
// @Tags 账户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param type query string false "流水类型"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/account/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.accountService.GetTransactions(c.Request.Context(), userID, c.Query("type"), p.GetOffset(), p.GetLimit())
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// CreateRechargeRequest 创建充值单请求
type CreateRechargeRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// CreateRecharge 创建充值单
// @Summary 创建充值单
// @Tags 账户
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateRechargeRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.RechargeOrder}
// @Router /api/v1/account/recharge [post]
func (h *Handler) CreateRecharge(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	recharge, err := h.rechargeService.CreateRecharge(c.Request.Context(), userID, req.Amount)
	if err != nil {
		if errors.Is(err, billingService.ErrRechargeAmount) {
			response.BadRequest(c, "充值金额无效")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, recharge)
}

// ListRecharges 获取充值记录
// @Summary 获取充值记录
// @Tags 账户
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/account/recharges [get]
func (h *Handler) ListRecharges(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	list, total, err := h.rechargeService.ListRecharges(c.Request.Context(), userID, p.GetOffset(), p.GetLimit())
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// MockCallbackRequest mock 支付回调请求
type MockCallbackRequest struct {
	RechargeNo string `json:"recharge_no" binding:"required"`
}

// MockPayCallback mock 支付回调
// 回调方语义：返回 SUCCESS 表示已受理，重复投递幂等
// @Summary mock 支付回调
// @Tags 账户
// @Accept json
// @Produce json
// @Param request body MockCallbackRequest true "请求参数"
// @Success 200 {object} map[string]string
// @Router /api/v1/payments/callback/mock [post]
func (h *Handler) MockPayCallback(c *gin.Context) {
	var req MockCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{
			"code":    "FAIL",
			"message": "参数错误",
		})
		return
	}

	if err := h.rechargeService.HandleCallback(c.Request.Context(), req.RechargeNo); err != nil {
		if errors.Is(err, billingService.ErrRechargeNotFound) {
			c.JSON(404, gin.H{
				"code":    "FAIL",
				"message": "充值单不存在",
			})
			return
		}
		c.JSON(500, gin.H{
			"code":    "FAIL",
			"message": err.Error(),
		})
		return
	}

	c.JSON(200, gin.H{
		"code":    "SUCCESS",
		"message": "成功",
	})
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	account := r.Group("/account")
	{
		account.GET("", h.GetAccount)
		account.GET("/transactions", h.ListTransactions)
		account.POST("/recharge", h.CreateRecharge)
		account.GET("/recharges", h.ListRecharges)
	}
}

// RegisterCallbackRoutes 注册回调路由（无需认证）
func (h *Handler) RegisterCallbackRoutes(r *gin.RouterGroup) {
	callback := r.Group("/payments/callback")
	{
		callback.POST("/mock", h.MockPayCallback)
	}
}
