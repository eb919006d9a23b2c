// Package billing 提供订单结算相关的 HTTP Handler
package billing

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/nebulink/gpu-market-backend/internal/common/errors"
	"github.com/nebulink/gpu-market-backend/internal/common/handler"
	"github.com/nebulink/gpu-market-backend/internal/common/response"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	billingService "github.com/nebulink/gpu-market-backend/internal/service/billing"
	"github.com/nebulink/gpu-market-backend/internal/service/catalog"
)

// Handler 订单结算处理器
type Handler struct {
	settlementService *billingService.SettlementService
	orderService      *billingService.OrderService
}

// NewHandler 创建订单结算处理器
func NewHandler(settlementSvc *billingService.SettlementService, orderSvc *billingService.OrderService) *Handler {
	return &Handler{
		settlementService: settlementSvc,
		orderService:      orderSvc,
	}
}

// handleOrderError 映射订单模块错误
// 返回 true 表示已发送响应
func handleOrderError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, catalog.ErrResourceNotFound):
		response.NotFound(c, "资源不存在")
	case errors.Is(err, catalog.ErrResourceUnavailable):
		response.BadRequest(c, "资源已下架或无库存")
	case errors.Is(err, billingService.ErrOrderNotFound):
		response.NotFound(c, "订单不存在")
	case errors.Is(err, billingService.ErrOrderNotOwned):
		response.Forbidden(c, "无权操作该订单")
	case errors.Is(err, billingService.ErrInvalidState):
		response.Error(c, apperrors.ErrOrderStatusError.Code, "订单状态不允许该操作")
	case errors.Is(err, billingService.ErrOutOfStock):
		response.Error(c, apperrors.ErrStockInsufficient.Code, "资源库存不足")
	case errors.Is(err, billingService.ErrSettlementInvalid):
		response.Error(c, apperrors.ErrSettlementInvalid.Code, "结算金额校验失败")
	default:
		if appErr, ok := err.(*apperrors.AppError); ok {
			response.Error(c, appErr.Code, appErr.Message)
			return true
		}
		response.InternalError(c, err.Error())
	}
	return true
}

// CreateOrder 结算报价并创建订单
// @Summary 结算报价并创建订单
// @Tags 订单
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body billingService.QuoteRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req billingService.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	order, err := h.settlementService.Quote(c.Request.Context(), userID, &req)
	if handleOrderError(c, err) {
		return
	}
	response.Success(c, order)
}

// PayOrder 支付订单
// @Summary 支付订单
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/pay [post]
func (h *Handler) PayOrder(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	if handleOrderError(c, h.orderService.Pay(c.Request.Context(), userID, orderID)) {
		return
	}
	response.Success(c, nil)
}

// CancelOrder 取消订单
// @Summary 取消待支付订单
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/cancel [post]
func (h *Handler) CancelOrder(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	if handleOrderError(c, h.orderService.Cancel(c.Request.Context(), userID, orderID)) {
		return
	}
	response.Success(c, nil)
}

// StartOrder 启动订单
// @Summary 启动已支付订单
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/start [post]
func (h *Handler) StartOrder(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	if handleOrderError(c, h.orderService.Start(c.Request.Context(), userID, orderID)) {
		return
	}
	response.Success(c, nil)
}

// CompleteOrder 完成订单
// @Summary 完成运行中订单
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response
// @Router /api/v1/orders/{id}/complete [post]
func (h *Handler) CompleteOrder(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	if handleOrderError(c, h.orderService.Complete(c.Request.Context(), userID, orderID)) {
		return
	}
	response.Success(c, nil)
}

// GetOrder 获取订单详情
// @Summary 获取订单详情
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=models.Order}
// @Router /api/v1/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), userID, orderID)
	if handleOrderError(c, err) {
		return
	}
	response.Success(c, order)
}

// ListOrders 获取订单列表
// @Summary 获取我的订单列表
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query int false "订单状态"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	params := repository.OrderListParams{
		Offset: p.GetOffset(),
		Limit:  p.GetLimit(),
		UserID: userID,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		if v, err := strconv.ParseInt(statusStr, 10, 8); err == nil {
			status := int8(v)
			params.Status = &status
		}
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), params)
	handler.MustSucceedPage(c, err, orders, total, p.Page, p.PageSize)
}

// PreviewPaymentMethods 支付方式试算
// @Summary 支付方式试算
// @Tags 订单
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=billingService.PaymentPlan}
// @Router /api/v1/orders/{id}/payment-methods [get]
func (h *Handler) PreviewPaymentMethods(c *gin.Context) {
	userID, orderID, ok := handler.RequireUserAndParseID(c, "订单")
	if !ok {
		return
	}

	plan, err := h.orderService.PreviewPaymentMethods(c.Request.Context(), userID, orderID)
	if handleOrderError(c, err) {
		return
	}
	response.Success(c, plan)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/pay", h.PayOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.POST("/:id/start", h.StartOrder)
		orders.POST("/:id/complete", h.CompleteOrder)
		orders.GET("/:id/payment-methods", h.PreviewPaymentMethods)
	}
}
