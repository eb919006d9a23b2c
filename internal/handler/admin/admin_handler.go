// Package admin 提供管理端 HTTP Handler
package admin

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nebulink/gpu-market-backend/internal/common/handler"
	"github.com/nebulink/gpu-market-backend/internal/common/response"
	"github.com/nebulink/gpu-market-backend/internal/models"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	billingService "github.com/nebulink/gpu-market-backend/internal/service/billing"
	catalogService "github.com/nebulink/gpu-market-backend/internal/service/catalog"
	discountService "github.com/nebulink/gpu-market-backend/internal/service/discount"
	voucherService "github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// Handler 管理端处理器
type Handler struct {
	catalogService  *catalogService.CatalogService
	discountService *discountService.DiscountService
	voucherService  *voucherService.VoucherService
	orderService    *billingService.OrderService
}

// NewHandler 创建管理端处理器
func NewHandler(
	catalogSvc *catalogService.CatalogService,
	discountSvc *discountService.DiscountService,
	voucherSvc *voucherService.VoucherService,
	orderSvc *billingService.OrderService,
) *Handler {
	return &Handler{
		catalogService:  catalogSvc,
		discountService: discountSvc,
		voucherService:  voucherSvc,
		orderService:    orderSvc,
	}
}

// CreateResourceRequest 创建资源请求
type CreateResourceRequest struct {
	Name         string  `json:"name" binding:"required"`
	Category     string  `json:"category" binding:"required,oneof=gpu hardware space"`
	ProviderCode string  `json:"provider_code" binding:"required"`
	Model        string  `json:"model" binding:"required"`
	Region       *string `json:"region,omitempty"`
	UnitPrice    float64 `json:"unit_price" binding:"required,gt=0"`
	UnitDuration string  `json:"unit_duration" binding:"required,oneof=hour day month year"`
	Stock        int     `json:"stock" binding:"min=0"`
	Description  *string `json:"description,omitempty"`
}

// CreateResource 创建资源
// @Summary 创建资源
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateResourceRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Resource}
// @Router /admin/resources [post]
func (h *Handler) CreateResource(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	resource := &models.Resource{
		Name:         req.Name,
		Category:     req.Category,
		ProviderCode: req.ProviderCode,
		Model:        req.Model,
		Region:       req.Region,
		UnitPrice:    req.UnitPrice,
		UnitDuration: req.UnitDuration,
		Stock:        req.Stock,
		Description:  req.Description,
		Status:       models.ResourceStatusActive,
	}
	if handler.HandleError(c, h.catalogService.CreateResource(c.Request.Context(), resource)) {
		return
	}
	response.Success(c, resource)
}

// UpdateResourceRequest 更新资源请求
type UpdateResourceRequest struct {
	Name        *string  `json:"name,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Status      *int8    `json:"status,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// UpdateResource 更新资源
// @Summary 更新资源
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "资源ID"
// @Param request body UpdateResourceRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/resources/{id} [put]
func (h *Handler) UpdateResource(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}
	id, ok := handler.ParseID(c, "资源")
	if !ok {
		return
	}

	var req UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice <= 0 {
			response.BadRequest(c, "单价必须大于0")
			return
		}
		fields["unit_price"] = *req.UnitPrice
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if len(fields) == 0 {
		response.BadRequest(c, "没有需要更新的字段")
		return
	}

	err := h.catalogService.UpdateResource(c.Request.Context(), id, fields)
	if err != nil {
		if errors.Is(err, catalogService.ErrResourceNotFound) {
			response.NotFound(c, "资源不存在")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// AdjustStockRequest 调整库存请求
type AdjustStockRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// AdjustStock 调整库存
// @Summary 调整资源库存
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "资源ID"
// @Param request body AdjustStockRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/resources/{id}/stock [post]
func (h *Handler) AdjustStock(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}
	id, ok := handler.ParseID(c, "资源")
	if !ok {
		return
	}

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	err := h.catalogService.AdjustStock(c.Request.Context(), id, req.Delta)
	if err != nil {
		if errors.Is(err, catalogService.ErrResourceUnavailable) {
			response.BadRequest(c, "库存不足，无法下调")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// CreateDiscountRuleRequest 创建折扣规则请求
type CreateDiscountRuleRequest struct {
	Name         string     `json:"name" binding:"required"`
	ProviderCode *string    `json:"provider_code,omitempty"`
	Model        *string    `json:"model,omitempty"`
	ResourceID   *int64     `json:"resource_id,omitempty"`
	Rate         float64    `json:"rate" binding:"required,gt=0,lte=100"`
	Priority     int        `json:"priority"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
}

// CreateDiscountRule 创建折扣规则
// @Summary 创建折扣规则
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateDiscountRuleRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.DiscountRule}
// @Router /admin/discount-rules [post]
func (h *Handler) CreateDiscountRule(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	var req CreateDiscountRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	rule := &models.DiscountRule{
		Name:         req.Name,
		ProviderCode: req.ProviderCode,
		Model:        req.Model,
		ResourceID:   req.ResourceID,
		Rate:         req.Rate,
		Priority:     req.Priority,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		Status:       models.DiscountRuleStatusActive,
	}
	err := h.discountService.CreateRule(c.Request.Context(), rule)
	if err != nil {
		if errors.Is(err, discountService.ErrInvalidRate) {
			response.BadRequest(c, "无效的折扣比例")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, rule)
}

// ListDiscountRules 获取折扣规则列表
// @Summary 获取折扣规则列表
// @Tags 管理端
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param provider_code query string false "供应商编码"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /admin/discount-rules [get]
func (h *Handler) ListDiscountRules(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)
	params := repository.DiscountRuleListParams{
		Offset:       p.GetOffset(),
		Limit:        p.GetLimit(),
		ProviderCode: c.Query("provider_code"),
		Keyword:      c.Query("keyword"),
	}
	list, total, err := h.discountService.ListRules(c.Request.Context(), params)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// DisableDiscountRule 停用折扣规则
// @Summary 停用折扣规则
// @Tags 管理端
// @Produce json
// @Security Bearer
// @Param id path int true "规则ID"
// @Success 200 {object} response.Response
// @Router /admin/discount-rules/{id}/disable [post]
func (h *Handler) DisableDiscountRule(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}
	id, ok := handler.ParseID(c, "规则")
	if !ok {
		return
	}

	err := h.discountService.DisableRule(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, discountService.ErrRuleNotFound) {
			response.NotFound(c, "折扣规则不存在")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, nil)
}

// CreateVoucherRequest 创建代金券模板请求
type CreateVoucherRequest struct {
	Code              string     `json:"code"`
	Name              string     `json:"name" binding:"required"`
	ProviderCode      *string    `json:"provider_code,omitempty"`
	Kind              string     `json:"kind" binding:"required,oneof=amount percent free_hours"`
	Value             float64    `json:"value" binding:"required,gt=0"`
	MinOrderAmount    float64    `json:"min_order_amount" binding:"min=0"`
	MaxDiscountAmount *float64   `json:"max_discount_amount,omitempty"`
	TotalQuantity     int        `json:"total_quantity" binding:"required,gt=0"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
	Description       *string    `json:"description,omitempty"`
}

// CreateVoucher 创建代金券模板
// @Summary 创建代金券模板
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateVoucherRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.Voucher}
// @Router /admin/vouchers [post]
func (h *Handler) CreateVoucher(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	v := &models.Voucher{
		Code:              req.Code,
		Name:              req.Name,
		ProviderCode:      req.ProviderCode,
		Kind:              req.Kind,
		Value:             req.Value,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		TotalQuantity:     req.TotalQuantity,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		Description:       req.Description,
		Status:            models.VoucherStatusActive,
	}
	if handler.HandleError(c, h.voucherService.CreateVoucher(c.Request.Context(), v)) {
		return
	}
	response.Success(c, v)
}

// ListVouchers 获取代金券模板列表
// @Summary 获取代金券模板列表
// @Tags 管理端
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param kind query string false "券类型"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /admin/vouchers [get]
func (h *Handler) ListVouchers(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}

	p := handler.BindPagination(c)
	params := repository.VoucherListParams{
		Offset:  p.GetOffset(),
		Limit:   p.GetLimit(),
		Kind:    c.Query("kind"),
		Keyword: c.Query("keyword"),
	}
	list, total, err := h.voucherService.ListVouchers(c.Request.Context(), params)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// FailOrderRequest 订单置为失败请求
type FailOrderRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// FailOrder 将订单置为失败
// @Summary 将订单置为失败
// @Tags 管理端
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "订单ID"
// @Param request body FailOrderRequest true "请求参数"
// @Success 200 {object} response.Response
// @Router /admin/orders/{id}/fail [post]
func (h *Handler) FailOrder(c *gin.Context) {
	if _, ok := handler.RequireAdminID(c); !ok {
		return
	}
	orderID, ok := handler.ParseID(c, "订单")
	if !ok {
		return
	}

	var req FailOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	if err := h.orderService.Fail(c.Request.Context(), orderID, req.Reason); err != nil {
		switch {
		case errors.Is(err, billingService.ErrOrderNotFound):
			response.NotFound(c, "订单不存在")
		case errors.Is(err, billingService.ErrInvalidState):
			response.BadRequest(c, "订单状态不允许置为失败")
		default:
			response.InternalError(c, err.Error())
		}
		return
	}
	response.Success(c, nil)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	resources := r.Group("/resources")
	{
		resources.POST("", h.CreateResource)
		resources.PUT("/:id", h.UpdateResource)
		resources.POST("/:id/stock", h.AdjustStock)
	}

	rules := r.Group("/discount-rules")
	{
		rules.POST("", h.CreateDiscountRule)
		rules.GET("", h.ListDiscountRules)
		rules.POST("/:id/disable", h.DisableDiscountRule)
	}

	vouchers := r.Group("/vouchers")
	{
		vouchers.POST("", h.CreateVoucher)
		vouchers.GET("", h.ListVouchers)
	}

	orders := r.Group("/orders")
	{
		orders.POST("/:id/fail", h.FailOrder)
	}
}
