// Package voucher 提供代金券相关的 HTTP Handler
package voucher

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nebulink/gpu-market-backend/internal/common/handler"
	"github.com/nebulink/gpu-market-backend/internal/common/response"
	voucherService "github.com/nebulink/gpu-market-backend/internal/service/voucher"
)

// Handler 代金券处理器
type Handler struct {
	voucherService *voucherService.VoucherService
}

// NewHandler 创建代金券处理器
func NewHandler(voucherSvc *voucherService.VoucherService) *Handler {
	return &Handler{
		voucherService: voucherSvc,
	}
}

// ClaimRequest 领取代金券请求
type ClaimRequest struct {
	Code string `json:"code" binding:"required"`
}

// Claim 领取代金券
// @Summary 领取代金券
// @Tags 代金券
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ClaimRequest true "请求参数"
// @Success 200 {object} response.Response{data=models.UserVoucher}
// @Router /api/v1/vouchers/claim [post]
func (h *Handler) Claim(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	uv, err := h.voucherService.Claim(c.Request.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, voucherService.ErrVoucherNotFound):
			response.NotFound(c, "代金券不存在")
		case errors.Is(err, voucherService.ErrAlreadyClaimed):
			response.BadRequest(c, "该代金券已领取过")
		case errors.Is(err, voucherService.ErrVoucherNotActive),
			errors.Is(err, voucherService.ErrVoucherNotStarted),
			errors.Is(err, voucherService.ErrVoucherExpired):
			response.BadRequest(c, "代金券不在可领取状态")
		case errors.Is(err, voucherService.ErrVoucherExhausted):
			response.BadRequest(c, "代金券已领完")
		default:
			response.InternalError(c, err.Error())
		}
		return
	}

	response.Success(c, uv)
}

// PreviewRequest 核销试算请求
type PreviewRequest struct {
	UserVoucherID int64   `json:"user_voucher_id" binding:"required"`
	OrderAmount   float64 `json:"order_amount" binding:"required,gt=0"`
	ProviderCode  string  `json:"provider_code"`
	HourlyRate    float64 `json:"hourly_rate" binding:"min=0"`
}

// PreviewResponse 核销试算结果
type PreviewResponse struct {
	UserVoucherID int64   `json:"user_voucher_id"`
	Amount        float64 `json:"amount"`
}

// Preview 核销试算
// @Summary 代金券核销试算
// @Tags 代金券
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body PreviewRequest true "请求参数"
// @Success 200 {object} response.Response{data=PreviewResponse}
// @Router /api/v1/vouchers/preview [post]
func (h *Handler) Preview(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误")
		return
	}

	amount, err := h.voucherService.RedeemPreview(c.Request.Context(),
		req.UserVoucherID, userID, req.OrderAmount, req.ProviderCode, req.HourlyRate)
	if err != nil {
		switch {
		case errors.Is(err, voucherService.ErrUserVoucherNotFound):
			response.NotFound(c, "代金券不存在")
		case errors.Is(err, voucherService.ErrNotOwned):
			response.Forbidden(c, "无权使用该代金券")
		case errors.Is(err, voucherService.ErrAlreadyUsed):
			response.BadRequest(c, "代金券已使用")
		case errors.Is(err, voucherService.ErrUserVoucherExpired):
			response.BadRequest(c, "代金券已过期")
		case errors.Is(err, voucherService.ErrScopeMismatch):
			response.BadRequest(c, "代金券不适用于该供应商")
		case errors.Is(err, voucherService.ErrBelowMinimum):
			response.BadRequest(c, "订单金额未达到使用门槛")
		default:
			response.InternalError(c, err.Error())
		}
		return
	}

	response.Success(c, &PreviewResponse{
		UserVoucherID: req.UserVoucherID,
		Amount:        amount,
	})
}

// ListClaimable 获取可领取的代金券模板
// @Summary 获取可领取的代金券模板
// @Tags 代金券
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/vouchers/claimable [get]
func (h *Handler) ListClaimable(c *gin.Context) {
	p := handler.BindPagination(c)
	list, total, err := h.voucherService.ListClaimable(c.Request.Context(), p.GetOffset(), p.GetLimit())
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// ListMine 获取我的代金券
// @Summary 获取我的代金券
// @Tags 代金券
// @Produce json
// @Security Bearer
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query int false "券状态 0未使用 1已使用 2已过期"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/vouchers/mine [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := handler.RequireUserID(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	var status *int8
	if statusStr := c.Query("status"); statusStr != "" {
		if v, err := strconv.ParseInt(statusStr, 10, 8); err == nil {
			s := int8(v)
			status = &s
		}
	}

	list, total, err := h.voucherService.ListMine(c.Request.Context(), userID, status, p.GetOffset(), p.GetLimit())
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}
