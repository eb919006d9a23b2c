// Package catalog 提供资源目录相关的 HTTP Handler
package catalog

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/nebulink/gpu-market-backend/internal/common/handler"
	"github.com/nebulink/gpu-market-backend/internal/common/response"
	"github.com/nebulink/gpu-market-backend/internal/repository"
	catalogService "github.com/nebulink/gpu-market-backend/internal/service/catalog"
)

// Handler 资源目录处理器
type Handler struct {
	catalogService *catalogService.CatalogService
}

// NewHandler 创建资源目录处理器
func NewHandler(catalogSvc *catalogService.CatalogService) *Handler {
	return &Handler{
		catalogService: catalogSvc,
	}
}

// ListResources 获取资源列表
// @Summary 获取资源列表
// @Tags 资源目录
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param provider_code query string false "供应商编码"
// @Param category query string false "资源类别"
// @Param region query string false "地域"
// @Param keyword query string false "名称或型号关键字"
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/resources [get]
func (h *Handler) ListResources(c *gin.Context) {
	p := handler.BindPagination(c)
	params := repository.ResourceListParams{
		Offset:       p.GetOffset(),
		Limit:        p.GetLimit(),
		Category:     c.Query("category"),
		ProviderCode: c.Query("provider_code"),
		Region:       c.Query("region"),
		Keyword:      c.Query("keyword"),
	}

	list, total, err := h.catalogService.ListResources(c.Request.Context(), params)
	handler.MustSucceedPage(c, err, list, total, p.Page, p.PageSize)
}

// GetResource 获取资源详情
// @Summary 获取资源详情
// @Tags 资源目录
// @Produce json
// @Param id path int true "资源ID"
// @Success 200 {object} response.Response{data=models.Resource}
// @Router /api/v1/resources/{id} [get]
func (h *Handler) GetResource(c *gin.Context) {
	id, ok := handler.ParseID(c, "资源")
	if !ok {
		return
	}

	resource, err := h.catalogService.GetResource(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalogService.ErrResourceNotFound) {
			response.NotFound(c, "资源不存在")
			return
		}
		handler.HandleError(c, err)
		return
	}
	response.Success(c, resource)
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	resources := r.Group("/resources")
	{
		resources.GET("", h.ListResources)
		resources.GET("/:id", h.GetResource)
	}
}
