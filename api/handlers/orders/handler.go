package orders

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	response "mallpay/api/handlers/common"
	"mallpay/internal/metrics"
	"mallpay/internal/order"
)

// Handler 订单 API 处理器
type Handler struct {
	service *order.Service
}

// NewHandler 创建处理器
func NewHandler(service *order.Service) *Handler {
	return &Handler{service: service}
}

// Create 创建订单
// @Summary 创建订单
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body order.CreateRequest true "订单信息"
// @Success 200 {object} response.APIResponse{data=order.Order}
// @Router /api/orders [post]
func (h *Handler) Create(c *gin.Context) {
	var req order.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ord, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ord)
}

// Get 查询订单
// @Summary 查询订单详情
// @Tags Orders
// @Produce json
// @Param id path string true "订单ID"
// @Success 200 {object} response.APIResponse{data=order.Order}
// @Router /api/orders/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	ord, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ord)
}

// List 查询订单列表
// @Summary 分页查询订单
// @Tags Orders
// @Produce json
// @Param buyer_id query string false "买家ID"
// @Param seller_id query string false "卖家ID"
// @Param status query string false "订单状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse{items=[]order.Order}
// @Router /api/orders [get]
func (h *Handler) List(c *gin.Context) {
	var query order.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if query.Page == 0 {
		query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	}

	orders, total, err := h.service.List(c.Request.Context(), &query)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.List(c, orders, query.Page, query.PageSize, total)
}

// paymentCallbackRequest 支付网关回调
type paymentCallbackRequest struct {
	Status string `json:"status" binding:"required,oneof=success failed"`
}

// PaymentCallback 支付结果回调
// @Summary 支付网关回调
// @Description 标记订单支付成功或失败，重复回调幂等
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "订单ID"
// @Param request body paymentCallbackRequest true "支付结果"
// @Success 200 {object} response.APIResponse{data=order.Order}
// @Router /api/orders/{id}/payment/callback [post]
func (h *Handler) PaymentCallback(c *gin.Context) {
	var req paymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	var (
		ord *order.Order
		err error
	)
	if req.Status == "success" {
		ord, err = h.service.MarkPaid(c.Request.Context(), c.Param("id"))
		if err == nil {
			metrics.OrdersPaidTotal.Inc()
		}
	} else {
		ord, err = h.service.MarkPaymentFailed(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ord)
}

// transitionRequest 状态流转请求
type transitionRequest struct {
	Status order.Status `json:"status" binding:"required"`
}

// Transition 推进订单状态
// @Summary 推进订单履约状态
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "订单ID"
// @Param request body transitionRequest true "目标状态"
// @Success 200 {object} response.APIResponse{data=order.Order}
// @Router /api/orders/{id}/status [post]
func (h *Handler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ord, err := h.service.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ord)
}

// Cancel 取消订单
// @Summary 取消订单
// @Tags Orders
// @Produce json
// @Param id path string true "订单ID"
// @Success 200 {object} response.APIResponse{data=order.Order}
// @Router /api/orders/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	ord, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ord)
}
