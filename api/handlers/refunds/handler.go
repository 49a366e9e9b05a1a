package refunds

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	response "mallpay/api/handlers/common"
	"mallpay/internal/logger"
	"mallpay/internal/notification"
	"mallpay/internal/refund"
	"mallpay/internal/settlement"
)

// Handler 退款 API 处理器
type Handler struct {
	service     *refund.Service
	coordinator *settlement.Coordinator
	notifier    notification.Notifier
	enqueue     func(c *gin.Context, refundID string)
}

// NewHandler 创建处理器
// enqueueFn 为空时退款进入待结算后不自动入队，需手动触发完成
func NewHandler(service *refund.Service, coordinator *settlement.Coordinator,
	notifier notification.Notifier, enqueueFn func(c *gin.Context, refundID string)) *Handler {
	return &Handler{service: service, coordinator: coordinator, notifier: notifier, enqueue: enqueueFn}
}

// Create 买家发起退款申请
// @Summary 发起退款申请
// @Tags Refunds
// @Accept json
// @Produce json
// @Param X-User-Id header string true "买家ID"
// @Param request body refund.Request true "退款申请"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds [post]
func (h *Handler) Create(c *gin.Context) {
	buyerID := c.GetHeader("X-User-Id")
	if buyerID == "" {
		response.Error(c, http.StatusBadRequest, "缺少 X-User-Id 请求头")
		return
	}

	var req refund.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.service.Create(c.Request.Context(), buyerID, &req)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ref)
}

// Get 查询退款单
// @Summary 查询退款单详情
// @Tags Refunds
// @Produce json
// @Param id path string true "退款单ID"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	ref, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ref)
}

// ListByOrder 查询订单下的退款单
// @Summary 查询订单退款记录
// @Tags Refunds
// @Produce json
// @Param order_id query string true "订单ID"
// @Success 200 {object} response.APIResponse{data=[]refund.Refund}
// @Router /api/refunds [get]
func (h *Handler) ListByOrder(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		response.Error(c, http.StatusBadRequest, "order_id参数必填")
		return
	}

	refunds, err := h.service.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, refunds)
}

// approveRequest 审核通过请求
type approveRequest struct {
	RequireReturn bool `json:"requireReturn"`
}

// Approve 卖家同意退款
// @Summary 同意退款申请
// @Description requireReturn 为真时要求买家先退货
// @Tags Refunds
// @Accept json
// @Produce json
// @Param id path string true "退款单ID"
// @Param request body approveRequest false "审核选项"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.service.Approve(c.Request.Context(), c.Param("id"), req.RequireReturn)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	h.enqueueIfRefunding(c, ref)
	response.Success(c, ref)
}

// rejectRequest 驳回请求
type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject 驳回退款申请
// @Summary 驳回退款申请
// @Tags Refunds
// @Accept json
// @Produce json
// @Param id path string true "退款单ID"
// @Param request body rejectRequest true "驳回原因"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if h.notifier != nil {
		h.notifier.Notify(c.Request.Context(), notification.Event{
			Type:     notification.EventRefundRejected,
			UserID:   ref.BuyerID,
			OrderID:  ref.OrderID,
			RefundID: ref.ID,
			Amount:   ref.Amount.String(),
		})
	}
	response.Success(c, ref)
}

// MarkReturning 买家标记已寄出退货
// @Summary 标记退货已寄出
// @Tags Refunds
// @Produce json
// @Param id path string true "退款单ID"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id}/returning [post]
func (h *Handler) MarkReturning(c *gin.Context) {
	ref, err := h.service.MarkReturning(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ref)
}

// ConfirmReturned 卖家确认收到退货
// @Summary 确认退货已收到
// @Tags Refunds
// @Produce json
// @Param id path string true "退款单ID"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id}/confirm-return [post]
func (h *Handler) ConfirmReturned(c *gin.Context) {
	ref, err := h.service.ConfirmReturned(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	h.enqueueIfRefunding(c, ref)
	response.Success(c, ref)
}

// Complete 手动触发退款资金落地（运维重试入口）
// @Summary 完成退款
// @Tags Refunds
// @Produce json
// @Param id path string true "退款单ID"
// @Success 200 {object} response.APIResponse{data=refund.Refund}
// @Router /api/refunds/{id}/complete [post]
func (h *Handler) Complete(c *gin.Context) {
	ref, err := h.coordinator.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, ref)
}

// enqueueIfRefunding 退款进入待结算后投递异步完成任务
func (h *Handler) enqueueIfRefunding(c *gin.Context, ref *refund.Refund) {
	if h.enqueue == nil || ref.Status != refund.StatusApprovedRefunding {
		return
	}
	h.enqueue(c, ref.ID)
	logger.Debug("退款完成任务已投递", zap.String("refund_id", ref.ID))
}
