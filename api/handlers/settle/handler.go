package settle

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	response "mallpay/api/handlers/common"
	"mallpay/internal/ledger"
	"mallpay/internal/settlement"
)

// Handler 结算管理 API 处理器（运营后台）
type Handler struct {
	engine    *settlement.Engine
	scheduler *settlement.Scheduler
	ledger    *ledger.Service
}

// NewHandler 创建处理器
func NewHandler(engine *settlement.Engine, scheduler *settlement.Scheduler, ledgerSvc *ledger.Service) *Handler {
	return &Handler{engine: engine, scheduler: scheduler, ledger: ledgerSvc}
}

// SettleOrder 手动结算单笔订单
// @Summary 手动触发订单结算
// @Tags Settlement
// @Produce json
// @Param id path string true "订单ID"
// @Success 200 {object} response.APIResponse{data=settlement.PlatformFee}
// @Router /api/settlement/orders/{id} [post]
func (h *Handler) SettleOrder(c *gin.Context) {
	fee, err := h.engine.SettleOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, fee)
}

// RunBatch 手动触发一个结算批次
// @Summary 手动触发结算批次
// @Tags Settlement
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/settlement/run [post]
func (h *Handler) RunBatch(c *gin.Context) {
	settled, err := h.scheduler.RunOnce(c.Request.Context(), time.Now())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"settled": settled})
}

// GetFee 查询订单佣金记录
// @Summary 查询订单佣金记录
// @Tags Settlement
// @Produce json
// @Param id path string true "订单ID"
// @Success 200 {object} response.APIResponse{data=settlement.PlatformFee}
// @Router /api/settlement/orders/{id}/fee [get]
func (h *Handler) GetFee(c *gin.Context) {
	fee, err := h.engine.GetByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusNotFound, "订单尚未结算")
			return
		}
		response.HandleError(c, err)
		return
	}
	response.Success(c, fee)
}

// GetOrderSummary 订单资金对账汇总
// @Summary 订单资金对账
// @Tags Settlement
// @Produce json
// @Param id path string true "订单ID"
// @Success 200 {object} response.APIResponse{data=ledger.OrderSummary}
// @Router /api/settlement/orders/{id}/summary [get]
func (h *Handler) GetOrderSummary(c *gin.Context) {
	summary, err := h.ledger.SummarizeOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, summary)
}
