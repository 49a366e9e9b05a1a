package wallet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	response "mallpay/api/handlers/common"
	"mallpay/internal/ledger"
)

// Handler 钱包 API 处理器
type Handler struct {
	service *ledger.Service
}

// NewHandler 创建处理器
func NewHandler(service *ledger.Service) *Handler {
	return &Handler{service: service}
}

// depositRequest 充值请求
type depositRequest struct {
	OwnerType   ledger.OwnerType `json:"ownerType" binding:"required,oneof=platform seller buyer"`
	OwnerID     string           `json:"ownerId" binding:"required"`
	Amount      decimal.Decimal  `json:"amount" binding:"required"`
	Description string           `json:"description"`
}

// Deposit 充值入账
// @Summary 钱包充值
// @Tags Wallet
// @Accept json
// @Produce json
// @Param request body depositRequest true "充值信息"
// @Success 200 {object} response.APIResponse{data=ledger.Transaction}
// @Router /api/wallet/deposit [post]
func (h *Handler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	txn, err := h.service.Deposit(c.Request.Context(), req.OwnerType, req.OwnerID, req.Amount, req.Description)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, txn)
}

// GetBalance 查询余额
// @Summary 查询账户余额
// @Tags Wallet
// @Produce json
// @Param owner_type query string true "账户类型"
// @Param owner_id query string true "归属ID"
// @Success 200 {object} response.APIResponse
// @Router /api/wallet/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	ownerType := ledger.OwnerType(c.Query("owner_type"))
	ownerID := c.Query("owner_id")
	if ownerType == "" || ownerID == "" {
		response.Error(c, http.StatusBadRequest, "owner_type和owner_id参数必填")
		return
	}

	balance, err := h.service.GetBalance(c.Request.Context(), ownerType, ownerID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"ownerType": ownerType,
		"ownerId":   ownerID,
		"balance":   balance,
	})
}

// ListTransactions 查询流水
// @Summary 分页查询资金流水
// @Tags Wallet
// @Produce json
// @Param owner_type query string false "账户类型"
// @Param owner_id query string false "归属ID"
// @Param order_id query string false "订单ID"
// @Param type query string false "流水类型"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} response.ListResponse{items=[]ledger.Transaction}
// @Router /api/wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	var query ledger.TransactionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	transactions, total, err := h.service.ListTransactions(c.Request.Context(), &query)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.List(c, transactions, query.Page, query.PageSize, total)
}
