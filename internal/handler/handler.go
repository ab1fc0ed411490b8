package handler

import (
	"errors"
	"strconv"

	"shopwallet/internal/config"
	"shopwallet/internal/repository"
	"shopwallet/internal/service"
	"shopwallet/pkg/auth"
	"shopwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	walletService      *service.WalletService
	checkoutService    *service.CheckoutService
	fulfillmentService *service.FulfillmentService
	refundService      *service.RefundService
	topupService       *service.TopupService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, prices service.PriceResolver) *Handler {
	refundService := service.NewRefundService(db, rdb, cfg)
	calc := service.NewShippingCalculator(service.NewConfigRateTable(&cfg.Shipping))

	return &Handler{
		walletService:      service.NewWalletService(db, rdb),
		checkoutService:    service.NewCheckoutService(db, rdb, cfg, prices),
		fulfillmentService: service.NewFulfillmentService(db, refundService, calc),
		refundService:      refundService,
		topupService:       service.NewTopupService(db, rdb, cfg),
	}
}

// writeBusinessError 把服务层错误翻译成业务错误码
// 余额不足带缺口金额、退款数量错误带明细ID，消息里都已经写明
func writeBusinessError(c *gin.Context, err error) {
	var insufficientErr *service.InsufficientBalanceError
	var refundQtyErr *service.InvalidRefundQuantityError

	switch {
	case errors.As(err, &insufficientErr):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.As(err, &refundQtyErr):
		response.BusinessError(c, response.CodeInvalidRefundQty, err.Error())
	case errors.Is(err, service.ErrEmptyCart):
		response.BusinessError(c, response.CodeEmptyCart, err.Error())
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidBankLast5):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidPrice):
		response.BusinessError(c, response.CodeInvalidPrice, err.Error())
	case errors.Is(err, service.ErrShippingNotEditable):
		response.BusinessError(c, response.CodeShippingNotEditable, err.Error())
	case errors.Is(err, service.ErrPartialOOSViaRefund),
		errors.Is(err, repository.ErrIllegalTransition):
		response.BusinessError(c, response.CodeIllegalTransition, err.Error())
	case errors.Is(err, repository.ErrStaleWrite):
		response.BusinessError(c, response.CodeStaleWrite, err.Error())
	case errors.Is(err, repository.ErrAlreadyReviewed):
		response.BusinessError(c, response.CodeAlreadyReviewed, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrOrderItemNotFound),
		errors.Is(err, repository.ErrItemNotInOrder):
		response.Error(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrTopupNotFound):
		response.Error(c, response.CodeNotFound, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.Error(c, response.CodeAccountNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetBalance 查询本人余额
// GET /api/v1/wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.walletService.GetAccount(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":     account.UserID,
		"balance_twd": account.BalanceTWD,
	})
}

// ListLedger 查询本人台账
// GET /api/v1/wallet/ledger?page=1&page_size=10
func (h *Handler) ListLedger(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.walletService.ListEntries(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 下单相关接口
// ============================================================

// Checkout 提交订单
// POST /api/v1/orders
func (h *Handler) Checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	req.UserID = currentUserID(c)
	req.Tier = currentTier(c)
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), &req)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Created(c, result)
}

// GetOrder 查询订单详情
// GET /api/v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.checkoutService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	// 会员只能看自己的订单，运营不受限
	if c.GetString(ctxKeyRole) != auth.RoleOperator && order.UserID != currentUserID(c) {
		response.Forbidden(c, "无权查看该订单")
		return
	}

	response.Success(c, order)
}

// ListOrders 查询本人订单列表
// GET /api/v1/orders?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.checkoutService.ListUserOrders(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 履约相关接口（运营）
// ============================================================

// UpdateOrder 运营修改订单状态/收件信息/物流单号
// PUT /api/v1/orders/:id
func (h *Handler) UpdateOrder(c *gin.Context) {
	var req service.OrderUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.fulfillmentService.UpdateOrder(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, order)
}

// UpdateItemStatusRequest 明细状态推进请求
type UpdateItemStatusRequest struct {
	ItemID int64  `json:"item_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// UpdateItemStatus 推进明细履约状态
// PUT /api/v1/orders/:id/items/status
func (h *Handler) UpdateItemStatus(c *gin.Context) {
	var req UpdateItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.fulfillmentService.UpdateItemStatus(c.Request.Context(), c.Param("id"), req.ItemID, req.Status)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, item)
}

// UpdateItemShippingRequest 发货信息录入请求
type UpdateItemShippingRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
	service.ShippingUpdate
}

// UpdateItemShipping 录入发货字段并重算运费
// PUT /api/v1/orders/:id/items/shipping
func (h *Handler) UpdateItemShipping(c *gin.Context) {
	var req UpdateItemShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.fulfillmentService.UpdateItemShipping(c.Request.Context(), c.Param("id"), req.ItemID, &req.ShippingUpdate)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, item)
}

// MarkShippingPaidRequest 运费结清标记请求
type MarkShippingPaidRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
}

// MarkShippingPaid 标记运费差额已结清
// PUT /api/v1/orders/:id/items/shipping-paid
func (h *Handler) MarkShippingPaid(c *gin.Context) {
	var req MarkShippingPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.fulfillmentService.MarkShippingPaid(c.Request.Context(), c.Param("id"), req.ItemID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, item)
}

// RefundItems 批量缺货退款
// POST /api/v1/orders/:id/refund-items
func (h *Handler) RefundItems(c *gin.Context) {
	var req service.RefundBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.OrderNo = c.Param("id")

	result, err := h.refundService.RefundBatch(c.Request.Context(), &req)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 储值相关接口
// ============================================================

// SubmitTopup 会员提交储值申请
// POST /api/v1/topup-requests
func (h *Handler) SubmitTopup(c *gin.Context) {
	var req service.SubmitTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = currentUserID(c)

	topup, err := h.topupService.Submit(c.Request.Context(), &req)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Created(c, topup)
}

// ListPendingTopups 运营查询待审核储值申请
// GET /api/v1/topup-requests?page=1&page_size=10
func (h *Handler) ListPendingTopups(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	requests, total, err := h.topupService.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      requests,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ReviewTopupRequest 储值审核请求
type ReviewTopupRequest struct {
	Action string `json:"action" binding:"required"` // APPROVE / REJECT
	Note   string `json:"note"`
}

// ReviewTopup 运营审核储值申请
// PUT /api/v1/topup-requests/:id
func (h *Handler) ReviewTopup(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	var req ReviewTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var topup interface{}
	switch req.Action {
	case "APPROVE":
		topup, err = h.topupService.Approve(c.Request.Context(), requestID, req.Note)
	case "REJECT":
		topup, err = h.topupService.Reject(c.Request.Context(), requestID, req.Note)
	default:
		response.ParamError(c, "action 只能是 APPROVE 或 REJECT")
		return
	}

	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, topup)
}

// DirectTopupRequest 管理员直接储值请求
type DirectTopupRequest struct {
	AmountTWD int64  `json:"amount_twd" binding:"required"`
	Note      string `json:"note" binding:"required"`
}

// DirectTopup 运营直接给会员储值（绕过审核工作流，备注必填）
// POST /api/v1/members/:id/topup
func (h *Handler) DirectTopup(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	var req DirectTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	newBalance, err := h.walletService.DirectTopup(c.Request.Context(), userID, req.AmountTWD, req.Note)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":     userID,
		"new_balance": newBalance,
	})
}

// ReconcileWallet 运营核对会员余额与台账
// GET /api/v1/members/:id/reconcile
func (h *Handler) ReconcileWallet(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	result, err := h.walletService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeBusinessError(c, err)
		return
	}

	response.Success(c, result)
}
