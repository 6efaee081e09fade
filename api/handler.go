package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_sales/internal/logger"
	"api_sales/internal/sales"
)

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

func (h *salesHandler) requestLogger(ctx *gin.Context) *zap.Logger {
	if _, ok := ctx.Get("logger"); ok {
		return logger.FromGin(ctx)
	}
	return h.logger
}

type createSaleRequest struct {
	CustomerUsername string          `json:"customer_username"`
	ItemName         string          `json:"item_name"`
	Quantity         json.RawMessage `json:"quantity"`
}

// handleCreateSale handles the POST /sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	log := h.requestLogger(ctx)

	var req createSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to bind JSON request", zap.Error(err))
		writeError(ctx, http.StatusBadRequest, "validation_error", "Invalid JSON payload.")
		return
	}

	saleReq, err := sales.ParseSaleRequest(req.CustomerUsername, req.ItemName, req.Quantity)
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}

	receipt, err := h.salesService.CreateSale(ctx.Request.Context(), saleReq)
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":     "Purchase successful.",
		"purchase_id": receipt.PurchaseID,
		"sale_id":     receipt.SaleID,
	})
}

// handlePurchaseHistory handles GET /customers/:username/purchases.
func (h *salesHandler) handlePurchaseHistory(ctx *gin.Context) {
	username := ctx.Param("username")
	purchases, err := h.salesService.PurchaseHistory(ctx.Request.Context(), username)
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, purchases)
}

// handleListPurchases handles GET /purchases.
func (h *salesHandler) handleListPurchases(ctx *gin.Context) {
	purchases, err := h.salesService.ListPurchases(ctx.Request.Context())
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, purchases)
}

// handleListGoods handles GET /goods.
func (h *salesHandler) handleListGoods(ctx *gin.Context) {
	goods, err := h.salesService.ListGoods(ctx.Request.Context())
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, goods)
}

// handleGetGood handles GET /goods/:name.
func (h *salesHandler) handleGetGood(ctx *gin.Context) {
	item, err := h.salesService.GetGood(ctx.Request.Context(), ctx.Param("name"))
	if err != nil {
		h.writeSaleError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

type errorMapping struct {
	kind    error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{sales.ErrValidation, http.StatusBadRequest, ""},
	{sales.ErrCustomerNotFound, http.StatusNotFound, "Customer not found."},
	{sales.ErrItemNotFound, http.StatusNotFound, "Item not found."},
	{sales.ErrInsufficientStock, http.StatusBadRequest, "Insufficient stock."},
	{sales.ErrInsufficientFunds, http.StatusBadRequest, "Insufficient funds in wallet."},
	{sales.ErrStockConflict, http.StatusConflict, "Item is being sold concurrently, try again."},
	{sales.ErrDependencyUnavailable, http.StatusServiceUnavailable, "A required service is unavailable."},
	{sales.ErrDebitFailed, http.StatusBadGateway, "Failed to deduct from customer wallet."},
	{sales.ErrSaleFailed, http.StatusBadGateway, "Failed to update item in inventory. Payment refunded."},
	{sales.ErrUnknownOutcome, http.StatusGatewayTimeout, "Sale outcome unknown, it will be reconciled."},
	{sales.ErrCompensationFailed, http.StatusInternalServerError, "Sale could not be completed and requires manual reconciliation."},
}

// writeSaleError maps a sales error to its HTTP status and body.
func (h *salesHandler) writeSaleError(ctx *gin.Context, err error) {
	log := h.requestLogger(ctx)
	_ = ctx.Error(err)

	for _, m := range errorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		message := m.message
		if message == "" {
			message = validationMessage(err)
		}
		body := gin.H{"error": message, "code": sales.Code(err)}
		var serr *sales.SaleError
		if errors.As(err, &serr) && sales.Alerting(err) {
			body["sale_id"] = serr.SaleID
		}
		ctx.JSON(m.status, body)
		return
	}

	log.Error("unexpected error", zap.Error(err))
	writeError(ctx, http.StatusInternalServerError, "internal_error", "An unexpected error occurred.")
}

func validationMessage(err error) string {
	var serr *sales.SaleError
	if errors.As(err, &serr) && serr.Err != nil {
		err = serr.Err
	}
	return err.Error()
}

func writeError(ctx *gin.Context, status int, code, message string) {
	ctx.JSON(status, gin.H{"error": message, "code": code})
}
