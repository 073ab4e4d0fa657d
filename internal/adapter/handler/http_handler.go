package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	orderService  *service.OrderService
	basketService *service.BasketService
	logger        *slog.Logger
}

func NewHTTPHandler(orderService *service.OrderService, basketService *service.BasketService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{orderService: orderService, basketService: basketService, logger: logger}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("", h.ListOrders)
	orders.GET("/:id", h.GetOrder)
	orders.GET("/user/:userId", h.ListCustomerOrders)
	orders.GET("/status/:status", h.ListOrdersByStatus)
	orders.PATCH("/:id/status", h.UpdateStatus)
	orders.DELETE("/:id", h.CancelOrder)

	basket := api.Group("/basket")
	basket.POST("", h.AddToBasket)
	basket.GET("/user/:userId", h.ListBasket)
	basket.GET("/user/:userId/count", h.CountBasket)
	basket.PATCH("/:id", h.UpdateBasketLine)
	basket.DELETE("/:id", h.RemoveBasketLine)
	basket.DELETE("/user/:userId", h.ClearBasket)
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	key := c.GetHeader(idempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.checkout(), key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderDTO(order))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDTOs(orders))
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDTO(order))
}

func (h *HTTPHandler) ListCustomerOrders(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	orders, err := h.orderService.ListCustomerOrders(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDTOs(orders))
}

func (h *HTTPHandler) ListOrdersByStatus(c *gin.Context) {
	status, err := domain.ParseOrderStatus(c.Param("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	orders, err := h.orderService.ListOrdersByStatus(c.Request.Context(), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDTOs(orders))
}

func (h *HTTPHandler) UpdateStatus(c *gin.Context) {
	status, err := domain.ParseOrderStatus(c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderDTO(order))
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	if _, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) AddToBasket(c *gin.Context) {
	var req AddToBasketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	line, err := h.basketService.Add(c.Request.Context(), req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, basketLineDTO(line))
}

func (h *HTTPHandler) ListBasket(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	lines, err := h.basketService.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]BasketLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, basketLineDTO(l))
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) CountBasket(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	n, err := h.basketService.Count(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *HTTPHandler) UpdateBasketLine(c *gin.Context) {
	lineID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req UpdateBasketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	line, err := h.basketService.UpdateQuantity(c.Request.Context(), lineID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, basketLineDTO(line))
}

func (h *HTTPHandler) RemoveBasketLine(c *gin.Context) {
	lineID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.basketService.Remove(c.Request.Context(), lineID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ClearBasket(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	if err := h.basketService.Clear(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: message})
}

func httpStatus(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "invalid_quantity":
		return http.StatusBadRequest
	case "validation_error":
		return http.StatusUnprocessableEntity
	case "insufficient_stock", "invalid_transition", "duplicate_request":
		return http.StatusConflict
	case "empty_basket":
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	code := domain.Code(err)
	status := httpStatus(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}
