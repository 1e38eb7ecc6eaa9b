package handler

import (
	"net/http"
	"strings"

	"printstudio/internal/config"
	"printstudio/internal/domain/model"
	"printstudio/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc  *usecase.OrderUsecase
	cfg config.Config
}

func NewOrderHandler(uc *usecase.OrderUsecase, cfg config.Config) *OrderHandler {
	return &OrderHandler{uc: uc, cfg: cfg}
}

type OrderCreateRequest struct {
	ShippingMethod  string                `json:"shipping_method"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	Notes           string                `json:"notes"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/orders", auth)

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.DELETE("/:id", h.delete)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//送料と税率はサーバー側の設定で決める
	method := model.ShippingMethod(strings.ToLower(strings.TrimSpace(req.ShippingMethod)))
	cost, ok := h.cfg.ShippingCost(method)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "invalid shipping method",
			Fields: map[string]string{"shipping_method": "unknown shipping method"},
		})
	}

	out, err := h.uc.CreateOrder(c.Request().Context(), userID, usecase.CreateOrderInput{
		ShippingMethod:  method,
		ShippingAddress: req.ShippingAddress,
		ShippingCost:    cost,
		TaxRate:         h.cfg.TaxRate,
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return badRequest(c, "invalid offset")
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID, usecase.ListOrdersInput{
		Status: strings.ToUpper(c.QueryParam("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	if err := h.uc.DeleteOrder(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}
