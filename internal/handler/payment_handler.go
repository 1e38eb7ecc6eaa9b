package handler

import (
	"io"
	"net/http"

	"printstudio/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// コールバック本文の上限
const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	uc  *usecase.PaymentUsecase
	log *zap.Logger
}

func NewPaymentHandler(uc *usecase.PaymentUsecase, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{uc: uc, log: log}
}

type InitiatePaymentRequest struct {
	OrderID int64  `json:"order_id"`
	Phone   string `json:"phone"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	// プロバイダからの通知なので認証なし
	e.POST("/payments/callback", h.callback)

	g := e.Group("/payments", auth)
	g.POST("", h.initiate)
	g.GET("/:id", h.detail)
	g.GET("/:id/status", h.status)

	e.GET("/orders/:id/payments", h.listByOrder, auth)
}

func (h *PaymentHandler) initiate(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.InitiatePayment(c.Request().Context(), userID, usecase.InitiatePaymentInput{
		OrderID: req.OrderID,
		Phone:   req.Phone,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.GetPayment(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) status(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.CheckStatus(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) listByOrder(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.ListOrderPayments(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 常に {resultCode, resultDesc} を返す
func (h *PaymentHandler) callback(c echo.Context) error {
	// 上限を1バイト超えて読み、切り詰めと壊れた本文を区別する
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody+1))
	if err != nil {
		h.log.Warn("read callback body", zap.Error(err))
		return c.JSON(http.StatusOK, usecase.CallbackAck{ResultCode: 1, ResultDesc: "invalid payload"})
	}
	if len(body) > maxCallbackBody {
		h.log.Warn("callback body too large",
			zap.Int("limit_bytes", maxCallbackBody),
			zap.Int64("content_length", c.Request().ContentLength),
		)
		return c.JSON(http.StatusOK, usecase.CallbackAck{ResultCode: 1, ResultDesc: "payload too large"})
	}

	ack := h.uc.HandleCallback(c.Request().Context(), body)
	return c.JSON(ack.HTTPStatus, ack)
}
