package server

import (
	"printstudio/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth       *handler.AuthHandler
	Product    *handler.ProductHandler
	Cart       *handler.CartHandler
	Order      *handler.OrderHandler
	Payment    *handler.PaymentHandler
	AdminOrder *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc, h Handlers) {
	h.Auth.RegisterRoutes(e, auth)
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, auth)
	h.Order.RegisterRoutes(e, auth)
	h.Payment.RegisterRoutes(e, auth)
	h.AdminOrder.RegisterRoutes(e, auth)
}
