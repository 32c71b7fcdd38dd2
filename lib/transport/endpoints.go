package transport

import (
	"github.com/craftlane/deliveryhub/controllers"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/labstack/echo/v4"
)

func RegisterEndpoints(svc *service.DeliveryService, e *echo.Echo, strictRateLimitMiddleware echo.MiddlewareFunc, adminMw echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	orderCtrl := controllers.NewOrderController(svc)
	paymentCtrl := controllers.NewPaymentController(svc)
	deliverableCtrl := controllers.NewDeliverableController(svc)
	engineCtrl := controllers.NewEngineController(svc)

	e.POST("/orders", orderCtrl.CreateOrder, strictRateLimitMiddleware, logMw)
	e.GET("/orders/:order_id", orderCtrl.GetOrder, logMw)
	e.GET("/deliverables/:order_id", deliverableCtrl.GetDeliverable, logMw)

	// the confirmation source (chain watcher) authenticates with the admin
	// token; signature verification of raw chain events happens upstream
	e.POST("/webhook/payment-confirmed", paymentCtrl.PaymentConfirmed, adminMw, logMw)

	e.POST("/orders/:order_id/cancel", orderCtrl.CancelOrder, adminMw, logMw)
	e.POST("/engine/start", engineCtrl.Start, adminMw, logMw)
	e.POST("/engine/stop", engineCtrl.Stop, adminMw, logMw)
	e.GET("/engine/status", engineCtrl.Status, adminMw, logMw)
}
