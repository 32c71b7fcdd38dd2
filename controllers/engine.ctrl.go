package controllers

import (
	"net/http"

	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/labstack/echo/v4"
)

// EngineController : Supervisor surface for the delivery engine
type EngineController struct {
	svc *service.DeliveryService
}

func NewEngineController(svc *service.DeliveryService) *EngineController {
	return &EngineController{svc: svc}
}

func (controller *EngineController) Start(c echo.Context) error {
	status := controller.svc.Engine.Start()
	return c.JSON(http.StatusOK, status)
}

func (controller *EngineController) Stop(c echo.Context) error {
	status := controller.svc.Engine.Stop()
	return c.JSON(http.StatusOK, status)
}

func (controller *EngineController) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, controller.svc.Engine.GetStatus())
}
