package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/craftlane/deliveryhub/db/models"
	"github.com/craftlane/deliveryhub/lib/responses"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/labstack/echo/v4"
)

// OrderController : Create and inspect service orders
type OrderController struct {
	svc *service.DeliveryService
}

func NewOrderController(svc *service.DeliveryService) *OrderController {
	return &OrderController{svc: svc}
}

type CreateOrderRequestBody struct {
	ServiceType    string          `json:"service_type" validate:"required"`
	ServiceConfig  json.RawMessage `json:"service_config"`
	Amount         int64           `json:"amount" validate:"gt=0"`
	Token          string          `json:"token" validate:"required"`
	Chain          string          `json:"chain" validate:"required"`
	CustomerEmail  string          `json:"customer_email" validate:"omitempty,email"`
	CustomerWallet string          `json:"customer_wallet"`
}

type OrderResponseBody struct {
	ID            string     `json:"id"`
	ServiceType   string     `json:"service_type"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Token         string     `json:"token"`
	Chain         string     `json:"chain"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

func (controller *OrderController) CreateOrder(c echo.Context) error {
	var body CreateOrderRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create order request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create order request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.CreateOrder(c.Request().Context(), service.CreateOrderRequest{
		ServiceType:    body.ServiceType,
		ServiceConfig:  body.ServiceConfig,
		Amount:         body.Amount,
		Token:          body.Token,
		Chain:          body.Chain,
		CustomerEmail:  body.CustomerEmail,
		CustomerWallet: body.CustomerWallet,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedService) {
			return c.JSON(http.StatusBadRequest, responses.UnsupportedServiceError)
		}
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, responses.ContactRequiredError)
		}
		c.Logger().Errorf("Failed to create order: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusCreated, orderResponse(invoice))
}

func (controller *OrderController) GetOrder(c echo.Context) error {
	invoice, err := controller.svc.GetOrder(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, responses.OrderNotFoundError)
		}
		c.Logger().Errorf("Failed to load order: order_id %v error %v", c.Param("order_id"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, orderResponse(invoice))
}

func (controller *OrderController) CancelOrder(c echo.Context) error {
	invoice, err := controller.svc.CancelOrder(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, responses.OrderNotFoundError)
		}
		if errors.Is(err, service.ErrConflict) {
			// processing already started or finished
			return c.JSON(http.StatusConflict, responses.BadArgumentsError)
		}
		c.Logger().Errorf("Failed to cancel order: order_id %v error %v", c.Param("order_id"), err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, orderResponse(invoice))
}

// orderResponse shapes the public view of an invoice: current status and, on
// failure, a human-readable reason. Internal retry counters stay internal.
func orderResponse(invoice *models.Invoice) *OrderResponseBody {
	resp := &OrderResponseBody{
		ID:            invoice.ExternalID,
		ServiceType:   invoice.ServiceType,
		Status:        invoice.Status,
		Amount:        invoice.Amount,
		Token:         invoice.Token,
		Chain:         invoice.Chain,
		FailureReason: invoice.FailureReason,
		CreatedAt:     invoice.CreatedAt,
	}
	if !invoice.DeliveredAt.IsZero() {
		t := invoice.DeliveredAt.Time
		resp.DeliveredAt = &t
	}
	return resp
}
