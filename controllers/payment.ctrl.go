package controllers

import (
	"errors"
	"net/http"

	"github.com/craftlane/deliveryhub/lib/responses"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/labstack/echo/v4"
)

// PaymentController : Inbound payment confirmation webhook
type PaymentController struct {
	svc *service.DeliveryService
}

func NewPaymentController(svc *service.DeliveryService) *PaymentController {
	return &PaymentController{svc: svc}
}

// PaymentConfirmed accepts an already-validated on-chain payment
// confirmation. Fulfillment itself happens in the background; a 200 here
// only means the confirmation was accepted and the invoice is paid.
func (controller *PaymentController) PaymentConfirmed(c echo.Context) error {
	var body service.PaymentConfirmedEvent
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load payment confirmation body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid payment confirmation body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	err := controller.svc.HandlePaymentConfirmed(c.Request().Context(), body)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, responses.OrderNotFoundError)
		}
		if errors.Is(err, service.ErrValidation) {
			c.Logger().Errorf("Rejected payment confirmation: invoice_id %v tx_hash %v error %v",
				body.InvoiceID, body.TxHash, err)
			if errors.Is(err, service.ErrWrongNetwork) {
				return c.JSON(http.StatusBadRequest, responses.IncorrectNetworkError)
			}
			return c.JSON(http.StatusBadRequest, responses.AmountTooLowError)
		}
		c.Logger().Errorf("Failed to handle payment confirmation: invoice_id %v error %v", body.InvoiceID, err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "accepted"})
}
