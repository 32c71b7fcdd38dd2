package responses

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var BadAuthError = ErrorResponse{
	Error:          true,
	Code:           1,
	Message:        "bad auth",
	HttpStatusCode: 401,
}

var OrderNotFoundError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "order not found",
	HttpStatusCode: 404,
}

var DeliverableNotFoundError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "deliverable not found",
	HttpStatusCode: 404,
}

var UnsupportedServiceError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "unsupported service type",
	HttpStatusCode: 400,
}

var ContactRequiredError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "an email or wallet address is required",
	HttpStatusCode: 400,
}

var IncorrectNetworkError = ErrorResponse{
	Error:          true,
	Code:           4,
	Message:        "payment token or chain does not match the invoice",
	HttpStatusCode: 400,
}

var AmountTooLowError = ErrorResponse{
	Error:          true,
	Code:           4,
	Message:        "payment amount is lower than the invoice amount",
	HttpStatusCode: 400,
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("RequestID", c.Response().Header().Get(echo.HeaderXRequestID))
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
	} else {
		c.JSON(http.StatusInternalServerError, GeneralServerError)
	}
}
