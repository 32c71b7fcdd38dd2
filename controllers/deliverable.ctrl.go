package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/craftlane/deliveryhub/lib/responses"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/craftlane/deliveryhub/storage"
	"github.com/labstack/echo/v4"
)

// DeliverableController : Download handle for finished deliverables
type DeliverableController struct {
	svc *service.DeliveryService
}

func NewDeliverableController(svc *service.DeliveryService) *DeliverableController {
	return &DeliverableController{svc: svc}
}

// contentTypes is the fixed allow-list for single-file deliverables.
// Anything else is served as a generic binary.
var contentTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".py":   "text/plain; charset=utf-8",
	".sh":   "text/plain; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".json": "application/json",
}

// GetDeliverable serves the deliverable of an order. Directories are
// streamed as a zip archive; single files with a content type from the
// extension allow-list. Identifiers carrying traversal sequences are
// rejected before any filesystem access.
func (controller *DeliverableController) GetDeliverable(c echo.Context) error {
	orderID := c.Param("order_id")

	ref, err := controller.svc.Store.Get(orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, responses.DeliverableNotFoundError)
		}
		c.Logger().Errorf("Rejected deliverable request: order_id %v error %v", orderID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	if ref.IsDir {
		c.Response().Header().Set(echo.HeaderContentType, "application/zip")
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="%s.zip"`, ref.InvoiceID))
		c.Response().WriteHeader(http.StatusOK)
		// the archive is assembled on the fly into the response body
		if err := controller.svc.Store.Package(orderID, c.Response()); err != nil {
			c.Logger().Errorf("Failed to stream deliverable archive: order_id %v error %v", orderID, err)
			return err
		}
		return nil
	}

	name := ref.Files[0]
	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.File(controller.svc.Store.FilePath(ref))
}
