package service

import (
	"context"
	"encoding/json"
	"io"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
)

// SubscribeTerminalInvoices hands the AMQP publisher its feed of delivered
// and failed invoices.
func (svc *DeliveryService) SubscribeTerminalInvoices() (chan models.Invoice, chan models.Invoice, error) {
	delivered := make(chan models.Invoice)
	failed := make(chan models.Invoice)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusDelivered, delivered)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusFailed, failed)
	return delivered, failed, nil
}

func (svc *DeliveryService) EncodeInvoiceEvent(ctx context.Context, w io.Writer, invoice models.Invoice) error {
	return json.NewEncoder(w).Encode(invoice)
}
