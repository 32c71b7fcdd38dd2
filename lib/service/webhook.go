package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
)

// StartWebhookSubscription posts every terminal invoice outcome to the
// configured webhook URL. Observer failures are logged and never touch the
// invoice's state.
func (svc *DeliveryService) StartWebhookSubscription(ctx context.Context, url string) {

	svc.Logger.Infof("Starting webhook subscription with webhook url %s", url)
	deliveredInvoices := make(chan models.Invoice)
	failedInvoices := make(chan models.Invoice)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusDelivered, deliveredInvoices)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusFailed, failedInvoices)
	for {
		select {
		case <-ctx.Done():
			return
		case delivered := <-deliveredInvoices:
			svc.postToWebhook(delivered, url)
		case failed := <-failedInvoices:
			svc.postToWebhook(failed, url)
		}
	}
}

func (svc *DeliveryService) postToWebhook(invoice models.Invoice, url string) {

	payload := new(bytes.Buffer)
	err := json.NewEncoder(payload).Encode(invoice)
	if err != nil {
		svc.Logger.Error(err)
		return
	}

	resp, err := http.Post(url, "application/json", payload)
	if err != nil {
		svc.Logger.Error(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			svc.Logger.Error(err)
		}
		svc.Logger.Errorf("Webhook status code was %d, body: %s", resp.StatusCode, msg)
	}
}
