package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"
)

// PaymentConfirmedEvent is the already-validated on-chain payment
// confirmation, as delivered by the webhook endpoint or the AMQP consumer.
type PaymentConfirmedEvent struct {
	InvoiceID    string `json:"invoice_id" validate:"required"`
	TxHash       string `json:"tx_hash" validate:"required"`
	PayerAddress string `json:"payer_address" validate:"required"`
	Amount       int64  `json:"amount" validate:"gt=0"`
	Token        string `json:"token" validate:"required"`
	Chain        string `json:"chain" validate:"required"`
	BlockNumber  int64  `json:"block_number"`
}

// HandlePaymentConfirmed records the payment, marks the invoice paid and
// hands it to the engine. Safe under at-least-once delivery: the
// pending→paid CAS stamps tx_hash and payer exactly once, every redelivery
// afterwards is a no-op.
func (svc *DeliveryService) HandlePaymentConfirmed(ctx context.Context, event PaymentConfirmedEvent) error {
	invoice, err := svc.Repo.GetByExternalID(ctx, event.InvoiceID)
	if err != nil {
		return err
	}

	if !strings.EqualFold(event.Token, invoice.Token) || !strings.EqualFold(event.Chain, invoice.Chain) {
		return fmt.Errorf("%w: got %s/%s, want %s/%s",
			ErrWrongNetwork, event.Chain, event.Token, invoice.Chain, invoice.Token)
	}
	if event.Amount < invoice.Amount {
		return fmt.Errorf("%w: %d < %d", ErrAmountTooLow, event.Amount, invoice.Amount)
	}

	if common.TerminalInvoiceStatus(invoice.Status) {
		// funds arrived for a settled invoice; keep the payment row for the
		// audit trail, the CAS below stays a no-op
		svc.Logger.Infof("Payment confirmation for settled invoice external_id:%s status:%s tx_hash:%s",
			event.InvoiceID, invoice.Status, event.TxHash)
	}

	payment := &models.Payment{
		TxHash:        event.TxHash,
		InvoiceID:     invoice.ID,
		Amount:        event.Amount,
		Token:         event.Token,
		Chain:         event.Chain,
		SenderAddress: event.PayerAddress,
		BlockNumber:   event.BlockNumber,
		Status:        common.PaymentStatusConfirmed,
		CreatedAt:     time.Now(),
	}
	if err := svc.Repo.RecordPayment(ctx, payment); err != nil {
		// a redelivered confirmation trips the unique tx_hash constraint;
		// the CAS below decides whether anything is left to do
		svc.Logger.Debugf("Payment insert skipped tx_hash:%s %v", event.TxHash, err)
	}

	_, err = svc.Repo.UpdateStatus(ctx, event.InvoiceID, common.InvoiceStatusPending, common.InvoiceStatusPaid, map[string]interface{}{
		"tx_hash":       event.TxHash,
		"payer_address": event.PayerAddress,
		"confirmed_at":  bun.NullTime{Time: time.Now()},
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			svc.Logger.Infof("Invoice already paid or terminal, ignoring confirmation external_id:%s tx_hash:%s",
				event.InvoiceID, event.TxHash)
			return nil
		}
		return err
	}

	svc.Logger.Infof("Invoice paid external_id:%s tx_hash:%s payer:%s",
		event.InvoiceID, event.TxHash, event.PayerAddress)
	if err := svc.Engine.Enqueue(event.InvoiceID); err != nil {
		// invoice stays paid; the engine requeues it on start or via sweep
		svc.Logger.Warnf("Could not enqueue invoice external_id:%s %v", event.InvoiceID, err)
	}
	return nil
}

// eventValidator runs the same struct tags on AMQP messages that the echo
// binding runs on webhook bodies. Both inbound paths enforce one contract.
var eventValidator = validator.New()

// HandlePaymentMessage decodes and validates an AMQP payment confirmation
// and feeds it to HandlePaymentConfirmed.
func (svc *DeliveryService) HandlePaymentMessage(ctx context.Context, body []byte) error {
	var event PaymentConfirmedEvent
	err := json.Unmarshal(body, &event)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrValidation, err)
	} else if verr := eventValidator.Struct(&event); verr != nil {
		err = fmt.Errorf("%w: %v", ErrValidation, verr)
	} else {
		err = svc.HandlePaymentConfirmed(ctx, event)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		// rejecting the message would only requeue it forever
		svc.Logger.Errorf("Dropping invalid payment confirmation tx_hash:%s %v", event.TxHash, err)
		return nil
	}
	return err
}
