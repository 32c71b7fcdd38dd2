package service

import (
	"testing"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubsub(t *testing.T) {
	ps := NewPubsub()
	ch := make(chan models.Invoice, 1)
	subID := ps.Subscribe(common.InvoiceStatusDelivered, ch)

	ps.Publish(common.InvoiceStatusDelivered, models.Invoice{ExternalID: "INV-1"})
	select {
	case invoice := <-ch:
		assert.Equal(t, "INV-1", invoice.ExternalID)
	case <-time.After(time.Second):
		t.Fatal("expected a published invoice")
	}

	// other topics do not leak in
	ps.Publish(common.InvoiceStatusFailed, models.Invoice{ExternalID: "INV-2"})
	select {
	case invoice := <-ch:
		t.Fatalf("unexpected invoice %s", invoice.ExternalID)
	default:
	}

	ps.Unsubscribe(subID, common.InvoiceStatusDelivered)
	_, open := <-ch
	require.False(t, open, "unsubscribe closes the channel")

	// publishing to a topic with no subscribers is a no-op
	ps.Publish(common.InvoiceStatusDelivered, models.Invoice{ExternalID: "INV-3"})
}
