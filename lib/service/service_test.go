package service

import (
	"context"
	"strings"
	"testing"

	"github.com/craftlane/deliveryhub/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(t, repo, &stubGenerator{})

	invoice, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ServiceType:   common.ServiceTypeResearch,
		ServiceConfig: []byte(`{"topic":"zk rollups"}`),
		Amount:        25000000,
		Token:         "USDC",
		Chain:         "polygon",
		CustomerEmail: "customer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusPending, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.ExternalID, "INV-"))
	assert.Len(t, invoice.ExternalID, 17)

	got, err := svc.GetOrder(context.Background(), invoice.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ExternalID, got.ExternalID)
}

func TestCreateOrderExternalIDsAreUnique(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(t, repo, &stubGenerator{})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		invoice, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
			ServiceType:    common.ServiceTypeResearch,
			Amount:         1,
			Token:          "USDC",
			Chain:          "polygon",
			CustomerWallet: "0xpayer",
		})
		require.NoError(t, err)
		assert.False(t, seen[invoice.ExternalID])
		seen[invoice.ExternalID] = true
	}
}

func TestCreateOrderRequiresContact(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(t, repo, &stubGenerator{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ServiceType: common.ServiceTypeResearch,
		Amount:      1,
		Token:       "USDC",
		Chain:       "polygon",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderUnsupportedServiceType(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(t, repo, &stubGenerator{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ServiceType:   "sculpture",
		Amount:        1,
		Token:         "USDC",
		Chain:         "polygon",
		CustomerEmail: "customer@example.com",
	})
	assert.ErrorIs(t, err, ErrUnsupportedService)
}

func TestCancelOrder(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := testService(t, repo, &stubGenerator{})

	repo.add(pendingInvoice("INV-PENDING"))
	repo.add(paidInvoice("INV-PAID"))
	inProgress := paidInvoice("INV-BUSY")
	inProgress.Status = common.InvoiceStatusInProgress
	repo.add(inProgress)

	cancelled, err := svc.CancelOrder(context.Background(), "INV-PENDING")
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusCancelled, cancelled.Status)

	cancelled, err = svc.CancelOrder(context.Background(), "INV-PAID")
	require.NoError(t, err)
	assert.Equal(t, common.InvoiceStatusCancelled, cancelled.Status)

	// once processing has started a deliverable may already exist
	_, err = svc.CancelOrder(context.Background(), "INV-BUSY")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.CancelOrder(context.Background(), "INV-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}
