package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/uptrace/bun"
)

// fakeRepo is an in-memory InvoiceRepository with the same CAS semantics as
// the bun implementation. It records every transition so tests can assert
// the observed status path.
type fakeRepo struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	payments map[string]models.Payment
	history  map[string][]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		invoices: make(map[string]*models.Invoice),
		payments: make(map[string]models.Payment),
		history:  make(map[string][]string),
	}
}

func (r *fakeRepo) add(invoice *models.Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *invoice
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	r.invoices[cp.ExternalID] = &cp
	r.history[cp.ExternalID] = []string{cp.Status}
}

func (r *fakeRepo) statusHistory(externalID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history[externalID]...)
}

func (r *fakeRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *invoice
	return &cp, nil
}

func (r *fakeRepo) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	r.add(invoice)
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, externalID, fromStatus, toStatus string, fields map[string]interface{}) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	if invoice.Status != fromStatus {
		return nil, ErrConflict
	}
	invoice.Status = toStatus
	invoice.UpdatedAt = bun.NullTime{Time: time.Now()}
	for column, value := range fields {
		switch column {
		case "failure_reason":
			invoice.FailureReason = value.(string)
		case "deliverable_path":
			invoice.DeliverablePath = value.(string)
		case "delivered_at":
			invoice.DeliveredAt = value.(bun.NullTime)
		case "tx_hash":
			invoice.TxHash = value.(string)
		case "payer_address":
			invoice.PayerAddress = value.(string)
		case "confirmed_at":
			invoice.ConfirmedAt = value.(bun.NullTime)
		default:
			return nil, fmt.Errorf("fakeRepo: unknown column %s", column)
		}
	}
	r.history[externalID] = append(r.history[externalID], toStatus)
	cp := *invoice
	return &cp, nil
}

func (r *fakeRepo) RecordPayment(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.TxHash]; ok {
		return fmt.Errorf("duplicate key value violates unique constraint \"payments_tx_hash_key\"")
	}
	r.payments[payment.TxHash] = *payment
	return nil
}

func (r *fakeRepo) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []models.Invoice
	for _, invoice := range r.invoices {
		if invoice.Status == common.InvoiceStatusInProgress && invoice.UpdatedAt.Time.Before(cutoff) {
			stale = append(stale, *invoice)
		}
	}
	return stale, nil
}

func (r *fakeRepo) ListPaid(ctx context.Context) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paid []models.Invoice
	for _, invoice := range r.invoices {
		if invoice.Status == common.InvoiceStatusPaid {
			paid = append(paid, *invoice)
		}
	}
	return paid, nil
}

func (r *fakeRepo) Readmit(ctx context.Context, externalID string, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[externalID]
	if !ok {
		return ErrConflict
	}
	if invoice.Status != common.InvoiceStatusInProgress || !invoice.UpdatedAt.Time.Before(cutoff) {
		return ErrConflict
	}
	invoice.Status = common.InvoiceStatusPaid
	invoice.RetryCount++
	invoice.UpdatedAt = bun.NullTime{Time: time.Now()}
	r.history[externalID] = append(r.history[externalID], common.InvoiceStatusPaid)
	return nil
}

var _ InvoiceRepository = (*fakeRepo)(nil)
