package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/uptrace/bun"
)

// InvoiceRepository is the engine's only view of the relational store. The
// conditional status update is the sole mutual-exclusion primitive in the
// system: it must be a single atomic statement, never read-then-write.
type InvoiceRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	// UpdateStatus performs a compare-and-swap on the status column. fields
	// are extra columns written in the same statement. It returns ErrConflict
	// when the current status does not match fromStatus, ErrNotFound when no
	// invoice with the given external id exists.
	UpdateStatus(ctx context.Context, externalID, fromStatus, toStatus string, fields map[string]interface{}) (*models.Invoice, error)
	RecordPayment(ctx context.Context, payment *models.Payment) error
	// ListStaleInProgress returns invoices stuck in_progress whose last
	// update is older than the given cutoff.
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Invoice, error)
	// ListPaid returns invoices waiting for processing. Used on engine start
	// to requeue work that was admitted before a restart.
	ListPaid(ctx context.Context) ([]models.Invoice, error)
	// Readmit moves one stale in_progress invoice back to paid and counts
	// the re-admission, as a single conditional update.
	Readmit(ctx context.Context, externalID string, cutoff time.Time) error
}

type BunInvoiceRepository struct {
	DB *bun.DB
}

func NewBunInvoiceRepository(db *bun.DB) *BunInvoiceRepository {
	return &BunInvoiceRepository{DB: db}
}

func (r *BunInvoiceRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.DB.NewSelect().Model(&invoice).Where("external_id = ?", externalID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *BunInvoiceRepository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	_, err := r.DB.NewInsert().Model(invoice).Exec(ctx)
	return err
}

func (r *BunInvoiceRepository) UpdateStatus(ctx context.Context, externalID, fromStatus, toStatus string, fields map[string]interface{}) (*models.Invoice, error) {
	q := r.DB.NewUpdate().
		Model((*models.Invoice)(nil)).
		Set("status = ?", toStatus).
		Set("updated_at = ?", time.Now()).
		Where("external_id = ? AND status = ?", externalID, fromStatus)
	for column, value := range fields {
		q = q.Set("? = ?", bun.Ident(column), value)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// CAS lost: either the invoice does not exist, or its status moved on
		if _, err := r.GetByExternalID(ctx, externalID); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return r.GetByExternalID(ctx, externalID)
}

func (r *BunInvoiceRepository) RecordPayment(ctx context.Context, payment *models.Payment) error {
	_, err := r.DB.NewInsert().Model(payment).Exec(ctx)
	return err
}

func (r *BunInvoiceRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.DB.NewSelect().
		Model(&invoices).
		Where("status = ? AND updated_at < ?", common.InvoiceStatusInProgress, cutoff).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *BunInvoiceRepository) ListPaid(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.DB.NewSelect().
		Model(&invoices).
		Where("status = ?", common.InvoiceStatusPaid).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *BunInvoiceRepository) Readmit(ctx context.Context, externalID string, cutoff time.Time) error {
	res, err := r.DB.NewUpdate().
		Model((*models.Invoice)(nil)).
		Set("status = ?", common.InvoiceStatusPaid).
		Set("retry_count = retry_count + 1").
		Set("updated_at = ?", time.Now()).
		Where("external_id = ? AND status = ? AND updated_at < ?",
			externalID, common.InvoiceStatusInProgress, cutoff).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}
