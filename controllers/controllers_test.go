package controllers_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/craftlane/deliveryhub/generators"
	"github.com/craftlane/deliveryhub/lib"
	"github.com/craftlane/deliveryhub/lib/responses"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/craftlane/deliveryhub/storage"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

// memRepo is a minimal in-memory InvoiceRepository for exercising the HTTP
// surface without a database.
type memRepo struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	payments map[string]models.Payment
}

func newMemRepo() *memRepo {
	return &memRepo{
		invoices: make(map[string]*models.Invoice),
		payments: make(map[string]models.Payment),
	}
}

func (r *memRepo) add(invoice *models.Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *invoice
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	r.invoices[cp.ExternalID] = &cp
}

func (r *memRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[externalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	cp := *invoice
	return &cp, nil
}

func (r *memRepo) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	r.add(invoice)
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, externalID, fromStatus, toStatus string, fields map[string]interface{}) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	invoice, ok := r.invoices[externalID]
	if !ok {
		return nil, service.ErrNotFound
	}
	if invoice.Status != fromStatus {
		return nil, service.ErrConflict
	}
	invoice.Status = toStatus
	for column, value := range fields {
		switch column {
		case "tx_hash":
			invoice.TxHash = value.(string)
		case "payer_address":
			invoice.PayerAddress = value.(string)
		case "confirmed_at":
			invoice.ConfirmedAt = value.(bun.NullTime)
		}
	}
	invoice.UpdatedAt = bun.NullTime{Time: time.Now()}
	cp := *invoice
	return &cp, nil
}

func (r *memRepo) RecordPayment(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[payment.TxHash] = *payment
	return nil
}

func (r *memRepo) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Invoice, error) {
	return nil, nil
}

func (r *memRepo) ListPaid(ctx context.Context) ([]models.Invoice, error) {
	return nil, nil
}

func (r *memRepo) Readmit(ctx context.Context, externalID string, cutoff time.Time) error {
	return service.ErrConflict
}

var _ service.InvoiceRepository = (*memRepo)(nil)

type testEnv struct {
	echo  *echo.Echo
	svc   *service.DeliveryService
	repo  *memRepo
	store *storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	registry := generators.NewRegistry()
	registry.Register(common.ServiceTypeResearch, &generators.ResearchGenerator{})
	registry.Register(common.ServiceTypeLogo, &generators.LogoGenerator{})

	cfg := &service.Config{
		EngineWorkers:       1,
		EngineQueueSize:     8,
		EngineRetryAttempts: 1,
		GenerationTimeout:   5,
	}
	logger := lecho.New(io.Discard)
	repo := newMemRepo()
	pubsub := service.NewPubsub()
	engine := service.NewDeliveryEngine(cfg, repo, registry, store, logger, pubsub)

	svc := &service.DeliveryService{
		Config:        cfg,
		Logger:        logger,
		Repo:          repo,
		Registry:      registry,
		Store:         store,
		Engine:        engine,
		InvoicePubSub: pubsub,
	}

	e := echo.New()
	e.Logger = logger
	e.HTTPErrorHandler = responses.HTTPErrorHandler
	e.Validator = &lib.CustomValidator{Validator: validator.New()}

	return &testEnv{echo: e, svc: svc, repo: repo, store: store}
}
