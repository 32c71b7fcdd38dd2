package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/craftlane/deliveryhub/generators"
	"github.com/craftlane/deliveryhub/storage"
	"github.com/getsentry/sentry-go"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

// DeliverableStore is the slice of the storage API the engine needs.
type DeliverableStore interface {
	Put(invoiceID, workDir string, artifacts []string) (*storage.DeliverableRef, error)
}

type EngineStatus struct {
	Running      bool     `json:"running"`
	InFlight     int      `json:"in_flight"`
	ServiceTypes []string `json:"service_types"`
	LastError    string   `json:"last_error,omitempty"`
}

// DeliveryEngine drives paid invoices through generation, packaging and the
// terminal status transition. Admission is enforced by the repository's CAS,
// not by anything in-process, so concurrent triggers for the same invoice
// from the queue, direct calls or another engine instance leave exactly one
// winner.
type DeliveryEngine struct {
	cfg      *Config
	repo     InvoiceRepository
	registry *generators.Registry
	store    DeliverableStore
	logger   *lecho.Logger
	pubsub   *Pubsub

	mu      sync.Mutex
	running bool
	queue   chan string
	workers sync.WaitGroup

	inFlight  atomic.Int64
	lastError atomic.Value // string
}

func NewDeliveryEngine(cfg *Config, repo InvoiceRepository, registry *generators.Registry, store DeliverableStore, logger *lecho.Logger, pubsub *Pubsub) *DeliveryEngine {
	return &DeliveryEngine{
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		store:    store,
		logger:   logger,
		pubsub:   pubsub,
	}
}

// Start brings up the worker pool and requeues invoices that were already
// paid before a restart. Starting a running engine is a no-op.
func (e *DeliveryEngine) Start() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return e.statusLocked()
	}

	e.queue = make(chan string, e.cfg.EngineQueueSize)
	for i := 0; i < e.cfg.EngineWorkers; i++ {
		e.workers.Add(1)
		go e.workerLoop(e.queue)
	}
	e.running = true
	e.logger.Infof("Delivery engine started with %d workers", e.cfg.EngineWorkers)

	queue := e.queue
	go e.requeuePaid(queue)

	return e.statusLocked()
}

// Stop closes admission and waits for in-flight invoices to finish. Work
// already being processed runs to completion; a half-written deliverable is
// worse than a slow shutdown.
func (e *DeliveryEngine) Stop() EngineStatus {
	e.mu.Lock()
	if !e.running {
		defer e.mu.Unlock()
		return e.statusLocked()
	}
	queue := e.queue
	e.running = false
	e.queue = nil
	e.mu.Unlock()

	close(queue)
	e.workers.Wait()
	e.logger.Info("Delivery engine stopped")

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *DeliveryEngine) GetStatus() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *DeliveryEngine) statusLocked() EngineStatus {
	lastErr, _ := e.lastError.Load().(string)
	return EngineStatus{
		Running:      e.running,
		InFlight:     int(e.inFlight.Load()),
		ServiceTypes: e.registry.ServiceTypes(),
		LastError:    lastErr,
	}
}

// Enqueue schedules an invoice for background processing. With a full queue
// the invoice is left in paid state; the sweep requeues it later.
func (e *DeliveryEngine) Enqueue(externalID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return fmt.Errorf("delivery engine is not running")
	}
	select {
	case e.queue <- externalID:
		return nil
	default:
		return fmt.Errorf("delivery queue is full, invoice %s stays queued in the store", externalID)
	}
}

func (e *DeliveryEngine) workerLoop(queue <-chan string) {
	defer e.workers.Done()
	for externalID := range queue {
		if err := e.ProcessInvoice(context.Background(), externalID); err != nil {
			e.logger.Errorf("Failed to process invoice external_id:%s %v", externalID, err)
			sentry.CaptureException(err)
		}
	}
}

func (e *DeliveryEngine) requeuePaid(queue chan string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	invoices, err := e.repo.ListPaid(ctx)
	if err != nil {
		e.logger.Errorf("Failed to list paid invoices on start: %v", err)
		return
	}
	for _, invoice := range invoices {
		if err := e.Enqueue(invoice.ExternalID); err != nil {
			// the sweep picks these up later
			e.logger.Warnf("Could not requeue invoice external_id:%s %v", invoice.ExternalID, err)
			return
		}
	}
	if len(invoices) > 0 {
		e.logger.Infof("Requeued %d paid invoices", len(invoices))
	}
}

// ProcessInvoice is the unit of work. It is safe to call it multiple times
// and from multiple goroutines for the same invoice: the paid→in_progress
// CAS admits exactly one caller, every loser returns a nil no-op.
//
// Terminal generation failures are recorded on the invoice and do not
// propagate as errors; only infrastructure failures (repository errors) do.
func (e *DeliveryEngine) ProcessInvoice(ctx context.Context, externalID string) error {
	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	invoice, err := e.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}

	invoice, err = e.repo.UpdateStatus(ctx, externalID, common.InvoiceStatusPaid, common.InvoiceStatusInProgress, nil)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// another worker owns it, or it already reached a terminal state
			e.logger.Debugf("Invoice already claimed external_id:%s", externalID)
			return nil
		}
		e.recordError(err)
		return err
	}

	generator, ok := e.registry.Resolve(invoice.ServiceType)
	if !ok {
		return e.failInvoice(ctx, invoice, fmt.Errorf("%w: %s", ErrUnsupportedService, invoice.ServiceType))
	}

	ref, err := e.generateWithRetry(ctx, invoice, generator)
	if err != nil {
		return e.failInvoice(ctx, invoice, err)
	}

	delivered, err := e.repo.UpdateStatus(ctx, externalID, common.InvoiceStatusInProgress, common.InvoiceStatusDelivered, map[string]interface{}{
		"deliverable_path": ref.Path,
		"delivered_at":     bun.NullTime{Time: time.Now()},
	})
	if err != nil {
		e.recordError(err)
		return err
	}
	e.logger.Infof("Invoice delivered external_id:%s deliverable:%s", externalID, ref.Path)
	e.pubsub.Publish(common.InvoiceStatusDelivered, *delivered)
	return nil
}

// generateWithRetry runs the generation+storage step under the per-invoice
// timeout, retrying transient failures with exponential backoff up to the
// configured attempt budget. The store key is deterministic, so a retry
// safely overwrites the previous attempt's output.
func (e *DeliveryEngine) generateWithRetry(ctx context.Context, invoice *models.Invoice, generator generators.Generator) (*storage.DeliverableRef, error) {
	var ref *storage.DeliverableRef

	attempt := func() error {
		workDir, err := os.MkdirTemp("", "deliveryhub-"+invoice.ExternalID+"-*")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		defer os.RemoveAll(workDir)

		genCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.GenerationTimeout)*time.Second)
		defer cancel()

		artifacts, err := generator.Generate(genCtx, invoice.ServiceConfig, workDir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		stored, err := e.store.Put(invoice.ExternalID, workDir, artifacts)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		ref = stored
		return nil
	}

	expontentialBackoff := backoff.NewExponentialBackOff()
	expontentialBackoff.InitialInterval = time.Second
	expontentialBackoff.MaxInterval = 30 * time.Second
	expontentialBackoff.MaxElapsedTime = 0

	attempts := e.cfg.EngineRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	err := backoff.Retry(attempt, backoff.WithMaxRetries(expontentialBackoff, uint64(attempts-1)))
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// failInvoice records the terminal failure on the invoice. The error is
// translated into a failure reason; it never propagates past this boundary.
func (e *DeliveryEngine) failInvoice(ctx context.Context, invoice *models.Invoice, cause error) error {
	e.recordError(cause)
	failed, err := e.repo.UpdateStatus(ctx, invoice.ExternalID, common.InvoiceStatusInProgress, common.InvoiceStatusFailed, map[string]interface{}{
		"failure_reason": cause.Error(),
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// the sweep readmitted it in the meantime
			e.logger.Warnf("Invoice moved on before failure could be recorded external_id:%s", invoice.ExternalID)
			return nil
		}
		return err
	}
	e.logger.Errorf("Invoice failed external_id:%s reason:%s", invoice.ExternalID, failed.FailureReason)
	e.pubsub.Publish(common.InvoiceStatusFailed, *failed)
	return nil
}

func (e *DeliveryEngine) recordError(err error) {
	e.lastError.Store(err.Error())
}
