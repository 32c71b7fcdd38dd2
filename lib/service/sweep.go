package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
)

// StartSweepRoutine runs the liveness sweep on the configured schedule until
// ctx is cancelled. The sweep is the engine's only self-healing mechanism:
// a crash mid-processing leaves an invoice in_progress, and nothing else
// will ever touch it again.
func (svc *DeliveryService) StartSweepRoutine(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %ds", svc.Config.SweepInterval), func() {
		if err := svc.SweepStaleInvoices(ctx); err != nil {
			svc.Logger.Errorf("Liveness sweep failed: %v", err)
			sentry.CaptureException(err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// SweepStaleInvoices re-admits invoices stuck in_progress past the staleness
// threshold back to paid, bounded by the re-admission cap. Beyond the cap an
// invoice is forced to failed so a poisoned order cannot retry forever.
// It also re-enqueues every invoice still sitting in paid: that is where a
// dropped Enqueue (full queue, stopped engine) leaves work behind, and the
// paid→in_progress CAS makes a duplicate enqueue a harmless no-op.
func (svc *DeliveryService) SweepStaleInvoices(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(svc.Config.SweepStalenessAge) * time.Second)
	stale, err := svc.Repo.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, invoice := range stale {
		if invoice.RetryCount >= svc.Config.SweepMaxReadmissions {
			_, err := svc.Repo.UpdateStatus(ctx, invoice.ExternalID, common.InvoiceStatusInProgress, common.InvoiceStatusFailed, map[string]interface{}{
				"failure_reason": "exceeded retry budget",
			})
			if err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
			svc.Logger.Errorf("Invoice exceeded retry budget external_id:%s readmissions:%d",
				invoice.ExternalID, invoice.RetryCount)
			continue
		}

		err := svc.Repo.Readmit(ctx, invoice.ExternalID, cutoff)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				// a worker finished it between the scan and the readmit
				continue
			}
			return err
		}
		svc.Logger.Warnf("Readmitted stale invoice external_id:%s readmission:%d",
			invoice.ExternalID, invoice.RetryCount+1)
		if err := svc.Engine.Enqueue(invoice.ExternalID); err != nil {
			svc.Logger.Warnf("Could not enqueue readmitted invoice external_id:%s %v", invoice.ExternalID, err)
		}
	}

	paid, err := svc.Repo.ListPaid(ctx)
	if err != nil {
		return err
	}
	for _, invoice := range paid {
		if err := svc.Engine.Enqueue(invoice.ExternalID); err != nil {
			// next sweep tries again
			svc.Logger.Warnf("Could not enqueue paid invoice external_id:%s %v", invoice.ExternalID, err)
			break
		}
	}
	return nil
}
