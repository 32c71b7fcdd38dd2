package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftlane/deliveryhub/common"
	"github.com/craftlane/deliveryhub/db/models"
	"github.com/craftlane/deliveryhub/generators"
	"github.com/craftlane/deliveryhub/rabbitmq"
	"github.com/craftlane/deliveryhub/storage"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

type DeliveryService struct {
	Config         *Config
	DB             *bun.DB
	Logger         *lecho.Logger
	Repo           InvoiceRepository
	Registry       *generators.Registry
	Store          *storage.Store
	Engine         *DeliveryEngine
	InvoicePubSub  *Pubsub
	RabbitMQClient rabbitmq.Client
}

type CreateOrderRequest struct {
	ServiceType    string `json:"service_type" validate:"required"`
	ServiceConfig  []byte `json:"-"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Token          string `json:"token" validate:"required"`
	Chain          string `json:"chain" validate:"required"`
	CustomerEmail  string `json:"customer_email" validate:"omitempty,email"`
	CustomerWallet string `json:"customer_wallet"`
}

// CreateOrder creates a pending invoice for a requested service. The
// external id is non-guessable; it later doubles as the deliverable key.
func (svc *DeliveryService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Invoice, error) {
	if req.CustomerEmail == "" && req.CustomerWallet == "" {
		return nil, fmt.Errorf("%w: an email or wallet address is required", ErrValidation)
	}
	if _, ok := svc.Registry.Resolve(req.ServiceType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedService, req.ServiceType)
	}

	invoice := &models.Invoice{
		ExternalID:     "INV-" + strings.ToUpper(uuid.NewString()[:13]),
		ServiceType:    req.ServiceType,
		ServiceConfig:  req.ServiceConfig,
		Amount:         req.Amount,
		Token:          req.Token,
		Chain:          req.Chain,
		CustomerEmail:  req.CustomerEmail,
		CustomerWallet: req.CustomerWallet,
		Status:         common.InvoiceStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := svc.Repo.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}
	svc.Logger.Infof("Order created external_id:%s service_type:%s amount:%d %s/%s",
		invoice.ExternalID, invoice.ServiceType, invoice.Amount, invoice.Chain, invoice.Token)
	return invoice, nil
}

// GetOrder returns an invoice by its external id.
func (svc *DeliveryService) GetOrder(ctx context.Context, externalID string) (*models.Invoice, error) {
	return svc.Repo.GetByExternalID(ctx, externalID)
}

// CancelOrder cancels an invoice that has not started processing. Allowed
// from pending or paid only; once a deliverable may exist the order can no
// longer be cancelled.
func (svc *DeliveryService) CancelOrder(ctx context.Context, externalID string) (*models.Invoice, error) {
	invoice, err := svc.Repo.UpdateStatus(ctx, externalID, common.InvoiceStatusPending, common.InvoiceStatusCancelled, nil)
	if err == nil {
		return invoice, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return svc.Repo.UpdateStatus(ctx, externalID, common.InvoiceStatusPaid, common.InvoiceStatusCancelled, nil)
}
