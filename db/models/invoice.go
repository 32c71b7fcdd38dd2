package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Invoice : a priced service order and its fulfillment state.
// ExternalID is the customer-facing identifier; the numeric pk never leaves
// the database layer.
type Invoice struct {
	ID              int64           `json:"-" bun:",pk,autoincrement"`
	ExternalID      string          `json:"id" bun:",notnull,unique" validate:"required"`
	ServiceType     string          `json:"service_type" bun:",notnull" validate:"required"`
	ServiceConfig   json.RawMessage `json:"service_config,omitempty" bun:"type:jsonb,nullzero"`
	Amount          int64           `json:"amount" validate:"gte=0"`
	Token           string          `json:"token" bun:",notnull"`
	Chain           string          `json:"chain" bun:",notnull"`
	CustomerEmail   string          `json:"customer_email,omitempty" bun:",nullzero"`
	CustomerWallet  string          `json:"customer_wallet,omitempty" bun:",nullzero"`
	Status          string          `json:"status" bun:",default:'pending'"`
	FailureReason   string          `json:"failure_reason,omitempty" bun:",nullzero"`
	TxHash          string          `json:"tx_hash,omitempty" bun:",nullzero,unique"`
	PayerAddress    string          `json:"payer_address,omitempty" bun:",nullzero"`
	DeliverablePath string          `json:"deliverable_path,omitempty" bun:",nullzero"`
	RetryCount      int             `json:"-" bun:",default:0"`
	CreatedAt       time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	ConfirmedAt     bun.NullTime    `json:"confirmed_at"`
	DeliveredAt     bun.NullTime    `json:"delivered_at"`
	UpdatedAt       bun.NullTime    `json:"updated_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
