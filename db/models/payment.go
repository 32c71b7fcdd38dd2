package models

import (
	"time"
)

// Payment : one on-chain transfer matched to an invoice. Several payments may
// reference the same invoice (overpayment, retries, multi-chain attempts);
// the invoice's own tx_hash column decides which one settled it.
type Payment struct {
	ID            int64     `json:"id" bun:",pk,autoincrement"`
	TxHash        string    `json:"tx_hash" bun:",notnull,unique" validate:"required"`
	InvoiceID     int64     `json:"invoice_id" bun:",notnull"`
	Invoice       *Invoice  `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	Amount        int64     `json:"amount" validate:"gte=0"`
	Token         string    `json:"token" bun:",notnull"`
	Chain         string    `json:"chain" bun:",notnull"`
	SenderAddress string    `json:"sender_address" bun:",nullzero"`
	BlockNumber   int64     `json:"block_number" bun:",nullzero"`
	Status        string    `json:"status" bun:",default:'pending'"`
	CreatedAt     time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}
