package migrations

import (
	"context"

	"github.com/craftlane/deliveryhub/db/models"
	"github.com/uptrace/bun"
)

/* Since this init will reflect the latest model fields when run on a fresh db
make sure that when you add/remove columns in subsequent migrations
IfNotExists/IfExists is used, otherwise it's going to result in errors. */
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Payment)(nil)).Exec(ctx); err != nil {
			return err
		}
		// the sweep scans in_progress invoices by age
		if _, err := db.NewCreateIndex().
			Model((*models.Invoice)(nil)).
			Index("invoices_status_updated_at_idx").
			Column("status", "updated_at").
			Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().
			Model((*models.Payment)(nil)).
			Index("payments_invoice_id_idx").
			Column("invoice_id").
			Exec(ctx); err != nil {
			return err
		}

		return nil
	}, nil)
}
