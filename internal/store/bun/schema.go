package bun

import (
	"context"

	"github.com/uptrace/bun"
)

// Migrate creates every table this store needs if it doesn't already exist.
// It is intentionally schema-only (no seed data, no down-migrations) —
// production deployments run the project's own migration tool; this is
// the fast path for tests and the local coordinator binary.
func Migrate(ctx context.Context, db *bun.DB) error {
	for _, model := range AllModels() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
