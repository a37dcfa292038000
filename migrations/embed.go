// Package migrations holds the dispatch schema as goose SQL files compiled
// into the binary. `dispatch migrate` and the integration tests both apply
// it through NewProvider.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Tables lists every table the migrations create, in creation order.
var Tables = []string{
	"programs", "users", "recurring_series", "trips",
	"notification_tags", "notification_preferences",
}

// NewProvider returns a goose provider for the embedded migrations on db.
func NewProvider(db *sql.DB) (*goose.Provider, error) {
	p, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		return nil, fmt.Errorf("migrations.NewProvider: %w", err)
	}
	return p, nil
}
