package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"examgrader/internal/common/db"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the grading tables when they do not exist yet.
func Migrate(ctx context.Context, database db.Database) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
