// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the interactions table. It is defined
// in the postgres package so it has access to the unexported db field, and
// exported so the postgres_test package can call it.
func (x *Index) TruncateForTest(ctx context.Context) error {
	_, err := x.db.ExecContext(ctx, "TRUNCATE TABLE interactions")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate interactions: %w", err)
	}
	return nil
}
