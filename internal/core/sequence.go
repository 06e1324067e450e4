package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// nextPRNumber allocates the next purchase-request number for a project from
// the per-project counter row. The upsert takes a row lock on the counter, so
// two concurrent creations for the same project serialize rather than parsing
// the same max suffix and colliding.
func nextPRNumber(ctx context.Context, tx pgx.Tx, projectID int) (string, error) {
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO pr_sequences (project_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (project_id)
		DO UPDATE SET last_number = pr_sequences.last_number + 1
		RETURNING last_number`,
		projectID,
	).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("generate PR number for project %d: %w", projectID, err)
	}
	return fmt.Sprintf("PR-%d-%03d", projectID, lastNumber), nil
}
