package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActivityLog struct {
	ID            int       `json:"id"`
	ProjectID     *int      `json:"project_id,omitempty"`
	RelatedEntity string    `json:"related_entity"`
	RelatedID     *int      `json:"related_id,omitempty"`
	ActorID       *int      `json:"actor_id,omitempty"`
	Action        string    `json:"action"`
	Comment       *string   `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// logActivityTx records an audit row inside the caller's transaction so the
// log line disappears with the action on rollback.
func logActivityTx(ctx context.Context, tx pgx.Tx, projectID int, entity string, relatedID, actorID int, action string, comment *string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO activity_logs (project_id, related_entity, related_id, actor_id, action, comment)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		projectID, entity, relatedID, actorID, action, comment,
	); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListActivity returns a project's audit trail, newest first.
func ListActivity(ctx context.Context, pool *pgxpool.Pool, projectID int) ([]ActivityLog, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, project_id, related_entity, related_id, actor_id, action, comment, created_at
		FROM activity_logs
		WHERE project_id = $1
		ORDER BY created_at DESC, id DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var logs []ActivityLog
	for rows.Next() {
		var l ActivityLog
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.RelatedEntity, &l.RelatedID, &l.ActorID, &l.Action, &l.Comment, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
