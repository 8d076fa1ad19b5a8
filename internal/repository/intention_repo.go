package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdpledge/internal/model"
	"crowdpledge/internal/outbox"
)

// IntentionRepository owns the two-sided intention index:
// project_intentions (project -> user) and user_intentions (user -> project).
// The two tables are mirror images and are only ever written together, inside
// one transaction.
type IntentionRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewIntentionRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *IntentionRepository {
	return &IntentionRepository{db: db, outbox: outboxRepo}
}

// Replace atomically installs rec as the user's single current intention for
// the project: the old mirror rows (if any) are deleted and the new ones
// inserted in the same transaction. The event payload is written to the
// outbox in that transaction too, so the event exists iff the index write
// committed. Nothing is observable in a partially-applied state.
func (r *IntentionRepository) Replace(ctx context.Context, rec model.IntentionRecord, event any) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        DELETE FROM project_intentions
        WHERE project_id = $1 AND user_id = $2
    `, rec.ProjectID, rec.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete project intention: %w", err)
	}

	_, err = tx.Exec(ctx, `
        DELETE FROM user_intentions
        WHERE user_id = $1 AND project_id = $2
    `, rec.UserID, rec.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to delete user intention: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO project_intentions (project_id, user_id, type, created_at)
        VALUES ($1, $2, $3, $4)
    `, rec.ProjectID, rec.UserID, string(rec.Type), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project intention: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO user_intentions (user_id, project_id, type, created_at)
        VALUES ($1, $2, $3, $4)
    `, rec.UserID, rec.ProjectID, string(rec.Type), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user intention: %w", err)
	}

	if event != nil {
		aggregateID := rec.ProjectID + ":" + rec.UserID
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "intention", aggregateID, "intention.recorded", event); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Get returns the user's current intention for a project, or nil when none
// exists.
func (r *IntentionRepository) Get(ctx context.Context, userID, projectID string) (*model.IntentionRecord, error) {
	query := `
        SELECT project_id, user_id, type, created_at
        FROM user_intentions
        WHERE user_id = $1 AND project_id = $2
    `
	var rec model.IntentionRecord
	var typ string
	err := r.db.QueryRow(ctx, query, userID, projectID).Scan(
		&rec.ProjectID,
		&rec.UserID,
		&typ,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Type = model.IntentionType(typ)
	return &rec, nil
}

// UserIDsByType scans the project side of the index and returns the user IDs
// whose current intention matches the requested category. Each call re-runs
// the query.
func (r *IntentionRepository) UserIDsByType(ctx context.Context, projectID string, t model.IntentionType) ([]string, error) {
	query := `
        SELECT user_id
        FROM project_intentions
        WHERE project_id = $1 AND type = $2
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, projectID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	userIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}

// ListByProject returns the project side of the index for a project.
func (r *IntentionRepository) ListByProject(ctx context.Context, projectID string) ([]model.IntentionRecord, error) {
	query := `
        SELECT project_id, user_id, type, created_at
        FROM project_intentions
        WHERE project_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.IntentionRecord{}
	for rows.Next() {
		var rec model.IntentionRecord
		var typ string
		if err := rows.Scan(&rec.ProjectID, &rec.UserID, &typ, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = model.IntentionType(typ)
		records = append(records, rec)
	}

	return records, rows.Err()
}
