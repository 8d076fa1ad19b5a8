package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdpledge/internal/model"
	"crowdpledge/pkg/metrics"
)

// ErrCASExhausted is returned when the optimistic write lost the version race
// on every attempt in its budget.
var ErrCASExhausted = errors.New("project stats compare-and-swap retries exhausted")

// StatsRepository owns the project_stats counters. All mutation goes through
// CompareAndSwap — a plain overwrite would lose concurrent updates.
type StatsRepository struct {
	db          *pgxpool.Pool
	maxAttempts int
}

func NewStatsRepository(db *pgxpool.Pool, maxAttempts int) *StatsRepository {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &StatsRepository{db: db, maxAttempts: maxAttempts}
}

// Get returns the raw counter row, legacy fields and version included.
func (r *StatsRepository) Get(ctx context.Context, projectID string) (model.ProjectStats, error) {
	query := `
        SELECT project_id, investors, donors, advertisers,
               legacy_investors, legacy_donors, legacy_advertisers, version
        FROM project_stats
        WHERE project_id = $1
    `
	var s model.ProjectStats
	err := r.db.QueryRow(ctx, query, projectID).Scan(
		&s.ProjectID,
		&s.Investors,
		&s.Donors,
		&s.Advertisers,
		&s.LegacyInvestors,
		&s.LegacyDonors,
		&s.LegacyAdvertisers,
		&s.Version,
	)
	if err != nil {
		return model.ProjectStats{}, err
	}
	return s, nil
}

// Effective returns the merged (current + legacy) counters for display.
func (r *StatsRepository) Effective(ctx context.Context, projectID string) (model.EffectiveStats, error) {
	s, err := r.Get(ctx, projectID)
	if err != nil {
		return model.EffectiveStats{}, err
	}
	return s.Effective(), nil
}

// CompareAndSwap runs an optimistic read-modify-write against the stats row:
// read the current value, apply transform, write back guarded by the version
// column. A concurrent writer bumps the version and fails the guard; the
// whole read-modify-write is then retried, up to the attempt budget. Returns
// the committed value, or ErrCASExhausted with the budget spent.
func (r *StatsRepository) CompareAndSwap(
	ctx context.Context,
	projectID string,
	transform func(model.ProjectStats) model.ProjectStats,
) (model.ProjectStats, error) {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		metrics.StatsCASAttempts.Inc()

		current, err := r.Get(ctx, projectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ProjectStats{}, fmt.Errorf("project stats not found: %s", projectID)
			}
			return model.ProjectStats{}, fmt.Errorf("failed to read stats: %w", err)
		}

		next := transform(current)

		tag, err := r.db.Exec(ctx, `
            UPDATE project_stats
            SET investors = $1, donors = $2, advertisers = $3, version = version + 1
            WHERE project_id = $4 AND version = $5
        `, next.Investors, next.Donors, next.Advertisers, projectID, current.Version)
		if err != nil {
			return model.ProjectStats{}, fmt.Errorf("failed to write stats: %w", err)
		}

		if tag.RowsAffected() == 1 {
			next.Version = current.Version + 1
			return next, nil
		}

		// 版本冲突：有并发写入，整个 read-modify-write 重来
		metrics.StatsCASConflicts.Inc()
	}

	metrics.StatsCASExhausted.Inc()
	return model.ProjectStats{}, ErrCASExhausted
}

// Init creates the zeroed counter row for a new project.
func (r *StatsRepository) Init(ctx context.Context, tx pgx.Tx, projectID string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO project_stats (project_id, investors, donors, advertisers,
                                   legacy_investors, legacy_donors, legacy_advertisers, version)
        VALUES ($1, 0, 0, 0, 0, 0, 0, 0)
    `, projectID)
	if err != nil {
		return fmt.Errorf("failed to init project stats: %w", err)
	}
	return nil
}
