package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdpledge/internal/model"
)

var ErrProjectNotFound = errors.New("project not found")

type ProjectRepository struct {
	db    *pgxpool.Pool
	stats *StatsRepository
}

func NewProjectRepository(db *pgxpool.Pool, stats *StatsRepository) *ProjectRepository {
	return &ProjectRepository{db: db, stats: stats}
}

// Create inserts the project and its zeroed stats row in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO projects (id, owner_id, title, description, image_url, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING created_at
    `, p.ID, p.OwnerID, p.Title, p.Description, p.ImageURL).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if err := r.stats.Init(ctx, tx, p.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindByID returns a project by id.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	query := `
        SELECT id, owner_id, title, description, image_url, created_at
        FROM projects
        WHERE id = $1
    `
	var p model.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.OwnerID,
		&p.Title,
		&p.Description,
		&p.ImageURL,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// OwnerID returns just the owner of a project.
func (r *ProjectRepository) OwnerID(ctx context.Context, projectID string) (string, error) {
	var ownerID string
	err := r.db.QueryRow(ctx, `
        SELECT owner_id FROM projects WHERE id = $1
    `, projectID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProjectNotFound
		}
		return "", err
	}
	return ownerID, nil
}

// ProjectWithStats is a project plus its merged counter snapshot.
type ProjectWithStats struct {
	model.Project
	Stats model.EffectiveStats `json:"stats"`
}

// ListWithStats returns all projects with their effective stats snapshot in a
// single query, newest first.
func (r *ProjectRepository) ListWithStats(ctx context.Context) ([]ProjectWithStats, error) {
	query := `
        SELECT
            p.id,
            p.owner_id,
            p.title,
            p.description,
            p.image_url,
            p.created_at,
            s.investors + s.legacy_investors,
            s.donors + s.legacy_donors,
            s.advertisers + s.legacy_advertisers
        FROM projects p
        JOIN project_stats s ON p.id = s.project_id
        ORDER BY p.created_at DESC
    `

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []ProjectWithStats{}
	for rows.Next() {
		var p ProjectWithStats
		err := rows.Scan(
			&p.ID,
			&p.OwnerID,
			&p.Title,
			&p.Description,
			&p.ImageURL,
			&p.CreatedAt,
			&p.Stats.Investors,
			&p.Stats.Donors,
			&p.Stats.Advertisers,
		)
		if err != nil {
			return nil, err
		}
		p.Stats.ProjectID = p.ID
		projects = append(projects, p)
	}

	return projects, rows.Err()
}
