package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/database"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

// SchemaSummaryRepository provides data access for per-table schema summaries.
type SchemaSummaryRepository interface {
	// Upsert creates or updates the summary for a table.
	Upsert(ctx context.Context, summary *models.SchemaSummary) error

	// GetByTable retrieves the summary for a single table.
	GetByTable(ctx context.Context, tableName string) (*models.SchemaSummary, error)

	// List retrieves all summaries ordered by table name.
	List(ctx context.Context) ([]*models.SchemaSummary, error)
}

type schemaSummaryRepository struct {
	db *database.DB
}

// NewSchemaSummaryRepository creates a new SchemaSummaryRepository.
func NewSchemaSummaryRepository(db *database.DB) SchemaSummaryRepository {
	return &schemaSummaryRepository{db: db}
}

var _ SchemaSummaryRepository = (*schemaSummaryRepository)(nil)

func (r *schemaSummaryRepository) Upsert(ctx context.Context, summary *models.SchemaSummary) error {
	if summary.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}

	query := `
		INSERT INTO schema_summaries (id, table_name, summary, embedding, model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_name)
		DO UPDATE SET
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		summary.ID,
		summary.TableName,
		summary.Summary,
		summary.Embedding,
		summary.Model,
	).Scan(&summary.ID, &summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert schema summary: %w", err)
	}

	return nil
}

func (r *schemaSummaryRepository) GetByTable(ctx context.Context, tableName string) (*models.SchemaSummary, error) {
	query := `
		SELECT id, table_name, summary, embedding, model, created_at, updated_at
		FROM schema_summaries
		WHERE table_name = $1`

	var s models.SchemaSummary
	err := r.db.QueryRow(ctx, query, tableName).Scan(
		&s.ID, &s.TableName, &s.Summary, &s.Embedding, &s.Model, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema summary: %w", err)
	}

	return &s, nil
}

func (r *schemaSummaryRepository) List(ctx context.Context) ([]*models.SchemaSummary, error) {
	query := `
		SELECT id, table_name, summary, embedding, model, created_at, updated_at
		FROM schema_summaries
		ORDER BY table_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.SchemaSummary
	for rows.Next() {
		var s models.SchemaSummary
		if err := rows.Scan(&s.ID, &s.TableName, &s.Summary, &s.Embedding, &s.Model, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	return summaries, rows.Err()
}
