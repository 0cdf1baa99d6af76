package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/database"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

// GeneratedQueryRepository provides data access for the query audit log.
// Rows are write-once; the application only reads them back for history.
type GeneratedQueryRepository interface {
	// Create appends one audit row.
	Create(ctx context.Context, q *models.GeneratedQuery) error

	// GetByID retrieves one audit row.
	GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error)

	// MarkExecuted flags a query as having been executed.
	MarkExecuted(ctx context.Context, id uuid.UUID) error

	// ListRecent returns the most recent entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.GeneratedQuery, error)
}

type generatedQueryRepository struct {
	db *database.DB
}

// NewGeneratedQueryRepository creates a new GeneratedQueryRepository.
func NewGeneratedQueryRepository(db *database.DB) GeneratedQueryRepository {
	return &generatedQueryRepository{db: db}
}

var _ GeneratedQueryRepository = (*generatedQueryRepository)(nil)

func (r *generatedQueryRepository) Create(ctx context.Context, q *models.GeneratedQuery) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	intentJSON, err := json.Marshal(q.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	query := `
		INSERT INTO generated_queries (
			id, prompt, generated_sql, intent, tables_used,
			confidence, validation_errors, validation_warnings,
			is_valid, is_fallback, executed,
			model, prompt_tokens, completion_tokens, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		q.ID,
		q.Prompt,
		q.GeneratedSQL,
		intentJSON,
		q.TablesUsed,
		q.Confidence,
		q.ValidationErrors,
		q.ValidationWarnings,
		q.IsValid,
		q.IsFallback,
		q.Executed,
		q.Model,
		q.PromptTokens,
		q.CompletionTokens,
		q.DurationMS,
	).Scan(&q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create generated query: %w", err)
	}

	return nil
}

func (r *generatedQueryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error) {
	query := `
		SELECT id, prompt, generated_sql, intent, tables_used,
		       confidence, validation_errors, validation_warnings,
		       is_valid, is_fallback, executed,
		       model, prompt_tokens, completion_tokens, duration_ms, created_at
		FROM generated_queries
		WHERE id = $1`

	var q models.GeneratedQuery
	var intentJSON []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.Prompt, &q.GeneratedSQL, &intentJSON, &q.TablesUsed,
		&q.Confidence, &q.ValidationErrors, &q.ValidationWarnings,
		&q.IsValid, &q.IsFallback, &q.Executed,
		&q.Model, &q.PromptTokens, &q.CompletionTokens, &q.DurationMS, &q.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get generated query: %w", err)
	}
	if len(intentJSON) > 0 {
		if err := json.Unmarshal(intentJSON, &q.Intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
		}
	}

	return &q, nil
}

func (r *generatedQueryRepository) MarkExecuted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE generated_queries SET executed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark query executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generated query %s not found", id)
	}
	return nil
}

func (r *generatedQueryRepository) ListRecent(ctx context.Context, limit int) ([]*models.GeneratedQuery, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, prompt, generated_sql, intent, tables_used,
		       confidence, validation_errors, validation_warnings,
		       is_valid, is_fallback, executed,
		       model, prompt_tokens, completion_tokens, duration_ms, created_at
		FROM generated_queries
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated queries: %w", err)
	}
	defer rows.Close()

	var queries []*models.GeneratedQuery
	for rows.Next() {
		var q models.GeneratedQuery
		var intentJSON []byte
		if err := rows.Scan(
			&q.ID, &q.Prompt, &q.GeneratedSQL, &intentJSON, &q.TablesUsed,
			&q.Confidence, &q.ValidationErrors, &q.ValidationWarnings,
			&q.IsValid, &q.IsFallback, &q.Executed,
			&q.Model, &q.PromptTokens, &q.CompletionTokens, &q.DurationMS, &q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan generated query: %w", err)
		}
		if len(intentJSON) > 0 {
			if err := json.Unmarshal(intentJSON, &q.Intent); err != nil {
				return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
			}
		}
		queries = append(queries, &q)
	}

	return queries, rows.Err()
}
