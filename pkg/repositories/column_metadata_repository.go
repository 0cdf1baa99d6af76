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

// ColumnMetadataRepository provides data access for column metadata.
// Rows are keyed by (table_name, column_name) and upserted on reanalysis.
type ColumnMetadataRepository interface {
	// Upsert creates or updates metadata for one column.
	Upsert(ctx context.Context, meta *models.ColumnMetadata) error

	// GetByColumn retrieves metadata for a single column.
	GetByColumn(ctx context.Context, tableName, columnName string) (*models.ColumnMetadata, error)

	// ListByTable retrieves all column metadata for a table.
	ListByTable(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error)

	// List retrieves all column metadata ordered by table and column.
	List(ctx context.Context) ([]*models.ColumnMetadata, error)
}

type columnMetadataRepository struct {
	db *database.DB
}

// NewColumnMetadataRepository creates a new ColumnMetadataRepository.
func NewColumnMetadataRepository(db *database.DB) ColumnMetadataRepository {
	return &columnMetadataRepository{db: db}
}

var _ ColumnMetadataRepository = (*columnMetadataRepository)(nil)

func (r *columnMetadataRepository) Upsert(ctx context.Context, meta *models.ColumnMetadata) error {
	if meta.TableName == "" || meta.ColumnName == "" {
		return fmt.Errorf("table_name and column_name are required")
	}
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	sampleValues, err := json.Marshal(meta.SampleValues)
	if err != nil {
		return fmt.Errorf("failed to marshal sample values: %w", err)
	}

	query := `
		INSERT INTO column_metadata (
			id, table_name, column_name, data_type,
			semantic_tags, sample_values, description, embedding, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (table_name, column_name)
		DO UPDATE SET
			data_type = EXCLUDED.data_type,
			semantic_tags = EXCLUDED.semantic_tags,
			sample_values = EXCLUDED.sample_values,
			description = EXCLUDED.description,
			embedding = EXCLUDED.embedding,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		meta.ID,
		meta.TableName,
		meta.ColumnName,
		meta.DataType,
		meta.SemanticTags,
		sampleValues,
		meta.Description,
		meta.Embedding,
		meta.AnalyzedAt,
	).Scan(&meta.ID, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert column metadata: %w", err)
	}

	return nil
}

func (r *columnMetadataRepository) GetByColumn(ctx context.Context, tableName, columnName string) (*models.ColumnMetadata, error) {
	query := selectColumnMetadata + ` WHERE table_name = $1 AND column_name = $2`

	row := r.db.QueryRow(ctx, query, tableName, columnName)
	meta, err := scanColumnMetadata(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column metadata: %w", err)
	}

	return meta, nil
}

func (r *columnMetadataRepository) ListByTable(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error) {
	query := selectColumnMetadata + ` WHERE table_name = $1 ORDER BY column_name`

	rows, err := r.db.Query(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list column metadata: %w", err)
	}
	defer rows.Close()

	return collectColumnMetadata(rows)
}

func (r *columnMetadataRepository) List(ctx context.Context) ([]*models.ColumnMetadata, error) {
	query := selectColumnMetadata + ` ORDER BY table_name, column_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list column metadata: %w", err)
	}
	defer rows.Close()

	return collectColumnMetadata(rows)
}

const selectColumnMetadata = `
	SELECT id, table_name, column_name, data_type,
	       semantic_tags, sample_values, description, embedding, analyzed_at,
	       created_at, updated_at
	FROM column_metadata`

func scanColumnMetadata(row pgx.Row) (*models.ColumnMetadata, error) {
	var meta models.ColumnMetadata
	var sampleValues []byte

	err := row.Scan(
		&meta.ID, &meta.TableName, &meta.ColumnName, &meta.DataType,
		&meta.SemanticTags, &sampleValues, &meta.Description, &meta.Embedding,
		&meta.AnalyzedAt, &meta.CreatedAt, &meta.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sampleValues) > 0 {
		if err := json.Unmarshal(sampleValues, &meta.SampleValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample values: %w", err)
		}
	}

	return &meta, nil
}

func collectColumnMetadata(rows pgx.Rows) ([]*models.ColumnMetadata, error) {
	var metas []*models.ColumnMetadata
	for rows.Next() {
		meta, err := scanColumnMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}
