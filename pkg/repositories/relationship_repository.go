package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saplens-io/saplens-engine/pkg/database"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

// RelationshipRepository provides data access for inferred table relationships.
// The full relationship set is rebuilt on each inference run, so the write
// path is ReplaceAll rather than row-level updates.
type RelationshipRepository interface {
	// ReplaceAll atomically replaces the entire relationship set.
	// Runs delete-then-insert in a single transaction.
	ReplaceAll(ctx context.Context, relationships []*models.TableRelationship) error

	// List retrieves all relationships ordered by confidence descending.
	List(ctx context.Context) ([]*models.TableRelationship, error)

	// ListByTable retrieves relationships touching the named table on either side.
	ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error)
}

type relationshipRepository struct {
	db *database.DB
}

// NewRelationshipRepository creates a new RelationshipRepository.
func NewRelationshipRepository(db *database.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

var _ RelationshipRepository = (*relationshipRepository)(nil)

func (r *relationshipRepository) ReplaceAll(ctx context.Context, relationships []*models.TableRelationship) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM table_relationships`); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}

	insert := `
		INSERT INTO table_relationships (
			id, left_table, left_column, right_table, right_column,
			join_type, confidence, provenance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, rel := range relationships {
		if rel.ID == uuid.Nil {
			rel.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, insert,
			rel.ID,
			rel.LeftTable,
			rel.LeftColumn,
			rel.RightTable,
			rel.RightColumn,
			rel.JoinType,
			rel.Confidence,
			rel.Provenance,
		); err != nil {
			return fmt.Errorf("failed to insert relationship %s: %w", rel.Key(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship rebuild: %w", err)
	}

	return nil
}

func (r *relationshipRepository) List(ctx context.Context) ([]*models.TableRelationship, error) {
	query := selectRelationships + ` ORDER BY confidence DESC, left_table, left_column`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	return collectRelationships(rows)
}

func (r *relationshipRepository) ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error) {
	query := selectRelationships + `
		WHERE left_table = $1 OR right_table = $1
		ORDER BY confidence DESC`

	rows, err := r.db.Query(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships for table: %w", err)
	}
	defer rows.Close()

	return collectRelationships(rows)
}

const selectRelationships = `
	SELECT id, left_table, left_column, right_table, right_column,
	       join_type, confidence, provenance, created_at
	FROM table_relationships`

func collectRelationships(rows pgx.Rows) ([]*models.TableRelationship, error) {
	var rels []*models.TableRelationship
	for rows.Next() {
		var rel models.TableRelationship
		if err := rows.Scan(
			&rel.ID, &rel.LeftTable, &rel.LeftColumn, &rel.RightTable, &rel.RightColumn,
			&rel.JoinType, &rel.Confidence, &rel.Provenance, &rel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, &rel)
	}
	return rels, rows.Err()
}
