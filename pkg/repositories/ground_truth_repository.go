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

// GroundTruthRepository provides data access for versioned ground truth graphs.
// Versions are append-only; the newest row is the current graph.
type GroundTruthRepository interface {
	// Create appends a new version. The version number is assigned inside a
	// transaction as max(version)+1.
	Create(ctx context.Context, gt *models.GroundTruth) error

	// GetCurrent retrieves the latest version by creation time.
	GetCurrent(ctx context.Context) (*models.GroundTruth, error)

	// GetByVersion retrieves a specific version.
	GetByVersion(ctx context.Context, version int) (*models.GroundTruth, error)

	// ListVersions returns version numbers and creation times, newest first.
	ListVersions(ctx context.Context) ([]*models.GroundTruth, error)
}

type groundTruthRepository struct {
	db *database.DB
}

// NewGroundTruthRepository creates a new GroundTruthRepository.
func NewGroundTruthRepository(db *database.DB) GroundTruthRepository {
	return &groundTruthRepository{db: db}
}

var _ GroundTruthRepository = (*groundTruthRepository)(nil)

func (r *groundTruthRepository) Create(ctx context.Context, gt *models.GroundTruth) error {
	if gt.ID == uuid.Nil {
		gt.ID = uuid.New()
	}

	graphJSON, err := json.Marshal(gt.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal ground truth graph: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Assign next version inside the transaction so concurrent builds cannot
	// claim the same number.
	query := `
		INSERT INTO ground_truths (id, version, graph)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM ground_truths), $2)
		RETURNING version, created_at`

	if err := tx.QueryRow(ctx, query, gt.ID, graphJSON).Scan(&gt.Version, &gt.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert ground truth: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ground truth: %w", err)
	}

	return nil
}

func (r *groundTruthRepository) GetCurrent(ctx context.Context) (*models.GroundTruth, error) {
	query := `
		SELECT id, version, graph, created_at
		FROM ground_truths
		ORDER BY created_at DESC, version DESC
		LIMIT 1`

	return r.scanOne(r.db.QueryRow(ctx, query))
}

func (r *groundTruthRepository) GetByVersion(ctx context.Context, version int) (*models.GroundTruth, error) {
	query := `
		SELECT id, version, graph, created_at
		FROM ground_truths
		WHERE version = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, version))
}

func (r *groundTruthRepository) scanOne(row pgx.Row) (*models.GroundTruth, error) {
	var gt models.GroundTruth
	var graphJSON []byte

	err := row.Scan(&gt.ID, &gt.Version, &graphJSON, &gt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoGroundTruth
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ground truth: %w", err)
	}

	if err := json.Unmarshal(graphJSON, &gt.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ground truth graph: %w", err)
	}

	return &gt, nil
}

func (r *groundTruthRepository) ListVersions(ctx context.Context) ([]*models.GroundTruth, error) {
	query := `
		SELECT id, version, graph, created_at
		FROM ground_truths
		ORDER BY version DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ground truths: %w", err)
	}
	defer rows.Close()

	var versions []*models.GroundTruth
	for rows.Next() {
		var gt models.GroundTruth
		var graphJSON []byte
		if err := rows.Scan(&gt.ID, &gt.Version, &graphJSON, &gt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ground truth: %w", err)
		}
		if err := json.Unmarshal(graphJSON, &gt.Graph); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ground truth graph: %w", err)
		}
		versions = append(versions, &gt)
	}

	return versions, rows.Err()
}
