package sapdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/config"
	"github.com/saplens-io/saplens-engine/pkg/logging"
)

// PostgresExtractor implements Extractor against a PostgreSQL SAP source.
type PostgresExtractor struct {
	pool               *pgxpool.Pool
	sampleRowLimit     int
	distinctValueLimit int
	logger             *zap.Logger
}

var _ Extractor = (*PostgresExtractor)(nil)

// NewPostgresExtractor connects to the SAP source over pgx.
func NewPostgresExtractor(ctx context.Context, cfg *config.SAPSourceConfig, logger *zap.Logger) (*PostgresExtractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	connStr := cfg.ConnectionString()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to SAP source: %w", err)
	}

	logger.Info("connected to SAP source",
		zap.String("driver", "postgres"),
		zap.String("connection", logging.SanitizeConnectionString(connStr)))

	return &PostgresExtractor{
		pool:               pool,
		sampleRowLimit:     cfg.SampleRowLimit,
		distinctValueLimit: cfg.DistinctValueLimit,
		logger:             logger,
	}, nil
}

func (e *PostgresExtractor) TestConnection(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

func (e *PostgresExtractor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (e *PostgresExtractor) Close() error {
	e.pool.Close()
	return nil
}

// ExtractTable pulls columns, row count, sample rows, and distinct values
// for one known SAP table. Unknown table names are rejected before any SQL
// is built from them. The count, sample, and per-column distinct queries
// fan out concurrently once the column list is known.
func (e *PostgresExtractor) ExtractTable(ctx context.Context, table string) (*TableExtract, error) {
	if !IsKnownTable(table) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTable, table)
	}
	table = strings.ToUpper(table)

	columns, err := e.extractColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	var (
		rowCount     int64
		sampleRows   []map[string]any
		distinctVals = make([][]string, len(columns))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	g.Go(func() error {
		var err error
		rowCount, err = e.extractRowCount(gctx, table)
		return err
	})
	g.Go(func() error {
		var err error
		sampleRows, err = e.extractSampleRows(gctx, table)
		return err
	})
	for i, col := range columns {
		g.Go(func() error {
			values, err := e.distinctValues(gctx, table, col.Name)
			if err != nil {
				return err
			}
			distinctVals[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	distinct := make(map[string][]string, len(columns))
	for i, col := range columns {
		distinct[col.Name] = distinctVals[i]
	}

	e.logger.Debug("extracted table",
		zap.String("table", table),
		zap.Int("columns", len(columns)),
		zap.Int64("row_count", rowCount),
		zap.Int("sample_rows", len(sampleRows)))

	return &TableExtract{
		Name:           table,
		Description:    TableDescriptions[table],
		RowCount:       rowCount,
		Columns:        columns,
		SampleRows:     sampleRows,
		DistinctValues: distinct,
	}, nil
}

func (e *PostgresExtractor) extractColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(pk.is_pk, false) AS is_primary_key,
			c.ordinal_position
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index i
			JOIN pg_class cl ON cl.oid = i.indrelid
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE cl.relname = $1 AND i.indisprimary
		) pk ON pk.column_name = c.column_name
		WHERE c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := e.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %s: %w", table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found in SAP source", table)
	}

	return columns, nil
}

func (e *PostgresExtractor) extractRowCount(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", e.QuoteIdentifier(table))

	var count int64
	if err := e.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

func (e *PostgresExtractor) extractSampleRows(ctx context.Context, table string) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT $1", e.QuoteIdentifier(table))

	rows, err := e.pool.Query(ctx, query, e.sampleRowLimit)
	if err != nil {
		return nil, fmt.Errorf("sample rows from %s: %w", table, err)
	}
	defer rows.Close()

	return collectPgxRows(rows)
}

func (e *PostgresExtractor) distinctValues(ctx context.Context, table, column string) ([]string, error) {
	quotedCol := e.QuoteIdentifier(column)
	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY 1
		LIMIT $1
	`, quotedCol, e.QuoteIdentifier(table), quotedCol)

	rows, err := e.pool.Query(ctx, query, e.distinctValueLimit)
	if err != nil {
		return nil, fmt.Errorf("distinct values for %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, val)
	}
	return values, rows.Err()
}

// Query runs a bounded SELECT. The statement is wrapped in a subquery so the
// limit always applies regardless of what the generated SQL contains.
func (e *PostgresExtractor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error) {
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, clampLimit(limit))

	rows, err := e.pool.Query(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	resultRows, err := collectPgxRows(rows)
	if err != nil {
		return nil, err
	}

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func collectPgxRows(rows pgx.Rows) ([]map[string]any, error) {
	fieldDescs := rows.FieldDescriptions()

	result := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			rowMap[string(fd.Name)] = values[i]
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
