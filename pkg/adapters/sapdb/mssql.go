package sapdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/config"
	"github.com/saplens-io/saplens-engine/pkg/logging"
)

// MSSQLExtractor implements Extractor against a SQL Server SAP source.
type MSSQLExtractor struct {
	db                 *sql.DB
	sampleRowLimit     int
	distinctValueLimit int
	logger             *zap.Logger
}

var _ Extractor = (*MSSQLExtractor)(nil)

// NewMSSQLExtractor connects to the SAP source over go-mssqldb.
func NewMSSQLExtractor(ctx context.Context, cfg *config.SAPSourceConfig, logger *zap.Logger) (*MSSQLExtractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	connStr := cfg.ConnectionString()
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SAP source: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping SAP source: %w", err)
	}

	logger.Info("connected to SAP source",
		zap.String("driver", "mssql"),
		zap.String("connection", logging.SanitizeConnectionString(connStr)))

	return &MSSQLExtractor{
		db:                 db,
		sampleRowLimit:     cfg.SampleRowLimit,
		distinctValueLimit: cfg.DistinctValueLimit,
		logger:             logger,
	}, nil
}

func (e *MSSQLExtractor) TestConnection(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// QuoteIdentifier wraps the name in brackets, escaping closing brackets the
// way QUOTENAME does.
func (e *MSSQLExtractor) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (e *MSSQLExtractor) Close() error {
	return e.db.Close()
}

// ExtractTable mirrors the postgres extractor: after the column list is
// fetched, the count, sample, and distinct-value queries run concurrently.
func (e *MSSQLExtractor) ExtractTable(ctx context.Context, table string) (*TableExtract, error) {
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

func (e *MSSQLExtractor) extractColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	const query = `
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    c.column_id AS ordinal_position
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@table))
	ORDER BY c.column_id
	`

	rows, err := e.db.QueryContext(ctx, query, sql.Named("table", table))
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

func (e *MSSQLExtractor) extractRowCount(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", e.QuoteIdentifier(table))

	var count int64
	if err := e.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

func (e *MSSQLExtractor) extractSampleRows(ctx context.Context, table string) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT TOP (%d) * FROM %s", e.sampleRowLimit, e.QuoteIdentifier(table))

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample rows from %s: %w", table, err)
	}
	defer rows.Close()

	result, _, err := collectSQLRows(rows)
	return result, err
}

func (e *MSSQLExtractor) distinctValues(ctx context.Context, table, column string) ([]string, error) {
	quotedCol := e.QuoteIdentifier(column)
	query := fmt.Sprintf(`
	SELECT DISTINCT TOP (%d) CAST(%s AS NVARCHAR(MAX))
	FROM %s
	WHERE %s IS NOT NULL
	ORDER BY 1
	`, e.distinctValueLimit, quotedCol, e.QuoteIdentifier(table), quotedCol)

	rows, err := e.db.QueryContext(ctx, query)
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

func (e *MSSQLExtractor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error) {
	wrapped := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", clampLimit(limit), sqlQuery)

	rows, err := e.db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	resultRows, columns, err := collectSQLRows(rows)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// collectSQLRows scans database/sql rows into generic maps. Byte slices are
// converted to strings so JSON marshaling doesn't base64-encode text columns.
func collectSQLRows(rows *sql.Rows) ([]map[string]any, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read result columns: %w", err)
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, columns, nil
}
