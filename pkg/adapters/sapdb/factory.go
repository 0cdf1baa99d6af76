package sapdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/config"
)

// New creates the Extractor for the configured driver.
func New(ctx context.Context, cfg *config.SAPSourceConfig, logger *zap.Logger) (Extractor, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresExtractor(ctx, cfg, logger)
	case "mssql":
		return NewMSSQLExtractor(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported SAP source driver %q", cfg.Driver)
	}
}
