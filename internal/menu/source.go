package menu

import (
	"context"

	"bistro/internal/config"

	"github.com/rs/zerolog"
)

// Open loads the catalogue described by cfg. It returns nil when the menu
// check is disabled.
func Open(ctx context.Context, cfg config.MenuConfig, logger zerolog.Logger) (Catalog, error) {
	if !cfg.Enabled {
		logger.Info().Msg("menu check disabled")
		return nil, nil
	}

	var primary Loader
	if cfg.S3Enabled {
		l, err := NewS3Loader(ctx, cfg.Bucket, cfg.Region, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("S3 menu source unavailable, using local file only")
		} else {
			primary = l
		}
	}

	loader := NewFallbackLoader(primary, NewFileLoader(logger), cfg.Prefix, logger)
	return loader.Load(ctx, cfg.File)
}
