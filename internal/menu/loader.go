package menu

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader reads menus from the local file system.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a file-based menu loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "menu-loader").Logger(),
	}
}

// Load reads a gzipped menu file.
func (l *fileLoader) Load(ctx context.Context, path string) (Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to open menu file")
		return nil, fmt.Errorf("failed to open menu file %s: %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to create gzip reader")
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
	}
	defer gz.Close()

	catalog, err := readCatalog(ctx, gz)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("error reading menu file")
		return nil, fmt.Errorf("menu file %s: %w", path, err)
	}

	l.logger.Info().
		Str("file", path).
		Int("dishes", catalog.Size()).
		Msg("menu loaded")

	return catalog, nil
}
