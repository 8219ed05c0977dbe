package menu

import (
	"compress/gzip"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectGetter is the part of the S3 client the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Loader struct {
	client ObjectGetter
	bucket string
	logger zerolog.Logger
}

// NewS3Loader creates a loader backed by an S3 client built from the default
// AWS credential chain.
func NewS3Loader(ctx context.Context, bucket, region string, logger zerolog.Logger) (Loader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	logger.Info().
		Str("bucket", bucket).
		Str("region", region).
		Msg("S3 menu loader initialised")

	return NewS3LoaderWithClient(s3.NewFromConfig(cfg), bucket, logger), nil
}

// NewS3LoaderWithClient creates a loader over an existing client.
func NewS3LoaderWithClient(client ObjectGetter, bucket string, logger zerolog.Logger) Loader {
	return &s3Loader{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("component", "s3-menu-loader").Logger(),
	}
}

// Load reads a gzipped menu object. key is the full object key.
func (l *s3Loader) Load(ctx context.Context, key string) (Catalog, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("bucket", l.bucket).
			Str("key", key).
			Msg("failed to get menu object")
		return nil, fmt.Errorf("failed to get object from S3 (bucket=%s, key=%s): %w", l.bucket, key, err)
	}
	defer out.Body.Close()

	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for S3 object %s: %w", key, err)
	}
	defer gz.Close()

	catalog, err := readCatalog(ctx, gz)
	if err != nil {
		return nil, fmt.Errorf("S3 object %s: %w", key, err)
	}

	l.logger.Info().
		Str("bucket", l.bucket).
		Str("key", key).
		Int("dishes", catalog.Size()).
		Msg("menu loaded from S3")

	return catalog, nil
}

// fallbackLoader tries the primary loader under a key prefix and falls back
// to the secondary loader with the bare path.
type fallbackLoader struct {
	primary   Loader
	secondary Loader
	prefix    string
	logger    zerolog.Logger
}

// NewFallbackLoader creates a loader preferring primary. A nil primary means
// only secondary is used.
func NewFallbackLoader(primary, secondary Loader, prefix string, logger zerolog.Logger) Loader {
	return &fallbackLoader{
		primary:   primary,
		secondary: secondary,
		prefix:    prefix,
		logger:    logger.With().Str("component", "menu-fallback-loader").Logger(),
	}
}

func (l *fallbackLoader) Load(ctx context.Context, path string) (Catalog, error) {
	if l.primary != nil {
		catalog, err := l.primary.Load(ctx, l.prefix+path)
		if err == nil {
			return catalog, nil
		}
		l.logger.Warn().
			Err(err).
			Str("key", l.prefix+path).
			Msg("primary menu source failed, falling back to local file")
	}
	return l.secondary.Load(ctx, path)
}
