package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
	"github.com/noah-andersen/ebay-card-scraper/internal/storage"
)

// Curator runs the pipeline stages against dataset files. It backs both the
// curate command and the HTTP API.
type Curator struct {
	assetRoot    string
	extractor    *GradeExtractor
	canon        *URLCanonicalizer
	consolidator *Consolidator
	fetcher      ImageFetcher
	images       *ImageStorageService
	logger       *zap.Logger
}

// NewCurator creates a curator whose image assets live under assetRoot.
func NewCurator(assetRoot string, extractor *GradeExtractor, logger *zap.Logger) *Curator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = NewGradeExtractor(0, logger)
	}
	return &Curator{
		assetRoot:    assetRoot,
		extractor:    extractor,
		canon:        NewURLCanonicalizer(),
		consolidator: NewConsolidator(logger),
		logger:       logger,
	}
}

// WithImageDownloads makes IngestFile download canonical images.
func (c *Curator) WithImageDownloads(fetcher ImageFetcher, images *ImageStorageService) *Curator {
	c.fetcher = fetcher
	c.images = images
	return c
}

// AssetRoot returns the directory image paths are relative to.
func (c *Curator) AssetRoot() string {
	return c.assetRoot
}

// DefaultFilteredPath returns <stem>_filtered<ext> beside inPath.
func DefaultFilteredPath(inPath string) string {
	ext := filepath.Ext(inPath)
	return strings.TrimSuffix(inPath, ext) + "_filtered" + ext
}

// FilterFile filters the dataset at inPath into outPath (or the default
// filtered path). The summary is returned even when some deletions failed;
// its Result is PartialFailure in that case.
func (c *Curator) FilterFile(inPath, outPath string, opts FilterOptions) (*models.FilterSummary, error) {
	ds, err := storage.Load(inPath)
	if err != nil {
		return nil, err
	}
	if outPath == "" {
		outPath = DefaultFilteredPath(inPath)
	}

	var cleaner *AssetCleaner
	if opts.DeleteAssets {
		cleaner = NewAssetCleaner(c.assetRoot, c.logger)
	}
	filter := NewQualityFilter(opts, c.extractor, cleaner, c.logger)

	kept, summary := filter.Run(ds, opts.DeleteAssets)
	if err := storage.Save(outPath, kept); err != nil {
		return summary, fmt.Errorf("failed to write filtered dataset: %w", err)
	}

	c.logger.Info("filtered dataset written",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("result", string(summary.Result)))
	return summary, nil
}

// MergeFiles merges datasets in the given order into outPath.
func (c *Curator) MergeFiles(inPaths []string, outPath string, dedup bool) (models.MergeStats, error) {
	if len(inPaths) == 0 {
		return models.MergeStats{}, fmt.Errorf("%w: no datasets to merge", models.ErrInputNotFound)
	}

	datasets := make([]*models.Dataset, 0, len(inPaths))
	for _, p := range inPaths {
		ds, err := storage.Load(p)
		if err != nil {
			return models.MergeStats{Result: models.ResultCodeFor(err)}, err
		}
		datasets = append(datasets, ds)
	}

	merged, stats := c.consolidator.Merge(datasets, dedup)
	if err := storage.Save(outPath, merged); err != nil {
		stats.Result = models.ResultFailure
		return stats, fmt.Errorf("failed to write merged dataset: %w", err)
	}
	return stats, nil
}

// SummarizeFile loads a dataset and reports on it.
func (c *Curator) SummarizeFile(inPath string, topN int) (*models.Report, error) {
	ds, err := storage.Load(inPath)
	if err != nil {
		return nil, err
	}
	return c.consolidator.Summarize(ds, topN), nil
}

// ConvertFile changes a dataset's serialization format.
func (c *Curator) ConvertFile(inPath, outPath string) (int, error) {
	return storage.Convert(inPath, outPath)
}

// IngestFile normalizes a raw listing feed and appends new listings to the
// dataset at outPath. Listings already in outPath are seeded into the
// deduplicator, so ingesting the same feed twice adds nothing. Whatever was
// accepted before a cancellation is still written.
func (c *Curator) IngestFile(ctx context.Context, rawPath, outPath string) (models.IngestSummary, error) {
	raws, err := storage.ReadRawListings(rawPath)
	if err != nil {
		return models.IngestSummary{Result: models.ResultCodeFor(err)}, err
	}
	ds, err := storage.LoadOrEmpty(outPath)
	if err != nil {
		return models.IngestSummary{Result: models.ResultCodeFor(err)}, err
	}

	dedup := NewDeduplicator()
	dedup.Seed(ds.Listings)

	normalizer := NewNormalizer(c.extractor, c.canon, dedup, c.logger)
	if c.fetcher != nil && c.images != nil {
		normalizer.WithImageDownloads(c.fetcher, c.images)
	}

	summary, ingestErr := normalizer.Ingest(ctx, ds, raws)
	if err := storage.Save(outPath, ds); err != nil {
		summary.Result = models.ResultFailure
		return summary, errors.Join(ingestErr, fmt.Errorf("failed to write dataset: %w", err))
	}
	if ingestErr != nil {
		summary.Result = models.ResultPartialFailure
		return summary, ingestErr
	}
	return summary, nil
}
