package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// priceRegexp captures the first numeric amount in a price string
var priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ErrDuplicateListing is returned by Normalize for a listing already captured.
var ErrDuplicateListing = errors.New("duplicate listing")

// Normalizer turns raw marketplace records into listings. Each record is
// validated, checked for novelty before any image work, then extracted,
// canonicalized and optionally downloaded.
type Normalizer struct {
	extractor *GradeExtractor
	canon     *URLCanonicalizer
	dedup     *Deduplicator
	fetcher   ImageFetcher
	store     *ImageStorageService
	logger    *zap.Logger
	now       func() time.Time
}

func NewNormalizer(extractor *GradeExtractor, canon *URLCanonicalizer, dedup *Deduplicator, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = NewGradeExtractor(0, logger)
	}
	if canon == nil {
		canon = NewURLCanonicalizer()
	}
	if dedup == nil {
		dedup = NewDeduplicator()
	}
	return &Normalizer{
		extractor: extractor,
		canon:     canon,
		dedup:     dedup,
		logger:    logger,
		now:       time.Now,
	}
}

// WithImageDownloads enables fetching canonical images into store.
func (n *Normalizer) WithImageDownloads(fetcher ImageFetcher, store *ImageStorageService) *Normalizer {
	n.fetcher = fetcher
	n.store = store
	return n
}

type normalizeStats struct {
	urlsRejected int
	imagesSaved  int
	imagesFailed int
}

// Normalize builds a listing from raw. It returns a *models.ValidationError
// for missing required fields and ErrDuplicateListing for an already-seen key.
func (n *Normalizer) Normalize(ctx context.Context, raw models.RawListing) (*models.Listing, error) {
	l, _, err := n.normalize(ctx, raw)
	return l, err
}

func (n *Normalizer) normalize(ctx context.Context, raw models.RawListing) (*models.Listing, normalizeStats, error) {
	var stats normalizeStats

	l := &models.Listing{
		Title:      strings.TrimSpace(raw.Title),
		ListingURL: strings.TrimSpace(raw.ListingURL),
		ListingID:  strings.TrimSpace(raw.ListingID),
		Source:     models.NormalizeSource(raw.Source),
	}
	if l.ListingID == "" {
		l.ListingID = models.UnknownListingID
	}
	if err := l.ValidateRequired(); err != nil {
		return nil, stats, err
	}

	// Cheapest check first: skip everything else for known listings
	key := l.Key()
	if !n.dedup.IsNew(key) {
		return nil, stats, fmt.Errorf("%w: %s", ErrDuplicateListing, key)
	}

	info := n.extractor.Extract(l.Title)
	l.CardName = info.CardName
	l.GradingCompany = info.GradingCompany
	l.Grade = info.Grade
	l.Price = ParsePrice(string(raw.Price))

	canonical, rejected := n.canon.CanonicalizeAll(l.Source, raw.ImageURLs)
	for _, err := range rejected {
		n.logger.Debug("image url rejected", zap.String("key", key), zap.Error(err))
	}
	stats.urlsRejected = len(rejected)
	if stats.urlsRejected > 0 {
		metrics.ImageURLsRejectedTotal.WithLabelValues(string(l.Source)).Add(float64(stats.urlsRejected))
	}
	l.ImageURLs = canonical
	l.Images = []string{}

	if n.fetcher != nil && n.store != nil && len(canonical) > 0 {
		dir := n.store.ListingDir(l)
		for _, u := range canonical {
			if err := ctx.Err(); err != nil {
				n.discardImages(l)
				return nil, stats, err
			}
			data, contentType, err := n.fetcher.Fetch(ctx, u)
			if err == nil {
				var rel string
				rel, err = n.store.SaveImage(dir, u, contentType, data)
				if err == nil {
					// Failed downloads are dropped, never padded
					l.Images = append(l.Images, rel)
					stats.imagesSaved++
					metrics.ImageDownloadsTotal.WithLabelValues(string(l.Source), "saved").Inc()
					continue
				}
			}
			stats.imagesFailed++
			metrics.ImageDownloadsTotal.WithLabelValues(string(l.Source), "failed").Inc()
			n.logger.Warn("image download failed", zap.String("key", key), zap.String("url", u), zap.Error(err))
		}
	}

	l.ScrapedDate = n.now().UTC()
	n.dedup.MarkSeen(key)
	return l, stats, nil
}

// discardImages removes what was already saved for a listing that will not be
// recorded, along with its directory once empty.
func (n *Normalizer) discardImages(l *models.Listing) {
	if len(l.Images) == 0 {
		return
	}
	cleanup := NewAssetCleaner(n.store.GetStorageDir(), n.logger).DeleteListingAssets(l.Images)
	n.logger.Info("discarded images of interrupted listing",
		zap.String("key", l.Key()),
		zap.Int("files_deleted", cleanup.FilesDeleted),
		zap.Int("failures", cleanup.Failures))
	l.Images = []string{}
}

// Forget releases the identity keys of ds so a later ingest accepts those
// listings again. Call it when ds could not be persisted.
func (n *Normalizer) Forget(ds *models.Dataset) {
	n.dedup.Forget(ds.Keys()...)
}

// Ingest normalizes raws in arrival order and appends new listings to ds.
// Cancellation is honoured between listings.
func (n *Normalizer) Ingest(ctx context.Context, ds *models.Dataset, raws []models.RawListing) (models.IngestSummary, error) {
	summary := models.IngestSummary{Result: models.ResultSuccess}

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Received++
		source := string(models.NormalizeSource(raw.Source))

		l, stats, err := n.normalize(ctx, raw)
		summary.URLsRejected += stats.urlsRejected
		summary.ImagesSaved += stats.imagesSaved
		summary.ImagesFailed += stats.imagesFailed

		switch {
		case err == nil:
			ds.Append(*l)
			summary.Accepted++
			metrics.ListingsIngestedTotal.WithLabelValues(source, "accepted").Inc()
		case errors.Is(err, ErrDuplicateListing):
			summary.Duplicates++
			metrics.ListingsIngestedTotal.WithLabelValues(source, "duplicate").Inc()
		case errors.Is(err, models.ErrValidation):
			summary.Invalid++
			metrics.ListingsIngestedTotal.WithLabelValues(source, "invalid").Inc()
			n.logger.Warn("dropping invalid listing", zap.String("title", raw.Title), zap.Error(err))
		default:
			return summary, err
		}
	}

	n.logger.Info("ingest complete",
		zap.Int("received", summary.Received),
		zap.Int("accepted", summary.Accepted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("invalid", summary.Invalid),
		zap.Int("urls_rejected", summary.URLsRejected),
		zap.Int("images_saved", summary.ImagesSaved))
	return summary, nil
}

// ParsePrice reads the first amount in a marketplace price string such as
// "$1,200.50" or "US $45.00 to $60.00". It returns nil when none is found.
func ParsePrice(raw string) *float64 {
	m := priceRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}
