package services

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// DefaultBannedTerms are rejected as whole words in title or card name.
var DefaultBannedTerms = []string{"thicc"}

// Listings with fewer images than this are too weak a signal to keep
const DefaultMinImages = 2

// FilterOptions configures a QualityFilter.
type FilterOptions struct {
	BannedTerms  []string `json:"banned_terms"`
	MinImages    int      `json:"min_images"`
	UseBackfill  bool     `json:"use_backfill"`
	DeleteAssets bool     `json:"delete_assets"`
}

// DefaultFilterOptions matches the behaviour of the batch filter command.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		BannedTerms:  DefaultBannedTerms,
		MinImages:    DefaultMinImages,
		UseBackfill:  true,
		DeleteAssets: true,
	}
}

// QualityFilter applies the ordered keep/reject checks to persisted listings.
type QualityFilter struct {
	opts      FilterOptions
	banned    *regexp.Regexp
	extractor *GradeExtractor
	cleaner   *AssetCleaner
	logger    *zap.Logger
}

// NewQualityFilter builds a filter. cleaner may be nil when assets are never
// deleted.
func NewQualityFilter(opts FilterOptions, extractor *GradeExtractor, cleaner *AssetCleaner, logger *zap.Logger) *QualityFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = NewGradeExtractor(0, logger)
	}
	if opts.MinImages <= 0 {
		opts.MinImages = DefaultMinImages
	}
	return &QualityFilter{
		opts:      opts,
		banned:    bannedTermPattern(opts.BannedTerms),
		extractor: extractor,
		cleaner:   cleaner,
		logger:    logger,
	}
}

func bannedTermPattern(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			quoted = append(quoted, regexp.QuoteMeta(t))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Evaluate decides whether l is kept. The checks run cheapest first and stop
// at the first rejection. The multi-card check precedes backfill so that a
// quantity is never read as a grade. A successful backfill writes the grade
// (and the company, if unset) into l.
func (f *QualityFilter) Evaluate(l *models.Listing) models.Decision {
	if n := countImages(l.Images); n < f.opts.MinImages {
		return models.Decision{
			Reject: true,
			Reason: models.ReasonTooFewImages,
			Detail: fmt.Sprintf("%d image(s)", n),
		}
	}

	if f.banned != nil {
		for _, field := range []struct{ name, value string }{{"title", l.Title}, {"card_name", l.CardName}} {
			if term := f.banned.FindString(field.value); term != "" {
				return models.Decision{
					Reject: true,
					Reason: models.ReasonBannedTerm,
					Detail: fmt.Sprintf("%q in %s", strings.ToLower(term), field.name),
				}
			}
		}
	}

	if ContainsMultipleCards(l.Title) || ContainsMultipleCards(l.CardName) {
		return models.Decision{Reject: true, Reason: models.ReasonMultipleCards}
	}

	if !l.HasGrade() {
		info, ok := f.extractor.Backfill(f.opts.UseBackfill, l.CardName, l.Title)
		if !ok {
			return models.Decision{Reject: true, Reason: models.ReasonMissingGrade}
		}
		l.Grade = info.Grade
		if l.GradingCompany == "" && info.GradingCompany != "" {
			l.GradingCompany = info.GradingCompany
		}
		return models.Decision{
			Reason: models.ReasonGradeExtracted,
			Detail: fmt.Sprintf("%s via %s", info.Grade, info.Rule),
		}
	}

	return models.Decision{Reason: models.ReasonPassed}
}

// Run filters ds in stored order. Rejected listings lose their image assets
// when deleteAssets is set. A summary is always returned; deletion failures
// downgrade the result to PartialFailure without aborting the batch.
func (f *QualityFilter) Run(ds *models.Dataset, deleteAssets bool) (*models.Dataset, *models.FilterSummary) {
	summary := &models.FilterSummary{
		Reasons: make(map[models.FilterReason]int),
		Result:  models.ResultSuccess,
	}
	kept := models.NewDataset()
	if ds == nil {
		return kept, summary
	}

	if deleteAssets && f.cleaner == nil {
		f.logger.Warn("asset deletion requested but no asset root configured; skipping deletion")
		deleteAssets = false
	}

	for i := range ds.Listings {
		l := ds.Listings[i]
		summary.Total++

		d := f.Evaluate(&l)
		summary.Reasons[d.Reason]++
		metrics.FilterDecisionsTotal.WithLabelValues(string(d.Reason)).Inc()

		if !d.Reject {
			if d.Reason == models.ReasonGradeExtracted {
				summary.GradesBackfilled++
				metrics.GradesBackfilledTotal.Inc()
			}
			kept.Append(l)
			summary.Kept++
			continue
		}

		summary.Filtered++
		f.logger.Debug("listing filtered",
			zap.String("key", l.Key()),
			zap.String("reason", string(d.Reason)),
			zap.String("detail", d.Detail))

		if deleteAssets && len(l.Images) > 0 {
			summary.Cleanup.Add(f.cleaner.DeleteListingAssets(l.Images))
		}
	}

	if summary.Cleanup.Failures > 0 {
		summary.Result = models.ResultPartialFailure
	}

	f.logger.Info("filter complete",
		zap.Int("total", summary.Total),
		zap.Int("kept", summary.Kept),
		zap.Int("filtered", summary.Filtered),
		zap.Int("grades_backfilled", summary.GradesBackfilled),
		zap.Int("images_deleted", summary.Cleanup.FilesDeleted),
		zap.Int("deletion_failures", summary.Cleanup.Failures))

	return kept, summary
}

func countImages(images []string) int {
	n := 0
	for _, img := range images {
		if strings.TrimSpace(img) != "" {
			n++
		}
	}
	return n
}
