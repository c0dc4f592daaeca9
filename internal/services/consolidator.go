package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// DefaultTopN is the length of the most-expensive report
const DefaultTopN = 10

// Titles in the text report are cut to this many runes
const reportTitleWidth = 60

// Consolidator merges partial datasets and summarizes them.
type Consolidator struct {
	logger *zap.Logger
}

func NewConsolidator(logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{logger: logger}
}

// Merge concatenates datasets in input order. With dedup, only the first
// listing per identity key survives; a listing whose (source, listing_url)
// was already merged is dropped too, since older exports lack listing ids.
func (c *Consolidator) Merge(datasets []*models.Dataset, dedup bool) (*models.Dataset, models.MergeStats) {
	stats := models.MergeStats{Inputs: len(datasets), Result: models.ResultSuccess}
	merged := models.NewDataset()
	seen := make(map[string]struct{})
	seenURLs := make(map[string]struct{})

	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		for _, l := range ds.Listings {
			stats.TotalIn++
			if dedup {
				key := l.Key()
				urlKey := models.DedupKey(l.Source, "", l.ListingURL)
				_, dupKey := seen[key]
				_, dupURL := seenURLs[urlKey]
				if dupKey || (dupURL && strings.TrimSpace(l.ListingURL) != "") {
					stats.DuplicatesDropped++
					continue
				}
				seen[key] = struct{}{}
				seenURLs[urlKey] = struct{}{}
			}
			merged.Append(l)
		}
	}
	stats.TotalOut = merged.Len()

	metrics.DatasetsMergedTotal.Add(float64(stats.Inputs))
	metrics.MergeDuplicatesDroppedTotal.Add(float64(stats.DuplicatesDropped))
	c.logger.Info("datasets merged",
		zap.Int("inputs", stats.Inputs),
		zap.Int("total_in", stats.TotalIn),
		zap.Int("duplicates_dropped", stats.DuplicatesDropped),
		zap.Int("total_out", stats.TotalOut))

	return merged, stats
}

// Summarize computes counts, price aggregates and the top-N most expensive
// listings. Rows without a price, grade or company still count toward the
// total but are left out of the matching aggregates.
func (c *Consolidator) Summarize(ds *models.Dataset, topN int) *models.Report {
	if topN <= 0 {
		topN = DefaultTopN
	}
	r := &models.Report{
		ByCompany:      make(map[models.GradingCompany]int),
		ByGrade:        make(map[string]int),
		BySource:       make(map[models.Source]int),
		PriceByCompany: make(map[models.GradingCompany]models.PriceStats),
		PriceByGrade:   make(map[string]models.PriceStats),
		ImagesBySource: make(map[models.Source]int),
	}
	if ds == nil {
		return r
	}

	var all []float64
	byCompany := make(map[models.GradingCompany][]float64)
	byGrade := make(map[string][]float64)
	var priced []models.PricedListing

	for _, l := range ds.Listings {
		r.TotalListings++
		if l.Source != "" {
			r.BySource[l.Source]++
		}

		grade := strings.TrimSpace(l.Grade)
		if l.GradingCompany != "" {
			r.ByCompany[l.GradingCompany]++
		} else {
			r.MissingCompany++
		}
		if grade != "" {
			r.ByGrade[grade]++
		} else {
			r.MissingGrade++
		}

		images := countImages(l.Images)
		r.TotalImages += images
		r.TotalImageURLs += len(l.ImageURLs)
		if images > 0 {
			r.ListingsWithImages++
			r.ImagesBySource[l.Source] += images
		}

		if l.Price == nil || math.IsNaN(*l.Price) {
			r.MissingPrice++
			continue
		}
		p := *l.Price
		all = append(all, p)
		if l.GradingCompany != "" {
			byCompany[l.GradingCompany] = append(byCompany[l.GradingCompany], p)
		}
		if grade != "" {
			byGrade[grade] = append(byGrade[grade], p)
		}
		priced = append(priced, models.PricedListing{
			Title:          l.Title,
			GradingCompany: l.GradingCompany,
			Grade:          grade,
			Price:          p,
			Source:         l.Source,
			ListingURL:     l.ListingURL,
		})
	}

	r.Price = priceStats(all)
	for company, prices := range byCompany {
		r.PriceByCompany[company] = priceStats(prices)
	}
	for grade, prices := range byGrade {
		r.PriceByGrade[grade] = priceStats(prices)
	}

	// Stable so equal prices keep dataset order
	sort.SliceStable(priced, func(i, j int) bool { return priced[i].Price > priced[j].Price })
	if len(priced) > topN {
		priced = priced[:topN]
	}
	r.MostExpensive = priced

	return r
}

func priceStats(prices []float64) models.PriceStats {
	var s models.PriceStats
	if len(prices) == 0 {
		return s
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	s.Count = len(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	for _, p := range sorted {
		s.Sum += p
	}
	s.Mean = s.Sum / float64(s.Count)
	mid := s.Count / 2
	if s.Count%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}
	return s
}

// WriteReport renders r as a plain-text statistics report.
func WriteReport(w io.Writer, r *models.Report) error {
	sep := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nDATASET STATISTICS\n%s\n\n", sep, sep)
	fmt.Fprintf(&b, "Total listings: %d\n\n", r.TotalListings)

	fmt.Fprintf(&b, "Listings by source\n%s\n", thin)
	writeCounts(&b, stringCounts(r.BySource))

	fmt.Fprintf(&b, "\nListings by grading company\n%s\n", thin)
	writeCounts(&b, stringCounts(r.ByCompany))
	if r.MissingCompany > 0 {
		fmt.Fprintf(&b, "  %-20s %d\n", "(none)", r.MissingCompany)
	}

	fmt.Fprintf(&b, "\nListings by grade\n%s\n", thin)
	writeCounts(&b, r.ByGrade)
	if r.MissingGrade > 0 {
		fmt.Fprintf(&b, "  %-20s %d\n", "(none)", r.MissingGrade)
	}

	fmt.Fprintf(&b, "\nPrice statistics\n%s\n", thin)
	if r.Price.Count == 0 {
		fmt.Fprintf(&b, "  No price data available\n")
	} else {
		fmt.Fprintf(&b, "  Listings with price: %d (missing: %d)\n", r.Price.Count, r.MissingPrice)
		fmt.Fprintf(&b, "  Mean:   $%.2f\n", r.Price.Mean)
		fmt.Fprintf(&b, "  Median: $%.2f\n", r.Price.Median)
		fmt.Fprintf(&b, "  Min:    $%.2f\n", r.Price.Min)
		fmt.Fprintf(&b, "  Max:    $%.2f\n", r.Price.Max)
		fmt.Fprintf(&b, "  Total:  $%.2f\n", r.Price.Sum)

		fmt.Fprintf(&b, "\nAverage price by grading company\n%s\n", thin)
		writePriceGroups(&b, stringStats(r.PriceByCompany))
		fmt.Fprintf(&b, "\nAverage price by grade\n%s\n", thin)
		writePriceGroups(&b, r.PriceByGrade)
	}

	fmt.Fprintf(&b, "\nImages\n%s\n", thin)
	fmt.Fprintf(&b, "  Downloaded images:   %d\n", r.TotalImages)
	fmt.Fprintf(&b, "  Image URLs:          %d\n", r.TotalImageURLs)
	fmt.Fprintf(&b, "  Listings with images: %d\n", r.ListingsWithImages)
	writeCounts(&b, stringCounts(r.ImagesBySource))

	if len(r.MostExpensive) > 0 {
		fmt.Fprintf(&b, "\nTop %d most expensive listings\n%s\n", len(r.MostExpensive), thin)
		for i, p := range r.MostExpensive {
			fmt.Fprintf(&b, "  %2d. $%.2f  %s %s  %s\n", i+1, p.Price,
				orNA(string(p.GradingCompany)), orNA(p.Grade), truncateRunes(p.Title, reportTitleWidth))
		}
	}
	fmt.Fprintf(&b, "\n%s\n", sep)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeCounts(b *strings.Builder, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// Largest group first, ties alphabetical
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(b, "  %-20s %d\n", k, counts[k])
	}
}

func writePriceGroups(b *strings.Builder, groups map[string]models.PriceStats) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := groups[k]
		fmt.Fprintf(b, "  %-20s $%.2f (n=%d)\n", k, s.Mean, s.Count)
	}
}

func stringCounts[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func stringStats[K ~string](m map[K]models.PriceStats) map[string]models.PriceStats {
	out := make(map[string]models.PriceStats, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
