package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

func graded(title, company, grade string, images ...string) models.Listing {
	return models.Listing{
		Title:          title,
		CardName:       title,
		GradingCompany: models.GradingCompany(company),
		Grade:          grade,
		ListingURL:     "https://www.ebay.com/itm/" + title,
		ListingID:      models.UnknownListingID,
		Source:         models.SourceEbay,
		Images:         images,
	}
}

func TestQualityFilterEvaluate(t *testing.T) {
	f := NewQualityFilter(DefaultFilterOptions(), nil, nil, nil)

	tests := []struct {
		name       string
		listing    models.Listing
		wantReject bool
		wantReason models.FilterReason
	}{
		{
			name:       "single image rejected regardless of other fields",
			listing:    graded("Charizard PSA 10", "PSA", "10", "a.jpg"),
			wantReject: true,
			wantReason: models.ReasonTooFewImages,
		},
		{
			name:       "no images",
			listing:    graded("Charizard PSA 10", "PSA", "10"),
			wantReject: true,
			wantReason: models.ReasonTooFewImages,
		},
		{
			name:       "blank image entries do not count",
			listing:    graded("Charizard PSA 10", "PSA", "10", "a.jpg", " "),
			wantReject: true,
			wantReason: models.ReasonTooFewImages,
		},
		{
			name:       "banned term is case insensitive whole word",
			listing:    graded("THICC Pikachu PSA 10", "PSA", "10", "a.jpg", "b.jpg"),
			wantReject: true,
			wantReason: models.ReasonBannedTerm,
		},
		{
			name:       "banned term inside another word is allowed",
			listing:    graded("Thiccness Snorlax PSA 9", "PSA", "9", "a.jpg", "b.jpg"),
			wantReject: false,
			wantReason: models.ReasonPassed,
		},
		{
			name:       "lot fires before grade pattern",
			listing:    graded("Lot of 10 Pokemon cards PSA 9", "PSA", "9", "a.jpg", "b.jpg"),
			wantReject: true,
			wantReason: models.ReasonMultipleCards,
		},
		{
			name:       "lot without stored grade still multi-card",
			listing:    graded("Lot of 10 Pokemon cards PSA 9", "", "", "a.jpg", "b.jpg"),
			wantReject: true,
			wantReason: models.ReasonMultipleCards,
		},
		{
			name:       "grade backfilled from title",
			listing:    graded("Umbreon PSA Gem 4", "", "", "a.jpg", "b.jpg"),
			wantReject: false,
			wantReason: models.ReasonGradeExtracted,
		},
		{
			name:       "missing grade",
			listing:    graded("Vintage Pikachu Illustrator", "", "", "a.jpg", "b.jpg"),
			wantReject: true,
			wantReason: models.ReasonMissingGrade,
		},
		{
			name:       "passed all filters",
			listing:    graded("Charizard PSA 10", "PSA", "10", "a.jpg", "b.jpg"),
			wantReject: false,
			wantReason: models.ReasonPassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.listing
			d := f.Evaluate(&l)
			assert.Equal(t, tt.wantReject, d.Reject)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestQualityFilterBackfillUpdatesListing(t *testing.T) {
	f := NewQualityFilter(DefaultFilterOptions(), nil, nil, nil)

	l := graded("Umbreon PSA Gem 4", "", "", "a.jpg", "b.jpg")
	d := f.Evaluate(&l)

	require.False(t, d.Reject)
	assert.Equal(t, "4", l.Grade)
	assert.Equal(t, models.CompanyPSA, l.GradingCompany)
	assert.Contains(t, d.Detail, RuleContext)

	// An existing company is never overwritten
	l = graded("Umbreon PSA Gem 4", "CGC", "", "a.jpg", "b.jpg")
	f.Evaluate(&l)
	assert.Equal(t, models.CompanyCGC, l.GradingCompany)
}

func TestQualityFilterBackfillWithoutContextRule(t *testing.T) {
	opts := DefaultFilterOptions()
	opts.UseBackfill = false
	f := NewQualityFilter(opts, nil, nil, nil)

	l := graded("Umbreon PSA Gem 4", "", "", "a.jpg", "b.jpg")
	d := f.Evaluate(&l)
	assert.True(t, d.Reject)
	assert.Equal(t, models.ReasonMissingGrade, d.Reason)

	// Pattern rules still backfill
	l = graded("Umbreon graded 9", "", "", "a.jpg", "b.jpg")
	d = f.Evaluate(&l)
	assert.False(t, d.Reject)
	assert.Equal(t, "9", l.Grade)
}

func TestQualityFilterCustomBannedTerms(t *testing.T) {
	opts := DefaultFilterOptions()
	opts.BannedTerms = []string{"proxy", "custom art"}
	f := NewQualityFilter(opts, nil, nil, nil)

	l := graded("Charizard Custom Art PSA 10", "PSA", "10", "a.jpg", "b.jpg")
	d := f.Evaluate(&l)
	assert.Equal(t, models.ReasonBannedTerm, d.Reason)

	l = graded("thicc Charizard PSA 10", "PSA", "10", "a.jpg", "b.jpg")
	assert.Equal(t, models.ReasonPassed, f.Evaluate(&l).Reason)
}

func TestQualityFilterRun(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) string {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("img"), 0644))
		return rel
	}

	keep := graded("Charizard PSA 10", "PSA", "10",
		write("ebay/PSA/1_Charizard_10/a.jpg"), write("ebay/PSA/1_Charizard_10/b.jpg"))
	lot := graded("Lot of 10 Pokemon cards PSA 9", "PSA", "9",
		write("ebay/PSA/2_Lot_9/a.jpg"), write("ebay/PSA/2_Lot_9/b.jpg"))
	backfill := graded("Umbreon PSA Gem 4", "", "", "x.jpg", "y.jpg")
	single := graded("Mew PSA 9", "PSA", "9", write("ebay/PSA/3_Mew_9/a.jpg"))

	ds := models.NewDataset(keep, lot, backfill, single)

	f := NewQualityFilter(DefaultFilterOptions(), nil, NewAssetCleaner(root, nil), nil)
	kept, summary := f.Run(ds, true)

	require.Equal(t, 2, kept.Len())
	assert.Equal(t, "Charizard PSA 10", kept.Listings[0].Title)
	assert.Equal(t, "4", kept.Listings[1].Grade)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Kept)
	assert.Equal(t, 2, summary.Filtered)
	assert.Equal(t, 1, summary.GradesBackfilled)
	assert.Equal(t, 1, summary.Reasons[models.ReasonMultipleCards])
	assert.Equal(t, 1, summary.Reasons[models.ReasonTooFewImages])
	assert.Equal(t, 3, summary.Cleanup.FilesDeleted)
	assert.Equal(t, 2, summary.Cleanup.DirectoriesDeleted)
	assert.Equal(t, models.ResultSuccess, summary.Result)

	assert.FileExists(t, filepath.Join(root, "ebay/PSA/1_Charizard_10/a.jpg"))
	assert.NoDirExists(t, filepath.Join(root, "ebay/PSA/2_Lot_9"))
	assert.NoDirExists(t, filepath.Join(root, "ebay/PSA/3_Mew_9"))

	// Input dataset is left untouched
	assert.Equal(t, 4, ds.Len())
	assert.Empty(t, ds.Listings[2].Grade)
}

func TestQualityFilterRunWithoutDeletion(t *testing.T) {
	root := t.TempDir()
	img := filepath.Join(root, "a.jpg")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0644))

	f := NewQualityFilter(DefaultFilterOptions(), nil, NewAssetCleaner(root, nil), nil)
	_, summary := f.Run(models.NewDataset(graded("Mew PSA 9", "PSA", "9", "a.jpg")), false)

	assert.Equal(t, 1, summary.Filtered)
	assert.Zero(t, summary.Cleanup.FilesDeleted)
	assert.FileExists(t, img)
}

func TestQualityFilterRunEmpty(t *testing.T) {
	f := NewQualityFilter(DefaultFilterOptions(), nil, nil, nil)

	kept, summary := f.Run(models.NewDataset(), true)
	assert.Equal(t, 0, kept.Len())
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, models.ResultSuccess, summary.Result)
}
