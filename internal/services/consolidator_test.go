package services

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

func price(v float64) *float64 { return &v }

func TestMergeDedupKeepsFirstOccurrence(t *testing.T) {
	first := models.Listing{
		Title:      "Charizard PSA 10",
		Grade:      "10",
		Price:      price(500),
		ListingURL: "https://www.ebay.com/itm/1",
		ListingID:  models.UnknownListingID,
		Source:     models.SourceEbay,
		Images:     []string{"a.jpg", "b.jpg"},
	}
	second := first
	second.Title = "Charizard PSA 10 (relisted)"
	second.Price = price(450)
	other := models.Listing{Title: "Mew CGC 9", ListingURL: "https://www.ebay.com/itm/2", ListingID: "2", Source: models.SourceEbay}

	c := NewConsolidator(nil)
	merged, stats := c.Merge([]*models.Dataset{
		models.NewDataset(first, other),
		models.NewDataset(second),
	}, true)

	require.Equal(t, 2, merged.Len())
	assert.Equal(t, first, merged.Listings[0])
	assert.Equal(t, other, merged.Listings[1])
	assert.Equal(t, 2, stats.Inputs)
	assert.Equal(t, 3, stats.TotalIn)
	assert.Equal(t, 1, stats.DuplicatesDropped)
	assert.Equal(t, 2, stats.TotalOut)
}

func TestMergeDedupMatchesListingURL(t *testing.T) {
	withID := models.Listing{Title: "Charizard PSA 10", ListingURL: "https://www.ebay.com/itm/123", ListingID: "123", Source: models.SourceEbay}
	legacy := models.Listing{Title: "Charizard PSA 10 old export", ListingURL: "https://www.ebay.com/itm/123", ListingID: models.UnknownListingID, Source: models.SourceEbay}
	noURL := models.Listing{Title: "Mew", ListingID: "7", Source: models.SourceEbay}
	noURLOther := models.Listing{Title: "Mewtwo", ListingID: "8", Source: models.SourceEbay}

	merged, stats := NewConsolidator(nil).Merge([]*models.Dataset{
		models.NewDataset(withID, noURL),
		models.NewDataset(legacy, noURLOther),
	}, true)

	require.Equal(t, 3, merged.Len())
	assert.Equal(t, withID, merged.Listings[0])
	assert.Equal(t, 1, stats.DuplicatesDropped)

	// Order decides which one survives
	merged, _ = NewConsolidator(nil).Merge([]*models.Dataset{models.NewDataset(legacy), models.NewDataset(withID)}, true)
	require.Equal(t, 1, merged.Len())
	assert.Equal(t, legacy, merged.Listings[0])
}

func TestMergeWithoutDedup(t *testing.T) {
	l := models.Listing{Title: "Mew", ListingURL: "u", Source: models.SourceEbay}

	merged, stats := NewConsolidator(nil).Merge([]*models.Dataset{
		models.NewDataset(l), nil, models.NewDataset(l),
	}, false)

	assert.Equal(t, 2, merged.Len())
	assert.Zero(t, stats.DuplicatesDropped)
}

func TestMergeSameIDAcrossSourcesIsKept(t *testing.T) {
	a := models.Listing{Title: "A", ListingID: "9", ListingURL: "https://www.ebay.com/itm/9", Source: models.SourceEbay}
	b := models.Listing{Title: "B", ListingID: "9", ListingURL: "https://jp.mercari.com/item/9", Source: models.SourceMercari}

	merged, _ := NewConsolidator(nil).Merge([]*models.Dataset{models.NewDataset(a), models.NewDataset(b)}, true)
	assert.Equal(t, 2, merged.Len())
}

func TestSummarizeToleratesMissingPrice(t *testing.T) {
	ds := models.NewDataset(
		models.Listing{Title: "a", GradingCompany: models.CompanyPSA, Grade: "10", Price: price(10), Source: models.SourceEbay, Images: []string{"1.jpg", "2.jpg"}},
		models.Listing{Title: "b", GradingCompany: models.CompanyPSA, Grade: "9", Price: price(20), Source: models.SourceEbay},
		models.Listing{Title: "c", Source: models.SourceMercari, ImageURLs: []string{"https://x/1.jpg"}},
	)

	r := NewConsolidator(nil).Summarize(ds, 0)

	assert.Equal(t, 3, r.TotalListings)
	assert.Equal(t, 2, r.Price.Count)
	assert.InDelta(t, 15.0, r.Price.Mean, 1e-9)
	assert.InDelta(t, 15.0, r.Price.Median, 1e-9)
	assert.InDelta(t, 10.0, r.Price.Min, 1e-9)
	assert.InDelta(t, 20.0, r.Price.Max, 1e-9)
	assert.InDelta(t, 30.0, r.Price.Sum, 1e-9)
	assert.Equal(t, 1, r.MissingPrice)

	assert.Equal(t, 2, r.ByCompany[models.CompanyPSA])
	assert.Equal(t, 1, r.MissingCompany)
	assert.Equal(t, 1, r.ByGrade["10"])
	assert.Equal(t, 1, r.MissingGrade)
	assert.Equal(t, 2, r.BySource[models.SourceEbay])
	assert.Equal(t, 1, r.BySource[models.SourceMercari])
	assert.Equal(t, 2, r.PriceByCompany[models.CompanyPSA].Count)
	assert.InDelta(t, 20.0, r.PriceByGrade["9"].Mean, 1e-9)

	assert.Equal(t, 2, r.TotalImages)
	assert.Equal(t, 1, r.TotalImageURLs)
	assert.Equal(t, 1, r.ListingsWithImages)
	assert.Equal(t, 2, r.ImagesBySource[models.SourceEbay])
}

func TestSummarizeTopN(t *testing.T) {
	ds := models.NewDataset(
		models.Listing{Title: "cheap", Price: price(5)},
		models.Listing{Title: "first tie", Price: price(100)},
		models.Listing{Title: "nan", Price: price(math.NaN())},
		models.Listing{Title: "second tie", Price: price(100)},
		models.Listing{Title: "mid", Price: price(50)},
	)

	r := NewConsolidator(nil).Summarize(ds, 3)

	require.Len(t, r.MostExpensive, 3)
	assert.Equal(t, "first tie", r.MostExpensive[0].Title)
	assert.Equal(t, "second tie", r.MostExpensive[1].Title)
	assert.Equal(t, "mid", r.MostExpensive[2].Title)
	assert.Equal(t, 4, r.Price.Count)
	assert.InDelta(t, 75.0, r.Price.Median, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	r := NewConsolidator(nil).Summarize(models.NewDataset(), 5)
	assert.Zero(t, r.TotalListings)
	assert.Zero(t, r.Price.Count)
	assert.Empty(t, r.MostExpensive)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, r))
	assert.Contains(t, buf.String(), "No price data available")
}

func TestWriteReport(t *testing.T) {
	ds := models.NewDataset(
		models.Listing{Title: "Charizard PSA 10", GradingCompany: models.CompanyPSA, Grade: "10", Price: price(1200.5), Source: models.SourceEbay},
		models.Listing{Title: "Mystery slab", Price: price(40), Source: models.SourceMercari},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, NewConsolidator(nil).Summarize(ds, 10)))
	out := buf.String()

	assert.Contains(t, out, "Total listings: 2")
	assert.Contains(t, out, "Mean:   $620.25")
	assert.Contains(t, out, "$1200.50  PSA 10  Charizard PSA 10")
	assert.Contains(t, out, "$40.00  N/A N/A  Mystery slab")
}
