package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-andersen/ebay-card-scraper/internal/api/handlers"
	"github.com/noah-andersen/ebay-card-scraper/internal/database"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
	"github.com/noah-andersen/ebay-card-scraper/internal/services"
	"github.com/noah-andersen/ebay-card-scraper/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	router, dataDir, _ := newTestRouterWithDB(t)
	return router, dataDir
}

func newTestRouterWithDB(t *testing.T) (*gin.Engine, string, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)

	extractor := services.NewGradeExtractor(64, nil)
	canon := services.NewURLCanonicalizer()
	store := services.NewDatasetStore(db, nil)
	filter := services.NewQualityFilter(services.DefaultFilterOptions(), extractor, nil, nil)
	normalizer := services.NewNormalizer(extractor, canon, services.NewDeduplicator(), nil)
	curator := services.NewCurator(filepath.Join(dataDir, "downloaded_images"), extractor, nil)

	router := SetupRouter(
		handlers.NewListingHandler(extractor, canon, filter, normalizer, store, 10, nil),
		handlers.NewDatasetHandler(curator, dataDir, services.DefaultFilterOptions(), 10, nil),
		nil,
	)
	return router, dataDir, db
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestExtractGradeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/listings/extract", gin.H{"title": "Charizard PSA 10 Base Set"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.CompanyPSA, resp.GradingCompany)
	assert.Equal(t, "10", resp.Grade)
	assert.Equal(t, "Charizard", resp.CardName)
	assert.False(t, resp.MultipleCards)

	w = doJSON(t, router, http.MethodPost, "/api/listings/extract", gin.H{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/listings/evaluate", gin.H{
		"title":       "Charizard PSA 10",
		"listing_url": "https://www.ebay.com/itm/1",
		"source":      "ebay",
		"images":      []string{"a.jpg"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Decision models.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Decision.Reject)
	assert.Equal(t, models.ReasonTooFewImages, resp.Decision.Reason)
}

func TestCanonicalizeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/images/canonicalize", gin.H{
		"source": "ebay",
		"image_urls": []string{
			"https://i.ebayimg.com/images/g/a/s-l225.jpg",
			"javascript:alert(1)",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ImageURLs []string         `json:"image_urls"`
		Rejected  []map[string]any `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"https://i.ebayimg.com/images/g/a/s-l1600.jpg"}, resp.ImageURLs)
	assert.Len(t, resp.Rejected, 1)
}

func TestIngestAndCatalogSummary(t *testing.T) {
	router, _ := newTestRouter(t)

	body := gin.H{"listings": []gin.H{
		{"title": "Charizard PSA 10", "price": "$500", "listing_url": "https://www.ebay.com/itm/1", "listing_id": "1", "source": "ebay"},
		{"title": "Mew CGC 9", "price": 45, "listing_url": "https://jp.mercari.com/item/m2", "source": "mercari"},
	}}

	w := doJSON(t, router, http.MethodPost, "/api/listings", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Summary models.IngestSummary `json:"summary"`
		Stored  int                  `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Summary.Accepted)
	assert.Equal(t, 2, resp.Stored)

	// Same batch again is a no-op
	w = doJSON(t, router, http.MethodPost, "/api/listings", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Stored)

	w = doJSON(t, router, http.MethodGet, "/api/listings/summary?top=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.TotalListings)
	assert.Equal(t, 2, report.Price.Count)

	w = doJSON(t, router, http.MethodGet, "/api/listings/summary?top=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestRetryAfterStoreFailure(t *testing.T) {
	router, _, db := newTestRouterWithDB(t)

	body := gin.H{"listings": []gin.H{
		{"title": "Charizard PSA 10", "listing_url": "https://www.ebay.com/itm/1", "listing_id": "1", "source": "ebay"},
	}}

	require.NoError(t, db.Migrator().DropTable(&models.Listing{}))
	w := doJSON(t, router, http.MethodPost, "/api/listings", body)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	require.NoError(t, db.AutoMigrate(&models.Listing{}))
	w = doJSON(t, router, http.MethodPost, "/api/listings", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Summary models.IngestSummary `json:"summary"`
		Stored  int                  `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Accepted)
	assert.Zero(t, resp.Summary.Duplicates)
	assert.Equal(t, 1, resp.Stored)

	var count int64
	require.NoError(t, db.Model(&models.Listing{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDatasetEndpoints(t *testing.T) {
	router, dataDir := newTestRouter(t)

	keep := models.Listing{
		Title:          "Charizard PSA 10",
		GradingCompany: models.CompanyPSA,
		Grade:          "10",
		ListingURL:     "https://www.ebay.com/itm/1",
		ListingID:      "1",
		Source:         models.SourceEbay,
		Images:         []string{"a.jpg", "b.jpg"},
	}
	drop := keep
	drop.ListingID = "2"
	drop.ListingURL = "https://www.ebay.com/itm/2"
	drop.Images = []string{"c.jpg"}
	require.NoError(t, storage.Save(filepath.Join(dataDir, "listings.csv"), models.NewDataset(keep, drop)))

	w := doJSON(t, router, http.MethodPost, "/api/datasets/filter", gin.H{"input": "listings.csv", "delete_assets": false})
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.FilterSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Kept)
	assert.Equal(t, 1, summary.Filtered)

	w = doJSON(t, router, http.MethodPost, "/api/datasets/merge", gin.H{
		"inputs": []string{"listings.csv", "listings_filtered.csv"},
		"output": "merged.json",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.MergeStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalIn)
	assert.Equal(t, 2, stats.TotalOut)

	w = doJSON(t, router, http.MethodGet, "/api/datasets/summary?path=merged.json", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/datasets/summary?path=missing.csv", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDatasetPathEscape(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, p := range []string{"../secrets.csv", "/etc/passwd", "a/../../b.csv", ""} {
		w := doJSON(t, router, http.MethodPost, "/api/datasets/filter", gin.H{"input": p, "output": "x.csv"})
		assert.Equal(t, http.StatusBadRequest, w.Code, "path %q", p)
	}
}
