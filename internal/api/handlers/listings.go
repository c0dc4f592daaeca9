package handlers

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
	"github.com/noah-andersen/ebay-card-scraper/internal/services"
)

// Maximum raw listings accepted in one ingest request
const maxIngestBatch = 1000

type ListingHandler struct {
	extractor    *services.GradeExtractor
	canon        *services.URLCanonicalizer
	filter       *services.QualityFilter
	normalizer   *services.Normalizer
	store        *services.DatasetStore
	consolidator *services.Consolidator
	topN         int
	logger       *zap.Logger

	// serializes catalog ingests so the dedup check and insert stay paired
	ingestMu sync.Mutex
}

func NewListingHandler(extractor *services.GradeExtractor, canon *services.URLCanonicalizer, filter *services.QualityFilter, normalizer *services.Normalizer, store *services.DatasetStore, topN int, logger *zap.Logger) *ListingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingHandler{
		extractor:    extractor,
		canon:        canon,
		filter:       filter,
		normalizer:   normalizer,
		store:        store,
		consolidator: services.NewConsolidator(logger),
		topN:         topN,
		logger:       logger,
	}
}

type ExtractRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	UseContext  bool   `json:"use_context"`
}

type ExtractResponse struct {
	models.GradeInfo
	MultipleCards bool `json:"multiple_cards"`
}

// ExtractGrade runs grade extraction on a title, optionally falling back to a
// description with the context rule enabled.
func (h *ListingHandler) ExtractGrade(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var info models.GradeInfo
	if req.Description == "" && !req.UseContext {
		info = h.extractor.Extract(req.Title)
	} else {
		info, _ = h.extractor.Backfill(req.UseContext, req.Title, req.Description)
	}

	c.JSON(http.StatusOK, ExtractResponse{
		GradeInfo:     info,
		MultipleCards: services.ContainsMultipleCards(req.Title),
	})
}

// EvaluateListing reports the keep/reject decision for one listing without
// touching any files.
func (h *ListingHandler) EvaluateListing(c *gin.Context) {
	var l models.Listing
	if err := c.ShouldBindJSON(&l); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision := h.filter.Evaluate(&l)
	c.JSON(http.StatusOK, gin.H{
		"decision": decision,
		"listing":  l,
	})
}

type CanonicalizeRequest struct {
	Source    string   `json:"source" binding:"required"`
	ImageURLs []string `json:"image_urls" binding:"required"`
}

type rejectedURL struct {
	Error string `json:"error"`
}

// CanonicalizeImages upgrades image URLs to their full-resolution form and
// lists the ones that failed validation.
func (h *ListingHandler) CanonicalizeImages(c *gin.Context) {
	var req CanonicalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canonical, errs := h.canon.CanonicalizeAll(models.NormalizeSource(req.Source), req.ImageURLs)
	rejected := make([]rejectedURL, 0, len(errs))
	for _, err := range errs {
		rejected = append(rejected, rejectedURL{Error: err.Error()})
	}

	c.JSON(http.StatusOK, gin.H{
		"image_urls": canonical,
		"rejected":   rejected,
	})
}

type IngestRequest struct {
	Listings []models.RawListing `json:"listings" binding:"required"`
}

// IngestListings normalizes raw listings and appends the new ones to the
// catalog.
func (h *ListingHandler) IngestListings(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Listings) > maxIngestBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many listings (max " + strconv.Itoa(maxIngestBatch) + ")"})
		return
	}

	h.ingestMu.Lock()
	defer h.ingestMu.Unlock()

	batch := models.NewDataset()
	summary, err := h.normalizer.Ingest(c.Request.Context(), batch, req.Listings)
	if err != nil {
		h.logger.Warn("ingest interrupted", zap.Error(err))
		summary.Result = models.ResultPartialFailure
	}

	stored, storeErr := h.store.Append(batch)
	if storeErr != nil {
		// Nothing was committed; let a retry accept the batch again
		h.normalizer.Forget(batch)
		h.logger.Error("failed to store listings", zap.Error(storeErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": storeErr.Error()})
		return
	}

	status := http.StatusCreated
	if stored == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"summary":  summary,
		"stored":   stored,
		"listings": batch.Listings,
	})
}

// GetCatalogSummary reports on every listing stored in the catalog.
func (h *ListingHandler) GetCatalogSummary(c *gin.Context) {
	topN := h.topN
	if s := c.Query("top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top"})
			return
		}
		topN = n
	}

	ds, err := h.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.consolidator.Summarize(ds, topN))
}
