package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/models"
	"github.com/noah-andersen/ebay-card-scraper/internal/services"
)

var errPathOutsideDataDir = errors.New("path escapes the data directory")

// DatasetHandler exposes the file-based curation stages. Every path in a
// request is relative to dataDir.
type DatasetHandler struct {
	curator     *services.Curator
	dataDir     string
	filterOpts  services.FilterOptions
	defaultTopN int
	logger      *zap.Logger
}

func NewDatasetHandler(curator *services.Curator, dataDir string, filterOpts services.FilterOptions, topN int, logger *zap.Logger) *DatasetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dataDir)
	if err == nil {
		dataDir = abs
	}
	return &DatasetHandler{
		curator:     curator,
		dataDir:     dataDir,
		filterOpts:  filterOpts,
		defaultTopN: topN,
		logger:      logger,
	}
}

type FilterRequest struct {
	Input        string   `json:"input" binding:"required"`
	Output       string   `json:"output"`
	BannedTerms  []string `json:"banned_terms"`
	MinImages    *int     `json:"min_images"`
	UseBackfill  *bool    `json:"use_backfill"`
	DeleteAssets *bool    `json:"delete_assets"`
}

// FilterDataset runs the quality filter over a dataset file. Options left out
// of the request fall back to the server configuration.
func (h *DatasetHandler) FilterDataset(c *gin.Context) {
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := h.resolvePath(req.Input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := ""
	if req.Output != "" {
		if out, err = h.resolvePath(req.Output); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := h.filterOpts
	if req.BannedTerms != nil {
		opts.BannedTerms = req.BannedTerms
	}
	if req.MinImages != nil {
		opts.MinImages = *req.MinImages
	}
	if req.UseBackfill != nil {
		opts.UseBackfill = *req.UseBackfill
	}
	if req.DeleteAssets != nil {
		opts.DeleteAssets = *req.DeleteAssets
	}

	summary, err := h.curator.FilterFile(in, out, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type MergeRequest struct {
	Inputs []string `json:"inputs" binding:"required,min=1"`
	Output string   `json:"output" binding:"required"`
	Dedup  *bool    `json:"dedup"`
}

// MergeDatasets concatenates dataset files in request order.
func (h *DatasetHandler) MergeDatasets(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs := make([]string, 0, len(req.Inputs))
	for _, p := range req.Inputs {
		resolved, err := h.resolvePath(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		inputs = append(inputs, resolved)
	}
	out, err := h.resolvePath(req.Output)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dedup := true
	if req.Dedup != nil {
		dedup = *req.Dedup
	}

	stats, err := h.curator.MergeFiles(inputs, out, dedup)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDatasetSummary reports on a dataset file given by the path query param.
func (h *DatasetHandler) GetDatasetSummary(c *gin.Context) {
	in, err := h.resolvePath(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topN := h.defaultTopN
	if s := c.Query("top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top"})
			return
		}
		topN = n
	}

	report, err := h.curator.SummarizeFile(in, topN)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// resolvePath maps a request path onto the data directory, refusing absolute
// paths and anything that climbs out of it.
func (h *DatasetHandler) resolvePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", errPathOutsideDataDir, p)
	}
	full := filepath.Join(h.dataDir, p)
	rel, err := filepath.Rel(h.dataDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errPathOutsideDataDir, p)
	}
	return full, nil
}

func (h *DatasetHandler) respondError(c *gin.Context, err error) {
	code := models.ResultCodeFor(err)
	status := http.StatusInternalServerError
	switch code {
	case models.ResultInputNotFound:
		status = http.StatusNotFound
	case models.ResultSchemaMismatch, models.ResultMalformedInput:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("dataset operation failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "result": code})
}
