package api

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-andersen/ebay-card-scraper/internal/api/handlers"
	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
)

func SetupRouter(listingHandler *handlers.ListingHandler, datasetHandler *handlers.DatasetHandler, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	router.Use(requestMetrics())

	// CORS configuration - allow origins from config or use defaults
	config := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		config.AllowOrigins = allowedOrigins
	} else {
		config.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	api := router.Group("/api")
	{
		listings := api.Group("/listings")
		{
			listings.POST("", listingHandler.IngestListings)
			listings.GET("/summary", listingHandler.GetCatalogSummary)
			listings.POST("/extract", listingHandler.ExtractGrade)
			listings.POST("/evaluate", listingHandler.EvaluateListing)
		}

		images := api.Group("/images")
		{
			images.POST("/canonicalize", listingHandler.CanonicalizeImages)
		}

		datasets := api.Group("/datasets")
		{
			datasets.POST("/filter", datasetHandler.FilterDataset)
			datasets.POST("/merge", datasetHandler.MergeDatasets)
			datasets.GET("/summary", datasetHandler.GetDatasetSummary)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// requestMetrics records count and latency per matched route. Unmatched paths
// share one label so scanners cannot blow up cardinality.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
