// Package metrics provides Prometheus metrics for the listing curation pipeline.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slabs_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Ingestion Metrics
	ListingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabs_listings_ingested_total",
			Help: "Raw listings seen by the normalizer, by outcome",
		},
		[]string{"source", "result"}, // result: "accepted", "duplicate", "invalid"
	)

	ImageURLsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabs_image_urls_rejected_total",
			Help: "Image URLs dropped by the canonicalization gate",
		},
		[]string{"source"},
	)

	ImageDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabs_image_downloads_total",
			Help: "Image downloads by result",
		},
		[]string{"source", "result"}, // result: "saved", "failed"
	)

	ImageDownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slabs_image_download_duration_seconds",
			Help:    "Time taken to fetch one image",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	DedupKeysTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slabs_dedup_keys_tracked",
			Help: "Identity keys currently held by the deduplicator",
		},
	)

	// Extraction Metrics
	ExtractionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_extraction_cache_hits_total",
			Help: "Grade extraction cache hit count",
		},
	)

	ExtractionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_extraction_cache_misses_total",
			Help: "Grade extraction cache miss count",
		},
	)

	// Filter Metrics
	FilterDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slabs_filter_decisions_total",
			Help: "Quality filter decisions by reason",
		},
		[]string{"reason"},
	)

	GradesBackfilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_grades_backfilled_total",
			Help: "Missing grades recovered while filtering",
		},
	)

	AssetFilesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_asset_files_deleted_total",
			Help: "Image files removed for rejected listings",
		},
	)

	AssetDirectoriesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_asset_directories_deleted_total",
			Help: "Empty listing directories removed after cascading deletion",
		},
	)

	AssetDeletionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_asset_deletion_failures_total",
			Help: "Filesystem errors during cascading deletion",
		},
	)

	// Dataset Metrics
	DatasetsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_datasets_merged_total",
			Help: "Input datasets consumed by merges",
		},
	)

	MergeDuplicatesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slabs_merge_duplicates_dropped_total",
			Help: "Listings dropped as duplicates while merging",
		},
	)

	CatalogListings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slabs_catalog_listings",
			Help: "Listings stored in the SQLite catalog",
		},
	)
)
