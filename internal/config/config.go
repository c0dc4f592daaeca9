package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime settings for both binaries.
type Config struct {
	Port               string
	DBPath             string
	DataDir            string
	AssetsDir          string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	Filter             FilterConfig
	Fetch              FetchConfig
	ReportTopN         int
	ExtractionCache    int
	ShutdownTimeout    time.Duration
}

type FilterConfig struct {
	BannedTerms  []string
	MinImages    int
	UseBackfill  bool
	DeleteAssets bool
}

type FetchConfig struct {
	DownloadImages bool
	RatePerSecond  float64
	Burst          int
	Timeout        time.Duration
}

var keys = []string{
	"PORT", "DB_PATH", "DATA_DIR", "ASSETS_DIR", "CORS_ALLOWED_ORIGINS",
	"LOG_LEVEL", "LOG_FORMAT",
	"FILTER_BANNED_TERMS", "FILTER_MIN_IMAGES", "FILTER_USE_BACKFILL", "FILTER_DELETE_ASSETS",
	"DOWNLOAD_IMAGES", "FETCH_RATE_PER_SECOND", "FETCH_BURST", "FETCH_TIMEOUT",
	"REPORT_TOP_N", "EXTRACTION_CACHE_SIZE", "SHUTDOWN_TIMEOUT",
}

// Load reads configuration from the environment, an optional .env file and
// an optional config file at path (any format viper understands).
// Environment variables win over the file; the file wins over defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:            v.GetString("PORT"),
		DBPath:          v.GetString("DB_PATH"),
		DataDir:         v.GetString("DATA_DIR"),
		AssetsDir:       v.GetString("ASSETS_DIR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		ReportTopN:      v.GetInt("REPORT_TOP_N"),
		ExtractionCache: v.GetInt("EXTRACTION_CACHE_SIZE"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		Filter: FilterConfig{
			BannedTerms:  splitList(v.GetString("FILTER_BANNED_TERMS")),
			MinImages:    v.GetInt("FILTER_MIN_IMAGES"),
			UseBackfill:  v.GetBool("FILTER_USE_BACKFILL"),
			DeleteAssets: v.GetBool("FILTER_DELETE_ASSETS"),
		},
		Fetch: FetchConfig{
			DownloadImages: v.GetBool("DOWNLOAD_IMAGES"),
			RatePerSecond:  v.GetFloat64("FETCH_RATE_PER_SECOND"),
			Burst:          v.GetInt("FETCH_BURST"),
			Timeout:        v.GetDuration("FETCH_TIMEOUT"),
		},
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = cfg.DataDir + "/downloaded_images"
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "./listings.db")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("ASSETS_DIR", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("FILTER_BANNED_TERMS", "thicc")
	v.SetDefault("FILTER_MIN_IMAGES", 2)
	v.SetDefault("FILTER_USE_BACKFILL", true)
	v.SetDefault("FILTER_DELETE_ASSETS", true)
	v.SetDefault("DOWNLOAD_IMAGES", false)
	v.SetDefault("FETCH_RATE_PER_SECOND", 2.0)
	v.SetDefault("FETCH_BURST", 1)
	v.SetDefault("FETCH_TIMEOUT", "10s")
	v.SetDefault("REPORT_TOP_N", 10)
	v.SetDefault("EXTRACTION_CACHE_SIZE", 4096)
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
