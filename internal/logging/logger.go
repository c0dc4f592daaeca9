package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. level is any zap level name ("debug", "info",
// "warn", ...); an unparseable level falls back to info. format "console" or
// "text" selects the human-readable encoder, anything else JSON.
func New(level, format string) (*zap.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))

	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid LOG_LEVEL %q, defaulting to info\n", level)
		cfg.Level.SetLevel(zapcore.InfoLevel)
	}

	switch strings.ToLower(format) {
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		cfg.Encoding = "json"
	}

	// CLI reports go to stdout; logs stay on stderr
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Must is New for main packages that cannot run without a logger.
func Must(level, format string) *zap.Logger {
	logger, err := New(level, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v. Falling back to production logger.\n", err)
		logger, _ = zap.NewProduction()
	}
	return logger
}
