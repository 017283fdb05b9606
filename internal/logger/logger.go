// Package logger builds the zap loggers used by the engine and its tools.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a production (json, info level) or development (console, debug level)
// logger depending on mode.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
