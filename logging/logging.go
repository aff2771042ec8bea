// Package logging constructs the zap.Logger every cmd/ entry point uses,
// grounded on the-mhdi-eSIaaS's cmd/providerd/main.go (logger.New(level) +
// defer logr.Sync(), zap.Error(err) on the failure path).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger at the given level (any level name
// zapcore accepts, e.g. "debug", "info", "warn", "error"; "" means info;
// an unknown name is rejected).
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
