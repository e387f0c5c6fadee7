package logger

import (
	"go.uber.org/zap"
)

// New returns a production JSON logger. Callers own the instance and should
// pass it down explicitly rather than relying on zap's global.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
