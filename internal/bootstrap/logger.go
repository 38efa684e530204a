package bootstrap

import (
	"Fly8Backend/internal/config"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger.
func NewLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// FxLogger routes fx lifecycle events through zap.
func FxLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}
