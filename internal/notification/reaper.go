package notification

import (
	"context"

	"Fly8Backend/internal/config"
	"Fly8Backend/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reaper periodically evicts expired notifications. Listings already hide them,
// so a missed run only costs storage.
type Reaper struct {
	service *NotificationService
	metrics *metrics.Metrics
	log     *zap.Logger
	cron    *cron.Cron
	spec    string
}

// NewReaper creates a reaper scheduled by cfg.ReaperSpec.
func NewReaper(service *NotificationService, m *metrics.Metrics, cfg *config.AppConfig, log *zap.Logger) *Reaper {
	return &Reaper{
		service: service,
		metrics: m,
		log:     log.Named("notification.reaper"),
		cron:    cron.New(),
		spec:    cfg.ReaperSpec,
	}
}

// RunOnce deletes everything expired so far.
func (r *Reaper) RunOnce(ctx context.Context) {
	n, err := r.service.DeleteExpired(ctx)
	if err != nil {
		r.log.Error("failed to delete expired notifications", zap.Error(err))
		return
	}
	r.metrics.ReapedExpired.Add(float64(n))
	if n > 0 {
		r.log.Info("expired notifications deleted", zap.Int64("count", n))
	}
}

// Start registers the cron job with the fx lifecycle.
func (r *Reaper) Start(lc fx.Lifecycle) error {
	if _, err := r.cron.AddFunc(r.spec, func() { r.RunOnce(context.Background()) }); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			r.log.Info("Starting notification reaper", zap.String("schedule", r.spec))
			r.cron.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.log.Info("Stopping notification reaper ...")
			select {
			case <-r.cron.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
