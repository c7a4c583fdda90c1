// Package sync runs the periodic local-to-cloud bottle upload task.
package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/config"
)

// Lister is the slice of the bottle store the task reads from.
type Lister interface {
	ListUnuploaded(ctx context.Context, uploaded func(id int64) bool, limit int) ([]bottle.Bottle, error)
}

// Tracker records which bottle IDs have been uploaded.
type Tracker interface {
	MarkUploaded(id int64) error
	IsUploaded(id int64) bool
}

// Uploader pushes one bottle to the remote service.
type Uploader interface {
	AddBottle(ctx context.Context, b bottle.Bottle) (int64, error)
}

// Service uploads unuploaded local bottles to the cloud service in
// rate-limited batches. Delivery is at-least-once: a bottle is marked only
// after a successful upload, so a failure between the two repeats the
// upload next cycle.
type Service struct {
	store    Lister
	tracker  Tracker
	uploader Uploader

	interval  time.Duration
	batchSize int
	limiter   *rate.Limiter

	cron    *cron.Cron
	running atomic.Bool
	logger  *slog.Logger
}

// NewService builds the sync task from config; Start schedules it.
func NewService(log *slog.Logger, store Lister, tracker Tracker, uploader Uploader, cfg config.SyncConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	every := cfg.RateEveryDuration()
	return &Service{
		store:     store,
		tracker:   tracker,
		uploader:  uploader,
		interval:  cfg.IntervalDuration(),
		batchSize: cfg.BatchSize,
		limiter:   rate.NewLimiter(rate.Every(every), 1),
		cron:      cron.New(),
		logger:    log.With(slog.String("service", "sync")),
	}
}

// Start schedules the periodic upload cycle.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("sync cycle failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sync task started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts scheduling and waits for a running cycle to finish.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single upload cycle and returns how many bottles were
// uploaded. A cycle that would overlap a still-running one is skipped. The
// first upload failure ends the cycle; unmarked bottles are retried on the
// next one.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sync cycle still running, skipping")
		return 0, nil
	}
	defer s.running.Store(false)

	items, err := s.store.ListUnuploaded(ctx, s.tracker.IsUploaded, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	s.logger.Info("sync cycle start", slog.Int("pending", len(items)))

	uploaded := 0
	for _, b := range items {
		if err := s.limiter.Wait(ctx); err != nil {
			return uploaded, err
		}
		if _, err := s.uploader.AddBottle(ctx, b); err != nil {
			s.logger.Error("upload bottle failed",
				slog.Int64("bottle_id", b.ID),
				slog.Any("error", err),
			)
			return uploaded, err
		}
		if err := s.tracker.MarkUploaded(b.ID); err != nil {
			// The upload went through; a lost mark means one duplicate
			// upload next cycle, which the flag design accepts.
			s.logger.Error("mark uploaded failed",
				slog.Int64("bottle_id", b.ID),
				slog.Any("error", err),
			)
			return uploaded, err
		}
		uploaded++
	}
	s.logger.Info("sync cycle complete", slog.Int("uploaded", uploaded))
	return uploaded, nil
}
