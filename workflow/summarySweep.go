package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/models"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	summarySweepLockKey = "catalog:summary-sweep"
	summarySweepLockTTL = 30 * time.Second
)

// SweepStaleSummaries recomputes every monthly summary currently marked
// stale. A distributed lock keeps overlapping deployments from sweeping the
// same rows; losing the lock is not an error, another instance is already on
// it.
func SweepStaleSummaries(ctx context.Context, logger *logrus.Logger) error {
	err := utils.WithDistributedLock(ctx, summarySweepLockKey, summarySweepLockTTL, func() error {
		started := time.Now()
		recomputed, err := models.RecomputeStaleSummaries(ctx)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"recomputed": recomputed,
				"error":      err.Error(),
			}).Error("summary sweep failed")
			return err
		}
		if recomputed > 0 {
			logger.WithFields(logrus.Fields{
				"recomputed": recomputed,
				"elapsed":    time.Since(started).String(),
			}).Info("summary sweep complete")
		}
		return nil
	})
	if errors.Is(err, utils.ErrLockNotObtained) {
		logger.Debug("summary sweep skipped, lock held elsewhere")
		return nil
	}
	return err
}

// RunSummarySweep loops SweepStaleSummaries on the given interval until the
// context is cancelled. Intended to run as a background goroutine next to the
// serving process.
func RunSummarySweep(ctx context.Context, logger *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("summary sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("summary sweeper stopped")
			return
		case <-ticker.C:
			if err := SweepStaleSummaries(ctx, logger); err != nil {
				logger.WithField("error", err.Error()).Error("summary sweep iteration failed")
			}
		}
	}
}
