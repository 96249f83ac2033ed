// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartRefreshScheduler re-runs the catalog bootstrap every interval. It
// seeds a catalog that was not migrated at startup and drops stale cache
// entries after admin edits.
func (s *CatalogService) StartRefreshScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if s.EnsureCatalog(ctx) {
				s.logger.Debug("[Scheduler] catalog refreshed")
			} else {
				s.logger.Warn("[Scheduler] catalog refresh skipped", zap.Duration("next_in", interval))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule catalog refresh: %w", err)
	}

	sched.Start()
	return sched, nil
}
