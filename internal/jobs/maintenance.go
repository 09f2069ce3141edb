package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/tenantcore/internal/metrics"
	"github.com/opsforge/tenantcore/internal/queue"
)

// Maintainer runs the periodic housekeeping shared by all queues: promoting
// due delayed jobs into the ready set, enforcing age-based retention, and
// feeding depth gauges.
type Maintainer struct {
	queues  []*queue.RedisQueue
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewMaintainer(queues []*queue.RedisQueue, m *metrics.Collector, logger *zap.Logger) *Maintainer {
	return &Maintainer{queues: queues, metrics: m, logger: logger}
}

// Run blocks until ctx is cancelled.
func (m *Maintainer) Run(ctx context.Context, promoteInterval, sweepInterval time.Duration) {
	if promoteInterval <= 0 {
		promoteInterval = time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	promote := time.NewTicker(promoteInterval)
	defer promote.Stop()
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			m.promoteAll(ctx)
		case <-sweep.C:
			m.sweepAll(ctx)
		}
	}
}

func (m *Maintainer) promoteAll(ctx context.Context) {
	for _, q := range m.queues {
		n, err := q.PromoteDelayed(ctx)
		if err != nil {
			m.logger.Error("Failed to promote delayed jobs",
				zap.Error(err),
				zap.String("queue", q.Name()),
			)
			continue
		}
		if n > 0 {
			m.logger.Debug("Promoted delayed jobs",
				zap.String("queue", q.Name()),
				zap.Int("count", n),
			)
		}

		stats, err := q.Stats(ctx)
		if err != nil {
			continue
		}
		m.metrics.SetQueueDepth(q.Name(), stats)
	}
}

func (m *Maintainer) sweepAll(ctx context.Context) {
	for _, q := range m.queues {
		if err := q.Sweep(ctx); err != nil {
			m.logger.Error("Failed to sweep finished jobs",
				zap.Error(err),
				zap.String("queue", q.Name()),
			)
		}
	}
}
