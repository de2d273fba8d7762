// Package maintenance runs the periodic sweeps that expire guard state.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
)

// Sweep is one periodic cleanup task.
type Sweep struct {
	Name     string
	Interval time.Duration
	// Run returns how many entries it removed.
	Run func(ctx context.Context) (int, error)
}

// Intervals configures the built-in sweeps.
type Intervals struct {
	Blocks   time.Duration `mapstructure:"blocks"`
	CSRF     time.Duration `mapstructure:"csrf"`
	MFA      time.Duration `mapstructure:"mfa"`
	Events   time.Duration `mapstructure:"events"`
	Sessions time.Duration `mapstructure:"sessions"`
}

func DefaultIntervals() Intervals {
	return Intervals{
		Blocks:   time.Hour,
		CSRF:     30 * time.Minute,
		MFA:      5 * time.Minute,
		Events:   time.Hour,
		Sessions: time.Hour,
	}
}

// Janitor runs each sweep on its own ticker.
type Janitor struct {
	sweeps  []Sweep
	logger  *logging.Logger
	stop    chan struct{}
	stopped chan struct{}
}

func NewJanitor(logger *logging.Logger, sweeps ...Sweep) *Janitor {
	return &Janitor{
		sweeps:  sweeps,
		logger:  logger,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs until ctx is cancelled or Stop is called. Call it in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	defer close(j.stopped)

	j.logger.Info("janitor started", slog.Int("sweeps", len(j.sweeps)))

	var wg sync.WaitGroup
	for _, s := range j.sweeps {
		if s.Interval <= 0 {
			j.logger.Warn("sweep disabled", slog.String("sweep", s.Name))
			continue
		}
		wg.Add(1)
		go func(s Sweep) {
			defer wg.Done()
			j.loop(ctx, s)
		}(s)
	}
	wg.Wait()

	j.logger.Info("janitor stopped")
}

// Stop signals every sweep to exit and waits for them.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.stopped
}

func (j *Janitor) loop(ctx context.Context, s Sweep) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx, s)
		case <-j.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes s immediately.
func (j *Janitor) RunOnce(ctx context.Context, s Sweep) {
	removed, err := s.Run(ctx)
	if err != nil {
		j.logger.WarnContext(ctx, "sweep failed", slog.String("sweep", s.Name), logging.Error(err))
		return
	}
	metrics.SweepRemoved.WithLabelValues(s.Name).Add(float64(removed))
	if removed > 0 {
		j.logger.DebugContext(ctx, "sweep removed entries", slog.String("sweep", s.Name), slog.Int("removed", removed))
	}
}
