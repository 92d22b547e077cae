package dashboard

import (
	"context"
	"log/slog"
	"time"
)

// Poller refreshes status and the active tab on a fixed interval.
type Poller struct {
	ctrl     *Controller
	interval time.Duration
	logger   *slog.Logger

	// newTicker is swapped in tests to drive ticks by hand.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewPoller creates a Poller. If interval is <= 0, it defaults to 5s.
func NewPoller(ctrl *Controller, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		ctrl:      ctrl,
		interval:  interval,
		logger:    ctrl.logger,
		newTicker: realTicker,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// The period does not stretch with slow refreshes; a tick that arrives
// while a refresh is running is dropped. Load failures are already in the
// banner; they only get a debug line here.
func (p *Poller) Run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ticks, stop := p.newTicker(p.interval)
	defer stop()

	for {
		if err := p.ctrl.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Debug("poll refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
	}
}
