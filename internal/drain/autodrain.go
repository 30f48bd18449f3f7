package drain

import (
	"context"
	"errors"
	"time"

	"github.com/slabworks/slabsync-backend/pkg/logger"
)

const defaultAutoInterval = 15 * time.Second

// ToggleStore reads the auto-drain switch. Flipping the switch in Redis takes
// effect on the next tick without a restart.
type ToggleStore interface {
	GetToggle(ctx context.Context, name string) (bool, error)
}

// AutoDrainToggle is the switch name in the toggle store.
const AutoDrainToggle = "auto_drain"

// AutoDrainer drains the queue on a fixed cadence while the toggle is on.
type AutoDrainer struct {
	controller *Controller
	toggles    ToggleStore
	logger     *logger.Logger
	interval   time.Duration
}

// NewAutoDrainer wires the background drainer.
func NewAutoDrainer(controller *Controller, toggles ToggleStore, logg *logger.Logger, interval time.Duration) (*AutoDrainer, error) {
	if controller == nil {
		return nil, errors.New("controller is required")
	}
	if toggles == nil {
		return nil, errors.New("toggle store is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if interval <= 0 {
		interval = defaultAutoInterval
	}
	return &AutoDrainer{
		controller: controller,
		toggles:    toggles,
		logger:     logg,
		interval:   interval,
	}, nil
}

// Run ticks until the context is canceled.
func (a *AutoDrainer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "auto-drain context canceled")
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *AutoDrainer) tick(ctx context.Context) {
	enabled, err := a.toggles.GetToggle(ctx, AutoDrainToggle)
	if err != nil {
		a.logger.Error(ctx, "read auto-drain toggle", err)
		return
	}
	if !enabled {
		return
	}

	result, err := a.controller.Drain(ctx, Options{})
	if err != nil {
		if errors.Is(err, ErrDrainBusy) || errors.Is(err, context.Canceled) {
			return
		}
		a.logger.Error(ctx, "auto-drain run failed", err)
		return
	}
	if result.Processed > 0 {
		ctx = a.logger.WithFields(ctx, map[string]any{
			"processed":   result.Processed,
			"stop_reason": string(result.StopReason),
		})
		a.logger.Info(ctx, "auto-drain cycle complete")
	}
}
