package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
)

// DueLister finds scheduled feeders with a slot at the given HH:MM.
type DueLister interface {
	ListScheduledFeedersDue(ctx context.Context, hhmm string) ([]device.Device, error)
}

// Feeder starts a scheduled feeding on one device.
type Feeder interface {
	StartScheduled(ctx context.Context, deviceID string, slot device.Slot) (*feeding.Feeding, error)
}

// Scheduler runs the periodic schedule sweep.
type Scheduler struct {
	devices  DueLister
	feedings Feeder
	interval time.Duration
	location *time.Location
	logger   *logging.Logger

	now func() time.Time
}

// New creates a scheduler.
//
// Parameters:
//   - interval: sweep period; slots have minute granularity, so one
//     minute is the sensible value
//   - location: site timezone the HH:MM slots are written in
func New(
	devices DueLister,
	feedings Feeder,
	interval time.Duration,
	location *time.Location,
	logger *logging.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		devices:  devices,
		feedings: feedings,
		interval: interval,
		location: location,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"interval", s.interval.String(),
		"timezone", s.location.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep starts feedings for every feeder due at the current minute.
// Each device settles on its own goroutine; a busy or broken feeder is
// logged and never holds up the batch.
func (s *Scheduler) sweep(ctx context.Context) {
	hhmm := s.now().In(s.location).Format("15:04")

	due, err := s.devices.ListScheduledFeedersDue(ctx, hhmm)
	if err != nil {
		s.logger.Error("listing due feeders", "time", hhmm, "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("schedule sweep", "time", hhmm, "due", len(due))

	var wg sync.WaitGroup
	for _, dev := range due {
		slot, ok := matchSlot(&dev, hhmm)
		if !ok {
			// Listed as due but no slot matches; schedule edited mid-sweep
			s.logger.Warn("due feeder has no matching slot",
				"device", dev.Name,
				"time", hhmm)
			continue
		}

		wg.Add(1)
		go func(dev device.Device, slot device.Slot) {
			defer wg.Done()
			s.startOne(ctx, dev, slot)
		}(dev, slot)
	}
	wg.Wait()
}

// startOne starts a single scheduled feeding and settles its outcome.
func (s *Scheduler) startOne(ctx context.Context, dev device.Device, slot device.Slot) {
	f, err := s.feedings.StartScheduled(ctx, dev.ID, slot)
	if err != nil {
		if errors.Is(err, feeding.ErrAlreadyInProgress) {
			s.logger.Info("feeder busy, slot skipped",
				"device", dev.Name,
				"slot", string(slot))
			return
		}
		s.logger.Error("starting scheduled feeding",
			"device", dev.Name,
			"slot", string(slot),
			"error", err)
		return
	}

	s.logger.Info("scheduled feeding started",
		"device", dev.Name,
		"slot", string(slot),
		"feeding_id", f.ID)
}

// matchSlot finds which of the device's slots is set to the given HH:MM.
func matchSlot(dev *device.Device, hhmm string) (device.Slot, bool) {
	for _, slot := range device.AllSlots() {
		if dev.SlotTime(slot) == hhmm {
			return slot, true
		}
	}
	return "", false
}
