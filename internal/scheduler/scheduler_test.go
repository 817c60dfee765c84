package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
)

type fakeDueLister struct {
	due map[string][]device.Device // hhmm -> devices
	err error
}

func (f *fakeDueLister) ListScheduledFeedersDue(_ context.Context, hhmm string) ([]device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.due[hhmm], nil
}

type fakeFeeder struct {
	mu      sync.Mutex
	started []startCall
	errs    map[string]error // device ID -> forced error
}

type startCall struct {
	deviceID string
	slot     device.Slot
}

func (f *fakeFeeder) StartScheduled(_ context.Context, deviceID string, slot device.Slot) (*feeding.Feeding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[deviceID]; err != nil {
		return nil, err
	}
	f.started = append(f.started, startCall{deviceID: deviceID, slot: slot})
	return &feeding.Feeding{ID: "feed-" + deviceID}, nil
}

func (f *fakeFeeder) calls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.started...)
}

func morningFeeder(id, name, hhmm string) device.Device {
	return device.Device{
		ID:          id,
		Name:        name,
		Class:       device.ClassFeeder,
		FeederMode:  device.ModeScheduled,
		ScheduledKg: 1.5,
		MorningTime: &hhmm,
	}
}

func newTestScheduler(lister *fakeDueLister, feeder *fakeFeeder) *Scheduler {
	s := New(lister, feeder, time.Minute, time.UTC, logging.Default())
	s.now = func() time.Time {
		return time.Date(2026, 2, 10, 7, 0, 0, 0, time.UTC)
	}
	return s
}

func TestSweep_StartsDueFeeders(t *testing.T) {
	lister := &fakeDueLister{due: map[string][]device.Device{
		"07:00": {
			morningFeeder("dev-f1", "feeder-01", "07:00"),
			morningFeeder("dev-f2", "feeder-02", "07:00"),
		},
	}}
	feeder := &fakeFeeder{}
	s := newTestScheduler(lister, feeder)

	s.sweep(context.Background())

	calls := feeder.calls()
	if len(calls) != 2 {
		t.Fatalf("started %d feedings, want 2", len(calls))
	}
	for _, c := range calls {
		if c.slot != device.SlotMorning {
			t.Errorf("slot = %q, want morning", c.slot)
		}
	}
}

func TestSweep_NothingDue(t *testing.T) {
	lister := &fakeDueLister{due: map[string][]device.Device{
		"18:30": {morningFeeder("dev-f1", "feeder-01", "18:30")},
	}}
	feeder := &fakeFeeder{}
	s := newTestScheduler(lister, feeder) // clock fixed at 07:00

	s.sweep(context.Background())

	if calls := feeder.calls(); len(calls) != 0 {
		t.Errorf("started %d feedings, want none", len(calls))
	}
}

func TestSweep_BusyFeederDoesNotBlockBatch(t *testing.T) {
	lister := &fakeDueLister{due: map[string][]device.Device{
		"07:00": {
			morningFeeder("dev-f1", "feeder-01", "07:00"),
			morningFeeder("dev-f2", "feeder-02", "07:00"),
			morningFeeder("dev-f3", "feeder-03", "07:00"),
		},
	}}
	feeder := &fakeFeeder{errs: map[string]error{
		"dev-f2": fmt.Errorf("%w: status RUNNING", feeding.ErrAlreadyInProgress),
	}}
	s := newTestScheduler(lister, feeder)

	s.sweep(context.Background())

	calls := feeder.calls()
	if len(calls) != 2 {
		t.Fatalf("started %d feedings, want the two idle feeders", len(calls))
	}
	for _, c := range calls {
		if c.deviceID == "dev-f2" {
			t.Error("the busy feeder must be skipped, not fed")
		}
	}
}

func TestSweep_FailureIsolated(t *testing.T) {
	lister := &fakeDueLister{due: map[string][]device.Device{
		"07:00": {
			morningFeeder("dev-f1", "feeder-01", "07:00"),
			morningFeeder("dev-f2", "feeder-02", "07:00"),
		},
	}}
	feeder := &fakeFeeder{errs: map[string]error{
		"dev-f1": errors.New("database is on fire"),
	}}
	s := newTestScheduler(lister, feeder)

	s.sweep(context.Background())

	calls := feeder.calls()
	if len(calls) != 1 || calls[0].deviceID != "dev-f2" {
		t.Errorf("calls = %+v, the healthy feeder must still start", calls)
	}
}

func TestSweep_ListError(t *testing.T) {
	lister := &fakeDueLister{err: errors.New("no database")}
	feeder := &fakeFeeder{}
	s := newTestScheduler(lister, feeder)

	s.sweep(context.Background())

	if calls := feeder.calls(); len(calls) != 0 {
		t.Errorf("started %d feedings after a list failure", len(calls))
	}
}

func TestSweep_SlotResolution(t *testing.T) {
	night := "19:30"
	dev := device.Device{
		ID:         "dev-f1",
		Name:       "feeder-01",
		Class:      device.ClassFeeder,
		FeederMode: device.ModeScheduled,
		NightTime:  &night,
	}
	lister := &fakeDueLister{due: map[string][]device.Device{"19:30": {dev}}}
	feeder := &fakeFeeder{}
	s := New(lister, feeder, time.Minute, time.UTC, logging.Default())
	s.now = func() time.Time {
		return time.Date(2026, 2, 10, 19, 30, 0, 0, time.UTC)
	}

	s.sweep(context.Background())

	calls := feeder.calls()
	if len(calls) != 1 || calls[0].slot != device.SlotNight {
		t.Errorf("calls = %+v, want one night start", calls)
	}
}

func TestSweep_SiteTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	lister := &fakeDueLister{due: map[string][]device.Device{
		"08:00": {morningFeeder("dev-f1", "feeder-01", "08:00")},
	}}
	feeder := &fakeFeeder{}
	s := New(lister, feeder, time.Minute, loc, logging.Default())
	// 07:00 UTC is 08:00 in London during BST
	s.now = func() time.Time {
		return time.Date(2026, 7, 15, 7, 0, 0, 0, time.UTC)
	}

	s.sweep(context.Background())

	if calls := feeder.calls(); len(calls) != 1 {
		t.Errorf("started %d feedings, slot times are site-local", len(calls))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	lister := &fakeDueLister{}
	feeder := &fakeFeeder{}
	s := New(lister, feeder, 10*time.Millisecond, time.UTC, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on context cancel")
	}
}
