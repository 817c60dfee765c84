package feeding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/infrastructure/mqtt"
	"github.com/stablelink/stable-core/internal/link"
)

// MockRepository is an in-memory feeding.Repository for service tests.
type MockRepository struct {
	mu       sync.Mutex
	feedings map[string]*Feeding
	active   map[string]*ActiveFeeding
	beginErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		feedings: make(map[string]*Feeding),
		active:   make(map[string]*ActiveFeeding),
	}
}

func (m *MockRepository) BeginFeeding(_ context.Context, f *Feeding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return m.beginErr
	}
	if a, ok := m.active[f.HorseID]; ok {
		return errors.Join(ErrAlreadyInProgress, errors.New("status "+string(a.Status)))
	}
	f.Status = StatusPending
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	m.feedings[f.ID] = f
	m.active[f.HorseID] = &ActiveFeeding{
		HorseID:     f.HorseID,
		FeedingID:   f.ID,
		DeviceID:    f.DeviceID,
		RequestedKg: f.RequestedKg,
		Status:      StatusPending,
		CreatedAt:   f.CreatedAt,
	}
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Feeding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedings[id]
	if !ok {
		return nil, ErrFeedingNotFound
	}
	cpy := *f
	return &cpy, nil
}

func (m *MockRepository) GetActiveByHorse(_ context.Context, horseID string) (*ActiveFeeding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[horseID]
	if !ok {
		return nil, ErrFeedingNotFound
	}
	cpy := *a
	return &cpy, nil
}

func (m *MockRepository) UpdateActiveStatus(_ context.Context, horseID string, status Status, startedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[horseID]
	if !ok {
		return ErrFeedingNotFound
	}
	a.Status = status
	if startedAt != nil {
		a.StartedAt = startedAt
	}
	return nil
}

func (m *MockRepository) Complete(_ context.Context, feedingID, horseID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedings[feedingID]
	if !ok {
		return ErrFeedingNotFound
	}
	f.Status = StatusCompleted
	f.CompletedAt = &at
	delete(m.active, horseID)
	return nil
}

func (m *MockRepository) Fail(_ context.Context, feedingID, horseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedings[feedingID]
	if !ok {
		return ErrFeedingNotFound
	}
	f.Status = StatusFailed
	delete(m.active, horseID)
	return nil
}

func (m *MockRepository) ListByHorse(_ context.Context, _ string, _ int) ([]Feeding, error) {
	return nil, nil
}

// mockHorseRepo serves fixed horses.
type mockHorseRepo struct {
	horses map[string]*horse.Horse
}

func (m *mockHorseRepo) GetByID(_ context.Context, id string) (*horse.Horse, error) {
	h, ok := m.horses[id]
	if !ok {
		return nil, horse.ErrHorseNotFound
	}
	return h, nil
}

func (m *mockHorseRepo) GetOwned(ctx context.Context, id, ownerID string) (*horse.Horse, error) {
	h, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.OwnerID != ownerID {
		return nil, horse.ErrNotOwner
	}
	return h, nil
}

func (m *mockHorseRepo) GetByCamera(_ context.Context, cameraID string) (*horse.Horse, error) {
	for _, h := range m.horses {
		if h.CameraID != nil && *h.CameraID == cameraID {
			return h, nil
		}
	}
	return nil, horse.ErrHorseNotFound
}

func (m *mockHorseRepo) FirstByFeeder(_ context.Context, feederID string) (*horse.Horse, error) {
	for _, h := range m.horses {
		if h.FeederID != nil && *h.FeederID == feederID {
			return h, nil
		}
	}
	return nil, horse.ErrHorseNotFound
}

func (m *mockHorseRepo) ListByOwner(_ context.Context, _ string) ([]horse.Horse, error) {
	return nil, nil
}

func (m *mockHorseRepo) ListFeederNamesByOwner(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *mockHorseRepo) Create(_ context.Context, _ *horse.Horse) error { return nil }

func (m *mockHorseRepo) SetLastFeedAt(_ context.Context, _ string, _ time.Time) error { return nil }

// mockDeviceRepo serves fixed devices.
type mockDeviceRepo struct {
	devices map[string]*device.Device
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d, nil
}

func (m *mockDeviceRepo) GetByName(_ context.Context, name string) (*device.Device, error) {
	for _, d := range m.devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (m *mockDeviceRepo) List(_ context.Context) ([]device.Device, error) { return nil, nil }

func (m *mockDeviceRepo) Create(_ context.Context, _ *device.Device) error { return nil }

func (m *mockDeviceRepo) Delete(_ context.Context, _ string) error { return nil }

func (m *mockDeviceRepo) ListScheduledFeedersDue(_ context.Context, _ string) ([]device.Device, error) {
	return nil, nil
}

func (m *mockDeviceRepo) SetStreamToken(_ context.Context, _, _ string) error { return nil }

func (m *mockDeviceRepo) InvalidateStreamToken(_ context.Context, _ string) error { return nil }

func (m *mockDeviceRepo) GetByStreamToken(_ context.Context, _ string) (*device.Device, error) {
	return nil, device.ErrDeviceNotFound
}

// fakePublisher records published commands.
type fakePublisher struct {
	mu       sync.Mutex
	commands []publishedCommand
	err      error
}

type publishedCommand struct {
	class mqtt.DeviceClass
	name  string
	cmd   any
}

func (f *fakePublisher) PublishCommand(class mqtt.DeviceClass, deviceName string, cmd any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, publishedCommand{class: class, name: deviceName, cmd: cmd})
	return nil
}

// fakeHub records broadcasts.
type fakeHub struct {
	mu     sync.Mutex
	sends  []hubSend
}

type hubSend struct {
	ownerID   string
	eventType string
	payload   any
}

func (f *fakeHub) Send(ownerID, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, hubSend{ownerID: ownerID, eventType: eventType, payload: payload})
}

func (f *fakeHub) last(t *testing.T) hubSend {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatal("nothing broadcast")
	}
	return f.sends[len(f.sends)-1]
}

// newTestService builds a service over one owner, one horse, one feeder.
func newTestService(t *testing.T) (*Service, *MockRepository, *fakePublisher, *fakeHub) {
	t.Helper()

	feederID := "dev-f1"
	morning := "07:00"

	horses := &mockHorseRepo{horses: map[string]*horse.Horse{
		"horse-001": {ID: "horse-001", OwnerID: "usr-001", Name: "Star", FeederID: &feederID},
		"horse-bare": {ID: "horse-bare", OwnerID: "usr-001", Name: "NoFeeder"},
	}}
	devices := &mockDeviceRepo{devices: map[string]*device.Device{
		"dev-f1": {ID: "dev-f1", Name: "feeder-barn-01", Class: device.ClassFeeder,
			FeederMode: device.ModeScheduled, ScheduledKg: 1.5, MorningTime: &morning},
		"dev-c1": {ID: "dev-c1", Name: "camera-01", Class: device.ClassCamera},
	}}

	repo := NewMockRepository()
	pub := &fakePublisher{}
	hub := &fakeHub{}
	svc := NewService(repo, horses, devices, pub, hub, logging.Default(), 4)
	return svc, repo, pub, hub
}

func TestStart(t *testing.T) {
	svc, _, pub, hub := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.Status != StatusPending {
		t.Errorf("Status = %q, want PENDING", f.Status)
	}

	// PENDING broadcast to the owner
	send := hub.last(t)
	if send.ownerID != "usr-001" || send.eventType != NoticeFeedingPending {
		t.Errorf("broadcast = %+v", send)
	}

	// FEED_COMMAND published to the feeder
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.commands) != 1 {
		t.Fatalf("published %d commands, want 1", len(pub.commands))
	}
	pc := pub.commands[0]
	if pc.class != mqtt.ClassFeeder || pc.name != "feeder-barn-01" {
		t.Errorf("command target = %s/%s", pc.class, pc.name)
	}
	cmd, ok := pc.cmd.(link.FeedCommand)
	if !ok {
		t.Fatalf("command type = %T", pc.cmd)
	}
	if cmd.FeedingID != f.ID || cmd.TargetKg != 2.0 {
		t.Errorf("command = %+v", cmd)
	}
}

func TestStart_Validation(t *testing.T) {
	svc, _, pub, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		horseID string
		amount  float64
		userID  string
		wantErr error
	}{
		{"zero amount", "horse-001", 0, "usr-001", ErrInvalidAmount},
		{"negative amount", "horse-001", -1, "usr-001", ErrInvalidAmount},
		{"unknown horse", "horse-ghost", 1, "usr-001", horse.ErrHorseNotFound},
		{"foreign horse", "horse-001", 1, "usr-intruder", horse.ErrNotOwner},
		{"no feeder assigned", "horse-bare", 1, "usr-001", ErrNoFeeder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(ctx, tt.horseID, tt.amount, tt.userID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Start() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.commands) != 0 {
		t.Error("rejected starts must not publish commands")
	}
}

func TestStart_Conflict(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "horse-001", 1.0, "usr-001"); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	_, err := svc.Start(ctx, "horse-001", 1.0, "usr-001")
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Errorf("second Start() error = %v, want ErrAlreadyInProgress", err)
	}
}

func TestStart_PublishFailureStillSucceeds(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)
	pub.err = errors.New("broker down")
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 1.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v, publish failures must not fail the start", err)
	}

	// The feeding stays live; the device stream resolves it later
	if _, err := repo.GetActiveByHorse(ctx, "horse-001"); err != nil {
		t.Errorf("active row should exist, error = %v", err)
	}
	_ = f
}

func TestStartScheduled(t *testing.T) {
	svc, _, pub, hub := newTestService(t)
	ctx := context.Background()

	f, err := svc.StartScheduled(ctx, "dev-f1", device.SlotMorning)
	if err != nil {
		t.Fatalf("StartScheduled() error = %v", err)
	}
	if !f.Scheduled || f.TimeSlot != device.SlotMorning {
		t.Errorf("feeding = %+v", f)
	}
	if f.RequestedKg != 1.5 {
		t.Errorf("RequestedKg = %v, want the configured portion 1.5", f.RequestedKg)
	}

	// The sweep side must not broadcast or publish directly
	hub.mu.Lock()
	sends := len(hub.sends)
	hub.mu.Unlock()
	pub.mu.Lock()
	cmds := len(pub.commands)
	pub.mu.Unlock()
	if sends != 0 || cmds != 0 {
		t.Fatalf("sweep side effects: %d sends, %d commands, want 0/0", sends, cmds)
	}

	// The handoff record is versioned and complete
	select {
	case d := <-svc.Dispatches():
		if d.SchemaVersion != DispatchSchemaVersion {
			t.Errorf("SchemaVersion = %d", d.SchemaVersion)
		}
		if d.FeedingID != f.ID || d.DeviceName != "feeder-barn-01" || d.OwnerID != "usr-001" {
			t.Errorf("dispatch = %+v", d)
		}

		// The dispatcher half performs both side effects
		svc.Dispatch(d)
		if send := hub.last(t); send.eventType != NoticeFeedingPending {
			t.Errorf("dispatcher broadcast = %+v", send)
		}
		pub.mu.Lock()
		defer pub.mu.Unlock()
		if len(pub.commands) != 1 || pub.commands[0].name != "feeder-barn-01" {
			t.Errorf("dispatcher commands = %+v", pub.commands)
		}
	default:
		t.Fatal("no dispatch posted")
	}
}

func TestStartScheduled_Rejections(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// Camera is not a feeder
	if _, err := svc.StartScheduled(ctx, "dev-c1", device.SlotMorning); !errors.Is(err, ErrNotAFeeder) {
		t.Errorf("camera error = %v, want ErrNotAFeeder", err)
	}

	// Slot without a configured time
	if _, err := svc.StartScheduled(ctx, "dev-f1", device.SlotNight); !errors.Is(err, ErrNotScheduled) {
		t.Errorf("unconfigured slot error = %v, want ErrNotScheduled", err)
	}
}

func TestDispatch_RejectsUnknownSchemaVersion(t *testing.T) {
	svc, _, pub, hub := newTestService(t)

	svc.Dispatch(FeedDispatch{SchemaVersion: 99, FeedingID: "feed-001", DeviceName: "feeder-barn-01"})

	hub.mu.Lock()
	sends := len(hub.sends)
	hub.mu.Unlock()
	pub.mu.Lock()
	cmds := len(pub.commands)
	pub.mu.Unlock()
	if sends != 0 || cmds != 0 {
		t.Error("unknown schema versions must be dropped without side effects")
	}
}

func TestHandleFeederEvent_Lifecycle(t *testing.T) {
	svc, repo, _, hub := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// STARTED: active row only
	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingStarted, FeedingID: f.ID, HorseID: f.HorseID,
	})
	if err != nil {
		t.Fatalf("HandleFeederEvent(STARTED) error = %v", err)
	}
	active, err := repo.GetActiveByHorse(ctx, "horse-001")
	if err != nil {
		t.Fatalf("GetActiveByHorse() error = %v", err)
	}
	if active.Status != StatusStarted || active.StartedAt == nil {
		t.Errorf("active = %+v", active)
	}
	if send := hub.last(t); send.eventType != NoticeFeedingStarted {
		t.Errorf("broadcast = %+v", send)
	}

	// RUNNING
	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingRunning, FeedingID: f.ID,
	})
	if err != nil {
		t.Fatalf("HandleFeederEvent(RUNNING) error = %v", err)
	}

	// COMPLETED: terminal transition finalises everything
	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingCompleted, FeedingID: f.ID,
	})
	if err != nil {
		t.Fatalf("HandleFeederEvent(COMPLETED) error = %v", err)
	}
	got, err := repo.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", got.Status)
	}
	if _, err := repo.GetActiveByHorse(ctx, "horse-001"); !errors.Is(err, ErrFeedingNotFound) {
		t.Errorf("active row should be gone, error = %v", err)
	}
	if send := hub.last(t); send.eventType != NoticeFeedingCompleted {
		t.Errorf("broadcast = %+v", send)
	}
}

func TestHandleFeederEvent_Error(t *testing.T) {
	svc, repo, _, hub := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingError, FeedingID: f.ID, ErrorMessage: "auger jammed",
	})
	if err != nil {
		t.Fatalf("HandleFeederEvent(ERROR) error = %v", err)
	}

	got, _ := repo.GetByID(ctx, f.ID)
	if got.Status != StatusFailed {
		t.Errorf("Status = %q, want FAILED", got.Status)
	}

	send := hub.last(t)
	if send.eventType != NoticeFeedingError {
		t.Fatalf("broadcast = %+v", send)
	}
	notice, ok := send.payload.(FeedingNotice)
	if !ok || notice.ErrorMessage != "auger jammed" {
		t.Errorf("payload = %+v, device error text must reach the owner", send.payload)
	}
}

func TestHandleFeederEvent_Guards(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Run("unknown device", func(t *testing.T) {
		err := svc.HandleFeederEvent(ctx, "feeder-ghost", link.FeederEvent{
			Type: link.EventFeedingStarted, FeedingID: f.ID,
		})
		if !errors.Is(err, device.ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("camera impersonating feeder", func(t *testing.T) {
		err := svc.HandleFeederEvent(ctx, "camera-01", link.FeederEvent{
			Type: link.EventFeedingStarted, FeedingID: f.ID,
		})
		if !errors.Is(err, ErrNotAFeeder) {
			t.Errorf("error = %v, want ErrNotAFeeder", err)
		}
	})

	t.Run("unknown feeding", func(t *testing.T) {
		err := svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
			Type: link.EventFeedingStarted, FeedingID: "feed-ghost",
		})
		if !errors.Is(err, ErrFeedingNotFound) {
			t.Errorf("error = %v, want ErrFeedingNotFound", err)
		}
	})
}

func TestHandleFeederEvent_DeviceMismatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A second feeder claims the feeding it never received
	svcDevices := svc.devices.(*mockDeviceRepo)
	svcDevices.devices["dev-f2"] = &device.Device{
		ID: "dev-f2", Name: "feeder-impostor", Class: device.ClassFeeder,
	}

	err = svc.HandleFeederEvent(ctx, "feeder-impostor", link.FeederEvent{
		Type: link.EventFeedingCompleted, FeedingID: f.ID,
	})
	if !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("error = %v, want ErrDeviceMismatch", err)
	}
}

func TestHandleFeederEvent_HorseMismatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Start(ctx, "horse-001", 2.0, "usr-001")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingStarted, FeedingID: f.ID, HorseID: "horse-999",
	})
	if !errors.Is(err, ErrHorseMismatch) {
		t.Errorf("error = %v, want ErrHorseMismatch", err)
	}

	// The matching horse ID is accepted
	err = svc.HandleFeederEvent(ctx, "feeder-barn-01", link.FeederEvent{
		Type: link.EventFeedingStarted, FeedingID: f.ID, HorseID: f.HorseID,
	})
	if err != nil {
		t.Errorf("HandleFeederEvent(matching horse) error = %v", err)
	}
}

// fakeTelemetry records weight and outcome writes.
type fakeTelemetry struct {
	mu      sync.Mutex
	weights []float64
}

func (f *fakeTelemetry) WriteFeedingOutcome(_, _, _ string, _ float64) {}

func (f *fakeTelemetry) WriteWeightSample(_, _ string, weightKg float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weights = append(f.weights, weightKg)
}

func TestHandleWeightSample(t *testing.T) {
	svc, _, _, hub := newTestService(t)
	ctx := context.Background()

	tel := &fakeTelemetry{}
	svc.SetTelemetry(tel)

	if err := svc.HandleWeightSample(ctx, "feeder-barn-01", 1.85); err != nil {
		t.Fatalf("HandleWeightSample() error = %v", err)
	}

	send := hub.last(t)
	if send.ownerID != "usr-001" || send.eventType != NoticeWeightSample {
		t.Errorf("broadcast = %+v", send)
	}
	notice, ok := send.payload.(WeightNotice)
	if !ok {
		t.Fatalf("payload type = %T", send.payload)
	}
	if notice.DeviceName != "feeder-barn-01" || notice.HorseID != "horse-001" || notice.WeightKg != 1.85 {
		t.Errorf("notice = %+v", notice)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.weights) != 1 || tel.weights[0] != 1.85 {
		t.Errorf("telemetry weights = %v, want [1.85]", tel.weights)
	}
}

func TestHandleWeightSample_Guards(t *testing.T) {
	svc, _, _, hub := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleWeightSample(ctx, "feeder-ghost", 1.0); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
	if err := svc.HandleWeightSample(ctx, "camera-01", 1.0); !errors.Is(err, ErrNotAFeeder) {
		t.Errorf("error = %v, want ErrNotAFeeder", err)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.sends) != 0 {
		t.Errorf("rejected samples still broadcast: %+v", hub.sends)
	}
}
