package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stablelink/stable-core/internal/infrastructure/logging"
)

// defaultGrace is how long a stream may sit unwatched before it is
// stopped. Long enough to survive a page refresh, short enough that
// abandoned hardware winds down quickly.
const defaultGrace = 10 * time.Second

const weightRoomPrefix = "feeder-weight:"

// WeightRoom returns the room key carrying a feeder's live weight stream.
func WeightRoom(deviceName string) string {
	return weightRoomPrefix + deviceName
}

// FeederLister resolves the feeder device names an owner's horses use.
type FeederLister interface {
	ListFeederNamesByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// WeightStreamer starts and stops live weight streams on batches of feeders.
type WeightStreamer interface {
	StartWeightStreams(deviceNames []string)
	StopWeightStreams(deviceNames []string)
}

// StreamStopper ends a user's active camera stream, if any.
type StreamStopper interface {
	StopActive(ctx context.Context, userID string) error
}

// Manager tracks connection occupancy of weight rooms and user presence,
// and drives stream starts and grace-delayed stops from the transitions.
//
// All state is in memory and rebuilt from scratch on restart; the first
// reconnecting client re-starts its streams.
type Manager struct {
	horses  FeederLister
	weights WeightStreamer
	streams StreamStopper
	grace   time.Duration
	logger  *logging.Logger

	mu        sync.Mutex
	rooms     map[string]map[string]struct{} // room key -> connection IDs
	connRooms map[string]map[string]struct{} // connection ID -> room keys
	connUser  map[string]string
	userConns map[string]int

	pendingRooms map[string]struct{}
	pendingUsers map[string]struct{}
	graceTimer   *time.Timer
}

// NewManager creates the session manager.
//
// Parameters:
//   - horses: resolves an owner's feeder names on connect
//   - weights: weight stream control, typically the device link
//   - streams: camera stream control
//   - grace: unwatched-stream grace period; <=0 uses the 10s default
func NewManager(
	horses FeederLister,
	weights WeightStreamer,
	streams StreamStopper,
	grace time.Duration,
	logger *logging.Logger,
) *Manager {
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Manager{
		horses:       horses,
		weights:      weights,
		streams:      streams,
		grace:        grace,
		logger:       logger.With("component", "session"),
		rooms:        make(map[string]map[string]struct{}),
		connRooms:    make(map[string]map[string]struct{}),
		connUser:     make(map[string]string),
		userConns:    make(map[string]int),
		pendingRooms: make(map[string]struct{}),
		pendingUsers: make(map[string]struct{}),
	}
}

// Connect registers a new connection for a user and joins it to the
// weight rooms of every feeder the user owns. Rooms gaining their first
// watcher get their weight stream started in one batch; rooms and the
// user are removed from any pending stop.
func (m *Manager) Connect(ctx context.Context, connID, userID string) error {
	feeders, err := m.horses.ListFeederNamesByOwner(ctx, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.connUser[connID] = userID
	m.userConns[userID]++
	delete(m.pendingUsers, userID)

	memberships := make(map[string]struct{}, len(feeders))
	var toStart []string
	for _, name := range feeders {
		room := WeightRoom(name)
		memberships[room] = struct{}{}

		members, ok := m.rooms[room]
		if !ok {
			members = make(map[string]struct{})
			m.rooms[room] = members
		}
		wasEmpty := len(members) == 0
		members[connID] = struct{}{}

		delete(m.pendingRooms, room)
		if wasEmpty {
			toStart = append(toStart, name)
		}
	}
	m.connRooms[connID] = memberships
	m.mu.Unlock()

	if len(toStart) > 0 {
		m.weights.StartWeightStreams(toStart)
	}

	m.logger.Debug("connection joined",
		"conn_id", connID,
		"user_id", userID,
		"rooms", len(memberships),
		"started", len(toStart))

	return nil
}

// Disconnect removes a connection. Rooms losing their last watcher and
// users losing their last connection go into the shared pending set,
// and the grace timer is re-armed. Nothing stops until the timer fires
// and occupancy is re-checked.
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	emptiedRooms, userGone, userID := m.removeLocked(connID)
	if len(emptiedRooms) == 0 && !userGone {
		return
	}

	for _, room := range emptiedRooms {
		m.pendingRooms[room] = struct{}{}
	}
	if userGone {
		m.pendingUsers[userID] = struct{}{}
	}

	if m.graceTimer == nil {
		m.graceTimer = time.AfterFunc(m.grace, m.onGraceExpired)
	} else {
		m.graceTimer.Reset(m.grace)
	}

	m.logger.Debug("connection left, stops pending",
		"conn_id", connID,
		"user_id", userID,
		"rooms", len(emptiedRooms),
		"user_absent", userGone)
}

// Logout removes a connection and stops its orphaned streams
// immediately, skipping the grace period.
func (m *Manager) Logout(ctx context.Context, connID string) {
	m.mu.Lock()
	emptiedRooms, userGone, userID := m.removeLocked(connID)
	for _, room := range emptiedRooms {
		delete(m.pendingRooms, room)
	}
	if userGone {
		delete(m.pendingUsers, userID)
	}
	m.mu.Unlock()

	if len(emptiedRooms) > 0 {
		m.weights.StopWeightStreams(feederNames(emptiedRooms))
	}
	if userGone {
		if err := m.streams.StopActive(ctx, userID); err != nil {
			m.logger.Error("stopping stream on logout",
				"user_id", userID,
				"error", err)
		}
	}

	m.logger.Info("logout",
		"conn_id", connID,
		"user_id", userID,
		"rooms_stopped", len(emptiedRooms))
}

// Close cancels the grace timer. Pending stops are abandoned; shutdown
// tears the broker link down anyway.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

// removeLocked drops a connection from all bookkeeping and reports the
// rooms it emptied and whether its user now has no connections at all.
// Caller holds m.mu.
func (m *Manager) removeLocked(connID string) (emptiedRooms []string, userGone bool, userID string) {
	userID, known := m.connUser[connID]
	if !known {
		return nil, false, ""
	}
	delete(m.connUser, connID)

	for room := range m.connRooms[connID] {
		members := m.rooms[room]
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, room)
			emptiedRooms = append(emptiedRooms, room)
		}
	}
	delete(m.connRooms, connID)

	m.userConns[userID]--
	if m.userConns[userID] <= 0 {
		delete(m.userConns, userID)
		userGone = true
	}

	return emptiedRooms, userGone, userID
}

// onGraceExpired runs when the grace timer fires. Occupancy is
// re-checked under the lock; only rooms still empty and users still
// absent are stopped.
func (m *Manager) onGraceExpired() {
	m.mu.Lock()

	var stopRooms []string
	for room := range m.pendingRooms {
		if len(m.rooms[room]) == 0 {
			stopRooms = append(stopRooms, room)
		}
	}
	var stopUsers []string
	for userID := range m.pendingUsers {
		if m.userConns[userID] == 0 {
			stopUsers = append(stopUsers, userID)
		}
	}

	m.pendingRooms = make(map[string]struct{})
	m.pendingUsers = make(map[string]struct{})
	m.graceTimer = nil
	m.mu.Unlock()

	if len(stopRooms) > 0 {
		m.weights.StopWeightStreams(feederNames(stopRooms))
	}
	for _, userID := range stopUsers {
		if err := m.streams.StopActive(context.Background(), userID); err != nil {
			m.logger.Error("stopping stream after grace",
				"user_id", userID,
				"error", err)
		}
	}

	if len(stopRooms) > 0 || len(stopUsers) > 0 {
		m.logger.Info("grace expired",
			"rooms_stopped", len(stopRooms),
			"streams_stopped", len(stopUsers))
	}
}

// feederNames maps weight room keys back to their device names.
func feederNames(rooms []string) []string {
	names := make([]string, 0, len(rooms))
	for _, room := range rooms {
		names = append(names, strings.TrimPrefix(room, weightRoomPrefix))
	}
	return names
}
