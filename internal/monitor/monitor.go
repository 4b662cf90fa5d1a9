// Package monitor enforces the inactivity timeout: 30 minutes of silence end
// the session, with a warning 5 minutes before the cut.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/haulstack/console-gateway/internal/observability"
	"github.com/haulstack/console-gateway/internal/session"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StateWarning
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	default:
		return "idle"
	}
}

const (
	// Wall-clock windows, fixed by policy rather than configuration.
	SessionTimeout = 30 * time.Minute
	WarningLead    = 5 * time.Minute

	countdownTick = time.Second
)

// Refresher is the silent-refresh dependency, satisfied by auth.Service.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Snapshot is the monitor state the UI renders: whether the warning dialog is
// up and how long until the forced logout.
type Snapshot struct {
	State            State         `json:"-"`
	StateName        string        `json:"state"`
	WarningVisible   bool          `json:"warning_visible"`
	MillisRemaining  int64         `json:"milliseconds_remaining"`
	DeadlineAbsolute time.Time     `json:"deadline"`
	Remaining        time.Duration `json:"-"`
}

type Monitor struct {
	clock     Clock
	refresher Refresher
	forceOut  func(ctx context.Context)
	store     *session.Store

	mu           sync.Mutex
	state        State
	gen          uint64 // invalidates stale timer callbacks
	warningTimer Timer
	logoutTimer  Timer
	tickTimer    Timer
	deadline     time.Time
	remaining    time.Duration

	// Hooks feed the SSE stream; set before Start, never after.
	OnWarning      func(remaining time.Duration)
	OnTick         func(remaining time.Duration)
	OnForcedLogout func()

	sub    chan session.Snapshot
	done   chan struct{}
	closed bool
}

// New wires the monitor to the store. forceOut performs the forced logout
// (auth.Service.ForceLogout); the resulting store transition is what moves
// the monitor itself back to Idle.
func New(clock Clock, store *session.Store, refresher Refresher, forceOut func(ctx context.Context)) *Monitor {
	return &Monitor{
		clock:     clock,
		refresher: refresher,
		forceOut:  forceOut,
		store:     store,
		state:     StateIdle,
		sub:       make(chan session.Snapshot, 16),
		done:      make(chan struct{}),
	}
}

// Start begins watching authentication state. Any path that authenticates the
// session arms the timers; any path that clears it disarms them.
func (m *Monitor) Start() {
	m.store.Subscribe(m.sub)
	if m.store.IsAuthenticated() {
		m.mu.Lock()
		m.toActiveLocked()
		m.mu.Unlock()
	}
	go m.watch()
}

func (m *Monitor) watch() {
	for {
		select {
		case snap := <-m.sub:
			m.mu.Lock()
			if snap.IsAuthenticated && m.state == StateIdle {
				m.toActiveLocked()
			} else if !snap.IsAuthenticated && m.state != StateIdle {
				m.toIdleLocked()
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

// Activity reschedules the timeout on user input. While the warning is up it
// does nothing: an idle user nudging the mouse must not silently cancel the
// pending logout; only an explicit StayLoggedIn does.
func (m *Monitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return
	}
	m.scheduleLocked()
}

// StayLoggedIn resolves the warning: a successful silent refresh re-arms the
// timers, any refresh failure forces the logout.
func (m *Monitor) StayLoggedIn(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateWarning {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.refresher.Refresh(ctx); err != nil {
		m.forcedLogout(ctx)
		return err
	}

	m.mu.Lock()
	if m.state == StateWarning {
		m.toActiveLocked()
	}
	m.mu.Unlock()
	return nil
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		State:            m.state,
		StateName:        m.state.String(),
		WarningVisible:   m.state == StateWarning,
		DeadlineAbsolute: m.deadline,
	}
	if m.state == StateWarning {
		snap.Remaining = m.remaining
	} else if m.state == StateActive {
		snap.Remaining = m.deadline.Sub(m.clock.Now())
	}
	if snap.Remaining < 0 {
		snap.Remaining = 0
	}
	snap.MillisRemaining = snap.Remaining.Milliseconds()
	return snap
}

func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelTimersLocked()
	m.state = StateIdle
	m.mu.Unlock()
	m.store.Unsubscribe(m.sub)
	close(m.done)
}

// toActiveLocked arms a fresh timer pair. Cancellation always precedes
// scheduling, so at most one pair is ever live.
func (m *Monitor) toActiveLocked() {
	prev := m.state
	m.state = StateActive
	m.scheduleLocked()
	if prev != StateActive {
		observability.RecordMonitorTransition(context.Background(), prev.String(), "active")
	}
}

func (m *Monitor) toIdleLocked() {
	prev := m.state
	m.cancelTimersLocked()
	m.state = StateIdle
	m.deadline = time.Time{}
	m.remaining = 0
	observability.RecordMonitorTransition(context.Background(), prev.String(), "idle")
}

func (m *Monitor) scheduleLocked() {
	m.cancelTimersLocked()
	m.gen++
	gen := m.gen
	now := m.clock.Now()
	m.deadline = now.Add(SessionTimeout)
	m.warningTimer = m.clock.AfterFunc(SessionTimeout-WarningLead, func() { m.onWarningFired(gen) })
	m.logoutTimer = m.clock.AfterFunc(SessionTimeout, func() { m.onLogoutFired(gen) })
}

func (m *Monitor) cancelTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
	if m.tickTimer != nil {
		m.tickTimer.Stop()
		m.tickTimer = nil
	}
}

func (m *Monitor) onWarningFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateWarning
	m.remaining = WarningLead
	m.tickTimer = m.clock.AfterFunc(countdownTick, func() { m.onTickFired(gen) })
	hook := m.OnWarning
	m.mu.Unlock()

	observability.RecordMonitorTransition(context.Background(), "active", "warning")
	if hook != nil {
		hook(WarningLead)
	}
}

func (m *Monitor) onTickFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateWarning {
		m.mu.Unlock()
		return
	}
	m.remaining -= countdownTick
	if m.remaining < 0 {
		m.remaining = 0
	}
	remaining := m.remaining
	if remaining > 0 {
		m.tickTimer = m.clock.AfterFunc(countdownTick, func() { m.onTickFired(gen) })
	}
	hook := m.OnTick
	m.mu.Unlock()

	if hook != nil {
		hook(remaining)
	}
}

func (m *Monitor) onLogoutFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.forcedLogout(context.Background())
}

func (m *Monitor) forcedLogout(ctx context.Context) {
	m.mu.Lock()
	m.toIdleLocked()
	hook := m.OnForcedLogout
	m.mu.Unlock()

	m.forceOut(ctx)
	if hook != nil {
		hook()
	}
}
