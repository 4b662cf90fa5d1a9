package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/haulstack/console-gateway/internal/session"
)

type fakeTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves wall-clock time, firing due timers in deadline order. Fired
// callbacks may schedule new timers; those fire too if they fall inside d.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		sort.SliceStable(c.timers, func(i, j int) bool {
			return c.timers[i].deadline.Before(c.timers[j].deadline)
		})
		for _, t := range c.timers {
			if !t.stopped && !t.deadline.After(target) {
				due = t
				break
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.stopped = true
		c.now = due.deadline
		f := due.f
		c.mu.Unlock()
		f()
	}
}

type stubRefresher struct {
	err   error
	calls int
}

func (r *stubRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

func newTestMonitor(t *testing.T, refresher Refresher) (*Monitor, *fakeClock, *session.Store) {
	t.Helper()
	clock := newFakeClock()
	store := session.NewStore()
	store.LoginSuccess(session.User{ID: "1", Name: "Operator"}, "t1", "r1")
	m := New(clock, store, refresher, func(context.Context) { store.Logout() })
	m.Start()
	t.Cleanup(m.Close)
	return m, clock, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAuthenticatedSessionStartsActive(t *testing.T) {
	m, _, _ := newTestMonitor(t, &stubRefresher{})
	if snap := m.Snapshot(); snap.State != StateActive || snap.WarningVisible {
		t.Fatalf("expected active state, got %+v", snap)
	}
}

func TestWarningAfterTwentyFiveMinutes(t *testing.T) {
	m, clock, _ := newTestMonitor(t, &stubRefresher{})

	clock.Advance(24 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateActive {
		t.Fatalf("warning fired early: %+v", snap)
	}

	clock.Advance(1 * time.Minute)
	snap := m.Snapshot()
	if snap.State != StateWarning || !snap.WarningVisible {
		t.Fatalf("expected warning at 25 minutes, got %+v", snap)
	}
	if snap.Remaining != WarningLead {
		t.Fatalf("expected %v remaining, got %v", WarningLead, snap.Remaining)
	}
}

func TestForcedLogoutAfterFullTimeout(t *testing.T) {
	m, clock, store := newTestMonitor(t, &stubRefresher{})
	var forcedOut bool
	m.OnForcedLogout = func() { forcedOut = true }

	clock.Advance(SessionTimeout)
	if store.IsAuthenticated() {
		t.Fatal("session must be cleared after the full timeout")
	}
	if !forcedOut {
		t.Fatal("forced logout hook not invoked")
	}
	if snap := m.Snapshot(); snap.State != StateIdle {
		t.Fatalf("expected idle after forced logout, got %+v", snap)
	}
}

func TestCountdownTicksDown(t *testing.T) {
	m, clock, _ := newTestMonitor(t, &stubRefresher{})

	clock.Advance(25 * time.Minute)
	clock.Advance(90 * time.Second)
	snap := m.Snapshot()
	if snap.State != StateWarning {
		t.Fatalf("expected warning, got %+v", snap)
	}
	want := WarningLead - 90*time.Second
	if snap.Remaining != want {
		t.Fatalf("expected %v remaining, got %v", want, snap.Remaining)
	}
}

func TestActivityReschedulesWhileActive(t *testing.T) {
	m, clock, _ := newTestMonitor(t, &stubRefresher{})

	clock.Advance(20 * time.Minute)
	m.Activity()
	clock.Advance(20 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateActive {
		t.Fatalf("activity should have pushed the warning out, got %+v", snap)
	}
	clock.Advance(5 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateWarning {
		t.Fatalf("expected warning 25 minutes after last activity, got %+v", snap)
	}
}

func TestActivityIsIgnoredWhileWarningShowing(t *testing.T) {
	m, clock, store := newTestMonitor(t, &stubRefresher{})

	clock.Advance(25 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateWarning {
		t.Fatalf("expected warning, got %+v", snap)
	}
	// The warning is sticky: mouse movement must not suppress the logout.
	m.Activity()
	clock.Advance(5 * time.Minute)
	if store.IsAuthenticated() {
		t.Fatal("activity during warning must not cancel the forced logout")
	}
}

func TestStayLoggedInReturnsToActive(t *testing.T) {
	refresher := &stubRefresher{}
	m, clock, store := newTestMonitor(t, refresher)

	clock.Advance(25 * time.Minute)
	if err := m.StayLoggedIn(context.Background()); err != nil {
		t.Fatalf("stay logged in: %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected one refresh, got %d", refresher.calls)
	}
	if snap := m.Snapshot(); snap.State != StateActive || snap.WarningVisible {
		t.Fatalf("expected active after stay, got %+v", snap)
	}
	if !store.IsAuthenticated() {
		t.Fatal("session must survive a successful stay")
	}
	// Fresh schedule: the next warning is a full 25 minutes away.
	clock.Advance(24 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateActive {
		t.Fatalf("timers not rescheduled after stay: %+v", snap)
	}
}

func TestStayLoggedInRefreshFailureForcesLogout(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("refresh rejected")}
	m, clock, store := newTestMonitor(t, refresher)

	clock.Advance(25 * time.Minute)
	if err := m.StayLoggedIn(context.Background()); err == nil {
		t.Fatal("expected refresh error to propagate")
	}
	if store.IsAuthenticated() {
		t.Fatal("failed stay must force the logout")
	}
	if snap := m.Snapshot(); snap.State != StateIdle {
		t.Fatalf("expected idle, got %+v", snap)
	}
}

func TestExplicitLogoutDisarmsTimers(t *testing.T) {
	m, clock, store := newTestMonitor(t, &stubRefresher{})

	store.Logout()
	waitFor(t, "monitor to go idle", func() bool { return m.Snapshot().State == StateIdle })

	// No timer from the dead session may fire later.
	clock.Advance(2 * SessionTimeout)
	if snap := m.Snapshot(); snap.State != StateIdle {
		t.Fatalf("stale timer fired after logout: %+v", snap)
	}
}

func TestReauthenticationRearms(t *testing.T) {
	m, clock, store := newTestMonitor(t, &stubRefresher{})

	store.Logout()
	waitFor(t, "monitor to go idle", func() bool { return m.Snapshot().State == StateIdle })

	store.LoginSuccess(session.User{ID: "2"}, "t2", "r2")
	waitFor(t, "monitor to re-arm", func() bool { return m.Snapshot().State == StateActive })

	clock.Advance(25 * time.Minute)
	if snap := m.Snapshot(); snap.State != StateWarning {
		t.Fatalf("expected warning for the new session, got %+v", snap)
	}
}

func TestStayLoggedInOutsideWarningIsNoop(t *testing.T) {
	refresher := &stubRefresher{}
	m, _, _ := newTestMonitor(t, refresher)
	if err := m.StayLoggedIn(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refresher.calls != 0 {
		t.Fatal("no refresh expected outside the warning state")
	}
}
