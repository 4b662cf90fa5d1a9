package session

import (
	"sync"
)

// User is the authenticated console operator as returned by the remote auth
// service. Roles gate access to console route groups.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Phone string   `json:"phone,omitempty"`
	Roles []string `json:"roles"`
}

// Snapshot is an immutable copy of the session state. IsAuthenticated is kept
// in lockstep with User/AccessToken: it is true exactly when both are set.
type Snapshot struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"-"`
	RefreshToken    string `json:"-"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsLoading       bool   `json:"is_loading"`
	Error           string `json:"error,omitempty"`
}

// Store holds the single Session for this gateway process. All writes go
// through the named transitions; no caller mutates fields directly.
type Store struct {
	mu          sync.RWMutex
	user        *User
	accessToken string
	refreshTok  string
	loading     bool
	lastError   string

	subs map[chan Snapshot]struct{}
}

func NewStore() *Store {
	return &Store{subs: make(map[chan Snapshot]struct{})}
}

// LoginStart marks a login attempt in flight and clears any previous error.
func (s *Store) LoginStart() {
	s.mu.Lock()
	s.loading = true
	s.lastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) LoginSuccess(user User, accessToken, refreshToken string) {
	s.mu.Lock()
	u := cloneUser(&user)
	s.user = u
	s.accessToken = accessToken
	s.refreshTok = refreshToken
	s.loading = false
	s.lastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) LoginFailure(message string) {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.refreshTok = ""
	s.loading = false
	s.lastError = message
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Logout clears the session. Calling it on an already-empty store is a no-op
// apart from notifying subscribers.
func (s *Store) Logout() {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.refreshTok = ""
	s.loading = false
	s.lastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) RefreshStart() {
	s.mu.Lock()
	s.loading = true
	s.lastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// RefreshSuccess replaces both tokens. The user record is untouched.
func (s *Store) RefreshSuccess(accessToken, refreshToken string) {
	s.mu.Lock()
	s.accessToken = accessToken
	s.refreshTok = refreshToken
	s.loading = false
	s.lastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// RefreshFailure clears authentication entirely: a session whose refresh was
// rejected is a dead session, not one merely missing newer tokens.
func (s *Store) RefreshFailure(message string) {
	s.mu.Lock()
	s.user = nil
	s.accessToken = ""
	s.refreshTok = ""
	s.loading = false
	s.lastError = message
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// RequestAborted ends an in-flight login/refresh without a verdict, for
// transport failures where no response arrived. The session itself is left
// alone: an unreachable auth service must not invalidate a valid session.
func (s *Store) RequestAborted() {
	s.mu.Lock()
	s.loading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// ProfileUpdate shallow-merges the non-zero fields of partial into the current
// user. No-op when unauthenticated.
func (s *Store) ProfileUpdate(partial User) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	if partial.Name != "" {
		s.user.Name = partial.Name
	}
	if partial.Email != "" {
		s.user.Email = partial.Email
	}
	if partial.Phone != "" {
		s.user.Phone = partial.Phone
	}
	if partial.Roles != nil {
		s.user.Roles = append([]string(nil), partial.Roles...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.accessToken != ""
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshTok
}

// HasAnyRole reports whether the current user holds at least one of the
// required roles. An empty requirement is always satisfied.
func (s *Store) HasAnyRole(required ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(required) == 0 {
		return true
	}
	if s.user == nil {
		return false
	}
	return (&Snapshot{User: s.user}).hasAnyRole(required)
}

// Subscribe registers ch to receive every committed snapshot. Sends are
// non-blocking; a slow subscriber misses intermediate states, never blocks a
// transition.
func (s *Store) Subscribe(ch chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ch] = struct{}{}
}

func (s *Store) Unsubscribe(ch chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, ch)
}

func (s *Store) publish(snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		User:            cloneUser(s.user),
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshTok,
		IsAuthenticated: s.user != nil && s.accessToken != "",
		IsLoading:       s.loading,
		Error:           s.lastError,
	}
}

// HasAnyRole on a snapshot mirrors Store.HasAnyRole for callers holding a copy.
func (snap Snapshot) HasAnyRole(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if snap.User == nil {
		return false
	}
	return snap.hasAnyRole(required)
}

func (snap *Snapshot) hasAnyRole(required []string) bool {
	held := make(map[string]struct{}, len(snap.User.Roles))
	for _, r := range snap.User.Roles {
		held[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := held[r]; ok {
			return true
		}
	}
	return false
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}
