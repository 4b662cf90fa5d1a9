// Package vault persists the remembered session between gateway restarts.
// Only the sealed refresh token is stored; access tokens never touch disk.
package vault

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoSession = errors.New("no persisted session")

// Record is the rehydration payload for one terminal. The refresh token is
// sealed by security.Sealer before it gets here.
type Record struct {
	TerminalID         string    `json:"terminal_id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Roles              []string  `json:"roles"`
	SealedRefreshToken string    `json:"sealed_refresh_token"`
	SavedAt            time.Time `json:"saved_at"`
}

type Vault interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, terminalID string) (*Record, error)
	Delete(ctx context.Context, terminalID string) error
}

type MemoryVault struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{records: make(map[string]Record)}
}

func (v *MemoryVault) Put(_ context.Context, rec *Record) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records[rec.TerminalID] = *rec
	return nil
}

func (v *MemoryVault) Get(_ context.Context, terminalID string) (*Record, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rec, ok := v.records[terminalID]
	if !ok {
		return nil, ErrNoSession
	}
	cp := rec
	cp.Roles = append([]string(nil), rec.Roles...)
	return &cp, nil
}

func (v *MemoryVault) Delete(_ context.Context, terminalID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.records, terminalID)
	return nil
}
