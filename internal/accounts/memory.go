package accounts

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryProvider is an in-process provider for tests and local
// development.
type MemoryProvider struct {
	mu          sync.Mutex
	byID        map[string]*Account
	lastLoginAt map[string]time.Time
	lastLoginIP map[string]string
}

func NewMemoryProvider(accounts ...*Account) *MemoryProvider {
	p := &MemoryProvider{
		byID:        make(map[string]*Account),
		lastLoginAt: make(map[string]time.Time),
		lastLoginIP: make(map[string]string),
	}
	for _, a := range accounts {
		clone := *a
		p.byID[a.ID] = &clone
	}
	return p
}

func (p *MemoryProvider) Put(a *Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *a
	p.byID[a.ID] = &clone
}

func (p *MemoryProvider) FindByEmail(_ context.Context, tenantID, email string) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.byID {
		if !strings.EqualFold(a.Email, email) {
			continue
		}
		if tenantID != "" && a.TenantID != tenantID {
			continue
		}
		clone := *a
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (p *MemoryProvider) FindByID(_ context.Context, id string) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (p *MemoryProvider) RecordLogin(_ context.Context, id string, at time.Time, ip string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastLoginAt[id] = at
	p.lastLoginIP[id] = ip
	return nil
}

// LastLogin reports the recorded login metadata. Test use.
func (p *MemoryProvider) LastLogin(id string) (time.Time, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLoginAt[id], p.lastLoginIP[id]
}
