// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/openmuni/billdesk/auth"
	"github.com/openmuni/billdesk/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps residents and bills in maps keyed by address. WithTx takes
// a snapshot and restores it when the closure fails, matching the
// all-or-nothing contract of the SQLite store. It also carries an admin
// table so it can back the authenticator in tests.
type Memory struct {
	mu        sync.RWMutex
	residents map[billing.Address]billing.Resident
	bills     map[billing.Address]billing.Bill
	admins    map[string]auth.Admin
	inTx      bool
}

var (
	_ billing.Store   = (*Memory)(nil)
	_ auth.AdminStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		residents: make(map[billing.Address]billing.Resident),
		bills:     make(map[billing.Address]billing.Bill),
		admins:    make(map[string]auth.Admin),
	}
}

func (m *Memory) FindByAddress(_ context.Context, address billing.Address) (*billing.Resident, error) {
	m.rlock()
	defer m.runlock()

	r, ok := m.residents[address]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) FindByUID(_ context.Context, uid string) (*billing.Resident, error) {
	m.rlock()
	defer m.runlock()

	if uid == "" {
		return nil, nil
	}
	for _, r := range m.residents {
		if r.UID == uid {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpsertResident(_ context.Context, r billing.Resident) error {
	m.lock()
	defer m.unlock()

	if r.UID != "" {
		for addr, other := range m.residents {
			if other.UID == r.UID && addr != r.Address {
				return &billing.UIDConflictError{UID: r.UID, Requested: r.Address, ClaimedBy: addr}
			}
		}
	}
	m.residents[r.Address] = r
	return nil
}

func (m *Memory) FindBill(_ context.Context, address billing.Address) (*billing.Bill, error) {
	m.rlock()
	defer m.runlock()

	b, ok := m.bills[address]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ReplaceBill(_ context.Context, bill billing.Bill) error {
	m.lock()
	defer m.unlock()

	delete(m.bills, bill.Address)
	if bill.Amount.IsPositive() {
		m.bills[bill.Address] = bill
	}
	return nil
}

func (m *Memory) ListAllWithResidents(_ context.Context) ([]billing.ResidentBill, error) {
	m.rlock()
	defer m.runlock()

	addrs := make([]billing.Address, 0, len(m.residents))
	for addr := range m.residents {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	result := make([]billing.ResidentBill, 0, len(addrs))
	for _, addr := range addrs {
		rb := billing.ResidentBill{Resident: m.residents[addr]}
		if b, ok := m.bills[addr]; ok {
			b := b
			rb.Bill = &b
		}
		result = append(result, rb)
	}
	return result, nil
}

// WithTx snapshots both maps, runs fn against the store itself, and
// restores the snapshot if fn fails. Single-writer only, like the SQLite
// store's mutex.
func (m *Memory) WithTx(_ context.Context, fn func(store billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	residents := make(map[billing.Address]billing.Resident, len(m.residents))
	for k, v := range m.residents {
		residents[k] = v
	}
	bills := make(map[billing.Address]billing.Bill, len(m.bills))
	for k, v := range m.bills {
		bills[k] = v
	}

	m.inTx = true
	err := fn(m)
	m.inTx = false

	if err != nil {
		m.residents = residents
		m.bills = bills
		return err
	}
	return nil
}

// =============================================================================
// ADMIN STORE
// =============================================================================

// Admin accounts sit outside the billing transaction snapshot: WithTx
// covers residents and bills only, same as the SQLite store's closure.

func (m *Memory) GetAdminByUsername(_ context.Context, username string) (*auth.Admin, error) {
	m.rlock()
	defer m.runlock()

	a, ok := m.admins[username]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) SaveAdmin(_ context.Context, a auth.Admin) error {
	m.lock()
	defer m.unlock()

	if _, exists := m.admins[a.Username]; exists {
		return auth.ErrUsernameTaken
	}
	m.admins[a.Username] = a
	return nil
}

func (m *Memory) CountAdmins(_ context.Context) (int, error) {
	m.rlock()
	defer m.runlock()
	return len(m.admins), nil
}

// The store is used reentrantly inside WithTx, which already holds the
// mutex; lock helpers skip locking in that case.
func (m *Memory) lock() {
	if !m.inTx {
		m.mu.Lock()
	}
}

func (m *Memory) unlock() {
	if !m.inTx {
		m.mu.Unlock()
	}
}

func (m *Memory) rlock() {
	if !m.inTx {
		m.mu.RLock()
	}
}

func (m *Memory) runlock() {
	if !m.inTx {
		m.mu.RUnlock()
	}
}
