// Package store provides in-memory implementations of loyalty.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/notify"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	customers     map[loyalty.CustomerID]loyalty.Customer
	order         []loyalty.CustomerID
	ledgers       map[loyalty.CustomerID]loyalty.Ledger
	events        map[loyalty.CustomerID][]loyalty.LedgerEvent
	notifications []notify.Notification
	dedupe        map[string]bool

	// FailNext, when set, is returned by the next write. Tests use it to
	// simulate a store outage mid-transaction.
	FailNext error
}

func NewMemory() *Memory {
	return &Memory{
		customers: make(map[loyalty.CustomerID]loyalty.Customer),
		ledgers:   make(map[loyalty.CustomerID]loyalty.Ledger),
		events:    make(map[loyalty.CustomerID][]loyalty.LedgerEvent),
		dedupe:    make(map[string]bool),
	}
}

func (m *Memory) GetCustomer(_ context.Context, id loyalty.CustomerID) (*loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCustomerLocked(id)
}

func (m *Memory) getCustomerLocked(id loyalty.CustomerID) (*loyalty.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, loyalty.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *Memory) FindCustomerByEmail(_ context.Context, email string) (*loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByEmailLocked(email), nil
}

func (m *Memory) findByEmailLocked(email string) *loyalty.Customer {
	for _, c := range m.customers {
		if strings.EqualFold(c.Email, email) {
			found := c
			return &found
		}
	}
	return nil
}

func (m *Memory) SaveCustomer(_ context.Context, c loyalty.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCustomerLocked(c)
}

func (m *Memory) saveCustomerLocked(c loyalty.Customer) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, exists := m.customers[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]loyalty.Customer, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.customers[id])
	}
	return result, nil
}

func (m *Memory) ListBirthdays(_ context.Context, d loyalty.DayMonth) ([]loyalty.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []loyalty.Customer
	for _, id := range m.order {
		c := m.customers[id]
		if c.DOB != nil && *c.DOB == d {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *Memory) GetLedger(_ context.Context, id loyalty.CustomerID) (*loyalty.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLedgerLocked(id), nil
}

func (m *Memory) getLedgerLocked(id loyalty.CustomerID) *loyalty.Ledger {
	l, ok := m.ledgers[id]
	if !ok {
		return nil
	}
	out := l.Clone()
	return &out
}

func (m *Memory) SaveLedger(_ context.Context, l loyalty.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLedgerLocked(l)
}

func (m *Memory) saveLedgerLocked(l loyalty.Ledger) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	current, exists := m.ledgers[l.CustomerID]
	switch {
	case l.Version == 0 && exists:
		return loyalty.ErrConcurrentModification
	case l.Version != 0 && (!exists || current.Version != l.Version):
		return loyalty.ErrConcurrentModification
	}
	stored := l.Clone()
	stored.Version = l.Version + 1
	m.ledgers[l.CustomerID] = stored
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, ev loyalty.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEventLocked(ev)
}

func (m *Memory) appendEventLocked(ev loyalty.LedgerEvent) error {
	if err := m.takeFailure(); err != nil {
		return err
	}
	evs := m.events[ev.CustomerID]

	// Keep history ordered by time; equal times keep insertion order.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].At.After(ev.At)
	})
	evs = append(evs, loyalty.LedgerEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[ev.CustomerID] = evs
	return nil
}

func (m *Memory) ListEvents(_ context.Context, id loyalty.CustomerID) ([]loyalty.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]loyalty.LedgerEvent, len(m.events[id]))
	copy(result, m.events[id])
	return result, nil
}

// SaveNotification implements notify.Sink.
func (m *Memory) SaveNotification(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.DedupeKey != "" {
		if m.dedupe[n.DedupeKey] {
			return notify.ErrDuplicate
		}
		m.dedupe[n.DedupeKey] = true
	}
	m.notifications = append(m.notifications, n)
	return nil
}

// ListNotifications implements notify.Sink. Newest first.
func (m *Memory) ListNotifications(_ context.Context, customerID string, limit int) ([]notify.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []notify.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].CustomerID != customerID {
			continue
		}
		result = append(result, m.notifications[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Reset deletes all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = make(map[loyalty.CustomerID]loyalty.Customer)
	m.order = nil
	m.ledgers = make(map[loyalty.CustomerID]loyalty.Ledger)
	m.events = make(map[loyalty.CustomerID][]loyalty.LedgerEvent)
	m.notifications = nil
	m.dedupe = make(map[string]bool)
	return nil
}

func (m *Memory) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Holding the write lock for the whole call serializes transactions.
func (tm *TxMemory) WithTx(_ context.Context, fn func(loyalty.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	customers := make(map[loyalty.CustomerID]loyalty.Customer, len(tm.customers))
	for k, v := range tm.customers {
		customers[k] = v
	}
	ledgers := make(map[loyalty.CustomerID]loyalty.Ledger, len(tm.ledgers))
	for k, v := range tm.ledgers {
		ledgers[k] = v.Clone()
	}
	events := make(map[loyalty.CustomerID][]loyalty.LedgerEvent, len(tm.events))
	for k, v := range tm.events {
		events[k] = append([]loyalty.LedgerEvent{}, v...)
	}
	return memorySnapshot{
		customers: customers,
		order:     append([]loyalty.CustomerID{}, tm.order...),
		ledgers:   ledgers,
		events:    events,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.customers = s.customers
	tm.order = s.order
	tm.ledgers = s.ledgers
	tm.events = s.events
}

type memorySnapshot struct {
	customers map[loyalty.CustomerID]loyalty.Customer
	order     []loyalty.CustomerID
	ledgers   map[loyalty.CustomerID]loyalty.Ledger
	events    map[loyalty.CustomerID][]loyalty.LedgerEvent
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it uses the *Locked helpers directly.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetCustomer(_ context.Context, id loyalty.CustomerID) (*loyalty.Customer, error) {
	return tv.parent.getCustomerLocked(id)
}

func (tv *txMemoryView) FindCustomerByEmail(_ context.Context, email string) (*loyalty.Customer, error) {
	return tv.parent.findByEmailLocked(email), nil
}

func (tv *txMemoryView) SaveCustomer(_ context.Context, c loyalty.Customer) error {
	return tv.parent.saveCustomerLocked(c)
}

func (tv *txMemoryView) ListCustomers(_ context.Context) ([]loyalty.Customer, error) {
	result := make([]loyalty.Customer, 0, len(tv.parent.order))
	for _, id := range tv.parent.order {
		result = append(result, tv.parent.customers[id])
	}
	return result, nil
}

func (tv *txMemoryView) ListBirthdays(_ context.Context, d loyalty.DayMonth) ([]loyalty.Customer, error) {
	var result []loyalty.Customer
	for _, id := range tv.parent.order {
		c := tv.parent.customers[id]
		if c.DOB != nil && *c.DOB == d {
			result = append(result, c)
		}
	}
	return result, nil
}

func (tv *txMemoryView) GetLedger(_ context.Context, id loyalty.CustomerID) (*loyalty.Ledger, error) {
	return tv.parent.getLedgerLocked(id), nil
}

func (tv *txMemoryView) SaveLedger(_ context.Context, l loyalty.Ledger) error {
	return tv.parent.saveLedgerLocked(l)
}

func (tv *txMemoryView) AppendEvent(_ context.Context, ev loyalty.LedgerEvent) error {
	return tv.parent.appendEventLocked(ev)
}

func (tv *txMemoryView) ListEvents(_ context.Context, id loyalty.CustomerID) ([]loyalty.LedgerEvent, error) {
	return append([]loyalty.LedgerEvent{}, tv.parent.events[id]...), nil
}
