// Package store provides an in-memory Store implementation (tests/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mesu/settlement-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of engine.TxStore
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	accounts    map[engine.AccountID]engine.Account
	investments map[engine.InvestmentID]engine.Investment
	records     map[engine.AccountID][]engine.LedgerRecord
	receipts    map[string]bool

	accountOrder    []engine.AccountID
	investmentOrder []engine.InvestmentID
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[engine.AccountID]engine.Account),
		investments: make(map[engine.InvestmentID]engine.Investment),
		records:     make(map[engine.AccountID][]engine.LedgerRecord),
		receipts:    make(map[string]bool),
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) AppendRecord(_ context.Context, rec engine.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(rec)
}

func (m *Memory) appendLocked(rec engine.LedgerRecord) error {
	if rec.ReceiptNumber != "" && m.receipts[rec.ReceiptNumber] {
		return engine.ErrDuplicateReceipt
	}

	recs := m.records[rec.AccountID]

	// Keep records ordered by effective date; binary search for the slot.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].EffectiveDate.After(rec.EffectiveDate)
	})
	recs = append(recs, engine.LedgerRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	m.records[rec.AccountID] = recs

	if rec.ReceiptNumber != "" {
		m.receipts[rec.ReceiptNumber] = true
	}
	return nil
}

func (m *Memory) ReceiptExists(_ context.Context, receipt string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.receipts[receipt], nil
}

func (m *Memory) RecordsByAccount(_ context.Context, id engine.AccountID) ([]engine.LedgerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordsLocked(id), nil
}

func (m *Memory) recordsLocked(id engine.AccountID) []engine.LedgerRecord {
	out := make([]engine.LedgerRecord, len(m.records[id]))
	copy(out, m.records[id])
	return out
}

func (m *Memory) BalanceByAccount(_ context.Context, id engine.AccountID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(id), nil
}

func (m *Memory) balanceLocked(id engine.AccountID) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range m.records[id] {
		total = total.Add(rec.Signed())
	}
	return total
}

// =============================================================================
// SUBJECT REGISTRY
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[a.ID]; !exists {
		m.accountOrder = append(m.accountOrder, a.ID)
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id engine.AccountID) (*engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id), nil
}

func (m *Memory) getAccountLocked(id engine.AccountID) *engine.Account {
	if a, ok := m.accounts[id]; ok {
		return &a
	}
	return nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.Account, 0, len(m.accountOrder))
	for _, id := range m.accountOrder {
		out = append(out, m.accounts[id])
	}
	return out, nil
}

func (m *Memory) SaveInvestment(_ context.Context, inv engine.Investment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.investments[inv.ID]; !exists {
		m.investmentOrder = append(m.investmentOrder, inv.ID)
	}
	m.investments[inv.ID] = inv
	return nil
}

func (m *Memory) GetInvestment(_ context.Context, id engine.InvestmentID) (*engine.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInvestmentLocked(id), nil
}

func (m *Memory) getInvestmentLocked(id engine.InvestmentID) *engine.Investment {
	if inv, ok := m.investments[id]; ok {
		return &inv
	}
	return nil
}

func (m *Memory) InvestmentsByAccount(_ context.Context, id engine.AccountID) ([]engine.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.investmentsByAccountLocked(id), nil
}

func (m *Memory) investmentsByAccountLocked(id engine.AccountID) []engine.Investment {
	var out []engine.Investment
	for _, invID := range m.investmentOrder {
		if inv := m.investments[invID]; inv.AccountID == id {
			out = append(out, inv)
		}
	}
	return out
}

func (m *Memory) UnsettledInvestments(_ context.Context) ([]engine.Investment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Investment
	for _, invID := range m.investmentOrder {
		if inv := m.investments[invID]; !inv.InterestSettled {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *Memory) MarkSettled(_ context.Context, id engine.InvestmentID, on engine.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markSettledLocked(id, on)
}

func (m *Memory) markSettledLocked(id engine.InvestmentID, on engine.Date) error {
	inv, ok := m.investments[id]
	if !ok {
		return engine.ErrInvestmentNotFound
	}
	if inv.InterestSettled {
		return engine.ErrConcurrentModification
	}
	inv.InterestSettled = true
	inv.InterestSettledDate = &on
	inv.Status = engine.StatusMatured
	m.investments[id] = inv
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback under the store lock
// =============================================================================

// WithTx executes fn atomically. The memory store simulates a transaction
// with a snapshot that is restored if fn errors.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts        map[engine.AccountID]engine.Account
	investments     map[engine.InvestmentID]engine.Investment
	records         map[engine.AccountID][]engine.LedgerRecord
	receipts        map[string]bool
	accountOrder    []engine.AccountID
	investmentOrder []engine.InvestmentID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		accounts:        make(map[engine.AccountID]engine.Account, len(m.accounts)),
		investments:     make(map[engine.InvestmentID]engine.Investment, len(m.investments)),
		records:         make(map[engine.AccountID][]engine.LedgerRecord, len(m.records)),
		receipts:        make(map[string]bool, len(m.receipts)),
		accountOrder:    append([]engine.AccountID{}, m.accountOrder...),
		investmentOrder: append([]engine.InvestmentID{}, m.investmentOrder...),
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.investments {
		s.investments[k] = v
	}
	for k, v := range m.records {
		s.records[k] = append([]engine.LedgerRecord{}, v...)
	}
	for k, v := range m.receipts {
		s.receipts[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.investments = s.investments
	m.records = s.records
	m.receipts = s.receipts
	m.accountOrder = s.accountOrder
	m.investmentOrder = s.investmentOrder
}

// txView operates on the parent's state while the parent lock is held.
type txView struct {
	parent *Memory
}

func (tv *txView) AppendRecord(_ context.Context, rec engine.LedgerRecord) error {
	return tv.parent.appendLocked(rec)
}

func (tv *txView) ReceiptExists(_ context.Context, receipt string) (bool, error) {
	return tv.parent.receipts[receipt], nil
}

func (tv *txView) RecordsByAccount(_ context.Context, id engine.AccountID) ([]engine.LedgerRecord, error) {
	return tv.parent.recordsLocked(id), nil
}

func (tv *txView) BalanceByAccount(_ context.Context, id engine.AccountID) (decimal.Decimal, error) {
	return tv.parent.balanceLocked(id), nil
}

func (tv *txView) SaveAccount(_ context.Context, a engine.Account) error {
	if _, exists := tv.parent.accounts[a.ID]; !exists {
		tv.parent.accountOrder = append(tv.parent.accountOrder, a.ID)
	}
	tv.parent.accounts[a.ID] = a
	return nil
}

func (tv *txView) GetAccount(_ context.Context, id engine.AccountID) (*engine.Account, error) {
	return tv.parent.getAccountLocked(id), nil
}

func (tv *txView) ListAccounts(_ context.Context) ([]engine.Account, error) {
	out := make([]engine.Account, 0, len(tv.parent.accountOrder))
	for _, id := range tv.parent.accountOrder {
		out = append(out, tv.parent.accounts[id])
	}
	return out, nil
}

func (tv *txView) SaveInvestment(_ context.Context, inv engine.Investment) error {
	if _, exists := tv.parent.investments[inv.ID]; !exists {
		tv.parent.investmentOrder = append(tv.parent.investmentOrder, inv.ID)
	}
	tv.parent.investments[inv.ID] = inv
	return nil
}

func (tv *txView) GetInvestment(_ context.Context, id engine.InvestmentID) (*engine.Investment, error) {
	return tv.parent.getInvestmentLocked(id), nil
}

func (tv *txView) InvestmentsByAccount(_ context.Context, id engine.AccountID) ([]engine.Investment, error) {
	return tv.parent.investmentsByAccountLocked(id), nil
}

func (tv *txView) UnsettledInvestments(_ context.Context) ([]engine.Investment, error) {
	var out []engine.Investment
	for _, invID := range tv.parent.investmentOrder {
		if inv := tv.parent.investments[invID]; !inv.InterestSettled {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (tv *txView) MarkSettled(_ context.Context, id engine.InvestmentID, on engine.Date) error {
	return tv.parent.markSettledLocked(id, on)
}
