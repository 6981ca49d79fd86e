// Copyright 2026 OpenLease Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package token defines the boundaries to the external ownership ledger and
// payment asset collaborators, plus an in-memory reference ledger used in
// dev mode and tests. The engine never mutates token state directly; every
// movement goes through these interfaces.
package token

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrInsufficientFunds is returned when a holder balance cannot cover
	// a transfer
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotApproved is returned when a delegated transfer exceeds the
	// spender's allowance
	ErrNotApproved = errors.New("transfer exceeds allowance")
)

// Holder pairs an address with its balance in a snapshot
type Holder struct {
	Address string
	Balance uint64
}

// OwnershipLedger is the consumed interface to the fractional-ownership
// token bookkeeping. EnumerateHolders must return a stable snapshot; the
// revenue split depends on it being taken at a single moment.
type OwnershipLedger interface {
	BalanceOf(token, holder string) uint64
	TotalSupply(token string) uint64
	EnumerateHolders(token string) []Holder
	Transfer(token, from, to string, amount uint64) error
	TransferFrom(token, spender, from, to string, amount uint64) error
}

// PaymentAsset is the consumed fungible-token interface used exclusively
// by the escrow ledger. The spender argument on TransferFrom identifies
// the party consuming the allowance.
type PaymentAsset interface {
	BalanceOf(holder string) uint64
	Allowance(owner, spender string) uint64
	Transfer(from, to string, amount uint64) error
	TransferFrom(spender, from, to string, amount uint64) error
}

// Ledger is an in-memory multi-token ledger implementing OwnershipLedger.
// Individual tokens can be bound to the PaymentAsset interface via Asset.
type Ledger struct {
	balances   map[string]map[string]uint64
	allowances map[string]map[string]map[string]uint64
	mu         sync.RWMutex
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[string]map[string]uint64),
		allowances: make(map[string]map[string]map[string]uint64),
	}
}

// Mint creates new units of a token out of thin air. Dev mode and test
// bootstrap only.
func (l *Ledger) Mint(token, to string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[token] == nil {
		l.balances[token] = make(map[string]uint64)
	}
	l.balances[token][to] += amount
}

// Approve sets the allowance a spender may move on behalf of an owner
func (l *Ledger) Approve(token, owner, spender string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[token] == nil {
		l.allowances[token] = make(map[string]map[string]uint64)
	}
	if l.allowances[token][owner] == nil {
		l.allowances[token][owner] = make(map[string]uint64)
	}
	l.allowances[token][owner][spender] = amount
}

func (l *Ledger) BalanceOf(token, holder string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[token][holder]
}

func (l *Ledger) TotalSupply(token string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, balance := range l.balances[token] {
		total += balance
	}
	return total
}

// EnumerateHolders returns all holders with a nonzero balance, sorted by
// address so iteration order is deterministic
func (l *Ledger) EnumerateHolders(token string) []Holder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	holders := make([]Holder, 0, len(l.balances[token]))
	for addr, balance := range l.balances[token] {
		if balance == 0 {
			continue
		}
		holders = append(holders, Holder{Address: addr, Balance: balance})
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Address < holders[j].Address
	})
	return holders
}

func (l *Ledger) Allowance(token, owner, spender string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[token][owner][spender]
}

func (l *Ledger) Transfer(token, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(token, from, to, amount)
}

// TransferFrom moves tokens on behalf of another owner, consuming the
// spender's allowance. The allowance check happens before any balance
// moves, so a failed transfer leaves no partial state.
func (l *Ledger) TransferFrom(
	token, spender, from, to string,
	amount uint64,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if spender != from {
		allowed := l.allowances[token][from][spender]
		if allowed < amount {
			return ErrNotApproved
		}
		if err := l.transfer(token, from, to, amount); err != nil {
			return err
		}
		l.allowances[token][from][spender] = allowed - amount
		return nil
	}
	return l.transfer(token, from, to, amount)
}

func (l *Ledger) transfer(token, from, to string, amount uint64) error {
	balance := l.balances[token][from]
	if balance < amount {
		return ErrInsufficientFunds
	}
	if l.balances[token] == nil {
		l.balances[token] = make(map[string]uint64)
	}
	l.balances[token][from] = balance - amount
	l.balances[token][to] += amount
	return nil
}

// Asset binds a single token id on a Ledger to the PaymentAsset interface
type Asset struct {
	ledger *Ledger
	token  string
}

func (l *Ledger) Asset(token string) *Asset {
	return &Asset{ledger: l, token: token}
}

func (a *Asset) BalanceOf(holder string) uint64 {
	return a.ledger.BalanceOf(a.token, holder)
}

func (a *Asset) Allowance(owner, spender string) uint64 {
	return a.ledger.Allowance(a.token, owner, spender)
}

func (a *Asset) Transfer(from, to string, amount uint64) error {
	return a.ledger.Transfer(a.token, from, to, amount)
}

func (a *Asset) TransferFrom(spender, from, to string, amount uint64) error {
	return a.ledger.TransferFrom(a.token, spender, from, to, amount)
}
