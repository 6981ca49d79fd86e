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

// Package escrow implements the generic "hold funds against a pending bid,
// release atomically on resolution" primitive shared by the sale and lease
// workflows. Custody is tracked per scope (one scope per listing, offer, or
// revenue pool) so the conservation invariant can be checked after every
// operation.
package escrow

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/openlease/corral/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CustodyError reports an attempted release exceeding the custody balance
// held for a scope. This is an invariant violation, not a recoverable
// error; the enclosing settlement must abort rather than under-pay.
type CustodyError struct {
	Scope     string
	Payee     string
	Requested uint64
	Available uint64
}

func (e *CustodyError) Error() string {
	return fmt.Sprintf(
		"custody violation for scope %s: requested %d for %s, holding %d",
		e.Scope,
		e.Requested,
		e.Payee,
		e.Available,
	)
}

// Bid is the view of a pending bid the escrow ledger needs for refund
// sweeps. MarkSettled must make subsequent Settled calls return true; a
// bid, once refunded or won, can never be released again.
type Bid interface {
	Bidder() string
	Escrowed() uint64
	Settled() bool
	MarkSettled()
}

type LedgerConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	PaymentAsset token.PaymentAsset
	// Account is the custody address funds are pulled into
	Account string
}

// Ledger holds escrowed funds in a custody account on the payment asset
type Ledger struct {
	asset   token.PaymentAsset
	logger  *slog.Logger
	custody map[string]uint64
	account string
	metrics struct {
		custodyTotal prometheus.Gauge
		escrowsNum   prometheus.Counter
		releasesNum  prometheus.Counter
	}
	mu sync.Mutex
}

func NewLedger(cfg LedgerConfig) *Ledger {
	l := &Ledger{
		asset:   cfg.PaymentAsset,
		account: cfg.Account,
		custody: make(map[string]uint64),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = cfg.Logger
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	l.metrics.custodyTotal = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "corral_escrow_custody_total",
		Help: "total funds currently held in escrow custody",
	})
	l.metrics.escrowsNum = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "corral_escrow_pulls_total",
		Help: "total escrow pulls performed",
	})
	l.metrics.releasesNum = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "corral_escrow_releases_total",
		Help: "total escrow releases performed",
	})
	return l
}

// Account returns the custody address
func (l *Ledger) Account() string {
	return l.account
}

// Escrow pulls amount of the payment asset from payer into custody for the
// given scope. The pull is all or nothing; failures surface the payment
// asset's error with no custody change.
func (l *Ledger) Escrow(scope, payer string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.asset.TransferFrom(l.account, payer, l.account, amount); err != nil {
		return fmt.Errorf("escrow pull from %s: %w", payer, err)
	}
	l.custody[scope] += amount
	l.metrics.custodyTotal.Add(float64(amount))
	l.metrics.escrowsNum.Inc()
	l.logger.Debug(
		"escrowed funds",
		"component", "escrow",
		"scope", scope,
		"payer", payer,
		"amount", amount,
	)
	return nil
}

// Release pays out from custody to payee. A release exceeding the scope's
// custody balance returns a CustodyError and changes nothing.
func (l *Ledger) Release(scope, payee string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release(scope, payee, amount)
}

func (l *Ledger) release(scope, payee string, amount uint64) error {
	held := l.custody[scope]
	if held < amount {
		return &CustodyError{
			Scope:     scope,
			Payee:     payee,
			Requested: amount,
			Available: held,
		}
	}
	if err := l.asset.Transfer(l.account, payee, amount); err != nil {
		return fmt.Errorf("escrow release to %s: %w", payee, err)
	}
	l.custody[scope] = held - amount
	l.metrics.custodyTotal.Sub(float64(amount))
	l.metrics.releasesNum.Inc()
	l.logger.Debug(
		"released funds",
		"component", "escrow",
		"scope", scope,
		"payee", payee,
		"amount", amount,
	)
	return nil
}

// Move reassigns held funds from one scope to another without leaving
// custody. Lease settlement uses this to convert a winning bid's escrow
// into the revenue pool backing holder claims.
func (l *Ledger) Move(fromScope, toScope string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.custody[fromScope]
	if held < amount {
		return &CustodyError{
			Scope:     fromScope,
			Payee:     toScope,
			Requested: amount,
			Available: held,
		}
	}
	l.custody[fromScope] = held - amount
	l.custody[toScope] += amount
	return nil
}

// Custody returns the funds currently held for a scope
func (l *Ledger) Custody(scope string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.custody[scope]
}

// RefundAllExcept releases every unsettled bid other than the winner back
// to its bidder and marks it settled. Refunds are idempotent per bid:
// already-settled bids are skipped. A winnerIdx of -1 refunds everything
// (cancellation sweep).
func (l *Ledger) RefundAllExcept(
	scope string,
	bids []Bid,
	winnerIdx int,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for idx, bid := range bids {
		if idx == winnerIdx || bid.Settled() {
			continue
		}
		if err := l.release(scope, bid.Bidder(), bid.Escrowed()); err != nil {
			return err
		}
		bid.MarkSettled()
	}
	return nil
}
