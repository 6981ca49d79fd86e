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

// Package revenue splits settled lease payments proportionally among the
// asset token's holders at the moment of settlement and exposes a
// pull-based claim primitive. The ownership snapshot is taken at
// distribution time, not at offer-posting or bid-placing time; transfers
// after a bid is placed still affect the eventual split.
package revenue

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/openlease/corral/database"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClaimScope is the escrow scope backing all accrued holder claims and
// undistributed dust
const ClaimScope = "revenue"

var (
	// ErrNoClaims is returned when the caller has no claimable balance
	ErrNoClaims = errors.New("no claimable revenue")
	// ErrNoHolders is returned when a distribution targets a token with
	// no holders; the enclosing settlement must abort
	ErrNoHolders = errors.New("asset token has no holders")
)

type DistributorConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Escrow       *escrow.Ledger
	Ownership    token.OwnershipLedger
	// Database persists claim balances; nil disables persistence
	Database *database.Database
}

// Distributor tracks per-holder revenue claims. Claim balances accrue
// across distribution rounds until withdrawn; the rounding remainder of
// each round stays in escrow custody as dust and is never distributed.
type Distributor struct {
	logger    *slog.Logger
	eventBus  *event.EventBus
	escrow    *escrow.Ledger
	ownership token.OwnershipLedger
	db        *database.Database
	claims    map[string]uint64
	rounds    map[string]uint64
	dust      map[string]uint64
	metrics   struct {
		distributionsNum prometheus.Counter
		claimsNum        prometheus.Counter
		dustTotal        prometheus.Counter
		claimableTotal   prometheus.Gauge
	}
	mu sync.Mutex
}

func NewDistributor(cfg DistributorConfig) *Distributor {
	d := &Distributor{
		eventBus:  cfg.EventBus,
		escrow:    cfg.Escrow,
		ownership: cfg.Ownership,
		db:        cfg.Database,
		claims:    make(map[string]uint64),
		rounds:    make(map[string]uint64),
		dust:      make(map[string]uint64),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		d.logger = cfg.Logger
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	d.metrics.distributionsNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_revenue_distributions_total",
			Help: "total revenue distribution rounds",
		},
	)
	d.metrics.claimsNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_revenue_claims_total",
			Help: "total revenue claims paid out",
		},
	)
	d.metrics.dustTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_revenue_dust_total",
			Help: "total rounding dust left unclaimed in escrow",
		},
	)
	d.metrics.claimableTotal = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_revenue_claimable_total",
			Help: "current total of unclaimed revenue",
		},
	)
	return d
}

// Distribute snapshots the token's holders right now and credits each one
// floor(totalAmount * balance / totalSupply). The remainder is at most
// holderCount-1 and stays in escrow as dust. Funds for totalAmount must
// already sit in the ClaimScope escrow custody.
func (d *Distributor) Distribute(assetToken string, totalAmount uint64) error {
	snapshot := d.ownership.EnumerateHolders(assetToken)
	if len(snapshot) == 0 {
		return ErrNoHolders
	}
	// Supply is summed from the same snapshot the shares are computed
	// from, so shares can never exceed totalAmount
	var totalSupply uint64
	for _, holder := range snapshot {
		totalSupply += holder.Balance
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var distributed uint64
	bigTotal := new(big.Int).SetUint64(totalAmount)
	bigSupply := new(big.Int).SetUint64(totalSupply)
	for _, holder := range snapshot {
		share := new(big.Int).SetUint64(holder.Balance)
		share.Mul(share, bigTotal)
		share.Div(share, bigSupply)
		amount := share.Uint64()
		if amount == 0 {
			continue
		}
		d.claims[holder.Address] += amount
		distributed += amount
		if d.db != nil {
			if err := d.db.SaveRevenueClaim(
				holder.Address,
				d.claims[holder.Address],
			); err != nil {
				d.logger.Error(
					"failed to persist revenue claim",
					"component", "revenue",
					"holder", holder.Address,
					"error", err,
				)
			}
		}
	}
	dustAmount := totalAmount - distributed
	d.dust[assetToken] += dustAmount
	d.rounds[assetToken]++
	round := d.rounds[assetToken]
	d.metrics.distributionsNum.Inc()
	d.metrics.dustTotal.Add(float64(dustAmount))
	d.metrics.claimableTotal.Add(float64(distributed))
	d.logger.Info(
		"distributed revenue",
		"component", "revenue",
		"asset_token", assetToken,
		"round", round,
		"total_amount", totalAmount,
		"dust", dustAmount,
		"holders", len(snapshot),
	)
	d.eventBus.Publish(
		event.RevenueDistributedEventType,
		event.RevenueDistributedEvent{
			AssetToken:  assetToken,
			Round:       round,
			TotalAmount: totalAmount,
			Dust:        dustAmount,
			HolderCount: len(snapshot),
		},
	)
	return nil
}

// Claim zeroes the caller's accrued balance and releases it from escrow.
// Safe to call repeatedly; a call with nothing claimable fails with
// ErrNoClaims and pays nothing.
func (d *Distributor) Claim(caller string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	amount := d.claims[caller]
	if amount == 0 {
		return 0, ErrNoClaims
	}
	if err := d.escrow.Release(ClaimScope, caller, amount); err != nil {
		return 0, err
	}
	d.claims[caller] = 0
	if d.db != nil {
		if err := d.db.SaveRevenueClaim(caller, 0); err != nil {
			d.logger.Error(
				"failed to persist claim withdrawal",
				"component", "revenue",
				"holder", caller,
				"error", err,
			)
		}
	}
	d.metrics.claimsNum.Inc()
	d.metrics.claimableTotal.Sub(float64(amount))
	d.logger.Info(
		"claimed revenue",
		"component", "revenue",
		"holder", caller,
		"amount", amount,
	)
	d.eventBus.Publish(
		event.RevenueClaimedEventType,
		event.RevenueClaimedEvent{
			Holder: caller,
			Amount: amount,
		},
	)
	return amount, nil
}

// Claimable returns a holder's current claimable balance
func (d *Distributor) Claimable(holder string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claims[holder]
}

// Dust returns the accumulated undistributed remainder for a token
func (d *Distributor) Dust(assetToken string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dust[assetToken]
}

// Round returns the number of completed distribution rounds for a token
func (d *Distributor) Round(assetToken string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rounds[assetToken]
}
