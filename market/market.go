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

// Package market implements the public marketplace state machine. It
// composes the escrow ledger, the signing protocol, the agreement mint,
// and the ownership ledger to run two workflows: outright token sales and
// dual-signed lease agreements. Every listing and offer is a small state
// machine, Open to Resolved or Cancelled, both terminal.
package market

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/openlease/corral/agreement"
	"github.com/openlease/corral/database"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/revenue"
	"github.com/openlease/corral/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sequence counter names for listing and offer id allocation
const (
	SaleSequenceName       = "sale_listing"
	LeaseOfferSequenceName = "lease_offer"
)

// Entry status values. Resolved and Cancelled are terminal; no operation
// ever transitions out of them.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

var (
	// ErrInactive is returned when an operation targets a resolved or
	// cancelled entry
	ErrInactive = errors.New("listing or offer is no longer active")
	// ErrInvalidBidIndex is returned when an accept references an
	// out-of-range or already-settled bid
	ErrInvalidBidIndex = errors.New("invalid or settled bid index")
	// ErrNotSeller is returned when a sale operation reserved for the
	// seller is called by anyone else
	ErrNotSeller = errors.New("caller is not the seller")
	// ErrNotLessor is returned when a lease operation reserved for the
	// lessor is called by anyone else
	ErrNotLessor = errors.New("caller is not the lessor")
	// ErrWrongPaymentAsset is returned when an offer names a payment asset
	// other than the configured settlement asset
	ErrWrongPaymentAsset = errors.New("proposal payment asset does not match settlement asset")
	// ErrZeroAmount is returned for zero-amount listings and bids
	ErrZeroAmount = errors.New("amount must be greater than zero")
	// ErrBidTooLarge is returned when a sale bid exceeds the listed amount
	ErrBidTooLarge = errors.New("bid amount exceeds listed amount")
	// ErrAmountOverflow is returned when a bid's total escrow value does
	// not fit in 64 bits
	ErrAmountOverflow = errors.New("bid value overflows")
	// ErrEntryNotFound is returned when a listing or offer id is unknown
	ErrEntryNotFound = errors.New("no such listing or offer")
)

type MarketConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Database     *database.Database
	Escrow       *escrow.Ledger
	Mint         *agreement.Mint
	Revenue      *revenue.Distributor
	Ownership    token.OwnershipLedger
	Registry     registry.Registry
	// SettlementAsset is the only payment asset lease offers may name
	SettlementAsset string
}

// Market is the marketplace matching engine. Listings and offers are
// authoritative in memory; each carries its own lock so operations on
// different entries run concurrently while operations on the same entry
// are strictly serialized. Persistence is write-behind: row updates are
// logged on failure, never fail the operation.
type Market struct {
	logger          *slog.Logger
	eventBus        *event.EventBus
	db              *database.Database
	escrow          *escrow.Ledger
	mint            *agreement.Mint
	revenue         *revenue.Distributor
	ownership       token.OwnershipLedger
	registry        registry.Registry
	settlementAsset string
	sales           map[uint64]*saleListing
	offers          map[uint64]*leaseOffer
	metrics         struct {
		salesPosted      prometheus.Counter
		saleBidsPlaced   prometheus.Counter
		saleSettlements  prometheus.Counter
		offersPosted     prometheus.Counter
		leaseBidsPlaced  prometheus.Counter
		leaseSettlements prometheus.Counter
		activeSales      prometheus.Gauge
		activeOffers     prometheus.Gauge
	}
	mu sync.RWMutex
}

func NewMarket(cfg MarketConfig) *Market {
	m := &Market{
		eventBus:        cfg.EventBus,
		db:              cfg.Database,
		escrow:          cfg.Escrow,
		mint:            cfg.Mint,
		revenue:         cfg.Revenue,
		ownership:       cfg.Ownership,
		registry:        cfg.Registry,
		settlementAsset: cfg.SettlementAsset,
		sales:           make(map[uint64]*saleListing),
		offers:          make(map[uint64]*leaseOffer),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = cfg.Logger
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	m.metrics.salesPosted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_sales_posted_total",
			Help: "total sale listings posted",
		},
	)
	m.metrics.saleBidsPlaced = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_sale_bids_total",
			Help: "total sale bids placed",
		},
	)
	m.metrics.saleSettlements = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_sale_settlements_total",
			Help: "total sale settlements",
		},
	)
	m.metrics.offersPosted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_lease_offers_posted_total",
			Help: "total lease offers posted",
		},
	)
	m.metrics.leaseBidsPlaced = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_lease_bids_total",
			Help: "total lease bids placed",
		},
	)
	m.metrics.leaseSettlements = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_market_lease_settlements_total",
			Help: "total lease settlements",
		},
	)
	m.metrics.activeSales = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_market_active_sales",
			Help: "sale listings currently open",
		},
	)
	m.metrics.activeOffers = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "corral_market_active_lease_offers",
			Help: "lease offers currently open",
		},
	)
	return m
}

func saleScope(listingId uint64) string {
	return fmt.Sprintf("sale/%d", listingId)
}

func leaseScope(offerId uint64) string {
	return fmt.Sprintf("lease/%d", offerId)
}

func (m *Market) saleById(listingId uint64) (*saleListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	listing, ok := m.sales[listingId]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return listing, nil
}

func (m *Market) offerById(offerId uint64) (*leaseOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offer, ok := m.offers[offerId]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return offer, nil
}
