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

// Package corral composes the agreement-formation and settlement engine:
// the dual-signature protocol, the agreement mint, the escrow ledger, the
// marketplace state machine, and proportional revenue distribution.
package corral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openlease/corral/agreement"
	"github.com/openlease/corral/database"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/market"
	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/revenue"
	"github.com/openlease/corral/signing"
	"github.com/openlease/corral/token"
)

type Engine struct {
	eventBus      *event.EventBus
	eventLog      *event.Log
	db            *database.Database
	escrow        *escrow.Ledger
	mint          *agreement.Mint
	market        *market.Market
	revenue       *revenue.Distributor
	protocol      *signing.Protocol
	devLedger     *token.Ledger
	devRegistry   *registry.MemRegistry
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Engine, error) {
	e := &Engine{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	if cfg.isDevMode() {
		// Dev mode runs standalone against in-memory collaborators
		e.devLedger = token.NewLedger()
		e.devRegistry = registry.NewMemRegistry()
		e.config.registry = e.devRegistry
		e.config.ownership = e.devLedger
		e.config.payment = e.devLedger.Asset(e.config.settlementAsset)
	}
	if err := e.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return e, nil
}

func (e *Engine) Run() error {
	// Configure tracing
	if e.config.tracing {
		if err := e.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:      e.config.dataDir,
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		Tracing:      e.config.tracing,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db
	// The event log captures every published fact in sequence order and
	// persists it through the metadata store
	e.eventLog = event.NewLog(e.eventBus, e.db, e.config.logger)
	e.protocol = signing.NewProtocol(e.config.signingDomain)
	e.escrow = escrow.NewLedger(escrow.LedgerConfig{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		PaymentAsset: e.config.payment,
		Account:      e.config.escrowAccount,
	})
	e.mint = agreement.NewMint(agreement.MintConfig{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		EventBus:     e.eventBus,
		Database:     e.db,
		Registry:     e.config.registry,
		Protocol:     e.protocol,
	})
	e.revenue = revenue.NewDistributor(revenue.DistributorConfig{
		Logger:       e.config.logger,
		PromRegistry: e.config.promRegistry,
		EventBus:     e.eventBus,
		Escrow:       e.escrow,
		Ownership:    e.config.ownership,
		Database:     e.db,
	})
	e.market = market.NewMarket(market.MarketConfig{
		Logger:          e.config.logger,
		PromRegistry:    e.config.promRegistry,
		EventBus:        e.eventBus,
		Database:        e.db,
		Escrow:          e.escrow,
		Mint:            e.mint,
		Revenue:         e.revenue,
		Ownership:       e.config.ownership,
		Registry:        e.config.registry,
		SettlementAsset: e.config.settlementAsset,
	})
	e.config.logger.Info(
		"settlement engine started",
		"component", "engine",
		"signing_domain", e.config.signingDomain,
		"settlement_asset", e.config.settlementAsset,
		"dev_mode", e.config.isDevMode(),
	)

	// Wait for shutdown signal
	<-e.done
	return nil
}

func (e *Engine) Stop() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	e.config.logger.Debug("starting graceful shutdown")

	// Stop capturing events before tearing down the bus so the log drains
	// completely
	if e.eventLog != nil {
		e.eventLog.Close()
	}

	if e.eventBus != nil {
		e.eventBus.Stop()
	}

	// Call registered shutdown functions
	for _, fn := range e.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	e.shutdownFuncs = nil

	if e.db != nil {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	e.config.logger.Debug("graceful shutdown complete")
	close(e.done)
	return err
}

// Market returns the marketplace matching engine
func (e *Engine) Market() *market.Market {
	return e.market
}

// Mint returns the agreement mint
func (e *Engine) Mint() *agreement.Mint {
	return e.mint
}

// Revenue returns the revenue distributor
func (e *Engine) Revenue() *revenue.Distributor {
	return e.revenue
}

// Escrow returns the escrow ledger
func (e *Engine) Escrow() *escrow.Ledger {
	return e.escrow
}

// Protocol returns the signing protocol bound to the configured domain, for
// off-engine signer tooling
func (e *Engine) Protocol() *signing.Protocol {
	return e.protocol
}

// EventBus returns the engine's event bus
func (e *Engine) EventBus() *event.EventBus {
	return e.eventBus
}

// EventLog returns the ordered, replayable fact stream
func (e *Engine) EventLog() *event.Log {
	return e.eventLog
}

// DevLedger returns the in-memory token ledger in dev mode, nil otherwise.
// Dev tooling uses it to mint balances and register approvals.
func (e *Engine) DevLedger() *token.Ledger {
	return e.devLedger
}

// DevRegistry returns the in-memory asset registry in dev mode, nil
// otherwise
func (e *Engine) DevRegistry() *registry.MemRegistry {
	return e.devRegistry
}
