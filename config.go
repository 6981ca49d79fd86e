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

package corral

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/signing"
	"github.com/openlease/corral/token"
	"github.com/prometheus/client_golang/prometheus"
)

// runMode constants for operational mode configuration
const (
	runModeServe = "serve"
	runModeDev   = "dev"
)

// DefaultEscrowAccount is the custody address escrowed funds are pulled
// into when no other account is configured
const DefaultEscrowAccount = "corral-escrow"

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	registry        registry.Registry
	ownership       token.OwnershipLedger
	payment         token.PaymentAsset
	dataDir         string
	signingDomain   string
	settlementAsset string
	escrowAccount   string
	runMode         string
	shutdownTimeout time.Duration
	tracing         bool
	tracingStdout   bool
}

// isDevMode returns true if running in development mode
func (c *Config) isDevMode() bool {
	return c.runMode == runModeDev
}

func (e *Engine) configValidate() error {
	if e.config.settlementAsset == "" {
		return errors.New("no settlement asset configured")
	}
	if e.config.isDevMode() {
		return nil
	}
	// Outside dev mode the external collaborators must be supplied
	if e.config.registry == nil {
		return errors.New("no asset registry configured")
	}
	if e.config.ownership == nil {
		return errors.New("no ownership ledger configured")
	}
	if e.config.payment == nil {
		return errors.New("no payment asset configured")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new corral config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		signingDomain: signing.DefaultDomain,
		escrowAccount: DefaultEscrowAccount,
		runMode:       runModeServe,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithRegistry specifies the external asset registry collaborator
func WithRegistry(reg registry.Registry) ConfigOptionFunc {
	return func(c *Config) {
		c.registry = reg
	}
}

// WithOwnershipLedger specifies the external fractional-ownership token ledger
func WithOwnershipLedger(ledger token.OwnershipLedger) ConfigOptionFunc {
	return func(c *Config) {
		c.ownership = ledger
	}
}

// WithPaymentAsset specifies the fungible payment asset used for escrow
func WithPaymentAsset(asset token.PaymentAsset) ConfigOptionFunc {
	return func(c *Config) {
		c.payment = asset
	}
}

// WithSettlementAsset specifies the payment asset identifier lease offers must name
func WithSettlementAsset(asset string) ConfigOptionFunc {
	return func(c *Config) {
		c.settlementAsset = asset
	}
}

// WithSigningDomain specifies the deployment-bound domain separator mixed into
// every proposal digest. Signatures computed against one domain never verify
// against another.
func WithSigningDomain(domain string) ConfigOptionFunc {
	return func(c *Config) {
		c.signingDomain = domain
	}
}

// WithEscrowAccount specifies the custody address escrowed funds are held under
func WithEscrowAccount(account string) ConfigOptionFunc {
	return func(c *Config) {
		c.escrowAccount = account
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithRunMode sets the operational mode ("serve" or "dev"). "dev" mode wires
// in-memory registry and token ledger collaborators so the engine runs
// standalone.
func WithRunMode(mode string) ConfigOptionFunc {
	return func(c *Config) {
		c.runMode = mode
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
