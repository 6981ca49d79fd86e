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
	"testing"
	"time"

	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/signing"
	"github.com/openlease/corral/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, signing.DefaultDomain, cfg.signingDomain)
	assert.Equal(t, DefaultEscrowAccount, cfg.escrowAccount)
	assert.Equal(t, runModeServe, cfg.runMode)
	assert.NotNil(t, cfg.logger)
}

func TestNewConfigOptions(t *testing.T) {
	ledger := token.NewLedger()
	cfg := NewConfig(
		WithDataDir("/tmp/corral-test"),
		WithSettlementAsset("usd"),
		WithSigningDomain("corral-test"),
		WithEscrowAccount("custody"),
		WithRegistry(registry.NewMemRegistry()),
		WithOwnershipLedger(ledger),
		WithPaymentAsset(ledger.Asset("usd")),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, "/tmp/corral-test", cfg.dataDir)
	assert.Equal(t, "usd", cfg.settlementAsset)
	assert.Equal(t, "corral-test", cfg.signingDomain)
	assert.Equal(t, "custody", cfg.escrowAccount)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestNewRequiresCollaborators(t *testing.T) {
	// Serve mode without external collaborators is rejected
	_, err := New(NewConfig(WithSettlementAsset("usd")))
	assert.ErrorContains(t, err, "no asset registry configured")

	_, err = New(NewConfig())
	assert.ErrorContains(t, err, "no settlement asset configured")
}

func TestNewDevMode(t *testing.T) {
	// Dev mode wires in-memory collaborators automatically
	engine, err := New(NewConfig(
		WithSettlementAsset("usd"),
		WithRunMode(runModeDev),
	))
	require.NoError(t, err)
	assert.NotNil(t, engine.DevLedger())
	assert.NotNil(t, engine.DevRegistry())
}
