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

package revenue

import (
	"testing"

	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	payToken      = "usd"
	sharesToken   = "asset-shares"
	escrowAccount = "escrow-custody"
)

type revenueFixture struct {
	distributor *Distributor
	tokens      *token.Ledger
	escrow      *escrow.Ledger
	eventBus    *event.EventBus
}

func newRevenueFixture(t *testing.T) *revenueFixture {
	t.Helper()
	f := &revenueFixture{
		tokens:   token.NewLedger(),
		eventBus: event.NewEventBus(nil, nil),
	}
	t.Cleanup(f.eventBus.Stop)
	f.escrow = escrow.NewLedger(escrow.LedgerConfig{
		PaymentAsset: f.tokens.Asset(payToken),
		Account:      escrowAccount,
	})
	f.distributor = NewDistributor(DistributorConfig{
		EventBus:  f.eventBus,
		Escrow:    f.escrow,
		Ownership: f.tokens,
	})
	return f
}

// fund places settled lease payment into the revenue pool custody, the way
// a lease settlement would
func (f *revenueFixture) fund(amount uint64) {
	f.tokens.Mint(payToken, "payer", amount)
	f.tokens.Approve(payToken, "payer", escrowAccount, amount)
	if err := f.escrow.Escrow(ClaimScope, "payer", amount); err != nil {
		panic(err)
	}
}

func TestDistributeProportional(t *testing.T) {
	f := newRevenueFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 50)
	f.tokens.Mint(sharesToken, "holder2", 30)
	f.tokens.Mint(sharesToken, "holder3", 20)
	f.fund(600_000)

	_, evtCh := f.eventBus.Subscribe(event.RevenueDistributedEventType)
	require.NoError(t, f.distributor.Distribute(sharesToken, 600_000))

	// 50/30/20 splits 600000 exactly
	assert.Equal(t, uint64(300_000), f.distributor.Claimable("holder1"))
	assert.Equal(t, uint64(180_000), f.distributor.Claimable("holder2"))
	assert.Equal(t, uint64(120_000), f.distributor.Claimable("holder3"))
	assert.Equal(t, uint64(0), f.distributor.Dust(sharesToken))
	assert.Equal(t, uint64(1), f.distributor.Round(sharesToken))

	evt := <-evtCh
	distributed := evt.Data.(event.RevenueDistributedEvent)
	assert.Equal(t, uint64(1), distributed.Round)
	assert.Equal(t, uint64(600_000), distributed.TotalAmount)
	assert.Equal(t, uint64(0), distributed.Dust)
	assert.Equal(t, 3, distributed.HolderCount)
}

func TestDistributeDust(t *testing.T) {
	f := newRevenueFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 1)
	f.tokens.Mint(sharesToken, "holder2", 1)
	f.tokens.Mint(sharesToken, "holder3", 1)
	f.fund(100)

	require.NoError(t, f.distributor.Distribute(sharesToken, 100))

	// floor(100/3) each; the remainder stays as dust, strictly less than
	// the holder count
	assert.Equal(t, uint64(33), f.distributor.Claimable("holder1"))
	assert.Equal(t, uint64(33), f.distributor.Claimable("holder2"))
	assert.Equal(t, uint64(33), f.distributor.Claimable("holder3"))
	assert.Equal(t, uint64(1), f.distributor.Dust(sharesToken))

	// Dust is never distributed in later rounds; it accumulates
	f.fund(100)
	require.NoError(t, f.distributor.Distribute(sharesToken, 100))
	assert.Equal(t, uint64(66), f.distributor.Claimable("holder1"))
	assert.Equal(t, uint64(2), f.distributor.Dust(sharesToken))
	assert.Equal(t, uint64(2), f.distributor.Round(sharesToken))
}

func TestDistributeNoHolders(t *testing.T) {
	f := newRevenueFixture(t)
	f.fund(100)
	err := f.distributor.Distribute("unknown-token", 100)
	assert.ErrorIs(t, err, ErrNoHolders)
	// Nothing credited, funds stay in the pool
	assert.Equal(t, uint64(100), f.escrow.Custody(ClaimScope))
}

func TestClaim(t *testing.T) {
	f := newRevenueFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 60)
	f.tokens.Mint(sharesToken, "holder2", 40)
	f.fund(1000)
	require.NoError(t, f.distributor.Distribute(sharesToken, 1000))

	_, evtCh := f.eventBus.Subscribe(event.RevenueClaimedEventType)
	amount, err := f.distributor.Claim("holder1")
	require.NoError(t, err)
	assert.Equal(t, uint64(600), amount)
	assert.Equal(t, uint64(600), f.tokens.BalanceOf(payToken, "holder1"))
	assert.Equal(t, uint64(0), f.distributor.Claimable("holder1"))

	evt := <-evtCh
	claimed := evt.Data.(event.RevenueClaimedEvent)
	assert.Equal(t, "holder1", claimed.Holder)
	assert.Equal(t, uint64(600), claimed.Amount)

	// A second claim with nothing accrued fails and pays nothing
	_, err = f.distributor.Claim("holder1")
	assert.ErrorIs(t, err, ErrNoClaims)
	assert.Equal(t, uint64(600), f.tokens.BalanceOf(payToken, "holder1"))

	// The other holder's claim is untouched
	assert.Equal(t, uint64(400), f.distributor.Claimable("holder2"))
}

func TestClaimAccruesAcrossRounds(t *testing.T) {
	f := newRevenueFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 1)
	f.fund(100)
	require.NoError(t, f.distributor.Distribute(sharesToken, 100))
	f.fund(250)
	require.NoError(t, f.distributor.Distribute(sharesToken, 250))

	amount, err := f.distributor.Claim("holder1")
	require.NoError(t, err)
	assert.Equal(t, uint64(350), amount)
}

func TestDistributionConservation(t *testing.T) {
	f := newRevenueFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 7)
	f.tokens.Mint(sharesToken, "holder2", 11)
	f.tokens.Mint(sharesToken, "holder3", 13)
	total := uint64(99_991)
	f.fund(total)
	require.NoError(t, f.distributor.Distribute(sharesToken, total))

	credited := f.distributor.Claimable("holder1") +
		f.distributor.Claimable("holder2") +
		f.distributor.Claimable("holder3")
	dust := f.distributor.Dust(sharesToken)
	assert.Equal(t, total, credited+dust)
	assert.Less(t, dust, uint64(3))

	// Every claim is fully covered by pool custody
	for _, holder := range []string{"holder1", "holder2", "holder3"} {
		_, err := f.distributor.Claim(holder)
		require.NoError(t, err)
	}
	// Only dust remains in the pool
	assert.Equal(t, dust, f.escrow.Custody(ClaimScope))
}
