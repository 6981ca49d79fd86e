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

package market

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/openlease/corral/agreement"
	"github.com/openlease/corral/database"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/lease"
	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/revenue"
	"github.com/openlease/corral/signing"
	"github.com/openlease/corral/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	payToken      = "usd"
	sharesToken   = "asset-001-shares"
	assetId       = "asset-001"
	escrowAccount = "escrow-custody"
)

type marketFixture struct {
	market     *Market
	tokens     *token.Ledger
	escrow     *escrow.Ledger
	eventBus   *event.EventBus
	protocol   *signing.Protocol
	lessorPriv ed25519.PrivateKey
	lesseePriv ed25519.PrivateKey
	lessorAddr string
	lesseeAddr string
	now        time.Time
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	lessorPub, lessorPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	lesseePub, lesseePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	f := &marketFixture{
		tokens:     token.NewLedger(),
		eventBus:   event.NewEventBus(nil, nil),
		protocol:   signing.NewProtocol("test-deployment"),
		lessorPriv: lessorPriv,
		lesseePriv: lesseePriv,
		lessorAddr: signing.AddressFromPublicKey(lessorPub),
		lesseeAddr: signing.AddressFromPublicKey(lesseePub),
		now:        time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(f.eventBus.Stop)
	reg := registry.NewMemRegistry()
	reg.Register(assetId, registry.AssetInfo{
		SchemaTag:    "warehouse.v1",
		CustodyToken: sharesToken,
	})
	f.escrow = escrow.NewLedger(escrow.LedgerConfig{
		PaymentAsset: f.tokens.Asset(payToken),
		Account:      escrowAccount,
	})
	mint := agreement.NewMint(agreement.MintConfig{
		EventBus: f.eventBus,
		Database: db,
		Registry: reg,
		Protocol: f.protocol,
		TimeNow:  func() time.Time { return f.now },
	})
	distributor := revenue.NewDistributor(revenue.DistributorConfig{
		EventBus:  f.eventBus,
		Escrow:    f.escrow,
		Ownership: f.tokens,
	})
	f.market = NewMarket(MarketConfig{
		EventBus:        f.eventBus,
		Database:        db,
		Escrow:          f.escrow,
		Mint:            mint,
		Revenue:         distributor,
		Ownership:       f.tokens,
		Registry:        reg,
		SettlementAsset: payToken,
	})
	return f
}

func (f *marketFixture) fundBidder(bidder string, amount uint64) {
	f.tokens.Mint(payToken, bidder, amount)
	f.tokens.Approve(payToken, bidder, escrowAccount, amount)
}

func (f *marketFixture) proposal() lease.Proposal {
	return lease.Proposal{
		Deadline:     f.now.Add(24 * time.Hour),
		AssetTypeTag: "warehouse.v1",
		Lease: lease.Terms{
			Lessor:       f.lessorAddr,
			Lessee:       f.lesseeAddr,
			AssetID:      assetId,
			PaymentAsset: payToken,
			RentAmount:   50_000,
			StartTime:    f.now.AddDate(0, 1, 0),
			EndTime:      f.now.AddDate(1, 1, 0),
			TermsVersion: 1,
		},
	}
}

// postOffer posts a lessor-signed offer for the fixture proposal
func (f *marketFixture) postOffer(t *testing.T) (uint64, lease.Proposal) {
	t.Helper()
	prop := f.proposal()
	offerId, err := f.market.PostLeaseOffer(
		f.lessorAddr,
		prop,
		f.protocol.Sign(f.lessorPriv, prop),
	)
	require.NoError(t, err)
	return offerId, prop
}

func TestSaleWorkflow(t *testing.T) {
	f := newMarketFixture(t)
	// Seller holds 100 units and approves the custody account to move
	// them at acceptance
	f.tokens.Mint(sharesToken, "seller", 100)
	f.tokens.Approve(sharesToken, "seller", escrowAccount, 100)
	f.fundBidder("bidder1", 50_000)
	f.fundBidder("bidder2", 52_500)

	_, evtCh := f.eventBus.Subscribe(event.SaleSettledEventType)

	listingId, err := f.market.PostSale("seller", sharesToken, 100, 1000)
	require.NoError(t, err)

	idx1, err := f.market.PlaceSaleBid(listingId, "bidder1", 50, 1000)
	require.NoError(t, err)
	idx2, err := f.market.PlaceSaleBid(listingId, "bidder2", 50, 1050)
	require.NoError(t, err)
	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
	// Escrow conservation: custody covers both open bids exactly
	assert.Equal(t, uint64(102_500), f.escrow.Custody("sale/1"))

	require.NoError(t, f.market.AcceptSaleBid(listingId, "seller", idx2))

	// Winner gets the units, seller gets the winning escrow, loser is
	// refunded exactly
	assert.Equal(t, uint64(50), f.tokens.BalanceOf(sharesToken, "bidder2"))
	assert.Equal(t, uint64(50), f.tokens.BalanceOf(sharesToken, "seller"))
	assert.Equal(t, uint64(52_500), f.tokens.BalanceOf(payToken, "seller"))
	assert.Equal(t, uint64(50_000), f.tokens.BalanceOf(payToken, "bidder1"))
	assert.Equal(t, uint64(0), f.escrow.Custody("sale/1"))

	evt := <-evtCh
	settled := evt.Data.(event.SaleSettledEvent)
	assert.Equal(t, "bidder2", settled.Buyer)
	assert.Equal(t, uint64(52_500), settled.Paid)

	info, err := f.market.SaleListing(listingId)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, info.Status)
}

func TestSaleAtMostOneSettlement(t *testing.T) {
	f := newMarketFixture(t)
	f.tokens.Mint(sharesToken, "seller", 100)
	f.tokens.Approve(sharesToken, "seller", escrowAccount, 100)
	f.fundBidder("bidder1", 1000)

	listingId, err := f.market.PostSale("seller", sharesToken, 100, 10)
	require.NoError(t, err)
	idx, err := f.market.PlaceSaleBid(listingId, "bidder1", 100, 10)
	require.NoError(t, err)
	require.NoError(t, f.market.AcceptSaleBid(listingId, "seller", idx))

	sellerPay := f.tokens.BalanceOf(payToken, "seller")
	err = f.market.AcceptSaleBid(listingId, "seller", idx)
	assert.ErrorIs(t, err, ErrInactive)
	// No additional transfer happened
	assert.Equal(t, sellerPay, f.tokens.BalanceOf(payToken, "seller"))

	// Late bids also bounce off the terminal state
	_, err = f.market.PlaceSaleBid(listingId, "bidder1", 1, 10)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestSaleValidation(t *testing.T) {
	f := newMarketFixture(t)
	_, err := f.market.PostSale("seller", sharesToken, 0, 10)
	assert.ErrorIs(t, err, ErrZeroAmount)

	listingId, err := f.market.PostSale("seller", sharesToken, 100, 10)
	require.NoError(t, err)

	_, err = f.market.PlaceSaleBid(listingId, "bidder1", 0, 10)
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = f.market.PlaceSaleBid(listingId, "bidder1", 101, 10)
	assert.ErrorIs(t, err, ErrBidTooLarge)

	f.fundBidder("bidder1", 1000)
	idx, err := f.market.PlaceSaleBid(listingId, "bidder1", 100, 10)
	require.NoError(t, err)

	assert.ErrorIs(
		t,
		f.market.AcceptSaleBid(listingId, "stranger", idx),
		ErrNotSeller,
	)
	assert.ErrorIs(
		t,
		f.market.AcceptSaleBid(listingId, "seller", 5),
		ErrInvalidBidIndex,
	)
	_, err = f.market.PlaceSaleBid(99, "bidder1", 1, 10)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSaleTransferFailureAborts(t *testing.T) {
	f := newMarketFixture(t)
	// Seller never approves the custody account for the asset token
	f.tokens.Mint(sharesToken, "seller", 100)
	f.fundBidder("bidder1", 1000)

	listingId, err := f.market.PostSale("seller", sharesToken, 100, 10)
	require.NoError(t, err)
	idx, err := f.market.PlaceSaleBid(listingId, "bidder1", 100, 10)
	require.NoError(t, err)

	err = f.market.AcceptSaleBid(listingId, "seller", idx)
	assert.ErrorIs(t, err, token.ErrNotApproved)

	// Nothing moved; the listing stays open with the bid escrowed
	assert.Equal(t, uint64(0), f.tokens.BalanceOf(payToken, "seller"))
	assert.Equal(t, uint64(1000), f.escrow.Custody("sale/1"))
	info, err := f.market.SaleListing(listingId)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, info.Status)

	// Approving afterwards lets the same acceptance succeed
	f.tokens.Approve(sharesToken, "seller", escrowAccount, 100)
	require.NoError(t, f.market.AcceptSaleBid(listingId, "seller", idx))
	assert.Equal(t, uint64(1000), f.tokens.BalanceOf(payToken, "seller"))
}

func TestCancelSale(t *testing.T) {
	f := newMarketFixture(t)
	f.fundBidder("bidder1", 500)
	f.fundBidder("bidder2", 300)
	listingId, err := f.market.PostSale("seller", sharesToken, 100, 5)
	require.NoError(t, err)
	_, err = f.market.PlaceSaleBid(listingId, "bidder1", 100, 5)
	require.NoError(t, err)
	_, err = f.market.PlaceSaleBid(listingId, "bidder2", 60, 5)
	require.NoError(t, err)

	assert.ErrorIs(
		t,
		f.market.CancelSale(listingId, "stranger"),
		ErrNotSeller,
	)
	require.NoError(t, f.market.CancelSale(listingId, "seller"))

	// Every bid refunded in full, terminal state reached
	assert.Equal(t, uint64(500), f.tokens.BalanceOf(payToken, "bidder1"))
	assert.Equal(t, uint64(300), f.tokens.BalanceOf(payToken, "bidder2"))
	assert.Equal(t, uint64(0), f.escrow.Custody("sale/1"))
	assert.ErrorIs(t, f.market.CancelSale(listingId, "seller"), ErrInactive)
}

func TestLeaseWorkflow(t *testing.T) {
	f := newMarketFixture(t)
	// Fractional owners of the asset token at 50/30/20
	f.tokens.Mint(sharesToken, "holder1", 50)
	f.tokens.Mint(sharesToken, "holder2", 30)
	f.tokens.Mint(sharesToken, "holder3", 20)
	f.fundBidder(f.lesseeAddr, 600_000)
	f.fundBidder("rival", 100_000)

	_, evtCh := f.eventBus.Subscribe(event.LeaseSettledEventType)

	offerId, prop := f.postOffer(t)
	idx, err := f.market.PlaceLeaseBid(
		offerId,
		f.lesseeAddr,
		f.protocol.Sign(f.lesseePriv, prop),
		600_000,
	)
	require.NoError(t, err)
	_, err = f.market.PlaceLeaseBid(
		offerId,
		"rival",
		signing.Signature{},
		100_000,
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), f.escrow.Custody("lease/1"))

	recordId, err := f.market.AcceptLeaseBid(offerId, f.lessorAddr, idx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), recordId)

	// The losing bid is refunded, the winning funds moved to the revenue
	// pool and split 50/30/20
	assert.Equal(t, uint64(100_000), f.tokens.BalanceOf(payToken, "rival"))
	assert.Equal(t, uint64(0), f.escrow.Custody("lease/1"))
	assert.Equal(t, uint64(600_000), f.escrow.Custody(revenue.ClaimScope))

	distributor := f.market.revenue
	assert.Equal(t, uint64(300_000), distributor.Claimable("holder1"))
	assert.Equal(t, uint64(180_000), distributor.Claimable("holder2"))
	assert.Equal(t, uint64(120_000), distributor.Claimable("holder3"))
	assert.Equal(t, uint64(0), distributor.Dust(sharesToken))

	evt := <-evtCh
	settled := evt.Data.(event.LeaseSettledEvent)
	assert.Equal(t, uint64(1), settled.RecordId)
	assert.Equal(t, f.lesseeAddr, settled.Lessee)
	assert.Equal(t, uint64(600_000), settled.Funds)

	// Second acceptance bounces with no further movement
	_, err = f.market.AcceptLeaseBid(offerId, f.lessorAddr, idx)
	assert.ErrorIs(t, err, ErrInactive)
	assert.Equal(t, uint64(600_000), f.escrow.Custody(revenue.ClaimScope))
}

func TestLeaseOfferValidation(t *testing.T) {
	f := newMarketFixture(t)
	prop := f.proposal()
	_, err := f.market.PostLeaseOffer(
		"stranger",
		prop,
		signing.Signature{},
	)
	assert.ErrorIs(t, err, ErrNotLessor)

	prop.Lease.PaymentAsset = "eur"
	_, err = f.market.PostLeaseOffer(
		f.lessorAddr,
		prop,
		signing.Signature{},
	)
	assert.ErrorIs(t, err, ErrWrongPaymentAsset)
}

func TestLeaseAcceptExpired(t *testing.T) {
	f := newMarketFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 100)
	f.fundBidder(f.lesseeAddr, 1000)

	offerId, prop := f.postOffer(t)
	idx, err := f.market.PlaceLeaseBid(
		offerId,
		f.lesseeAddr,
		f.protocol.Sign(f.lesseePriv, prop),
		1000,
	)
	require.NoError(t, err)

	// The deadline passes before acceptance
	f.now = prop.Deadline.Add(time.Minute)
	_, err = f.market.AcceptLeaseBid(offerId, f.lessorAddr, idx)
	assert.ErrorIs(t, err, agreement.ErrExpired)

	// No mint occurred and no funds moved; the offer stays open
	assert.Equal(t, uint64(1000), f.escrow.Custody("lease/1"))
	assert.Equal(t, uint64(0), f.escrow.Custody(revenue.ClaimScope))
	info, err := f.market.LeaseOffer(offerId)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, info.Status)
}

func TestLeaseAcceptSignerMismatch(t *testing.T) {
	f := newMarketFixture(t)
	f.tokens.Mint(sharesToken, "holder1", 100)
	f.fundBidder("impostor", 1000)

	offerId, prop := f.postOffer(t)
	// The bidder signs with a key that does not recover to the lessee
	// named in the terms
	_, impostorPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	idx, err := f.market.PlaceLeaseBid(
		offerId,
		"impostor",
		f.protocol.Sign(impostorPriv, prop),
		1000,
	)
	require.NoError(t, err)

	_, acceptErr := f.market.AcceptLeaseBid(offerId, f.lessorAddr, idx)
	var mismatchErr *signing.SignerMismatchError
	require.ErrorAs(t, acceptErr, &mismatchErr)
	assert.Equal(t, signing.PartyLessee, mismatchErr.Party)

	// The offer stays active and the bid stays escrowed; only acceptance
	// failed, the bid itself was valid
	assert.Equal(t, uint64(1000), f.escrow.Custody("lease/1"))
	info, err := f.market.LeaseOffer(offerId)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, info.Status)
	assert.False(t, info.Bids[idx].Settled)
}

func TestCancelLeaseOffer(t *testing.T) {
	f := newMarketFixture(t)
	f.fundBidder(f.lesseeAddr, 750)
	offerId, prop := f.postOffer(t)
	_, err := f.market.PlaceLeaseBid(
		offerId,
		f.lesseeAddr,
		f.protocol.Sign(f.lesseePriv, prop),
		750,
	)
	require.NoError(t, err)

	assert.ErrorIs(
		t,
		f.market.CancelLeaseOffer(offerId, "stranger"),
		ErrNotLessor,
	)
	require.NoError(t, f.market.CancelLeaseOffer(offerId, f.lessorAddr))

	assert.Equal(t, uint64(750), f.tokens.BalanceOf(payToken, f.lesseeAddr))
	assert.Equal(t, uint64(0), f.escrow.Custody("lease/1"))
	assert.ErrorIs(
		t,
		f.market.CancelLeaseOffer(offerId, f.lessorAddr),
		ErrInactive,
	)
}

func TestActiveListings(t *testing.T) {
	f := newMarketFixture(t)
	_, err := f.market.PostSale("seller", sharesToken, 10, 1)
	require.NoError(t, err)
	cancelled, err := f.market.PostSale("seller", sharesToken, 20, 1)
	require.NoError(t, err)
	require.NoError(t, f.market.CancelSale(cancelled, "seller"))

	active := f.market.ActiveSaleListings()
	require.Len(t, active, 1)
	assert.Equal(t, uint64(10), active[0].Amount)

	_, _ = f.postOffer(t)
	offers := f.market.ActiveLeaseOffers()
	require.Len(t, offers, 1)
	assert.Equal(t, f.lessorAddr, offers[0].Lessor)
}
