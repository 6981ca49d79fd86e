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
	"encoding/json"
	"sync"

	"github.com/openlease/corral/database/models"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/lease"
	"github.com/openlease/corral/revenue"
	"github.com/openlease/corral/signing"
)

type leaseOffer struct {
	id        uint64
	lessor    string
	proposal  lease.Proposal
	lessorSig signing.Signature
	status    string
	bids      []*leaseBid
	mu        sync.Mutex
}

// leaseBid implements escrow.Bid; it carries the lessee's half of the dual
// signature until the lessor accepts
type leaseBid struct {
	lessee  string
	funds   uint64
	sig     signing.Signature
	settled bool
}

func (b *leaseBid) Bidder() string   { return b.lessee }
func (b *leaseBid) Escrowed() uint64 { return b.funds }
func (b *leaseBid) Settled() bool    { return b.settled }
func (b *leaseBid) MarkSettled()     { b.settled = true }

func (o *leaseOffer) escrowBids() []escrow.Bid {
	bids := make([]escrow.Bid, len(o.bids))
	for idx, bid := range o.bids {
		bids[idx] = bid
	}
	return bids
}

// LeaseBidInfo is a point-in-time snapshot of one bid on a lease offer
type LeaseBidInfo struct {
	Lessee  string
	Funds   uint64
	Settled bool
}

// LeaseOfferInfo is a point-in-time snapshot of a lease offer
type LeaseOfferInfo struct {
	ID       uint64
	Lessor   string
	Proposal lease.Proposal
	Status   string
	Bids     []LeaseBidInfo
}

// postedOffer is the persisted form of an offer's proposal plus the
// lessor's pre-signature
type postedOffer struct {
	Proposal        lease.Proposal
	LessorSignature signing.Signature
}

// PostLeaseOffer creates a lease offer pre-signed by the lessor. The
// signature is stored, not verified here; the agreement mint remains the
// single validation authority and checks both signatures at acceptance.
func (m *Market) PostLeaseOffer(
	caller string,
	prop lease.Proposal,
	lessorSig signing.Signature,
) (uint64, error) {
	if caller != prop.Lease.Lessor {
		return 0, ErrNotLessor
	}
	if prop.Lease.PaymentAsset != m.settlementAsset {
		return 0, ErrWrongPaymentAsset
	}
	offerId, err := m.db.NextSequence(LeaseOfferSequenceName)
	if err != nil {
		return 0, err
	}
	offer := &leaseOffer{
		id:        offerId,
		lessor:    prop.Lease.Lessor,
		proposal:  prop,
		lessorSig: lessorSig,
		status:    StatusOpen,
	}
	m.mu.Lock()
	m.offers[offerId] = offer
	m.mu.Unlock()
	m.persistLeaseOffer(offer)
	m.metrics.offersPosted.Inc()
	m.metrics.activeOffers.Inc()
	m.logger.Info(
		"posted lease offer",
		"component", "market",
		"offer_id", offerId,
		"lessor", offer.lessor,
		"asset_id", prop.Lease.AssetID,
	)
	m.eventBus.Publish(
		event.LeaseOfferPostedEventType,
		event.LeaseOfferPostedEvent{
			OfferId: offerId,
			Lessor:  offer.lessor,
			AssetId: prop.Lease.AssetID,
		},
	)
	return offerId, nil
}

// PlaceLeaseBid escrows the declared funds from the prospective lessee and
// stores their half of the dual signature for later acceptance. Funds are
// caller-declared total consideration, not derived from the rent amount.
func (m *Market) PlaceLeaseBid(
	offerId uint64,
	lessee string,
	sig signing.Signature,
	funds uint64,
) (int, error) {
	offer, err := m.offerById(offerId)
	if err != nil {
		return 0, err
	}
	offer.mu.Lock()
	defer offer.mu.Unlock()
	if offer.status != StatusOpen {
		return 0, ErrInactive
	}
	if funds == 0 {
		return 0, ErrZeroAmount
	}
	if err := m.escrow.Escrow(leaseScope(offerId), lessee, funds); err != nil {
		return 0, err
	}
	bid := &leaseBid{
		lessee: lessee,
		funds:  funds,
		sig:    sig,
	}
	offer.bids = append(offer.bids, bid)
	bidIndex := len(offer.bids) - 1
	m.persistLeaseBid(offerId, bidIndex, bid)
	m.metrics.leaseBidsPlaced.Inc()
	m.logger.Info(
		"placed lease bid",
		"component", "market",
		"offer_id", offerId,
		"bid_index", bidIndex,
		"lessee", lessee,
		"funds", funds,
	)
	m.eventBus.Publish(
		event.LeaseBidPlacedEventType,
		event.LeaseBidPlacedEvent{
			OfferId:  offerId,
			BidIndex: bidIndex,
			Lessee:   lessee,
			Funds:    funds,
		},
	)
	return bidIndex, nil
}

// AcceptLeaseBid settles an offer against the chosen bid, atomically:
// the agreement mints from the stored proposal plus both signatures, the
// winning bid's funds move into the revenue pool and distribute across the
// asset token's current holders, every other bid is refunded, and the
// offer resolves. A mint failure aborts the whole acceptance; the offer
// stays open and the winning bid stays escrowed.
func (m *Market) AcceptLeaseBid(
	offerId uint64,
	caller string,
	bidIndex int,
) (uint64, error) {
	offer, err := m.offerById(offerId)
	if err != nil {
		return 0, err
	}
	offer.mu.Lock()
	defer offer.mu.Unlock()
	if offer.status != StatusOpen {
		return 0, ErrInactive
	}
	if caller != offer.lessor {
		return 0, ErrNotLessor
	}
	if bidIndex < 0 || bidIndex >= len(offer.bids) {
		return 0, ErrInvalidBidIndex
	}
	bid := offer.bids[bidIndex]
	if bid.settled {
		return 0, ErrInvalidBidIndex
	}
	// Resolve the custody token and check for holders before minting, so
	// nothing after the mint can fail and leave a record without its
	// distribution
	info, err := m.registry.AssetType(offer.proposal.Lease.AssetID)
	if err != nil {
		return 0, err
	}
	if len(m.ownership.EnumerateHolders(info.CustodyToken)) == 0 {
		return 0, revenue.ErrNoHolders
	}
	record, err := m.mint.MintAgreement(offer.proposal, offer.lessorSig, bid.sig)
	if err != nil {
		return 0, err
	}
	scope := leaseScope(offerId)
	if err := m.escrow.Move(scope, revenue.ClaimScope, bid.funds); err != nil {
		return 0, err
	}
	if err := m.revenue.Distribute(info.CustodyToken, bid.funds); err != nil {
		return 0, err
	}
	bid.MarkSettled()
	if err := m.escrow.RefundAllExcept(
		scope,
		offer.escrowBids(),
		bidIndex,
	); err != nil {
		return 0, err
	}
	offer.status = StatusResolved
	m.persistLease(offer)
	m.metrics.leaseSettlements.Inc()
	m.metrics.activeOffers.Dec()
	m.logger.Info(
		"settled lease",
		"component", "market",
		"offer_id", offerId,
		"bid_index", bidIndex,
		"record_id", record.ID,
		"funds", bid.funds,
	)
	m.eventBus.Publish(
		event.LeaseSettledEventType,
		event.LeaseSettledEvent{
			OfferId:  offerId,
			BidIndex: bidIndex,
			RecordId: record.ID,
			Lessor:   offer.lessor,
			Lessee:   bid.lessee,
			Funds:    bid.funds,
		},
	)
	return record.ID, nil
}

// CancelLeaseOffer refunds every open bid and moves the offer to its
// terminal cancelled state
func (m *Market) CancelLeaseOffer(offerId uint64, caller string) error {
	offer, err := m.offerById(offerId)
	if err != nil {
		return err
	}
	offer.mu.Lock()
	defer offer.mu.Unlock()
	if offer.status != StatusOpen {
		return ErrInactive
	}
	if caller != offer.lessor {
		return ErrNotLessor
	}
	if err := m.escrow.RefundAllExcept(
		leaseScope(offerId),
		offer.escrowBids(),
		-1,
	); err != nil {
		return err
	}
	offer.status = StatusCancelled
	m.persistLease(offer)
	m.metrics.activeOffers.Dec()
	m.logger.Info(
		"cancelled lease offer",
		"component", "market",
		"offer_id", offerId,
	)
	m.eventBus.Publish(
		event.LeaseOfferCancelledEventType,
		event.LeaseOfferCancelledEvent{
			OfferId: offerId,
			Lessor:  offer.lessor,
		},
	)
	return nil
}

// LeaseOffer returns a snapshot of an offer and its bids
func (m *Market) LeaseOffer(offerId uint64) (LeaseOfferInfo, error) {
	offer, err := m.offerById(offerId)
	if err != nil {
		return LeaseOfferInfo{}, err
	}
	offer.mu.Lock()
	defer offer.mu.Unlock()
	return offer.snapshot(), nil
}

// ActiveLeaseOffers returns snapshots of all open offers
func (m *Market) ActiveLeaseOffers() []LeaseOfferInfo {
	m.mu.RLock()
	offers := make([]*leaseOffer, 0, len(m.offers))
	for _, offer := range m.offers {
		offers = append(offers, offer)
	}
	m.mu.RUnlock()
	var active []LeaseOfferInfo
	for _, offer := range offers {
		offer.mu.Lock()
		if offer.status == StatusOpen {
			active = append(active, offer.snapshot())
		}
		offer.mu.Unlock()
	}
	return active
}

func (o *leaseOffer) snapshot() LeaseOfferInfo {
	info := LeaseOfferInfo{
		ID:       o.id,
		Lessor:   o.lessor,
		Proposal: o.proposal,
		Status:   o.status,
		Bids:     make([]LeaseBidInfo, len(o.bids)),
	}
	for idx, bid := range o.bids {
		info.Bids[idx] = LeaseBidInfo{
			Lessee:  bid.lessee,
			Funds:   bid.funds,
			Settled: bid.settled,
		}
	}
	return info
}

func (m *Market) persistLeaseOffer(offer *leaseOffer) {
	posted, err := json.Marshal(postedOffer{
		Proposal:        offer.proposal,
		LessorSignature: offer.lessorSig,
	})
	if err != nil {
		m.logger.Error(
			"failed to serialize lease offer",
			"component", "market",
			"offer_id", offer.id,
			"error", err,
		)
		return
	}
	if err := m.db.SaveLeaseOffer(models.LeaseOffer{
		ID:       offer.id,
		Lessor:   offer.lessor,
		AssetID:  offer.proposal.Lease.AssetID,
		Proposal: posted,
		Status:   offer.status,
	}); err != nil {
		m.logger.Error(
			"failed to persist lease offer",
			"component", "market",
			"offer_id", offer.id,
			"error", err,
		)
	}
}

func (m *Market) persistLeaseBid(offerId uint64, bidIndex int, bid *leaseBid) {
	sig, err := json.Marshal(bid.sig)
	if err != nil {
		m.logger.Error(
			"failed to serialize lease bid signature",
			"component", "market",
			"offer_id", offerId,
			"bid_index", bidIndex,
			"error", err,
		)
		return
	}
	if err := m.db.SaveLeaseBid(models.LeaseBid{
		OfferID:   offerId,
		BidIndex:  bidIndex,
		Lessee:    bid.lessee,
		Funds:     bid.funds,
		Signature: sig,
		Settled:   bid.settled,
	}); err != nil {
		m.logger.Error(
			"failed to persist lease bid",
			"component", "market",
			"offer_id", offerId,
			"bid_index", bidIndex,
			"error", err,
		)
	}
}

// persistLease writes the offer row and every bid row, after settlement
// or cancellation flipped their flags
func (m *Market) persistLease(offer *leaseOffer) {
	m.persistLeaseOffer(offer)
	for idx, bid := range offer.bids {
		m.persistLeaseBid(offer.id, idx, bid)
	}
}
