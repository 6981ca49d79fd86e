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
	"sync"

	"github.com/openlease/corral/database/models"
	"github.com/openlease/corral/escrow"
	"github.com/openlease/corral/event"
)

type saleListing struct {
	id         uint64
	seller     string
	assetToken string
	amount     uint64
	askPrice   uint64
	status     string
	bids       []*saleBid
	mu         sync.Mutex
}

// saleBid implements escrow.Bid so refund sweeps can mark it settled
type saleBid struct {
	bidder       string
	amount       uint64
	pricePerUnit uint64
	escrowed     uint64
	settled      bool
}

func (b *saleBid) Bidder() string   { return b.bidder }
func (b *saleBid) Escrowed() uint64 { return b.escrowed }
func (b *saleBid) Settled() bool    { return b.settled }
func (b *saleBid) MarkSettled()     { b.settled = true }

func (l *saleListing) escrowBids() []escrow.Bid {
	bids := make([]escrow.Bid, len(l.bids))
	for idx, bid := range l.bids {
		bids[idx] = bid
	}
	return bids
}

// SaleBidInfo is a point-in-time snapshot of one bid on a sale listing
type SaleBidInfo struct {
	Bidder       string
	Amount       uint64
	PricePerUnit uint64
	Escrowed     uint64
	Settled      bool
}

// SaleListingInfo is a point-in-time snapshot of a sale listing
type SaleListingInfo struct {
	ID         uint64
	Seller     string
	AssetToken string
	Amount     uint64
	AskPrice   uint64
	Status     string
	Bids       []SaleBidInfo
}

// PostSale creates a sale listing. Posting does not lock the seller's
// tokens; the seller must have approved the escrow account to move them by
// acceptance time.
func (m *Market) PostSale(
	seller string,
	assetToken string,
	amount uint64,
	askPrice uint64,
) (uint64, error) {
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	listingId, err := m.db.NextSequence(SaleSequenceName)
	if err != nil {
		return 0, err
	}
	listing := &saleListing{
		id:         listingId,
		seller:     seller,
		assetToken: assetToken,
		amount:     amount,
		askPrice:   askPrice,
		status:     StatusOpen,
	}
	m.mu.Lock()
	m.sales[listingId] = listing
	m.mu.Unlock()
	m.persistSaleListing(listing)
	m.metrics.salesPosted.Inc()
	m.metrics.activeSales.Inc()
	m.logger.Info(
		"posted sale listing",
		"component", "market",
		"listing_id", listingId,
		"seller", seller,
		"asset_token", assetToken,
		"amount", amount,
	)
	m.eventBus.Publish(
		event.SaleListedEventType,
		event.SaleListedEvent{
			ListingId:  listingId,
			Seller:     seller,
			AssetToken: assetToken,
			Amount:     amount,
			AskPrice:   askPrice,
		},
	)
	return listingId, nil
}

// PlaceSaleBid escrows amount*pricePerUnit from the bidder against an open
// listing and returns the stable bid index
func (m *Market) PlaceSaleBid(
	listingId uint64,
	bidder string,
	amount uint64,
	pricePerUnit uint64,
) (int, error) {
	listing, err := m.saleById(listingId)
	if err != nil {
		return 0, err
	}
	listing.mu.Lock()
	defer listing.mu.Unlock()
	if listing.status != StatusOpen {
		return 0, ErrInactive
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	if amount > listing.amount {
		return 0, ErrBidTooLarge
	}
	escrowed := amount * pricePerUnit
	if pricePerUnit != 0 && escrowed/pricePerUnit != amount {
		return 0, ErrAmountOverflow
	}
	if err := m.escrow.Escrow(saleScope(listingId), bidder, escrowed); err != nil {
		return 0, err
	}
	bid := &saleBid{
		bidder:       bidder,
		amount:       amount,
		pricePerUnit: pricePerUnit,
		escrowed:     escrowed,
	}
	listing.bids = append(listing.bids, bid)
	bidIndex := len(listing.bids) - 1
	m.persistSaleBid(listingId, bidIndex, bid)
	m.metrics.saleBidsPlaced.Inc()
	m.logger.Info(
		"placed sale bid",
		"component", "market",
		"listing_id", listingId,
		"bid_index", bidIndex,
		"bidder", bidder,
		"escrowed", escrowed,
	)
	m.eventBus.Publish(
		event.SaleBidPlacedEventType,
		event.SaleBidPlacedEvent{
			ListingId:    listingId,
			BidIndex:     bidIndex,
			Bidder:       bidder,
			Amount:       amount,
			PricePerUnit: pricePerUnit,
			Escrowed:     escrowed,
		},
	)
	return bidIndex, nil
}

// AcceptSaleBid settles a listing against the chosen bid, atomically: the
// listed tokens move from seller to bidder, the winning escrow is released
// to the seller, every other bid is refunded, and the listing resolves.
// The token transfer runs first so its failure aborts the whole operation
// with no funds moved.
func (m *Market) AcceptSaleBid(
	listingId uint64,
	caller string,
	bidIndex int,
) error {
	listing, err := m.saleById(listingId)
	if err != nil {
		return err
	}
	listing.mu.Lock()
	defer listing.mu.Unlock()
	if listing.status != StatusOpen {
		return ErrInactive
	}
	if caller != listing.seller {
		return ErrNotSeller
	}
	if bidIndex < 0 || bidIndex >= len(listing.bids) {
		return ErrInvalidBidIndex
	}
	bid := listing.bids[bidIndex]
	if bid.settled {
		return ErrInvalidBidIndex
	}
	// The seller approved the escrow account to move the listed tokens;
	// the marketplace spends that allowance here
	if err := m.ownership.TransferFrom(
		listing.assetToken,
		m.escrow.Account(),
		listing.seller,
		bid.bidder,
		bid.amount,
	); err != nil {
		return err
	}
	scope := saleScope(listingId)
	if err := m.escrow.Release(scope, listing.seller, bid.escrowed); err != nil {
		return err
	}
	bid.MarkSettled()
	if err := m.escrow.RefundAllExcept(
		scope,
		listing.escrowBids(),
		bidIndex,
	); err != nil {
		return err
	}
	listing.status = StatusResolved
	m.persistSale(listing)
	m.metrics.saleSettlements.Inc()
	m.metrics.activeSales.Dec()
	m.logger.Info(
		"settled sale",
		"component", "market",
		"listing_id", listingId,
		"bid_index", bidIndex,
		"buyer", bid.bidder,
		"paid", bid.escrowed,
	)
	m.eventBus.Publish(
		event.SaleSettledEventType,
		event.SaleSettledEvent{
			ListingId:  listingId,
			BidIndex:   bidIndex,
			Seller:     listing.seller,
			Buyer:      bid.bidder,
			AssetToken: listing.assetToken,
			Amount:     bid.amount,
			Paid:       bid.escrowed,
		},
	)
	return nil
}

// CancelSale refunds every open bid and moves the listing to its terminal
// cancelled state
func (m *Market) CancelSale(listingId uint64, caller string) error {
	listing, err := m.saleById(listingId)
	if err != nil {
		return err
	}
	listing.mu.Lock()
	defer listing.mu.Unlock()
	if listing.status != StatusOpen {
		return ErrInactive
	}
	if caller != listing.seller {
		return ErrNotSeller
	}
	if err := m.escrow.RefundAllExcept(
		saleScope(listingId),
		listing.escrowBids(),
		-1,
	); err != nil {
		return err
	}
	listing.status = StatusCancelled
	m.persistSale(listing)
	m.metrics.activeSales.Dec()
	m.logger.Info(
		"cancelled sale listing",
		"component", "market",
		"listing_id", listingId,
	)
	m.eventBus.Publish(
		event.SaleCancelledEventType,
		event.SaleCancelledEvent{
			ListingId: listingId,
			Seller:    listing.seller,
		},
	)
	return nil
}

// SaleListing returns a snapshot of a listing and its bids
func (m *Market) SaleListing(listingId uint64) (SaleListingInfo, error) {
	listing, err := m.saleById(listingId)
	if err != nil {
		return SaleListingInfo{}, err
	}
	listing.mu.Lock()
	defer listing.mu.Unlock()
	return listing.snapshot(), nil
}

// ActiveSaleListings returns snapshots of all open listings
func (m *Market) ActiveSaleListings() []SaleListingInfo {
	m.mu.RLock()
	listings := make([]*saleListing, 0, len(m.sales))
	for _, listing := range m.sales {
		listings = append(listings, listing)
	}
	m.mu.RUnlock()
	var active []SaleListingInfo
	for _, listing := range listings {
		listing.mu.Lock()
		if listing.status == StatusOpen {
			active = append(active, listing.snapshot())
		}
		listing.mu.Unlock()
	}
	return active
}

func (l *saleListing) snapshot() SaleListingInfo {
	info := SaleListingInfo{
		ID:         l.id,
		Seller:     l.seller,
		AssetToken: l.assetToken,
		Amount:     l.amount,
		AskPrice:   l.askPrice,
		Status:     l.status,
		Bids:       make([]SaleBidInfo, len(l.bids)),
	}
	for idx, bid := range l.bids {
		info.Bids[idx] = SaleBidInfo{
			Bidder:       bid.bidder,
			Amount:       bid.amount,
			PricePerUnit: bid.pricePerUnit,
			Escrowed:     bid.escrowed,
			Settled:      bid.settled,
		}
	}
	return info
}

func (m *Market) persistSaleListing(listing *saleListing) {
	if err := m.db.SaveSaleListing(models.SaleListing{
		ID:         listing.id,
		Seller:     listing.seller,
		AssetToken: listing.assetToken,
		Amount:     listing.amount,
		AskPrice:   listing.askPrice,
		Status:     listing.status,
	}); err != nil {
		m.logger.Error(
			"failed to persist sale listing",
			"component", "market",
			"listing_id", listing.id,
			"error", err,
		)
	}
}

func (m *Market) persistSaleBid(listingId uint64, bidIndex int, bid *saleBid) {
	if err := m.db.SaveSaleBid(models.SaleBid{
		ListingID:    listingId,
		BidIndex:     bidIndex,
		Bidder:       bid.bidder,
		Amount:       bid.amount,
		PricePerUnit: bid.pricePerUnit,
		Escrowed:     bid.escrowed,
		Settled:      bid.settled,
	}); err != nil {
		m.logger.Error(
			"failed to persist sale bid",
			"component", "market",
			"listing_id", listingId,
			"bid_index", bidIndex,
			"error", err,
		)
	}
}

// persistSale writes the listing row and every bid row, after settlement
// or cancellation flipped their flags
func (m *Market) persistSale(listing *saleListing) {
	m.persistSaleListing(listing)
	for idx, bid := range listing.bids {
		m.persistSaleBid(listing.id, idx, bid)
	}
}
