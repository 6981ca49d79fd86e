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

package event

// Marketplace and settlement fact types. Each fact carries enough fields
// for an external indexer to reconstruct full state without re-querying
// the engine.
const (
	SaleListedEventType         = EventType("sale.listed")
	SaleBidPlacedEventType      = EventType("sale.bid_placed")
	SaleSettledEventType        = EventType("sale.settled")
	SaleCancelledEventType      = EventType("sale.cancelled")
	LeaseOfferPostedEventType   = EventType("lease.offer_posted")
	LeaseBidPlacedEventType     = EventType("lease.bid_placed")
	LeaseSettledEventType       = EventType("lease.settled")
	LeaseOfferCancelledEventType = EventType("lease.offer_cancelled")
	LeaseMintedEventType        = EventType("lease.minted")
	RevenueDistributedEventType = EventType("revenue.distributed")
	RevenueClaimedEventType     = EventType("revenue.claimed")
)

// SaleListedEvent is emitted when a seller posts a sale listing
type SaleListedEvent struct {
	ListingId  uint64
	Seller     string
	AssetToken string
	Amount     uint64
	AskPrice   uint64
}

// SaleBidPlacedEvent is emitted when a bid is escrowed against a sale
// listing
type SaleBidPlacedEvent struct {
	ListingId    uint64
	BidIndex     int
	Bidder       string
	Amount       uint64
	PricePerUnit uint64
	Escrowed     uint64
}

// SaleSettledEvent is emitted when a seller accepts a bid and the sale
// settles atomically
type SaleSettledEvent struct {
	ListingId  uint64
	BidIndex   int
	Seller     string
	Buyer      string
	AssetToken string
	Amount     uint64
	Paid       uint64
}

// SaleCancelledEvent is emitted when a seller cancels a listing and all
// open bids are refunded
type SaleCancelledEvent struct {
	ListingId uint64
	Seller    string
}

// LeaseOfferPostedEvent is emitted when a lessor posts a pre-signed lease
// offer
type LeaseOfferPostedEvent struct {
	OfferId uint64
	Lessor  string
	AssetId string
}

// LeaseBidPlacedEvent is emitted when a prospective lessee escrows funds
// against an offer
type LeaseBidPlacedEvent struct {
	OfferId  uint64
	BidIndex int
	Lessee   string
	Funds    uint64
}

// LeaseSettledEvent is emitted when a lessor accepts a bid, the agreement
// mints, and revenue distributes
type LeaseSettledEvent struct {
	OfferId  uint64
	BidIndex int
	RecordId uint64
	Lessor   string
	Lessee   string
	Funds    uint64
}

// LeaseOfferCancelledEvent is emitted when a lessor cancels an offer and
// all open bids are refunded
type LeaseOfferCancelledEvent struct {
	OfferId uint64
	Lessor  string
}

// LeaseMintedEvent is the structured fact emitted by the agreement mint
// for external indexing
type LeaseMintedEvent struct {
	RecordId uint64
	Lessor   string
	Lessee   string
	AssetId  string
}

// RevenueDistributedEvent is emitted for each distribution round
type RevenueDistributedEvent struct {
	AssetToken  string
	Round       uint64
	TotalAmount uint64
	Dust        uint64
	HolderCount int
}

// RevenueClaimedEvent is emitted when a holder withdraws an accrued claim
type RevenueClaimedEvent struct {
	Holder string
	Amount uint64
}
