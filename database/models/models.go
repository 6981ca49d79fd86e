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

package models

import "time"

// MigrateModels is the list of models to auto-migrate on startup
var MigrateModels = []any{
	&Counter{},
	&LeaseRecord{},
	&SaleListing{},
	&SaleBid{},
	&LeaseOffer{},
	&LeaseBid{},
	&RevenueClaim{},
	&MarketEvent{},
}

// Counter holds a named monotonic sequence. Sequence values are never
// reused; allocation happens in a transaction.
type Counter struct {
	Name  string `gorm:"primarykey"`
	Value uint64
}

func (Counter) TableName() string {
	return "counter"
}

// LeaseRecord is the persisted form of a minted lease agreement. Terms are
// stored as canonical JSON; the signed proposal audit copy lives in the
// blob store keyed by record id.
type LeaseRecord struct {
	ID       uint64 `gorm:"primarykey"`
	Lessor   string `gorm:"index"`
	Lessee   string `gorm:"index"`
	AssetID  string `gorm:"index"`
	Owner    string `gorm:"index"`
	Terms    []byte
	MintedAt time.Time
}

func (LeaseRecord) TableName() string {
	return "lease_record"
}

// SaleListing persists a sale listing and its terminal status
type SaleListing struct {
	ID         uint64 `gorm:"primarykey"`
	Seller     string `gorm:"index"`
	AssetToken string `gorm:"index"`
	Amount     uint64
	AskPrice   uint64
	Status     string `gorm:"index"`
}

func (SaleListing) TableName() string {
	return "sale_listing"
}

// SaleBid persists one bid on a sale listing. BidIndex is stable for the
// life of the listing; bids are never removed, only marked settled.
type SaleBid struct {
	ID           uint   `gorm:"primarykey"`
	ListingID    uint64 `gorm:"uniqueIndex:idx_sale_bid"`
	BidIndex     int    `gorm:"uniqueIndex:idx_sale_bid"`
	Bidder       string `gorm:"index"`
	Amount       uint64
	PricePerUnit uint64
	Escrowed     uint64
	Settled      bool
}

func (SaleBid) TableName() string {
	return "sale_bid"
}

// LeaseOffer persists a lease offer; the pre-signed proposal is stored as
// canonical JSON
type LeaseOffer struct {
	ID       uint64 `gorm:"primarykey"`
	Lessor   string `gorm:"index"`
	AssetID  string `gorm:"index"`
	Proposal []byte
	Status   string `gorm:"index"`
}

func (LeaseOffer) TableName() string {
	return "lease_offer"
}

// LeaseBid persists one bid on a lease offer, including the lessee's half
// of the dual signature
type LeaseBid struct {
	ID        uint   `gorm:"primarykey"`
	OfferID   uint64 `gorm:"uniqueIndex:idx_lease_bid"`
	BidIndex  int    `gorm:"uniqueIndex:idx_lease_bid"`
	Lessee    string `gorm:"index"`
	Funds     uint64
	Signature []byte
	Settled   bool
}

func (LeaseBid) TableName() string {
	return "lease_bid"
}

// RevenueClaim persists a holder's accrued claimable balance
type RevenueClaim struct {
	ID     uint   `gorm:"primarykey"`
	Holder string `gorm:"uniqueIndex"`
	Amount uint64
}

func (RevenueClaim) TableName() string {
	return "revenue_claim"
}

// MarketEvent persists one entry of the ordered fact stream
type MarketEvent struct {
	ID        uint   `gorm:"primarykey"`
	EventID   string `gorm:"uniqueIndex"`
	Seq       uint64 `gorm:"index"`
	Type      string `gorm:"index"`
	Payload   []byte
	Timestamp time.Time
}

func (MarketEvent) TableName() string {
	return "market_event"
}
