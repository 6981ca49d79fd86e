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

package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openlease/corral/database/models"
	"github.com/openlease/corral/event"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound is returned when a lookup matches nothing
var ErrRecordNotFound = errors.New("record not found")

// NextSequence atomically allocates the next value of a named monotonic
// counter. The first allocation returns 1. Values are never reused.
func (d *Database) NextSequence(name string) (uint64, error) {
	var next uint64
	err := d.meta.Transaction(func(tx *gorm.DB) error {
		counter := models.Counter{Name: name}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&counter).Error; err != nil {
			return err
		}
		if err := tx.First(&counter, "name = ?", name).Error; err != nil {
			return err
		}
		next = counter.Value + 1
		return tx.Model(&models.Counter{}).
			Where("name = ?", name).
			Update("value", next).Error
	})
	if err != nil {
		return 0, fmt.Errorf("allocating sequence %s: %w", name, err)
	}
	return next, nil
}

// AddLeaseRecord stores a newly minted lease record. Records are append
// only; attempting to store a duplicate id is an error.
func (d *Database) AddLeaseRecord(record models.LeaseRecord) error {
	return d.meta.Create(&record).Error
}

func (d *Database) GetLeaseRecord(id uint64) (models.LeaseRecord, error) {
	var record models.LeaseRecord
	result := d.meta.First(&record, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return record, ErrRecordNotFound
		}
		return record, result.Error
	}
	return record, nil
}

// SetLeaseRecordOwner updates the current holder of a minted record. The
// terms columns are never touched.
func (d *Database) SetLeaseRecordOwner(id uint64, owner string) error {
	result := d.meta.Model(&models.LeaseRecord{}).
		Where("id = ?", id).
		Update("owner", owner)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (d *Database) SaveSaleListing(listing models.SaleListing) error {
	return d.meta.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&listing).Error
}

func (d *Database) GetSaleListing(id uint64) (models.SaleListing, error) {
	var listing models.SaleListing
	result := d.meta.First(&listing, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return listing, ErrRecordNotFound
		}
		return listing, result.Error
	}
	return listing, nil
}

func (d *Database) SaveSaleBid(bid models.SaleBid) error {
	return d.meta.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "listing_id"},
			{Name: "bid_index"},
		},
		UpdateAll: true,
	}).Create(&bid).Error
}

func (d *Database) GetSaleBids(listingId uint64) ([]models.SaleBid, error) {
	var bids []models.SaleBid
	result := d.meta.
		Where("listing_id = ?", listingId).
		Order("bid_index").
		Find(&bids)
	return bids, result.Error
}

func (d *Database) SaveLeaseOffer(offer models.LeaseOffer) error {
	return d.meta.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&offer).Error
}

func (d *Database) GetLeaseOffer(id uint64) (models.LeaseOffer, error) {
	var offer models.LeaseOffer
	result := d.meta.First(&offer, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return offer, ErrRecordNotFound
		}
		return offer, result.Error
	}
	return offer, nil
}

func (d *Database) SaveLeaseBid(bid models.LeaseBid) error {
	return d.meta.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "offer_id"},
			{Name: "bid_index"},
		},
		UpdateAll: true,
	}).Create(&bid).Error
}

func (d *Database) GetLeaseBids(offerId uint64) ([]models.LeaseBid, error) {
	var bids []models.LeaseBid
	result := d.meta.
		Where("offer_id = ?", offerId).
		Order("bid_index").
		Find(&bids)
	return bids, result.Error
}

// SaveRevenueClaim upserts a holder's accrued claim balance
func (d *Database) SaveRevenueClaim(holder string, amount uint64) error {
	claim := models.RevenueClaim{Holder: holder, Amount: amount}
	return d.meta.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "holder"}},
		UpdateAll: true,
	}).Create(&claim).Error
}

func (d *Database) GetRevenueClaim(holder string) (uint64, error) {
	var claim models.RevenueClaim
	result := d.meta.First(&claim, "holder = ?", holder)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return claim.Amount, nil
}

// AppendEvent persists one entry of the ordered fact stream. It implements
// event.LogStore; payloads are serialized as JSON.
func (d *Database) AppendEvent(evt event.Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("serializing event payload: %w", err)
	}
	row := models.MarketEvent{
		EventID:   evt.Id,
		Seq:       evt.Seq,
		Type:      string(evt.Type),
		Payload:   payload,
		Timestamp: evt.Timestamp,
	}
	return d.meta.Create(&row).Error
}

// ListEvents returns the persisted fact stream in sequence order
func (d *Database) ListEvents() ([]models.MarketEvent, error) {
	var events []models.MarketEvent
	result := d.meta.Order("seq").Find(&events)
	return events, result.Error
}
