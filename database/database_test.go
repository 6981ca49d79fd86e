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
	"testing"
	"time"

	"github.com/openlease/corral/database/models"
	"github.com/openlease/corral/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := New(&Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestNextSequence(t *testing.T) {
	db := newTestDatabase(t)
	first, err := db.NextSequence("lease_record")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	second, err := db.NextSequence("lease_record")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)
	// Independent counters do not interfere
	other, err := db.NextSequence("sale_listing")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other)
}

func TestSequenceStableAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	db, err := New(&Config{DataDir: dataDir})
	require.NoError(t, err)
	_, err = db.NextSequence("lease_record")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := New(&Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db2.Close()
	next, err := db2.NextSequence("lease_record")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestLeaseRecordRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	record := models.LeaseRecord{
		ID:       1,
		Lessor:   "lessor-addr",
		Lessee:   "lessee-addr",
		AssetID:  "asset-001",
		Owner:    "lessee-addr",
		Terms:    []byte(`{"rentAmount":5000}`),
		MintedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, db.AddLeaseRecord(record))

	got, err := db.GetLeaseRecord(1)
	require.NoError(t, err)
	assert.Equal(t, record.Lessee, got.Lessee)
	assert.Equal(t, record.Terms, got.Terms)

	// Duplicate ids are rejected; records are append-only
	assert.Error(t, db.AddLeaseRecord(record))

	// Ownership transfer leaves terms untouched
	require.NoError(t, db.SetLeaseRecordOwner(1, "new-owner"))
	got, err = db.GetLeaseRecord(1)
	require.NoError(t, err)
	assert.Equal(t, "new-owner", got.Owner)
	assert.Equal(t, record.Terms, got.Terms)

	assert.ErrorIs(t, db.SetLeaseRecordOwner(99, "x"), ErrRecordNotFound)
	_, err = db.GetLeaseRecord(99)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSaleBidUpsert(t *testing.T) {
	db := newTestDatabase(t)
	bid := models.SaleBid{
		ListingID:    7,
		BidIndex:     0,
		Bidder:       "bidder1",
		Amount:       50,
		PricePerUnit: 10,
		Escrowed:     500,
	}
	require.NoError(t, db.SaveSaleBid(bid))
	bid.Settled = true
	require.NoError(t, db.SaveSaleBid(bid))
	bids, err := db.GetSaleBids(7)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Settled)
}

func TestRevenueClaimUpsert(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.SaveRevenueClaim("holder1", 100))
	require.NoError(t, db.SaveRevenueClaim("holder1", 250))
	amount, err := db.GetRevenueClaim("holder1")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), amount)
	// Unknown holders read as zero
	amount, err = db.GetRevenueClaim("nobody")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), amount)
}

func TestEventStream(t *testing.T) {
	db := newTestDatabase(t)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, db.AppendEvent(event.Event{
			Id:        string(rune('a' + i)),
			Seq:       i,
			Type:      event.SaleListedEventType,
			Data:      event.SaleListedEvent{ListingId: i},
			Timestamp: time.Now(),
		}))
	}
	events, err := db.ListEvents()
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.Seq) //nolint:gosec
	}
}

func TestSignedProposalBlob(t *testing.T) {
	db := newTestDatabase(t)
	payload := []byte(`{"proposal":"canonical"}`)
	require.NoError(t, db.AddSignedProposal(42, payload))
	got, err := db.GetSignedProposal(42)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	// Audit copies are immutable
	assert.Error(t, db.AddSignedProposal(42, []byte("other")))
}
