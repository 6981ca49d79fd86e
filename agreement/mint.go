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

// Package agreement implements the mint: the single authority that
// converts a verified lease proposal into an immutable lease record. The
// marketplace calls it during lease settlement and never duplicates its
// validation logic.
package agreement

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/openlease/corral/database"
	"github.com/openlease/corral/database/models"
	"github.com/openlease/corral/event"
	"github.com/openlease/corral/lease"
	"github.com/openlease/corral/registry"
	"github.com/openlease/corral/signing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RecordSequenceName is the counter backing record id allocation
const RecordSequenceName = "lease_record"

var (
	// ErrExpired is returned when the proposal deadline has passed
	ErrExpired = errors.New("proposal deadline has passed")
	// ErrTypeMismatch is returned when the registry's declared asset type
	// does not match the proposal's tag
	ErrTypeMismatch = errors.New("asset type does not match proposal tag")
	// ErrNotRecordOwner is returned when a transfer is attempted by a
	// party that does not hold the record
	ErrNotRecordOwner = errors.New("caller does not own lease record")
)

// SignedProposal is the audit payload stored in the blob store for every
// minted record: the exact proposal plus both signature envelopes.
type SignedProposal struct {
	Proposal        lease.Proposal
	LessorSignature signing.Signature
	LesseeSignature signing.Signature
}

type MintConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Database     *database.Database
	Registry     registry.Registry
	Protocol     *signing.Protocol
	// TimeNow overrides the clock, for tests
	TimeNow func() time.Time
}

type Mint struct {
	logger   *slog.Logger
	eventBus *event.EventBus
	db       *database.Database
	registry registry.Registry
	protocol *signing.Protocol
	timeNow  func() time.Time
	metrics  struct {
		recordsMinted prometheus.Counter
	}
	mu sync.Mutex
}

func NewMint(cfg MintConfig) *Mint {
	m := &Mint{
		eventBus: cfg.EventBus,
		db:       cfg.Database,
		registry: cfg.Registry,
		protocol: cfg.Protocol,
		timeNow:  cfg.TimeNow,
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = cfg.Logger
	}
	if m.timeNow == nil {
		m.timeNow = time.Now
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	m.metrics.recordsMinted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "corral_lease_records_minted_total",
			Help: "total lease records minted",
		},
	)
	return m
}

// MintAgreement validates a dual-signed proposal and issues the next lease
// record, owned by the lessee. Preconditions are checked in a fixed order
// and the first failure short-circuits with no state change.
func (m *Mint) MintAgreement(
	prop lease.Proposal,
	sigLessor signing.Signature,
	sigLessee signing.Signature,
) (lease.Record, error) {
	if m.timeNow().After(prop.Deadline) {
		return lease.Record{}, ErrExpired
	}
	if err := prop.Lease.Validate(); err != nil {
		return lease.Record{}, err
	}
	if !m.registry.AssetExists(prop.Lease.AssetID) {
		return lease.Record{}, registry.ErrAssetNotFound
	}
	info, err := m.registry.AssetType(prop.Lease.AssetID)
	if err != nil {
		return lease.Record{}, err
	}
	if info.SchemaTag != prop.AssetTypeTag {
		return lease.Record{}, fmt.Errorf(
			"%w: registry has %q, proposal has %q",
			ErrTypeMismatch,
			info.SchemaTag,
			prop.AssetTypeTag,
		)
	}
	if err := m.protocol.VerifyDual(prop, sigLessor, sigLessee); err != nil {
		return lease.Record{}, err
	}
	// Allocation and persistence are serialized so record ids observe
	// mint order
	m.mu.Lock()
	defer m.mu.Unlock()
	recordId, err := m.db.NextSequence(RecordSequenceName)
	if err != nil {
		return lease.Record{}, err
	}
	record := lease.Record{
		ID:       recordId,
		Terms:    prop.Lease,
		Owner:    prop.Lease.Lessee,
		MintedAt: m.timeNow(),
	}
	termsJson, err := json.Marshal(record.Terms)
	if err != nil {
		return lease.Record{}, fmt.Errorf("serializing lease terms: %w", err)
	}
	if err := m.db.AddLeaseRecord(models.LeaseRecord{
		ID:       record.ID,
		Lessor:   record.Terms.Lessor,
		Lessee:   record.Terms.Lessee,
		AssetID:  record.Terms.AssetID,
		Owner:    record.Owner,
		Terms:    termsJson,
		MintedAt: record.MintedAt,
	}); err != nil {
		return lease.Record{}, fmt.Errorf("storing lease record: %w", err)
	}
	auditJson, err := json.Marshal(SignedProposal{
		Proposal:        prop,
		LessorSignature: sigLessor,
		LesseeSignature: sigLessee,
	})
	if err != nil {
		return lease.Record{}, fmt.Errorf(
			"serializing signed proposal: %w",
			err,
		)
	}
	if err := m.db.AddSignedProposal(record.ID, auditJson); err != nil {
		return lease.Record{}, fmt.Errorf(
			"storing signed proposal: %w",
			err,
		)
	}
	m.metrics.recordsMinted.Inc()
	m.logger.Info(
		"minted lease record",
		"component", "agreement",
		"record_id", record.ID,
		"lessor", record.Terms.Lessor,
		"lessee", record.Terms.Lessee,
		"asset_id", record.Terms.AssetID,
	)
	m.eventBus.Publish(
		event.LeaseMintedEventType,
		event.LeaseMintedEvent{
			RecordId: record.ID,
			Lessor:   record.Terms.Lessor,
			Lessee:   record.Terms.Lessee,
			AssetId:  record.Terms.AssetID,
		},
	)
	return record, nil
}

// Record loads a minted record by id
func (m *Mint) Record(id uint64) (lease.Record, error) {
	row, err := m.db.GetLeaseRecord(id)
	if err != nil {
		return lease.Record{}, err
	}
	var terms lease.Terms
	if err := json.Unmarshal(row.Terms, &terms); err != nil {
		return lease.Record{}, fmt.Errorf(
			"deserializing lease terms: %w",
			err,
		)
	}
	return lease.Record{
		ID:       row.ID,
		Terms:    terms,
		Owner:    row.Owner,
		MintedAt: row.MintedAt,
	}, nil
}

// TransferRecord moves ownership of a minted record. Terms are immutable;
// only the holder changes.
func (m *Mint) TransferRecord(id uint64, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.db.GetLeaseRecord(id)
	if err != nil {
		return err
	}
	if row.Owner != from {
		return ErrNotRecordOwner
	}
	if err := m.db.SetLeaseRecordOwner(id, to); err != nil {
		return err
	}
	m.logger.Info(
		"transferred lease record",
		"component", "agreement",
		"record_id", id,
		"from", from,
		"to", to,
	)
	return nil
}
