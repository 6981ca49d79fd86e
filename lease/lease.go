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

package lease

import (
	"errors"
	"time"
)

// ErrBadTiming is returned when a proposal's lease term has a start time at
// or after its end time
var ErrBadTiming = errors.New("lease start time must be before end time")

// MetadataEntry is a single key/value pair attached to lease terms. Entries
// are order-sensitive for digest purposes.
type MetadataEntry struct {
	Key   string
	Value string
}

// Terms is the fully-specified term sheet for a lease. It is immutable once
// a proposal containing it has been hashed for signing.
type Terms struct {
	Lessor          string
	Lessee          string
	AssetID         string
	PaymentAsset    string
	RentAmount      uint64
	RentPeriod      uint64
	SecurityDeposit uint64
	StartTime       time.Time
	EndTime         time.Time
	LegalDocHash    []byte
	TermsVersion    uint32
	Metadata        []MetadataEntry
}

// Validate checks the internal consistency of the terms
func (t *Terms) Validate() error {
	if !t.StartTime.Before(t.EndTime) {
		return ErrBadTiming
	}
	return nil
}

// Proposal is an unsigned lease term sheet pending dual authorization. It
// exists only transiently until consumed by the agreement mint or discarded.
type Proposal struct {
	Deadline     time.Time
	AssetTypeTag string
	Lease        Terms
}

// Record is the immutable, minted result of a successfully authorized
// lease. Ownership of the record starts with the lessee and may change
// hands afterward, but the terms never change.
type Record struct {
	ID       uint64
	Terms    Terms
	Owner    string
	MintedAt time.Time
}
