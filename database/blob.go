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
	"encoding/binary"
	"fmt"
	"log/slog"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var proposalKeyPrefix = []byte("proposal/")

// blobStore wraps badger for immutable audit payloads. Uses an in-memory
// instance when dataDir is empty.
type blobStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func newBlobStore(dataDir string, logger *slog.Logger) (*blobStore, error) {
	var blobDb *badger.DB
	var err error
	if dataDir == "" {
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		blobDir := filepath.Join(dataDir, "blob")
		badgerOpts := badger.DefaultOptions(blobDir).
			WithLogger(newBadgerLogger(logger)).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.Snappy)
		blobDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	}
	return &blobStore{db: blobDb, logger: logger}, nil
}

func (b *blobStore) Close() error {
	return b.db.Close()
}

func proposalKey(recordId uint64) []byte {
	key := make([]byte, 0, len(proposalKeyPrefix)+8)
	key = append(key, proposalKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, recordId)
	return key
}

// AddSignedProposal stores the signed proposal audit copy for a minted
// lease record. Existing entries are never overwritten.
func (d *Database) AddSignedProposal(recordId uint64, payload []byte) error {
	return d.blob.db.Update(func(txn *badger.Txn) error {
		key := proposalKey(recordId)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf(
				"signed proposal already exists for record %d",
				recordId,
			)
		}
		return txn.Set(key, payload)
	})
}

// GetSignedProposal retrieves the signed proposal audit copy for a record
func (d *Database) GetSignedProposal(recordId uint64) ([]byte, error) {
	var ret []byte
	err := d.blob.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(proposalKey(recordId))
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	return ret, err
}

// badgerLogger wraps slog for badger's logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(fmt.Sprintf(msg, args...), "component", "blob")
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(fmt.Sprintf(msg, args...), "component", "blob")
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(fmt.Sprintf(msg, args...), "component", "blob")
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(fmt.Sprintf(msg, args...), "component", "blob")
}
