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

// Package registry defines the boundary to the external asset registry
// collaborator. The engine only ever asks whether an asset exists and what
// its declared schema tag is; all schema validation and instance
// bookkeeping lives on the other side of this interface.
package registry

import (
	"errors"
	"sync"
)

// ErrAssetNotFound is returned when an asset id is not known to the registry
var ErrAssetNotFound = errors.New("asset not found in registry")

// AssetInfo describes a registered asset
type AssetInfo struct {
	// SchemaTag is the declared asset type tag
	SchemaTag string
	// CustodyToken is the fractional-ownership token backing the asset
	CustodyToken string
}

// Registry is the consumed interface to the asset registry
type Registry interface {
	AssetExists(assetID string) bool
	AssetType(assetID string) (AssetInfo, error)
}

// MemRegistry is an in-memory Registry used in dev mode and tests
type MemRegistry struct {
	assets map[string]AssetInfo
	mu     sync.RWMutex
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		assets: make(map[string]AssetInfo),
	}
}

// Register records an asset. Registering an existing id overwrites it.
func (r *MemRegistry) Register(assetID string, info AssetInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[assetID] = info
}

func (r *MemRegistry) AssetExists(assetID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assets[assetID]
	return ok
}

func (r *MemRegistry) AssetType(assetID string) (AssetInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.assets[assetID]
	if !ok {
		return AssetInfo{}, ErrAssetNotFound
	}
	return info, nil
}
