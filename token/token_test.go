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

package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger()
	l.Mint("tok", "alice", 100)
	require.NoError(t, l.Transfer("tok", "alice", "bob", 40))
	assert.Equal(t, uint64(60), l.BalanceOf("tok", "alice"))
	assert.Equal(t, uint64(40), l.BalanceOf("tok", "bob"))
	assert.Equal(t, uint64(100), l.TotalSupply("tok"))
}

func TestLedgerTransferInsufficient(t *testing.T) {
	l := NewLedger()
	l.Mint("tok", "alice", 10)
	err := l.Transfer("tok", "alice", "bob", 11)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// Nothing moved
	assert.Equal(t, uint64(10), l.BalanceOf("tok", "alice"))
	assert.Equal(t, uint64(0), l.BalanceOf("tok", "bob"))
}

func TestLedgerTransferFrom(t *testing.T) {
	l := NewLedger()
	l.Mint("tok", "alice", 100)

	// Without approval
	err := l.TransferFrom("tok", "spender", "alice", "bob", 10)
	assert.ErrorIs(t, err, ErrNotApproved)

	// With approval
	l.Approve("tok", "alice", "spender", 50)
	require.NoError(t, l.TransferFrom("tok", "spender", "alice", "bob", 30))
	assert.Equal(t, uint64(70), l.BalanceOf("tok", "alice"))
	assert.Equal(t, uint64(30), l.BalanceOf("tok", "bob"))
	assert.Equal(t, uint64(20), l.Allowance("tok", "alice", "spender"))

	// Exceeding remaining allowance
	err = l.TransferFrom("tok", "spender", "alice", "bob", 21)
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestLedgerTransferFromSelf(t *testing.T) {
	// Moving your own funds requires no allowance
	l := NewLedger()
	l.Mint("tok", "alice", 100)
	require.NoError(t, l.TransferFrom("tok", "alice", "alice", "bob", 10))
	assert.Equal(t, uint64(10), l.BalanceOf("tok", "bob"))
}

func TestLedgerEnumerateHolders(t *testing.T) {
	l := NewLedger()
	l.Mint("tok", "carol", 20)
	l.Mint("tok", "alice", 50)
	l.Mint("tok", "bob", 30)
	require.NoError(t, l.Transfer("tok", "carol", "alice", 20))
	holders := l.EnumerateHolders("tok")
	// carol's balance dropped to zero and must not appear; order is by
	// address
	assert.Equal(t, []Holder{
		{Address: "alice", Balance: 70},
		{Address: "bob", Balance: 30},
	}, holders)
}

func TestAssetAdapter(t *testing.T) {
	l := NewLedger()
	l.Mint("pay", "alice", 100)
	l.Approve("pay", "alice", "escrow", 60)
	asset := l.Asset("pay")
	assert.Equal(t, uint64(100), asset.BalanceOf("alice"))
	assert.Equal(t, uint64(60), asset.Allowance("alice", "escrow"))
	require.NoError(t, asset.TransferFrom("escrow", "alice", "escrow", 60))
	assert.Equal(t, uint64(60), asset.BalanceOf("escrow"))
	require.NoError(t, asset.Transfer("escrow", "bob", 25))
	assert.Equal(t, uint64(25), asset.BalanceOf("bob"))
}
