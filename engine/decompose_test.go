package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

func TestLedgerUpdateOnVirtualOpen(t *testing.T) {
	assert := assert.New(t)

	lcA := types.NewTestLedgerState("lc-alice", alice.Address(), hubKey.Address(), 5, 10)
	opening := types.NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 5)

	next, err := LedgerUpdateOnVirtualOpen(lcA, nil, opening)
	require.Nil(t, err)
	assert.Equal(uint64(1), next.Nonce)
	assert.Equal(int64(0), next.BalanceA.Int64())
	assert.Equal(int64(10), next.BalanceHub.Int64())
	assert.Equal(uint32(1), next.OpenVcCount)
	assert.NotEqual(commitment.EmptyRoot, next.VcRootHash)

	root, err := commitment.BuildRoot([]*types.VirtualChannelState{opening})
	require.Nil(t, err)
	assert.Equal(root, next.VcRootHash)

	// Input is not mutated.
	assert.Equal(uint64(0), lcA.Nonce)
	assert.Equal(int64(5), lcA.BalanceA.Int64())

	// Party B's side: its own share is 0, the hub bonds party A's share.
	lcB := types.NewTestLedgerState("lc-bob", bob.Address(), hubKey.Address(), 0, 10)
	nextB, err := LedgerUpdateOnVirtualOpen(lcB, nil, opening)
	require.Nil(t, err)
	assert.Equal(int64(0), nextB.BalanceA.Int64())
	assert.Equal(int64(5), nextB.BalanceHub.Int64())
	assert.Equal(root, nextB.VcRootHash)
}

func TestLedgerUpdateOnVirtualClose(t *testing.T) {
	assert := assert.New(t)

	lcA := types.NewTestLedgerState("lc-alice", alice.Address(), hubKey.Address(), 5, 10)
	lcB := types.NewTestLedgerState("lc-bob", bob.Address(), hubKey.Address(), 0, 10)
	opening := types.NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 5)
	openings := []*types.VirtualChannelState{opening}

	openedA, err := LedgerUpdateOnVirtualOpen(lcA, nil, opening)
	require.Nil(t, err)
	openedB, err := LedgerUpdateOnVirtualOpen(lcB, nil, opening)
	require.Nil(t, err)

	final := opening.Copy()
	final.Nonce = 1
	final.BalanceA = big.NewInt(3)
	final.BalanceB = big.NewInt(2)

	closedA, err := LedgerUpdateOnVirtualClose(openedA, openings, final)
	require.Nil(t, err)
	assert.Equal(uint64(2), closedA.Nonce)
	assert.Equal(new(big.Int).Add(openedA.BalanceA, big.NewInt(3)), closedA.BalanceA)
	assert.Equal(int64(12), closedA.BalanceHub.Int64())
	assert.Equal(uint32(0), closedA.OpenVcCount)
	assert.Equal(commitment.EmptyRoot, closedA.VcRootHash)

	closedB, err := LedgerUpdateOnVirtualClose(openedB, openings, final)
	require.Nil(t, err)
	assert.Equal(int64(2), closedB.BalanceA.Int64())
	assert.Equal(int64(8), closedB.BalanceHub.Int64())
	assert.Equal(commitment.EmptyRoot, closedB.VcRootHash)

	// Value is conserved per ledger channel over open and close.
	assert.Equal(lcA.Total(), new(big.Int).Add(openedA.Total(), BondedValue(openings)))
	assert.Equal(int64(15), closedA.Total().Int64())
	assert.Equal(int64(10), closedB.Total().Int64())
	assert.Equal(int64(25), new(big.Int).Add(closedA.Total(), closedB.Total()).Int64())
}

func TestDecompositionKeepsOtherChannels(t *testing.T) {
	assert := assert.New(t)

	lc := types.NewTestLedgerState("lc", alice.Address(), hubKey.Address(), 20, 20)
	first := types.NewTestVirtualOpening("vc1", alice.Address(), bob.Address(), 4)
	second := types.NewTestVirtualOpening("vc2", alice.Address(), bob.Address(), 6)

	one, err := LedgerUpdateOnVirtualOpen(lc, nil, first)
	require.Nil(t, err)
	two, err := LedgerUpdateOnVirtualOpen(one, []*types.VirtualChannelState{first}, second)
	require.Nil(t, err)
	assert.Equal(uint32(2), two.OpenVcCount)
	assert.Equal(int64(10), two.BalanceA.Int64())

	closed, err := LedgerUpdateOnVirtualClose(two, []*types.VirtualChannelState{second, first}, first)
	require.Nil(t, err)
	assert.Equal(uint32(1), closed.OpenVcCount)
	assert.Equal(int64(14), closed.BalanceA.Int64())

	root, err := commitment.BuildRoot([]*types.VirtualChannelState{second})
	require.Nil(t, err)
	assert.Equal(root, closed.VcRootHash)
}

func TestDecompositionErrors(t *testing.T) {
	lc := types.NewTestLedgerState("lc", alice.Address(), hubKey.Address(), 5, 5)
	opening := types.NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 5)
	carol := types.TestIdentity("carol")

	_, err := LedgerUpdateOnVirtualOpen(lc, nil, types.NewTestVirtualOpening("vc", carol.Address(), bob.Address(), 1))
	assert.True(t, result.IsValidation(err, result.CodePartyMismatch))

	_, err = LedgerUpdateOnVirtualOpen(lc, nil, types.NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 6))
	assert.True(t, result.IsValidation(err, result.CodeInsufficientFunds))

	// The openings do not reproduce the root the ledger channel commits to.
	_, err = LedgerUpdateOnVirtualOpen(lc, []*types.VirtualChannelState{opening}, opening)
	assert.True(t, result.IsValidation(err, result.CodeRootHashMismatch))

	opened, err := LedgerUpdateOnVirtualOpen(lc, nil, opening)
	require.Nil(t, err)
	_, err = LedgerUpdateOnVirtualOpen(opened, []*types.VirtualChannelState{opening}, opening)
	assert.True(t, result.IsValidation(err, result.CodeInvalidVcCountDelta))

	unknown := types.NewTestVirtualOpening("other", alice.Address(), bob.Address(), 5)
	_, err = LedgerUpdateOnVirtualClose(opened, []*types.VirtualChannelState{opening}, unknown)
	assert.True(t, result.IsValidation(err, result.CodeRootHashMismatch))

	inflated := opening.Copy()
	inflated.Nonce = 3
	inflated.BalanceB = big.NewInt(1)
	_, err = LedgerUpdateOnVirtualClose(opened, []*types.VirtualChannelState{opening}, inflated)
	assert.True(t, result.IsValidation(err, result.CodeBalanceNotConserved))
}
