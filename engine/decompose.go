package engine

import (
	"math/big"

	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

// LedgerUpdateOnVirtualOpen derives the ledger channel update that bonds
// opening into lc. openings are the virtual channels lc currently commits
// to and must reproduce lc's root.
//
// The owner of lc may be either side of the virtual channel. Its own share
// of the virtual channel leaves balanceA, the other side's share is bonded
// by the hub out of balanceHub.
func LedgerUpdateOnVirtualOpen(lc *types.LedgerChannelState, openings []*types.VirtualChannelState,
	opening *types.VirtualChannelState) (*types.LedgerChannelState, error) {
	if err := checkCommitment(lc, openings); err != nil {
		return nil, err
	}
	for _, o := range openings {
		if o.ChannelID == opening.ChannelID {
			return nil, result.Error("Virtual channel %v is already bonded in %v", opening.ChannelID.Hex(), lc.ChannelID.Hex()).
				WithErrorCode(result.CodeInvalidVcCountDelta).Err()
		}
	}
	own, other, err := shares(lc, opening)
	if err != nil {
		return nil, err
	}

	next := lc.Next()
	next.BalanceA = new(big.Int).Sub(lc.BalanceA, own)
	next.BalanceHub = new(big.Int).Sub(lc.BalanceHub, other)
	if next.BalanceA.Sign() < 0 || next.BalanceHub.Sign() < 0 {
		return nil, result.Error("Ledger channel %v cannot bond %v/%v out of %v/%v",
			lc.ChannelID.Hex(), own, other, lc.BalanceA, lc.BalanceHub).
			WithErrorCode(result.CodeInsufficientFunds).Err()
	}

	bonded := append(append([]*types.VirtualChannelState{}, openings...), opening)
	root, err := commitment.BuildRoot(bonded)
	if err != nil {
		return nil, err
	}
	next.OpenVcCount = uint32(len(bonded))
	next.VcRootHash = root
	return next, nil
}

// LedgerUpdateOnVirtualClose derives the ledger channel update that unbonds
// the virtual channel whose final state is final. The leaf is removed and
// each side's final share flows back to the ledger balance it was bonded from.
func LedgerUpdateOnVirtualClose(lc *types.LedgerChannelState, openings []*types.VirtualChannelState,
	final *types.VirtualChannelState) (*types.LedgerChannelState, error) {
	if err := checkCommitment(lc, openings); err != nil {
		return nil, err
	}

	var remaining []*types.VirtualChannelState
	var opening *types.VirtualChannelState
	for _, o := range openings {
		if o.ChannelID == final.ChannelID {
			opening = o
			continue
		}
		remaining = append(remaining, o)
	}
	if opening == nil {
		return nil, result.Error("Virtual channel %v is not bonded in %v", final.ChannelID.Hex(), lc.ChannelID.Hex()).
			WithErrorCode(result.CodeRootHashMismatch).Err()
	}
	if opening.HubBond().Cmp(final.Total()) != 0 {
		return nil, result.Error("Virtual channel %v settles %v, bonded %v", final.ChannelID.Hex(), final.Total(), opening.HubBond()).
			WithErrorCode(result.CodeBalanceNotConserved).Err()
	}
	own, other, err := shares(lc, final)
	if err != nil {
		return nil, err
	}

	root, err := commitment.BuildRoot(remaining)
	if err != nil {
		return nil, err
	}
	next := lc.Next()
	next.BalanceA = new(big.Int).Add(lc.BalanceA, own)
	next.BalanceHub = new(big.Int).Add(lc.BalanceHub, other)
	next.OpenVcCount = uint32(len(remaining))
	next.VcRootHash = root
	return next, nil
}

// BondedValue sums the hub bond of every virtual channel in openings.
func BondedValue(openings []*types.VirtualChannelState) *big.Int {
	total := big.NewInt(0)
	for _, o := range openings {
		total.Add(total, o.HubBond())
	}
	return total
}

// shares splits vc into the part belonging to lc's owner and the rest.
func shares(lc *types.LedgerChannelState, vc *types.VirtualChannelState) (own, other *big.Int, err error) {
	switch lc.PartyA {
	case vc.PartyA:
		return vc.BalanceA, vc.BalanceB, nil
	case vc.PartyB:
		return vc.BalanceB, vc.BalanceA, nil
	}
	return nil, nil, result.Error("%v is not a party of virtual channel %v", lc.PartyA.Hex(), vc.ChannelID.Hex()).
		WithErrorCode(result.CodePartyMismatch).Err()
}

func checkCommitment(lc *types.LedgerChannelState, openings []*types.VirtualChannelState) error {
	if int(lc.OpenVcCount) != len(openings) {
		return result.Error("Ledger channel %v has %v open virtual channels, got %v openings",
			lc.ChannelID.Hex(), lc.OpenVcCount, len(openings)).
			WithErrorCode(result.CodeRootHashMismatch).Err()
	}
	root, err := commitment.BuildRoot(openings)
	if err != nil {
		return err
	}
	if root != lc.VcRootHash {
		return result.Error("Openings commit to %v, ledger channel %v has %v", root.Hex(), lc.ChannelID.Hex(), lc.VcRootHash.Hex()).
			WithErrorCode(result.CodeRootHashMismatch).Err()
	}
	return nil
}
