package validator

import (
	"math/big"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

// Role is the party proposing a transition.
type Role byte

const (
	RolePartyA Role = iota
	RolePartyB
	RoleHub
)

func (r Role) String() string {
	switch r {
	case RolePartyA:
		return "partyA"
	case RolePartyB:
		return "partyB"
	case RoleHub:
		return "hub"
	}
	return "unknown"
}

// LedgerFacts are the external facts a ledger channel transition is checked against.
type LedgerFacts struct {
	Role Role

	// Escrowed is the value deposited on chain. Checked on creation only, nil skips the check.
	Escrowed *big.Int

	// PriorBonded and ProposedBonded are the value locked in open virtual
	// channels before and after the transition. nil means zero.
	PriorBonded    *big.Int
	ProposedBonded *big.Int

	// ExpectedRoot is the commitment root recomputed by the caller over the
	// open virtual channels, nil skips the check.
	ExpectedRoot *common.Hash
}

// VirtualFacts are the external facts a virtual channel transition is checked against.
type VirtualFacts struct {
	Role Role

	// Available is what party A can still bond in its ledger channel.
	// Checked on creation only, nil skips the check.
	Available *big.Int
}

// ValidateLedgerTransition checks proposed against prev. prev == nil means
// proposed creates the channel. It never mutates its arguments.
func ValidateLedgerTransition(prev *types.LedgerChannelState, proposed *types.LedgerChannelState, facts LedgerFacts) result.Result {
	if proposed == nil {
		return result.Error("No proposed ledger channel state").WithErrorCode(result.CodeMalformedState)
	}
	if facts.Role == RolePartyB {
		return result.Error("partyB cannot propose ledger channel states").WithErrorCode(result.CodeUnauthorizedRole)
	}
	if res := checkBalances(proposed.BalanceA, proposed.BalanceHub); res.IsError() {
		return res
	}
	if err := proposed.ValidateBasic(); err != nil {
		return result.Error("%v", err).WithErrorCode(result.CodeMalformedState)
	}

	if prev == nil {
		return validateLedgerCreation(proposed, facts)
	}

	if proposed.ChannelID != prev.ChannelID || proposed.PartyA != prev.PartyA || proposed.PartyHub != prev.PartyHub {
		return result.Error("Channel id or parties changed: %v -> %v", prev, proposed).
			WithErrorCode(result.CodePartyMismatch)
	}
	if prev.IsClosing {
		return result.Error("Ledger channel %v is closing at nonce %v", prev.ChannelID.Hex(), prev.Nonce).
			WithErrorCode(result.CodeChannelClosed)
	}
	if proposed.Nonce != prev.Nonce+1 {
		return result.Error("Got nonce %v, expected %v", proposed.Nonce, prev.Nonce+1).
			WithErrorCode(result.CodeNonceGap)
	}
	if res := checkBalances(facts.PriorBonded, facts.ProposedBonded); res.IsError() {
		return res
	}

	before := new(big.Int).Add(prev.Total(), orZero(facts.PriorBonded))
	after := new(big.Int).Add(proposed.Total(), orZero(facts.ProposedBonded))
	if before.Cmp(after) != 0 {
		return result.Error("Ledger channel value %v, expected %v", after, before).
			WithErrorCode(result.CodeBalanceNotConserved)
	}

	delta := int64(proposed.OpenVcCount) - int64(prev.OpenVcCount)
	if delta > 1 || delta < -1 {
		return result.Error("Open virtual channels changed from %v to %v", prev.OpenVcCount, proposed.OpenVcCount).
			WithErrorCode(result.CodeInvalidVcCountDelta)
	}
	if proposed.IsClosing && proposed.OpenVcCount != 0 {
		return result.Error("Closing state with %v open virtual channels", proposed.OpenVcCount).
			WithErrorCode(result.CodeInvalidVcCountDelta)
	}

	return checkRoot(proposed, facts.ExpectedRoot)
}

func validateLedgerCreation(proposed *types.LedgerChannelState, facts LedgerFacts) result.Result {
	if proposed.PartyA == proposed.PartyHub {
		return result.Error("Party A and hub are both %v", proposed.PartyA.Hex()).
			WithErrorCode(result.CodeSelfChannel)
	}
	if proposed.Nonce != 0 {
		return result.Error("Got nonce %v, expected 0", proposed.Nonce).
			WithErrorCode(result.CodeNonceGap)
	}
	if proposed.OpenVcCount != 0 {
		return result.Error("New ledger channel with %v open virtual channels", proposed.OpenVcCount).
			WithErrorCode(result.CodeInvalidVcCountDelta)
	}
	if proposed.VcRootHash != commitment.EmptyRoot {
		return result.Error("New ledger channel with root %v", proposed.VcRootHash.Hex()).
			WithErrorCode(result.CodeRootHashMismatch)
	}
	if proposed.IsClosing {
		return result.Error("New ledger channel cannot be closing").
			WithErrorCode(result.CodeChannelClosed)
	}
	if facts.Escrowed != nil && proposed.Total().Cmp(facts.Escrowed) > 0 {
		return result.Error("Balances total %v, only %v escrowed", proposed.Total(), facts.Escrowed).
			WithErrorCode(result.CodeInsufficientFunds)
	}
	return result.OK
}

func checkRoot(proposed *types.LedgerChannelState, expected *common.Hash) result.Result {
	if proposed.OpenVcCount == 0 && proposed.VcRootHash != commitment.EmptyRoot {
		return result.Error("No open virtual channels but root is %v", proposed.VcRootHash.Hex()).
			WithErrorCode(result.CodeRootHashMismatch)
	}
	if proposed.OpenVcCount > 0 && proposed.VcRootHash == commitment.EmptyRoot {
		return result.Error("%v open virtual channels but root is empty", proposed.OpenVcCount).
			WithErrorCode(result.CodeRootHashMismatch)
	}
	if expected != nil && *expected != proposed.VcRootHash {
		return result.Error("Got root %v, expected %v", proposed.VcRootHash.Hex(), expected.Hex()).
			WithErrorCode(result.CodeRootHashMismatch)
	}
	return result.OK
}

// ValidateVirtualTransition checks proposed against prev. prev == nil means
// proposed opens the channel. Only party A, the payer, proposes states.
func ValidateVirtualTransition(prev *types.VirtualChannelState, proposed *types.VirtualChannelState, facts VirtualFacts) result.Result {
	if proposed == nil {
		return result.Error("No proposed virtual channel state").WithErrorCode(result.CodeMalformedState)
	}
	if facts.Role != RolePartyA {
		return result.Error("%v cannot propose virtual channel states", facts.Role).
			WithErrorCode(result.CodeUnauthorizedRole)
	}
	if res := checkBalances(proposed.BalanceA, proposed.BalanceB); res.IsError() {
		return res
	}
	if err := proposed.ValidateBasic(); err != nil {
		return result.Error("%v", err).WithErrorCode(result.CodeMalformedState)
	}

	if prev == nil {
		return validateVirtualCreation(proposed, facts)
	}

	if proposed.ChannelID != prev.ChannelID || proposed.PartyA != prev.PartyA || proposed.PartyB != prev.PartyB {
		return result.Error("Channel id or parties changed: %v -> %v", prev, proposed).
			WithErrorCode(result.CodePartyMismatch)
	}
	if proposed.Nonce != prev.Nonce+1 {
		return result.Error("Got nonce %v, expected %v", proposed.Nonce, prev.Nonce+1).
			WithErrorCode(result.CodeNonceGap)
	}
	if proposed.Total().Cmp(prev.Total()) != 0 {
		return result.Error("Virtual channel value %v, expected %v", proposed.Total(), prev.Total()).
			WithErrorCode(result.CodeBalanceNotConserved)
	}
	if proposed.BalanceB.Cmp(prev.BalanceB) < 0 {
		return result.Error("Payments only flow from party A to party B: balanceB %v -> %v", prev.BalanceB, proposed.BalanceB).
			WithErrorCode(result.CodeUnauthorizedRole)
	}
	return result.OK
}

func validateVirtualCreation(proposed *types.VirtualChannelState, facts VirtualFacts) result.Result {
	if proposed.PartyA == proposed.PartyB {
		return result.Error("Party A and party B are both %v", proposed.PartyA.Hex()).
			WithErrorCode(result.CodeSelfChannel)
	}
	if proposed.Nonce != 0 {
		return result.Error("Got nonce %v, expected 0", proposed.Nonce).
			WithErrorCode(result.CodeNonceGap)
	}
	if proposed.BalanceB.Sign() != 0 || proposed.BalanceA.Sign() <= 0 {
		return result.Error("Opening balances must be (>0, 0), got (%v, %v)", proposed.BalanceA, proposed.BalanceB).
			WithErrorCode(result.CodeInvalidOpeningBalance)
	}
	if facts.Available != nil && proposed.BalanceA.Cmp(facts.Available) > 0 {
		return result.Error("Bond %v exceeds the %v available in the ledger channel", proposed.BalanceA, facts.Available).
			WithErrorCode(result.CodeInsufficientFunds)
	}
	return result.OK
}

func checkBalances(balances ...*big.Int) result.Result {
	for _, b := range balances {
		if b != nil && b.Sign() < 0 {
			return result.Error("Negative balance %v", b).WithErrorCode(result.CodeNegativeBalance)
		}
	}
	return result.OK
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return common.Big0
	}
	return x
}
