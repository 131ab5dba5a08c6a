package types

// Helper functions for testing

import (
	"fmt"
	"math/big"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

// TestIdentity derives a deterministic key from secret.
func TestIdentity(secret string) *crypto.PrivateKey {
	privKey, _, err := crypto.TEST_GenerateKeyPairWithSeed(secret)
	if err != nil {
		panic(fmt.Sprintf("Failed to generate private key: %v", err))
	}
	return privKey
}

// TestChannelID derives a deterministic channel id from name.
func TestChannelID(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// NewTestLedgerState returns a freshly opened ledger channel with no virtual channels.
func NewTestLedgerState(name string, partyA, hub common.Address, balanceA, balanceHub int64) *LedgerChannelState {
	return &LedgerChannelState{
		ChannelID:  TestChannelID(name),
		PartyA:     partyA,
		PartyHub:   hub,
		BalanceA:   big.NewInt(balanceA),
		BalanceHub: big.NewInt(balanceHub),
	}
}

// NewTestVirtualOpening returns the nonce 0 state of a virtual channel funded by A.
func NewTestVirtualOpening(name string, partyA, partyB common.Address, bond int64) *VirtualChannelState {
	return &VirtualChannelState{
		ChannelID: TestChannelID(name),
		PartyA:    partyA,
		PartyB:    partyB,
		BalanceA:  big.NewInt(bond),
		BalanceB:  big.NewInt(0),
	}
}
