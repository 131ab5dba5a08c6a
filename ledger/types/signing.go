package types

import (
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

// RecoverLCSigner returns who signed the given ledger channel state.
func RecoverLCSigner(state *LedgerChannelState, sig *crypto.Signature) (common.Address, error) {
	fp, err := FingerprintLC(state)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.RecoverSigner(fp, sig)
}

// RecoverVCSigner returns who signed the given virtual channel state.
func RecoverVCSigner(state *VirtualChannelState, sig *crypto.Signature) (common.Address, error) {
	fp, err := FingerprintVC(state)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.RecoverSigner(fp, sig)
}
