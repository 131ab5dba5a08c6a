package types

import (
	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
)

const (
	SignerPartyA   = "partyA"
	SignerPartyB   = "partyB"
	SignerPartyHub = "hub"
)

//
// SignedLedgerUpdate is an immutable ledger channel state together with its
// fingerprint and the signatures collected so far.
//
type SignedLedgerUpdate struct {
	State       LedgerChannelState `json:"state"`
	Fingerprint common.Hash        `json:"fingerprint"`
	SigA        *crypto.Signature  `json:"sig_a,omitempty"`
	SigHub      *crypto.Signature  `json:"sig_hub,omitempty"`
}

// NewSignedLedgerUpdate fingerprints a copy of state. No signature is attached yet.
func NewSignedLedgerUpdate(state *LedgerChannelState) (*SignedLedgerUpdate, error) {
	fp, err := FingerprintLC(state)
	if err != nil {
		return nil, err
	}
	return &SignedLedgerUpdate{State: *state.Copy(), Fingerprint: fp}, nil
}

// Sign attaches a signature to the slot of the party owning key.
func (u *SignedLedgerUpdate) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("no signing identity provided")
	}
	sig, err := crypto.SignFingerprint(u.Fingerprint, key)
	if err != nil {
		return err
	}
	switch key.Address() {
	case u.State.PartyA:
		u.SigA = sig
	case u.State.PartyHub:
		u.SigHub = sig
	default:
		return result.Error("%v is not a party of ledger channel %v", key.Address().Hex(), u.State.ChannelID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}
	return nil
}

// VerifySignatures recomputes the fingerprint and checks every attached
// signature against its party.
func (u *SignedLedgerUpdate) VerifySignatures() error {
	fp, err := FingerprintLC(&u.State)
	if err != nil {
		return err
	}
	if fp != u.Fingerprint {
		return result.Malformed("fingerprint", "%v does not match state, expected %v", u.Fingerprint.Hex(), fp.Hex())
	}
	if u.SigA != nil {
		if err := crypto.VerifySigner(SignerPartyA, u.State.PartyA, fp, u.SigA); err != nil {
			return err
		}
	}
	if u.SigHub != nil {
		if err := crypto.VerifySigner(SignerPartyHub, u.State.PartyHub, fp, u.SigHub); err != nil {
			return err
		}
	}
	return nil
}

// IsCountersigned returns true when both parties have signed.
func (u *SignedLedgerUpdate) IsCountersigned() bool {
	return u.SigA != nil && u.SigHub != nil
}

// Copy returns a deep copy.
func (u *SignedLedgerUpdate) Copy() *SignedLedgerUpdate {
	cp := *u
	cp.State = *u.State.Copy()
	return &cp
}

//
// SignedVirtualUpdate is an immutable virtual channel state together with its
// fingerprint and the signatures collected so far.
//
type SignedVirtualUpdate struct {
	State       VirtualChannelState `json:"state"`
	Fingerprint common.Hash         `json:"fingerprint"`
	SigA        *crypto.Signature   `json:"sig_a,omitempty"`
	SigB        *crypto.Signature   `json:"sig_b,omitempty"`
}

// NewSignedVirtualUpdate fingerprints a copy of state. No signature is attached yet.
func NewSignedVirtualUpdate(state *VirtualChannelState) (*SignedVirtualUpdate, error) {
	fp, err := FingerprintVC(state)
	if err != nil {
		return nil, err
	}
	return &SignedVirtualUpdate{State: *state.Copy(), Fingerprint: fp}, nil
}

// Sign attaches a signature to the slot of the party owning key.
func (u *SignedVirtualUpdate) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("no signing identity provided")
	}
	sig, err := crypto.SignFingerprint(u.Fingerprint, key)
	if err != nil {
		return err
	}
	switch key.Address() {
	case u.State.PartyA:
		u.SigA = sig
	case u.State.PartyB:
		u.SigB = sig
	default:
		return result.Error("%v is not a party of virtual channel %v", key.Address().Hex(), u.State.ChannelID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}
	return nil
}

// VerifySignatures recomputes the fingerprint and checks every attached
// signature against its party.
func (u *SignedVirtualUpdate) VerifySignatures() error {
	fp, err := FingerprintVC(&u.State)
	if err != nil {
		return err
	}
	if fp != u.Fingerprint {
		return result.Malformed("fingerprint", "%v does not match state, expected %v", u.Fingerprint.Hex(), fp.Hex())
	}
	if u.SigA != nil {
		if err := crypto.VerifySigner(SignerPartyA, u.State.PartyA, fp, u.SigA); err != nil {
			return err
		}
	}
	if u.SigB != nil {
		if err := crypto.VerifySigner(SignerPartyB, u.State.PartyB, fp, u.SigB); err != nil {
			return err
		}
	}
	return nil
}

// IsCountersigned returns true when both parties have signed.
func (u *SignedVirtualUpdate) IsCountersigned() bool {
	return u.SigA != nil && u.SigB != nil
}

// Copy returns a deep copy.
func (u *SignedVirtualUpdate) Copy() *SignedVirtualUpdate {
	cp := *u
	cp.State = *u.State.Copy()
	return &cp
}

// OpeningCertificate is what a party submits to the hub to open or join a
// virtual channel: the signed nonce 0 state and the paired ledger update
// that bonds it.
type OpeningCertificate struct {
	VirtualOpening SignedVirtualUpdate `json:"virtual_opening"`
	LedgerUpdate   SignedLedgerUpdate  `json:"ledger_update"`
}
