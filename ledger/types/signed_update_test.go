package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/common/result"
)

func TestSignedLedgerUpdate(t *testing.T) {
	require := require.New(t)

	alice := TestIdentity("alice")
	hub := TestIdentity("hub")
	mallory := TestIdentity("mallory")

	state := NewTestLedgerState("lc", alice.Address(), hub.Address(), 10, 20)
	update, err := NewSignedLedgerUpdate(state)
	require.Nil(err)
	require.False(update.IsCountersigned())

	require.Nil(update.Sign(alice))
	require.Nil(update.VerifySignatures())
	require.False(update.IsCountersigned())

	require.Nil(update.Sign(hub))
	require.True(update.IsCountersigned())
	require.Nil(update.VerifySignatures())

	err = update.Sign(mallory)
	require.True(result.IsValidation(err, result.CodeUnauthorizedRole))

	signer, err := RecoverLCSigner(&update.State, update.SigHub)
	require.Nil(err)
	require.Equal(hub.Address(), signer)

	// The state inside the update is a copy.
	state.BalanceA.SetInt64(0)
	require.Equal(int64(10), update.State.BalanceA.Int64())

	// Tampering with the state breaks the fingerprint.
	tampered := update.Copy()
	tampered.State.BalanceA = big.NewInt(11)
	require.True(result.IsMalformed(tampered.VerifySignatures()))

	// A signature in the wrong slot is a signer mismatch.
	swapped := update.Copy()
	swapped.SigA, swapped.SigHub = update.SigHub, update.SigA
	require.True(result.IsSignature(swapped.VerifySignatures()))
}

func TestSignedVirtualUpdate(t *testing.T) {
	require := require.New(t)

	alice := TestIdentity("alice")
	bob := TestIdentity("bob")
	hub := TestIdentity("hub")

	opening := NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 5)
	update, err := NewSignedVirtualUpdate(opening)
	require.Nil(err)
	require.Nil(update.Sign(alice))
	require.Nil(update.Sign(bob))
	require.True(update.IsCountersigned())
	require.Nil(update.VerifySignatures())

	require.True(result.IsValidation(update.Sign(hub), result.CodeUnauthorizedRole))

	signer, err := RecoverVCSigner(&update.State, update.SigB)
	require.Nil(err)
	require.Equal(bob.Address(), signer)

	raw, err := json.Marshal(update)
	require.Nil(err)
	var decoded SignedVirtualUpdate
	require.Nil(json.Unmarshal(raw, &decoded))
	require.Nil(decoded.VerifySignatures())
	require.Equal(update.Fingerprint, decoded.Fingerprint)
	require.Equal(update.SigA.Hex(), decoded.SigA.Hex())
}

func TestSignedUpdateJSONOmitsMissingSignatures(t *testing.T) {
	assert := assert.New(t)

	alice := TestIdentity("alice")
	hub := TestIdentity("hub")
	update, err := NewSignedLedgerUpdate(NewTestLedgerState("lc", alice.Address(), hub.Address(), 1, 1))
	assert.Nil(err)
	assert.Nil(update.Sign(alice))

	raw, err := json.Marshal(update)
	assert.Nil(err)
	assert.Contains(string(raw), "sig_a")
	assert.NotContains(string(raw), "sig_hub")

	var decoded SignedLedgerUpdate
	assert.Nil(json.Unmarshal(raw, &decoded))
	assert.Nil(decoded.SigHub)
	assert.Nil(decoded.VerifySignatures())
}
