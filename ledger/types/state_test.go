package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStateJSON(t *testing.T) {
	require := require.New(t)

	s := sampleLedgerState()
	s.BalanceA, _ = new(big.Int).SetString("123456789012345678901234567890", 10)
	s.IsClosing = true

	raw, err := json.Marshal(s)
	require.Nil(err)
	require.Contains(string(raw), `"balance_a":"123456789012345678901234567890"`)
	require.Contains(string(raw), `"nonce":"7"`)

	var decoded LedgerChannelState
	require.Nil(json.Unmarshal(raw, &decoded))
	require.Equal(s.String(), decoded.String())
	require.Equal(0, s.BalanceA.Cmp(decoded.BalanceA))

	require.NotNil(json.Unmarshal([]byte(`{"balance_a":"-1"}`), &decoded))
	require.NotNil(json.Unmarshal([]byte(`{"open_vc_count":"4294967296"}`), &decoded))
	require.NotNil(json.Unmarshal([]byte(`{"nonce":"1.5"}`), &decoded))
}

func TestVirtualStateJSON(t *testing.T) {
	require := require.New(t)

	s := sampleVirtualState()
	raw, err := json.Marshal(s)
	require.Nil(err)

	var decoded VirtualChannelState
	require.Nil(json.Unmarshal(raw, &decoded))
	require.Equal(s.String(), decoded.String())

	fp1, _ := FingerprintVC(s)
	fp2, _ := FingerprintVC(&decoded)
	require.Equal(fp1, fp2)
}

func TestStateCopyAndTotals(t *testing.T) {
	assert := assert.New(t)

	lc := sampleLedgerState()
	cp := lc.Copy()
	cp.BalanceA.SetInt64(1)
	assert.Equal(int64(1000), lc.BalanceA.Int64())
	assert.Equal(int64(3000), lc.Total().Int64())

	next := lc.Next()
	assert.Equal(lc.Nonce+1, next.Nonce)
	assert.Equal(uint64(7), lc.Nonce)

	vc := sampleVirtualState()
	assert.Equal(int64(5), vc.HubBond().Int64())
	assert.Equal(vc.HubBond(), vc.Total())
	assert.False(vc.IsOpening())
	vcp := vc.Copy()
	vcp.BalanceB.SetInt64(100)
	assert.Equal(int64(2), vc.BalanceB.Int64())
}

func TestGenerateChannelID(t *testing.T) {
	assert := assert.New(t)

	id1 := GenerateChannelID()
	id2 := GenerateChannelID()
	assert.NotEqual(id1, id2)
	assert.NotEqual(TestChannelID(""), id1)
}
