package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
)

func sampleLedgerState() *LedgerChannelState {
	return &LedgerChannelState{
		ChannelID:   TestChannelID("lc"),
		PartyA:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PartyHub:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Nonce:       7,
		OpenVcCount: 2,
		VcRootHash:  TestChannelID("root"),
		BalanceA:    big.NewInt(1000),
		BalanceHub:  big.NewInt(2000),
		IsClosing:   false,
	}
}

func sampleVirtualState() *VirtualChannelState {
	return &VirtualChannelState{
		ChannelID: TestChannelID("vc"),
		PartyA:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PartyB:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Nonce:     3,
		BalanceA:  big.NewInt(3),
		BalanceB:  big.NewInt(2),
	}
}

func TestEncodeLCLayout(t *testing.T) {
	require := require.New(t)

	s := sampleLedgerState()
	s.IsClosing = true
	enc, err := EncodeLC(s)
	require.Nil(err)
	require.Equal(LCEncodingLength, len(enc))

	off := 0
	require.Equal(byte(1), enc[off])
	off++
	require.Equal(big.NewInt(7), new(big.Int).SetBytes(enc[off:off+32]))
	off += 32
	require.Equal(big.NewInt(2), new(big.Int).SetBytes(enc[off:off+32]))
	off += 32
	require.Equal(s.VcRootHash[:], enc[off:off+32])
	off += 32
	require.Equal(s.PartyA[:], enc[off:off+20])
	off += 20
	require.Equal(s.PartyHub[:], enc[off:off+20])
	off += 20
	require.Equal(big.NewInt(1000), new(big.Int).SetBytes(enc[off:off+32]))
	off += 32
	require.Equal(big.NewInt(2000), new(big.Int).SetBytes(enc[off:off+32]))
	off += 32
	require.Equal(len(enc), off)

	fp, err := FingerprintLC(s)
	require.Nil(err)
	require.Equal(crypto.Keccak256Hash(enc), fp)
}

func TestEncodeVCLayout(t *testing.T) {
	require := require.New(t)

	s := sampleVirtualState()
	enc, err := EncodeVC(s)
	require.Nil(err)
	require.Equal(VCEncodingLength, len(enc))

	require.Equal(s.ChannelID[:], enc[0:32])
	require.Equal(big.NewInt(3), new(big.Int).SetBytes(enc[32:64]))
	require.Equal(s.PartyA[:], enc[64:84])
	require.Equal(s.PartyB[:], enc[84:104])
	require.Equal(big.NewInt(5), new(big.Int).SetBytes(enc[104:136])) // hub bond
	require.Equal(big.NewInt(3), new(big.Int).SetBytes(enc[136:168]))
	require.Equal(big.NewInt(2), new(big.Int).SetBytes(enc[168:200]))
}

// The contract recomputes this hash, so the layout is fixed: bool, uint256
// nonce, uint256 openVcs, bytes32 root, address A, address hub, uint256
// balanceA, uint256 balanceHub, tightly packed.
func TestFingerprintLCMatchesContractLayout(t *testing.T) {
	require := require.New(t)

	s := sampleLedgerState()
	word := func(x int64) []byte {
		b := make([]byte, 32)
		big.NewInt(x).FillBytes(b)
		return b
	}
	var expected []byte
	expected = append(expected, 0)
	expected = append(expected, word(7)...)
	expected = append(expected, word(2)...)
	expected = append(expected, s.VcRootHash[:]...)
	expected = append(expected, s.PartyA[:]...)
	expected = append(expected, s.PartyHub[:]...)
	expected = append(expected, word(1000)...)
	expected = append(expected, word(2000)...)
	require.Equal(201, len(expected))

	enc, err := EncodeLC(s)
	require.Nil(err)
	require.Equal(expected, enc)

	fp, err := FingerprintLC(s)
	require.Nil(err)
	require.Equal(crypto.Keccak256Hash(expected), fp)

	// Only the channel id differs: same fingerprint.
	other := s.Copy()
	other.ChannelID = TestChannelID("another lc")
	fp2, err := FingerprintLC(other)
	require.Nil(err)
	require.Equal(fp, fp2)
}

func TestFingerprintDeterminism(t *testing.T) {
	assert := assert.New(t)

	lc := sampleLedgerState()
	fp1, err := FingerprintLC(lc)
	assert.Nil(err)
	fp2, err := FingerprintLC(lc.Copy())
	assert.Nil(err)
	assert.Equal(fp1, fp2)

	vc := sampleVirtualState()
	vfp1, err := FingerprintVC(vc)
	assert.Nil(err)
	vfp2, err := FingerprintVC(vc.Copy())
	assert.Nil(err)
	assert.Equal(vfp1, vfp2)
}

func TestFingerprintLCFieldMutations(t *testing.T) {
	assert := assert.New(t)

	base, err := FingerprintLC(sampleLedgerState())
	assert.Nil(err)

	mutations := map[string]func(s *LedgerChannelState){
		"partyA":      func(s *LedgerChannelState) { s.PartyA[0] ^= 1 },
		"partyHub":    func(s *LedgerChannelState) { s.PartyHub[19] ^= 1 },
		"nonce":       func(s *LedgerChannelState) { s.Nonce++ },
		"openVcCount": func(s *LedgerChannelState) { s.OpenVcCount-- },
		"vcRootHash":  func(s *LedgerChannelState) { s.VcRootHash[0] ^= 0x80 },
		"balanceA":    func(s *LedgerChannelState) { s.BalanceA.Add(s.BalanceA, common.Big1) },
		"balanceHub":  func(s *LedgerChannelState) { s.BalanceHub.Sub(s.BalanceHub, common.Big1) },
		"isClosing":   func(s *LedgerChannelState) { s.IsClosing = !s.IsClosing },
		"swapBalances": func(s *LedgerChannelState) {
			s.BalanceA, s.BalanceHub = s.BalanceHub, s.BalanceA
		},
	}

	seen := map[common.Hash]string{base: "base"}
	for name, mutate := range mutations {
		s := sampleLedgerState()
		mutate(s)
		fp, err := FingerprintLC(s)
		assert.Nil(err, name)
		prev, dup := seen[fp]
		assert.False(dup, "%s collides with %s", name, prev)
		seen[fp] = name
	}
}

func TestFingerprintVCFieldMutations(t *testing.T) {
	assert := assert.New(t)

	base, err := FingerprintVC(sampleVirtualState())
	assert.Nil(err)

	mutations := map[string]func(s *VirtualChannelState){
		"channelId": func(s *VirtualChannelState) { s.ChannelID[0] ^= 1 },
		"partyA":    func(s *VirtualChannelState) { s.PartyA[5] ^= 1 },
		"partyB":    func(s *VirtualChannelState) { s.PartyB[5] ^= 1 },
		"nonce":     func(s *VirtualChannelState) { s.Nonce++ },
		"balanceA":  func(s *VirtualChannelState) { s.BalanceA.Add(s.BalanceA, common.Big1) },
		"balanceB":  func(s *VirtualChannelState) { s.BalanceB.Add(s.BalanceB, common.Big1) },
		"resplit": func(s *VirtualChannelState) {
			s.BalanceA.Sub(s.BalanceA, common.Big1)
			s.BalanceB.Add(s.BalanceB, common.Big1)
		},
		"swapParties": func(s *VirtualChannelState) { s.PartyA, s.PartyB = s.PartyB, s.PartyA },
	}

	seen := map[common.Hash]string{base: "base"}
	for name, mutate := range mutations {
		s := sampleVirtualState()
		mutate(s)
		fp, err := FingerprintVC(s)
		assert.Nil(err, name)
		prev, dup := seen[fp]
		assert.False(dup, "%s collides with %s", name, prev)
		seen[fp] = name
	}
}

func TestFingerprintRejectsMalformed(t *testing.T) {
	assert := assert.New(t)

	lc := sampleLedgerState()
	lc.BalanceA = big.NewInt(-1)
	lc.PartyHub = common.Address{}
	_, err := FingerprintLC(lc)
	assert.True(result.IsMalformed(err))
	assert.Contains(err.Error(), "balanceA")
	assert.Contains(err.Error(), "partyHub")

	lc = sampleLedgerState()
	lc.BalanceHub = nil
	_, err = FingerprintLC(lc)
	assert.True(result.IsMalformed(err))

	lc = sampleLedgerState()
	lc.BalanceHub = new(big.Int).Add(common.MaxUint256, common.Big1)
	_, err = FingerprintLC(lc)
	assert.True(result.IsMalformed(err))

	vc := sampleVirtualState()
	vc.ChannelID = common.Hash{}
	_, err = FingerprintVC(vc)
	assert.True(result.IsMalformed(err))

	vc = sampleVirtualState()
	vc.BalanceA = new(big.Int).Set(common.MaxUint256)
	_, err = FingerprintVC(vc)
	assert.True(result.IsMalformed(err)) // hub bond overflows

	_, err = FingerprintLC(nil)
	assert.NotNil(err)
	_, err = FingerprintVC(nil)
	assert.NotNil(err)
}
