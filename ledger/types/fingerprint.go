package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

const (
	// LCEncodingLength is the packed size of a ledger channel state.
	LCEncodingLength = 1 + 32 + 32 + 32 + 20 + 20 + 32 + 32
	// VCEncodingLength is the packed size of a virtual channel state.
	VCEncodingLength = 32 + 32 + 20 + 20 + 32 + 32 + 32
)

// packer appends fields in the contract's tightly packed layout.
type packer struct {
	buf []byte
}

func (p *packer) bytes32(h common.Hash) *packer {
	p.buf = append(p.buf, h[:]...)
	return p
}

func (p *packer) address(a common.Address) *packer {
	p.buf = append(p.buf, a[:]...)
	return p
}

func (p *packer) boolean(b bool) *packer {
	if b {
		p.buf = append(p.buf, 1)
	} else {
		p.buf = append(p.buf, 0)
	}
	return p
}

func (p *packer) uint256(x *big.Int) *packer {
	p.buf = append(p.buf, math.PaddedBigBytes(x, 32)...)
	return p
}

func (p *packer) uint64(x uint64) *packer {
	return p.uint256(new(big.Int).SetUint64(x))
}

// EncodeLC returns the packed encoding of a ledger channel state:
// isClosing, nonce, openVcCount, vcRootHash, partyA, partyHub, balanceA,
// balanceHub. The channel id is not part of it, the contract passes it
// separately.
func EncodeLC(s *LedgerChannelState) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil ledger channel state")
	}
	if err := s.ValidateBasic(); err != nil {
		return nil, err
	}
	p := &packer{buf: make([]byte, 0, LCEncodingLength)}
	p.boolean(s.IsClosing).
		uint64(s.Nonce).
		uint64(uint64(s.OpenVcCount)).
		bytes32(s.VcRootHash).
		address(s.PartyA).
		address(s.PartyHub).
		uint256(s.BalanceA).
		uint256(s.BalanceHub)
	return p.buf, nil
}

// EncodeVC returns the packed encoding of a virtual channel state:
// channelId, nonce, partyA, partyB, hubBond, balanceA, balanceB.
func EncodeVC(s *VirtualChannelState) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil virtual channel state")
	}
	if err := s.ValidateBasic(); err != nil {
		return nil, err
	}
	p := &packer{buf: make([]byte, 0, VCEncodingLength)}
	p.bytes32(s.ChannelID).
		uint64(s.Nonce).
		address(s.PartyA).
		address(s.PartyB).
		uint256(s.HubBond()).
		uint256(s.BalanceA).
		uint256(s.BalanceB)
	return p.buf, nil
}

// FingerprintLC is the keccak256 of EncodeLC. This is the message both
// parties sign.
func FingerprintLC(s *LedgerChannelState) (common.Hash, error) {
	enc, err := EncodeLC(s)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// FingerprintVC is the keccak256 of EncodeVC.
func FingerprintVC(s *VirtualChannelState) (common.Hash, error) {
	enc, err := EncodeVC(s)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
