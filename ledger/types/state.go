package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/hashicorp/go-multierror"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
)

//
// LedgerChannelState is one signed version of the ledger channel between a
// participant (party A) and the hub.
//
type LedgerChannelState struct {
	ChannelID   common.Hash
	PartyA      common.Address
	PartyHub    common.Address
	Nonce       uint64
	OpenVcCount uint32
	VcRootHash  common.Hash
	BalanceA    *big.Int
	BalanceHub  *big.Int
	IsClosing   bool
}

// ValidateBasic checks that every field can be encoded. All problems are
// reported at once.
func (s *LedgerChannelState) ValidateBasic() error {
	var errs *multierror.Error
	if s.ChannelID == (common.Hash{}) {
		errs = multierror.Append(errs, result.Malformed("channelId", "zero channel id"))
	}
	if s.PartyA == (common.Address{}) {
		errs = multierror.Append(errs, result.Malformed("partyA", "zero address"))
	}
	if s.PartyHub == (common.Address{}) {
		errs = multierror.Append(errs, result.Malformed("partyHub", "zero address"))
	}
	errs = appendBalanceErrors(errs, "balanceA", s.BalanceA)
	errs = appendBalanceErrors(errs, "balanceHub", s.BalanceHub)
	return errs.ErrorOrNil()
}

// Total returns balanceA + balanceHub.
func (s *LedgerChannelState) Total() *big.Int {
	return new(big.Int).Add(bigOrZero(s.BalanceA), bigOrZero(s.BalanceHub))
}

// Copy returns a deep copy.
func (s *LedgerChannelState) Copy() *LedgerChannelState {
	cp := *s
	cp.BalanceA = copyBig(s.BalanceA)
	cp.BalanceHub = copyBig(s.BalanceHub)
	return &cp
}

// Next returns a copy with the nonce advanced by one.
func (s *LedgerChannelState) Next() *LedgerChannelState {
	next := s.Copy()
	next.Nonce++
	return next
}

func (s *LedgerChannelState) String() string {
	return fmt.Sprintf("LC{id: %v, nonce: %v, A: %v(%v), hub: %v(%v), openVcs: %v, root: %v, closing: %v}",
		s.ChannelID.Hex(), s.Nonce, s.PartyA.Hex(), s.BalanceA, s.PartyHub.Hex(), s.BalanceHub,
		s.OpenVcCount, s.VcRootHash.Hex(), s.IsClosing)
}

type LedgerChannelStateJSON struct {
	ChannelID   common.Hash       `json:"channel_id"`
	PartyA      common.Address    `json:"party_a"`
	PartyHub    common.Address    `json:"party_hub"`
	Nonce       common.JSONUint64 `json:"nonce"`
	OpenVcCount common.JSONUint64 `json:"open_vc_count"`
	VcRootHash  common.Hash       `json:"vc_root_hash"`
	BalanceA    *common.JSONBig   `json:"balance_a"`
	BalanceHub  *common.JSONBig   `json:"balance_hub"`
	IsClosing   bool              `json:"is_closing"`
}

func NewLedgerChannelStateJSON(s LedgerChannelState) LedgerChannelStateJSON {
	return LedgerChannelStateJSON{
		ChannelID:   s.ChannelID,
		PartyA:      s.PartyA,
		PartyHub:    s.PartyHub,
		Nonce:       common.JSONUint64(s.Nonce),
		OpenVcCount: common.JSONUint64(s.OpenVcCount),
		VcRootHash:  s.VcRootHash,
		BalanceA:    common.NewJSONBig(s.BalanceA),
		BalanceHub:  common.NewJSONBig(s.BalanceHub),
		IsClosing:   s.IsClosing,
	}
}

func (sj LedgerChannelStateJSON) LedgerChannelState() (LedgerChannelState, error) {
	if uint64(sj.OpenVcCount) > uint64(^uint32(0)) {
		return LedgerChannelState{}, result.Malformed("openVcCount", "%v overflows uint32", uint64(sj.OpenVcCount))
	}
	return LedgerChannelState{
		ChannelID:   sj.ChannelID,
		PartyA:      sj.PartyA,
		PartyHub:    sj.PartyHub,
		Nonce:       uint64(sj.Nonce),
		OpenVcCount: uint32(sj.OpenVcCount),
		VcRootHash:  sj.VcRootHash,
		BalanceA:    jsonBigToInt(sj.BalanceA),
		BalanceHub:  jsonBigToInt(sj.BalanceHub),
		IsClosing:   sj.IsClosing,
	}, nil
}

func (s LedgerChannelState) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewLedgerChannelStateJSON(s))
}

func (s *LedgerChannelState) UnmarshalJSON(data []byte) error {
	var sj LedgerChannelStateJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	state, err := sj.LedgerChannelState()
	if err != nil {
		return err
	}
	*s = state
	return nil
}

//
// VirtualChannelState is one signed version of a virtual channel between
// party A (the payer) and party B, bonded through the hub.
//
type VirtualChannelState struct {
	ChannelID common.Hash
	PartyA    common.Address
	PartyB    common.Address
	Nonce     uint64
	BalanceA  *big.Int
	BalanceB  *big.Int
}

// ValidateBasic checks that every field can be encoded. All problems are
// reported at once.
func (s *VirtualChannelState) ValidateBasic() error {
	var errs *multierror.Error
	if s.ChannelID == (common.Hash{}) {
		errs = multierror.Append(errs, result.Malformed("channelId", "zero channel id"))
	}
	if s.PartyA == (common.Address{}) {
		errs = multierror.Append(errs, result.Malformed("partyA", "zero address"))
	}
	if s.PartyB == (common.Address{}) {
		errs = multierror.Append(errs, result.Malformed("partyB", "zero address"))
	}
	errs = appendBalanceErrors(errs, "balanceA", s.BalanceA)
	errs = appendBalanceErrors(errs, "balanceB", s.BalanceB)
	if errs == nil && s.HubBond().Cmp(common.MaxUint256) > 0 {
		errs = multierror.Append(errs, result.Malformed("hubBond", "exceeds uint256"))
	}
	return errs.ErrorOrNil()
}

// HubBond is the collateral the hub locks for this channel, balanceA + balanceB.
func (s *VirtualChannelState) HubBond() *big.Int {
	return new(big.Int).Add(bigOrZero(s.BalanceA), bigOrZero(s.BalanceB))
}

// Total is an alias of HubBond.
func (s *VirtualChannelState) Total() *big.Int {
	return s.HubBond()
}

// Copy returns a deep copy.
func (s *VirtualChannelState) Copy() *VirtualChannelState {
	cp := *s
	cp.BalanceA = copyBig(s.BalanceA)
	cp.BalanceB = copyBig(s.BalanceB)
	return &cp
}

// IsOpening returns true for the nonce 0 state committed in the ledger channels.
func (s *VirtualChannelState) IsOpening() bool {
	return s.Nonce == 0
}

func (s *VirtualChannelState) String() string {
	return fmt.Sprintf("VC{id: %v, nonce: %v, A: %v(%v), B: %v(%v)}",
		s.ChannelID.Hex(), s.Nonce, s.PartyA.Hex(), s.BalanceA, s.PartyB.Hex(), s.BalanceB)
}

type VirtualChannelStateJSON struct {
	ChannelID common.Hash       `json:"channel_id"`
	PartyA    common.Address    `json:"party_a"`
	PartyB    common.Address    `json:"party_b"`
	Nonce     common.JSONUint64 `json:"nonce"`
	BalanceA  *common.JSONBig   `json:"balance_a"`
	BalanceB  *common.JSONBig   `json:"balance_b"`
}

func NewVirtualChannelStateJSON(s VirtualChannelState) VirtualChannelStateJSON {
	return VirtualChannelStateJSON{
		ChannelID: s.ChannelID,
		PartyA:    s.PartyA,
		PartyB:    s.PartyB,
		Nonce:     common.JSONUint64(s.Nonce),
		BalanceA:  common.NewJSONBig(s.BalanceA),
		BalanceB:  common.NewJSONBig(s.BalanceB),
	}
}

func (sj VirtualChannelStateJSON) VirtualChannelState() VirtualChannelState {
	return VirtualChannelState{
		ChannelID: sj.ChannelID,
		PartyA:    sj.PartyA,
		PartyB:    sj.PartyB,
		Nonce:     uint64(sj.Nonce),
		BalanceA:  jsonBigToInt(sj.BalanceA),
		BalanceB:  jsonBigToInt(sj.BalanceB),
	}
}

func (s VirtualChannelState) MarshalJSON() ([]byte, error) {
	return json.Marshal(NewVirtualChannelStateJSON(s))
}

func (s *VirtualChannelState) UnmarshalJSON(data []byte) error {
	var sj VirtualChannelStateJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	*s = sj.VirtualChannelState()
	return nil
}

// ----------------------------- Helpers ----------------------------- //

func appendBalanceErrors(errs *multierror.Error, field string, balance *big.Int) *multierror.Error {
	switch {
	case balance == nil:
		return multierror.Append(errs, result.Malformed(field, "missing"))
	case balance.Sign() < 0:
		return multierror.Append(errs, result.Malformed(field, "negative value %v", balance))
	case balance.Cmp(common.MaxUint256) > 0:
		return multierror.Append(errs, result.Malformed(field, "exceeds uint256"))
	}
	return errs
}

func bigOrZero(x *big.Int) *big.Int {
	if x == nil {
		return common.Big0
	}
	return x
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func jsonBigToInt(x *common.JSONBig) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x.ToInt())
}
