package hub

import (
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/types"
)

const (
	MethodChallengeTimer           = "hub.GetChallengeTimer"
	MethodLedgerChannel            = "hub.GetLedgerChannel"
	MethodLedgerChannelByParty     = "hub.GetLedgerChannelByParty"
	MethodLatestLedgerUpdate       = "hub.GetLatestLedgerUpdate"
	MethodVirtualOpeningStates     = "hub.GetVirtualOpeningStates"
	MethodVirtualChannel           = "hub.GetVirtualChannel"
	MethodLatestVirtualUpdate      = "hub.GetLatestVirtualUpdate"
	MethodVirtualOpening           = "hub.GetVirtualOpening"
	MethodProposeLedgerUpdate      = "hub.ProposeLedgerUpdate"
	MethodProposeVirtualUpdate     = "hub.ProposeVirtualUpdate"
	MethodOpenVirtualChannel       = "hub.OpenVirtualChannel"
	MethodJoinVirtualChannel       = "hub.JoinVirtualChannel"
	MethodFastCloseVirtualChannel  = "hub.FastCloseVirtualChannel"
	MethodRequestJoinLedgerChannel = "hub.RequestJoinLedgerChannel"
	MethodRequestDeposit           = "hub.RequestDeposit"
)

// JSON-RPC error codes the hub uses for protocol outcomes.
const (
	ErrorCodeRefused  = 1001
	ErrorCodeNotFound = 1004
)

// ------------------------------- Args ----------------------------------- //

type ChannelArgs struct {
	ChannelID common.Hash `json:"channel_id"`
}

type PartyArgs struct {
	Address common.Address `json:"address"`
}

type LedgerUpdateArgs struct {
	Update *types.SignedLedgerUpdate `json:"update"`
}

type VirtualUpdateArgs struct {
	Update *types.SignedVirtualUpdate `json:"update"`
}

type CertificateArgs struct {
	Certificate *types.OpeningCertificate `json:"certificate"`
}

type FastCloseArgs struct {
	ChannelID common.Hash               `json:"channel_id"`
	Update    *types.SignedLedgerUpdate `json:"update"`
}

type DepositArgs struct {
	ChannelID common.Hash     `json:"channel_id"`
	Amount    *common.JSONBig `json:"amount"`
}

// ------------------------------- Results ----------------------------------- //

type ChallengeTimerResult struct {
	Seconds common.JSONUint64 `json:"seconds"`
}

type CountersignResult struct {
	Signature *crypto.Signature `json:"signature"`
}

type OpeningStatesResult struct {
	States []*types.VirtualChannelState `json:"states"`
}

type TxResult struct {
	TxHash common.Hash `json:"tx_hash"`
}

type AckResult struct {
	Accepted bool `json:"accepted"`
}
