package hub

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/types"
)

var (
	// ErrRefused is returned when the hub declines to countersign.
	ErrRefused = errors.New("hub refused the update")

	// ErrNotFound is returned when the hub has no record of the channel.
	ErrNotFound = errors.New("hub has no such channel")
)

//
// Hub is the client's view of the hub: it relays and persists signed updates
// and countersigns ledger updates on its side of each ledger channel.
//
type Hub interface {
	ChallengeTimer(ctx context.Context) (time.Duration, error)

	LedgerChannel(ctx context.Context, lcID common.Hash) (*LedgerChannel, error)
	LedgerChannelByParty(ctx context.Context, party common.Address) (*LedgerChannel, error)
	LatestLedgerUpdate(ctx context.Context, lcID common.Hash) (*types.SignedLedgerUpdate, error)
	VirtualOpeningStates(ctx context.Context, lcID common.Hash) ([]*types.VirtualChannelState, error)

	VirtualChannel(ctx context.Context, vcID common.Hash) (*VirtualChannel, error)
	LatestVirtualUpdate(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error)
	VirtualOpening(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error)

	// ProposeLedgerUpdate asks the hub to countersign a ledger update. It
	// returns the hub signature or ErrRefused.
	ProposeLedgerUpdate(ctx context.Context, update *types.SignedLedgerUpdate) (*crypto.Signature, error)
	ProposeVirtualUpdate(ctx context.Context, update *types.SignedVirtualUpdate) error

	// OpenVirtualChannel and JoinVirtualChannel submit an opening certificate
	// and return the hub countersignature on its ledger update.
	OpenVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error)
	JoinVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error)

	// FastCloseVirtualChannel submits the ledger update that unbonds vcID and
	// returns the hub countersignature or ErrRefused.
	FastCloseVirtualChannel(ctx context.Context, vcID common.Hash, update *types.SignedLedgerUpdate) (*crypto.Signature, error)

	RequestJoinLedgerChannel(ctx context.Context, lcID common.Hash) (common.Hash, error)
	RequestDeposit(ctx context.Context, lcID common.Hash, amount *big.Int) (common.Hash, error)
}

// LedgerChannel is the hub's record of a ledger channel.
type LedgerChannel struct {
	State    types.LedgerChannelState `json:"state"`
	Status   types.ChannelStatus      `json:"status"`
	Escrowed *common.JSONBig          `json:"escrowed"`
}

// EscrowedFunds returns the value deposited on chain, or the state total when
// the hub did not report it.
func (lc *LedgerChannel) EscrowedFunds() *big.Int {
	if lc.Escrowed == nil {
		return lc.State.Total()
	}
	return new(big.Int).Set(lc.Escrowed.ToInt())
}

// VirtualChannel is the hub's record of a virtual channel and the two ledger
// channels bonding it.
type VirtualChannel struct {
	State   types.VirtualChannelState `json:"state"`
	Status  types.ChannelStatus       `json:"status"`
	LedgerA common.Hash               `json:"ledger_a"`
	LedgerB common.Hash               `json:"ledger_b"`
}

// LedgerFor returns the ledger channel bonding vc on party's side.
func (vc *VirtualChannel) LedgerFor(party common.Address) (common.Hash, bool) {
	switch party {
	case vc.State.PartyA:
		return vc.LedgerA, true
	case vc.State.PartyB:
		return vc.LedgerB, true
	}
	return common.Hash{}, false
}
