package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

// Receipt identifies a mined transaction.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber *big.Int    `json:"block_number"`
}

//
// Chain is the on-chain side of the protocol. Every call is signed by the
// given key and returns once the transaction is mined, or fails with a
// *result.ChainTransactionError.
//
type Chain interface {
	CreateChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, hub common.Address, challenge time.Duration, deposit *big.Int) (*Receipt, error)
	JoinChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, deposit *big.Int) (*Receipt, error)
	Deposit(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, recipient common.Address, amount *big.Int) (*Receipt, error)

	// UpdateState submits a countersigned ledger state. With challenge set it
	// starts the challenge window.
	UpdateState(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate, challenge bool) (*Receipt, error)
	ConsensusClose(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate) (*Receipt, error)

	InitVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, opening *types.SignedVirtualUpdate, proof *commitment.Proof) (*Receipt, error)
	SettleVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, update *types.SignedVirtualUpdate) (*Receipt, error)
	CloseVirtualChannel(ctx context.Context, key *crypto.PrivateKey, lcID, vcID common.Hash) (*Receipt, error)

	ByzantineClose(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*Receipt, error)
	LCOpenTimeout(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*Receipt, error)
}
