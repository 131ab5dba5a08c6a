package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/common/util"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

var logger *log.Entry = util.GetLoggerForModule("chain")

var _ Chain = (*Contract)(nil)

// Backend is what the contract binding needs from a node connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
}

type minedWaiter func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)

//
// Contract calls the ledger channel manager contract.
//
type Contract struct {
	address        common.Address
	chainID        *big.Int
	confirmTimeout time.Duration

	bound     transactor
	waitMined minedWaiter
}

// NewContract binds the contract at address on backend.
func NewContract(backend Backend, address common.Address, chainID *big.Int, confirmTimeout time.Duration) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(LedgerChannelABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse contract ABI")
	}
	bound := bind.NewBoundContract(address, parsed, backend, backend, backend)
	waiter := func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
		return bind.WaitMined(ctx, backend, tx)
	}
	return newContract(address, chainID, confirmTimeout, bound, waiter), nil
}

// Dial connects to a node and binds the contract at address.
func Dial(ctx context.Context, endpoint string, address common.Address, confirmTimeout time.Duration) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %v", endpoint)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chain id")
	}
	return NewContract(client, address, chainID, confirmTimeout)
}

func newContract(address common.Address, chainID *big.Int, confirmTimeout time.Duration, bound transactor, waiter minedWaiter) *Contract {
	return &Contract{
		address:        address,
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		bound:          bound,
		waitMined:      waiter,
	}
}

func (c *Contract) CreateChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, hub common.Address, challenge time.Duration, deposit *big.Int) (*Receipt, error) {
	seconds := new(big.Int).SetUint64(uint64(challenge / time.Second))
	return c.send(ctx, key, deposit, methodCreateChannel, lcID, 0, [32]byte(lcID), hub, seconds)
}

func (c *Contract) JoinChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, deposit *big.Int) (*Receipt, error) {
	return c.send(ctx, key, deposit, methodJoinChannel, lcID, 0, [32]byte(lcID))
}

func (c *Contract) Deposit(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, recipient common.Address, amount *big.Int) (*Receipt, error) {
	return c.send(ctx, key, amount, methodDeposit, lcID, 0, [32]byte(lcID), recipient)
}

func (c *Contract) UpdateState(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate, challenge bool) (*Receipt, error) {
	s := update.State
	params := [4]*big.Int{
		new(big.Int).SetUint64(s.Nonce),
		new(big.Int).SetUint64(uint64(s.OpenVcCount)),
		s.BalanceA,
		s.BalanceHub,
	}
	return c.send(ctx, key, nil, methodUpdateLCState, s.ChannelID, s.Nonce,
		[32]byte(s.ChannelID), params, [32]byte(s.VcRootHash),
		sigBytes(update.SigA), sigBytes(update.SigHub), challenge)
}

func (c *Contract) ConsensusClose(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate) (*Receipt, error) {
	s := update.State
	return c.send(ctx, key, nil, methodConsensusClose, s.ChannelID, s.Nonce,
		[32]byte(s.ChannelID), new(big.Int).SetUint64(s.Nonce), s.BalanceA, s.BalanceHub,
		sigBytes(update.SigA), sigBytes(update.SigHub))
}

func (c *Contract) InitVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, opening *types.SignedVirtualUpdate, proof *commitment.Proof) (*Receipt, error) {
	s := opening.State
	return c.send(ctx, key, nil, methodInitVCState, s.ChannelID, s.Nonce,
		[32]byte(lcID), [32]byte(s.ChannelID), proof.Encode(), new(big.Int).SetUint64(s.Nonce),
		s.PartyA, s.PartyB, s.HubBond(), s.BalanceA, s.BalanceB, sigBytes(opening.SigA))
}

func (c *Contract) SettleVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, update *types.SignedVirtualUpdate) (*Receipt, error) {
	s := update.State
	return c.send(ctx, key, nil, methodSettleVC, s.ChannelID, s.Nonce,
		[32]byte(lcID), [32]byte(s.ChannelID), new(big.Int).SetUint64(s.Nonce),
		s.PartyA, s.PartyB, [2]*big.Int{s.BalanceA, s.BalanceB}, sigBytes(update.SigA))
}

func (c *Contract) CloseVirtualChannel(ctx context.Context, key *crypto.PrivateKey, lcID, vcID common.Hash) (*Receipt, error) {
	return c.send(ctx, key, nil, methodCloseVirtualChannel, vcID, 0, [32]byte(lcID), [32]byte(vcID))
}

func (c *Contract) ByzantineClose(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*Receipt, error) {
	return c.send(ctx, key, nil, methodByzantineCloseChannel, lcID, 0, [32]byte(lcID))
}

func (c *Contract) LCOpenTimeout(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*Receipt, error) {
	return c.send(ctx, key, nil, methodLCOpenTimeout, lcID, 0, [32]byte(lcID))
}

// send signs and broadcasts one call, then waits for it to be mined. channelID
// and nonce only annotate errors.
func (c *Contract) send(ctx context.Context, key *crypto.PrivateKey, value *big.Int, method string,
	channelID common.Hash, nonce uint64, params ...interface{}) (*Receipt, error) {
	fail := func(kind result.ChainFailureKind, txHash common.Hash, cause error) error {
		err := &result.ChainTransactionError{
			Kind:      kind,
			Method:    method,
			TxHash:    txHash,
			ChannelID: channelID,
			Nonce:     nonce,
			Cause:     cause,
		}
		logger.WithFields(log.Fields{"method": method, "channel": channelID.Hex(), "error": err}).Error("Contract call failed")
		return err
	}

	if key == nil {
		return nil, fail(result.BroadcastFailure, common.Hash{}, errors.New("no signing identity provided"))
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key.ECDSA(), c.chainID)
	if err != nil {
		return nil, fail(result.BroadcastFailure, common.Hash{}, err)
	}
	opts.Context = ctx
	opts.Value = value

	tx, err := c.bound.Transact(opts, method, params...)
	if err != nil || tx == nil {
		if err == nil {
			err = errors.New("no transaction returned")
		}
		return nil, fail(result.BroadcastFailure, common.Hash{}, err)
	}
	txHash := tx.Hash()
	logger.WithFields(log.Fields{"method": method, "channel": channelID.Hex(), "tx": txHash.Hex()}).Info("Transaction broadcast")

	waitCtx := ctx
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}
	receipt, err := c.waitMined(waitCtx, tx)
	if err != nil {
		return nil, fail(result.ConfirmationFailure, txHash, err)
	}
	return checkReceipt(receipt, txHash, fail)
}

// sigBytes unwraps a signature for the ABI packer, which only accepts
// unnamed []byte for bytes arguments.
func sigBytes(sig *crypto.Signature) []byte {
	return []byte(sig.ToBytes())
}

func checkReceipt(receipt *ethtypes.Receipt, txHash common.Hash,
	fail func(result.ChainFailureKind, common.Hash, error) error) (*Receipt, error) {
	switch {
	case receipt == nil || receipt.BlockNumber == nil:
		return nil, fail(result.ConfirmationFailure, txHash, errors.New("transaction not included in a block"))
	case receipt.Status == ethtypes.ReceiptStatusFailed:
		return nil, fail(result.ConfirmationFailure, txHash, errors.Errorf("transaction reverted in block %v", receipt.BlockNumber))
	}
	return &Receipt{TxHash: txHash, BlockNumber: new(big.Int).Set(receipt.BlockNumber)}, nil
}
