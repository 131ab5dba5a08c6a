package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

type recordedCall struct {
	method string
	value  *big.Int
	from   common.Address
	data   []byte
}

// recordingTransactor packs every call against the contract ABI, so a wrong
// argument type fails the same way it would against a node.
type recordingTransactor struct {
	abi     abi.ABI
	calls   []recordedCall
	failing bool
}

func (r *recordingTransactor) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	if r.failing {
		return nil, errors.New("insufficient funds for gas")
	}
	data, err := r.abi.Pack(method, params...)
	if err != nil {
		return nil, err
	}
	r.calls = append(r.calls, recordedCall{method: method, value: opts.Value, from: opts.From, data: data})
	tx := ethtypes.NewTransaction(uint64(len(r.calls)), common.HexToAddress("0xc0ffee"), opts.Value, 100000, big.NewInt(1), data)
	return tx, nil
}

type receiptMode int

const (
	receiptMined receiptMode = iota
	receiptReverted
	receiptPending
	receiptTimeout
)

func newTestContract(t *testing.T, mode receiptMode) (*Contract, *recordingTransactor) {
	parsed, err := abi.JSON(strings.NewReader(LedgerChannelABI))
	require.Nil(t, err)
	rec := &recordingTransactor{abi: parsed}
	waiter := func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
		switch mode {
		case receiptReverted:
			return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(7), TxHash: tx.Hash()}, nil
		case receiptPending:
			return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash()}, nil
		case receiptTimeout:
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7), TxHash: tx.Hash()}, nil
	}
	return newContract(common.HexToAddress("0xc0ffee"), big.NewInt(1337), 50*time.Millisecond, rec, waiter), rec
}

var (
	alice = types.TestIdentity("alice")
	bob   = types.TestIdentity("bob")
	hub   = types.TestIdentity("hub")
)

func countersigned(t *testing.T, state *types.LedgerChannelState) *types.SignedLedgerUpdate {
	u, err := types.NewSignedLedgerUpdate(state)
	require.Nil(t, err)
	require.Nil(t, u.Sign(alice))
	require.Nil(t, u.Sign(hub))
	return u
}

func TestLedgerCallsPackAgainstABI(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, rec := newTestContract(t, receiptMined)

	lcID := types.TestChannelID("lc")
	receipt, err := c.CreateChannel(ctx, alice, lcID, hub.Address(), time.Hour, big.NewInt(100))
	require.Nil(t, err)
	assert.Equal(0, big.NewInt(7).Cmp(receipt.BlockNumber))

	_, err = c.JoinChannel(ctx, hub, lcID, big.NewInt(50))
	require.Nil(t, err)
	_, err = c.Deposit(ctx, alice, lcID, alice.Address(), big.NewInt(10))
	require.Nil(t, err)

	state := types.NewTestLedgerState("lc", alice.Address(), hub.Address(), 100, 50)
	state.Nonce = 4
	update := countersigned(t, state)
	_, err = c.UpdateState(ctx, alice, update, true)
	require.Nil(t, err)
	_, err = c.ConsensusClose(ctx, alice, update)
	require.Nil(t, err)
	_, err = c.ByzantineClose(ctx, alice, lcID)
	require.Nil(t, err)
	_, err = c.LCOpenTimeout(ctx, alice, lcID)
	require.Nil(t, err)

	var methods []string
	for _, call := range rec.calls {
		methods = append(methods, call.method)
		assert.Contains([]common.Address{alice.Address(), hub.Address()}, call.from)
	}
	assert.Equal([]string{methodCreateChannel, methodJoinChannel, methodDeposit, methodUpdateLCState,
		methodConsensusClose, methodByzantineCloseChannel, methodLCOpenTimeout}, methods)
	assert.Equal(0, big.NewInt(100).Cmp(rec.calls[0].value))

	// createChannel(lcID, hub, 3600)
	args, err := rec.abi.Methods[methodCreateChannel].Inputs.Unpack(rec.calls[0].data[4:])
	require.Nil(t, err)
	assert.Equal([32]byte(lcID), args[0])
	assert.Equal(hub.Address(), args[1])
	assert.Equal(0, big.NewInt(3600).Cmp(args[2].(*big.Int)))

	// updateLCstate carries [nonce, openVcs, balanceA, balanceHub] and the challenge flag.
	args, err = rec.abi.Methods[methodUpdateLCState].Inputs.Unpack(rec.calls[3].data[4:])
	require.Nil(t, err)
	params := args[1].([4]*big.Int)
	assert.Equal(0, big.NewInt(4).Cmp(params[0]))
	assert.Equal(0, big.NewInt(100).Cmp(params[2]))
	assert.Equal(0, big.NewInt(50).Cmp(params[3]))
	assert.Equal(update.SigA.ToBytes(), common.Bytes(args[3].([]byte)))
	assert.Equal(update.SigHub.ToBytes(), common.Bytes(args[4].([]byte)))
	assert.Equal(true, args[5])

	args, err = rec.abi.Methods[methodConsensusClose].Inputs.Unpack(rec.calls[4].data[4:])
	require.Nil(t, err)
	assert.Equal(update.SigA.ToBytes(), common.Bytes(args[4].([]byte)))
	assert.Equal(update.SigHub.ToBytes(), common.Bytes(args[5].([]byte)))
}

func TestVirtualCallsPackAgainstABI(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, rec := newTestContract(t, receiptMined)

	lcID := types.TestChannelID("lc")
	opening := types.NewTestVirtualOpening("vc", alice.Address(), bob.Address(), 5)
	other := types.NewTestVirtualOpening("vc2", alice.Address(), bob.Address(), 9)
	signedOpening, err := types.NewSignedVirtualUpdate(opening)
	require.Nil(t, err)
	require.Nil(t, signedOpening.Sign(alice))

	proof, err := commitment.BuildProof([]*types.VirtualChannelState{opening, other}, opening.ChannelID)
	require.Nil(t, err)
	_, err = c.InitVC(ctx, alice, lcID, signedOpening, proof)
	require.Nil(t, err)

	latest := opening.Copy()
	latest.Nonce = 3
	latest.BalanceA = big.NewInt(2)
	latest.BalanceB = big.NewInt(3)
	signedLatest, err := types.NewSignedVirtualUpdate(latest)
	require.Nil(t, err)
	require.Nil(t, signedLatest.Sign(alice))
	_, err = c.SettleVC(ctx, alice, lcID, signedLatest)
	require.Nil(t, err)
	_, err = c.CloseVirtualChannel(ctx, alice, lcID, opening.ChannelID)
	require.Nil(t, err)

	args, err := rec.abi.Methods[methodInitVCState].Inputs.Unpack(rec.calls[0].data[4:])
	require.Nil(t, err)
	assert.Equal([32]byte(lcID), args[0])
	assert.Equal([32]byte(opening.ChannelID), args[1])
	assert.Equal(proof.Encode(), args[2].([]byte))
	assert.Equal(0, big.NewInt(5).Cmp(args[6].(*big.Int)))
	assert.Equal(signedOpening.SigA.ToBytes(), common.Bytes(args[9].([]byte)))

	args, err = rec.abi.Methods[methodSettleVC].Inputs.Unpack(rec.calls[1].data[4:])
	require.Nil(t, err)
	assert.Equal(0, big.NewInt(3).Cmp(args[2].(*big.Int)))
	balances := args[5].([2]*big.Int)
	assert.Equal(0, big.NewInt(2).Cmp(balances[0]))
	assert.Equal(0, big.NewInt(3).Cmp(balances[1]))
	assert.Equal(signedLatest.SigA.ToBytes(), common.Bytes(args[6].([]byte)))
}

func TestBroadcastFailure(t *testing.T) {
	c, rec := newTestContract(t, receiptMined)
	rec.failing = true

	_, err := c.ByzantineClose(context.Background(), alice, types.TestChannelID("lc"))
	assert.True(t, result.IsBroadcastFailure(err))
	assert.Equal(t, result.CodeBroadcastFailure, result.CodeOf(err))

	_, err = c.ByzantineClose(context.Background(), nil, types.TestChannelID("lc"))
	assert.True(t, result.IsBroadcastFailure(err))
}

func TestConfirmationFailures(t *testing.T) {
	for _, mode := range []receiptMode{receiptReverted, receiptPending, receiptTimeout} {
		c, _ := newTestContract(t, mode)
		lcID := types.TestChannelID("lc")

		_, err := c.LCOpenTimeout(context.Background(), alice, lcID)
		require.NotNil(t, err, "mode %v", mode)
		assert.True(t, result.IsConfirmationFailure(err), "mode %v", mode)

		var chainErr *result.ChainTransactionError
		require.True(t, errors.As(err, &chainErr))
		assert.NotEqual(t, common.Hash{}, chainErr.TxHash)
		assert.Equal(t, lcID, chainErr.ChannelID)
		assert.Equal(t, methodLCOpenTimeout, chainErr.Method)
	}
}
