package hub

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/common/util"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/types"
)

var logger *log.Entry = util.GetLoggerForModule("hub")

var _ Hub = (*RPCClient)(nil)

//
// RPCClient talks to the hub over JSON-RPC.
//
type RPCClient struct {
	endpoint string
	client   *jsonrpc.RPCClient
}

func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		client:   jsonrpc.NewRPCClient(endpoint),
	}
}

type rpcReply struct {
	res *jsonrpc.RPCResponse
	err error
}

// call runs one request and decodes its result into out. The request is
// abandoned when ctx is done.
func (c *RPCClient) call(ctx context.Context, method string, args interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(result.ErrCounterpartyUnresponsive, "%v: %v", method, err)
	}

	replies := make(chan rpcReply, 1)
	go func() {
		res, err := c.client.Call(method, args)
		replies <- rpcReply{res, err}
	}()

	var reply rpcReply
	select {
	case <-ctx.Done():
		logger.WithFields(log.Fields{"method": method}).Warn("Hub call abandoned")
		return errors.Wrapf(result.ErrCounterpartyUnresponsive, "%v: %v", method, ctx.Err())
	case reply = <-replies:
	}

	if reply.err != nil {
		logger.WithFields(log.Fields{"method": method, "error": reply.err}).Debug("Hub unreachable")
		return errors.Wrapf(result.ErrCounterpartyUnresponsive, "%v: %v", method, reply.err)
	}
	if reply.res.Error != nil {
		switch reply.res.Error.Code {
		case ErrorCodeRefused:
			return errors.Wrapf(ErrRefused, "%v: %v", method, reply.res.Error.Message)
		case ErrorCodeNotFound:
			return errors.Wrapf(ErrNotFound, "%v: %v", method, reply.res.Error.Message)
		}
		return errors.Errorf("%v failed: %v (code %v)", method, reply.res.Error.Message, reply.res.Error.Code)
	}
	if out == nil {
		return nil
	}
	if err := reply.res.GetObject(out); err != nil {
		return errors.Wrapf(err, "failed to parse %v response", method)
	}
	return nil
}

func (c *RPCClient) ChallengeTimer(ctx context.Context) (time.Duration, error) {
	var res ChallengeTimerResult
	if err := c.call(ctx, MethodChallengeTimer, struct{}{}, &res); err != nil {
		return 0, err
	}
	return time.Duration(res.Seconds) * time.Second, nil
}

func (c *RPCClient) LedgerChannel(ctx context.Context, lcID common.Hash) (*LedgerChannel, error) {
	res := &LedgerChannel{}
	if err := c.call(ctx, MethodLedgerChannel, ChannelArgs{ChannelID: lcID}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) LedgerChannelByParty(ctx context.Context, party common.Address) (*LedgerChannel, error) {
	res := &LedgerChannel{}
	if err := c.call(ctx, MethodLedgerChannelByParty, PartyArgs{Address: party}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) LatestLedgerUpdate(ctx context.Context, lcID common.Hash) (*types.SignedLedgerUpdate, error) {
	res := &types.SignedLedgerUpdate{}
	if err := c.call(ctx, MethodLatestLedgerUpdate, ChannelArgs{ChannelID: lcID}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) VirtualOpeningStates(ctx context.Context, lcID common.Hash) ([]*types.VirtualChannelState, error) {
	var res OpeningStatesResult
	if err := c.call(ctx, MethodVirtualOpeningStates, ChannelArgs{ChannelID: lcID}, &res); err != nil {
		return nil, err
	}
	return res.States, nil
}

func (c *RPCClient) VirtualChannel(ctx context.Context, vcID common.Hash) (*VirtualChannel, error) {
	res := &VirtualChannel{}
	if err := c.call(ctx, MethodVirtualChannel, ChannelArgs{ChannelID: vcID}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) LatestVirtualUpdate(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	res := &types.SignedVirtualUpdate{}
	if err := c.call(ctx, MethodLatestVirtualUpdate, ChannelArgs{ChannelID: vcID}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) VirtualOpening(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	res := &types.SignedVirtualUpdate{}
	if err := c.call(ctx, MethodVirtualOpening, ChannelArgs{ChannelID: vcID}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *RPCClient) ProposeLedgerUpdate(ctx context.Context, update *types.SignedLedgerUpdate) (*crypto.Signature, error) {
	return c.countersign(ctx, MethodProposeLedgerUpdate, LedgerUpdateArgs{Update: update})
}

func (c *RPCClient) ProposeVirtualUpdate(ctx context.Context, update *types.SignedVirtualUpdate) error {
	var res AckResult
	if err := c.call(ctx, MethodProposeVirtualUpdate, VirtualUpdateArgs{Update: update}, &res); err != nil {
		return err
	}
	if !res.Accepted {
		return errors.Wrapf(ErrRefused, "virtual channel %v nonce %v", update.State.ChannelID.Hex(), update.State.Nonce)
	}
	return nil
}

func (c *RPCClient) OpenVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error) {
	return c.countersign(ctx, MethodOpenVirtualChannel, CertificateArgs{Certificate: cert})
}

func (c *RPCClient) JoinVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error) {
	return c.countersign(ctx, MethodJoinVirtualChannel, CertificateArgs{Certificate: cert})
}

func (c *RPCClient) FastCloseVirtualChannel(ctx context.Context, vcID common.Hash, update *types.SignedLedgerUpdate) (*crypto.Signature, error) {
	return c.countersign(ctx, MethodFastCloseVirtualChannel, FastCloseArgs{ChannelID: vcID, Update: update})
}

func (c *RPCClient) RequestJoinLedgerChannel(ctx context.Context, lcID common.Hash) (common.Hash, error) {
	var res TxResult
	if err := c.call(ctx, MethodRequestJoinLedgerChannel, ChannelArgs{ChannelID: lcID}, &res); err != nil {
		return common.Hash{}, err
	}
	return res.TxHash, nil
}

func (c *RPCClient) RequestDeposit(ctx context.Context, lcID common.Hash, amount *big.Int) (common.Hash, error) {
	var res TxResult
	args := DepositArgs{ChannelID: lcID, Amount: common.NewJSONBig(amount)}
	if err := c.call(ctx, MethodRequestDeposit, args, &res); err != nil {
		return common.Hash{}, err
	}
	return res.TxHash, nil
}

// countersign calls a method answered with a CountersignResult. An empty
// signature is treated as a refusal.
func (c *RPCClient) countersign(ctx context.Context, method string, args interface{}) (*crypto.Signature, error) {
	var res CountersignResult
	if err := c.call(ctx, method, args, &res); err != nil {
		return nil, err
	}
	if res.Signature.IsEmpty() {
		return nil, errors.Wrapf(ErrRefused, "%v returned no signature", method)
	}
	return res.Signature, nil
}
