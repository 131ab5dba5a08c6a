package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/chain"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store/database/backend"
	"github.com/thetatoken/hubchannel/store/history"
)

var (
	alice  = types.TestIdentity("alice")
	bob    = types.TestIdentity("bob")
	hubKey = types.TestIdentity("hub")
)

type hubMode int

const (
	hubCooperative hubMode = iota
	hubRefusing
	hubStalling
)

//
// fakeHub is an in-memory hub that countersigns whatever it is sent unless
// told to refuse or stall.
//
type fakeHub struct {
	key       *crypto.PrivateKey
	challenge time.Duration

	mu         sync.Mutex
	mode       hubMode
	calls      []string
	ledgers    map[common.Hash]*hub.LedgerChannel
	byParty    map[common.Address]common.Hash
	latest     map[common.Hash]*types.SignedLedgerUpdate
	openings   map[common.Hash][]*types.VirtualChannelState
	virtuals   map[common.Hash]*hub.VirtualChannel
	vcOpenings map[common.Hash]*types.SignedVirtualUpdate
	vcLatest   map[common.Hash]*types.SignedVirtualUpdate
}

var _ hub.Hub = (*fakeHub)(nil)

func newFakeHub(key *crypto.PrivateKey) *fakeHub {
	return &fakeHub{
		key:        key,
		challenge:  time.Hour,
		ledgers:    make(map[common.Hash]*hub.LedgerChannel),
		byParty:    make(map[common.Address]common.Hash),
		latest:     make(map[common.Hash]*types.SignedLedgerUpdate),
		openings:   make(map[common.Hash][]*types.VirtualChannelState),
		virtuals:   make(map[common.Hash]*hub.VirtualChannel),
		vcOpenings: make(map[common.Hash]*types.SignedVirtualUpdate),
		vcLatest:   make(map[common.Hash]*types.SignedVirtualUpdate),
	}
}

func (h *fakeHub) setMode(mode hubMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = mode
}

func (h *fakeHub) resetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

func (h *fakeHub) called() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.calls...)
}

func (h *fakeHub) record(method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, method)
}

// respond records the call and applies the refusing or stalling mode.
func (h *fakeHub) respond(ctx context.Context, method string) error {
	h.mu.Lock()
	h.calls = append(h.calls, method)
	mode := h.mode
	h.mu.Unlock()

	switch mode {
	case hubRefusing:
		return hub.ErrRefused
	case hubStalling:
		<-ctx.Done()
		return errors.Wrap(result.ErrCounterpartyUnresponsive, ctx.Err().Error())
	}
	return nil
}

func (h *fakeHub) countersign(u *types.SignedLedgerUpdate) (*crypto.Signature, *types.SignedLedgerUpdate, error) {
	sig, err := crypto.SignFingerprint(u.Fingerprint, h.key)
	if err != nil {
		return nil, nil, err
	}
	cu := u.Copy()
	cu.SigHub = sig
	return sig, cu, nil
}

func (h *fakeHub) ChallengeTimer(ctx context.Context) (time.Duration, error) {
	h.record("ChallengeTimer")
	return h.challenge, nil
}

func (h *fakeHub) LedgerChannel(ctx context.Context, lcID common.Hash) (*hub.LedgerChannel, error) {
	h.record("LedgerChannel")
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.ledgers[lcID]
	if !ok {
		return nil, hub.ErrNotFound
	}
	cp := *rec
	cp.State = *rec.State.Copy()
	return &cp, nil
}

func (h *fakeHub) LedgerChannelByParty(ctx context.Context, party common.Address) (*hub.LedgerChannel, error) {
	h.mu.Lock()
	lcID, ok := h.byParty[party]
	h.mu.Unlock()
	if !ok {
		h.record("LedgerChannelByParty")
		return nil, hub.ErrNotFound
	}
	return h.LedgerChannel(ctx, lcID)
}

func (h *fakeHub) LatestLedgerUpdate(ctx context.Context, lcID common.Hash) (*types.SignedLedgerUpdate, error) {
	h.record("LatestLedgerUpdate")
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.latest[lcID]
	if !ok {
		return nil, hub.ErrNotFound
	}
	return u.Copy(), nil
}

func (h *fakeHub) VirtualOpeningStates(ctx context.Context, lcID common.Hash) ([]*types.VirtualChannelState, error) {
	h.record("VirtualOpeningStates")
	h.mu.Lock()
	defer h.mu.Unlock()
	var states []*types.VirtualChannelState
	for _, o := range h.openings[lcID] {
		states = append(states, o.Copy())
	}
	return states, nil
}

func (h *fakeHub) VirtualChannel(ctx context.Context, vcID common.Hash) (*hub.VirtualChannel, error) {
	h.record("VirtualChannel")
	h.mu.Lock()
	defer h.mu.Unlock()
	vc, ok := h.virtuals[vcID]
	if !ok {
		return nil, hub.ErrNotFound
	}
	cp := *vc
	cp.State = *vc.State.Copy()
	return &cp, nil
}

func (h *fakeHub) LatestVirtualUpdate(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	h.record("LatestVirtualUpdate")
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.vcLatest[vcID]
	if !ok {
		return nil, hub.ErrNotFound
	}
	return u.Copy(), nil
}

func (h *fakeHub) VirtualOpening(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	h.record("VirtualOpening")
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.vcOpenings[vcID]
	if !ok {
		return nil, hub.ErrNotFound
	}
	return u.Copy(), nil
}

func (h *fakeHub) ProposeLedgerUpdate(ctx context.Context, u *types.SignedLedgerUpdate) (*crypto.Signature, error) {
	if err := h.respond(ctx, "ProposeLedgerUpdate"); err != nil {
		return nil, err
	}
	sig, cu, err := h.countersign(u)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[u.State.ChannelID] = cu
	return sig, nil
}

func (h *fakeHub) ProposeVirtualUpdate(ctx context.Context, u *types.SignedVirtualUpdate) error {
	if err := h.respond(ctx, "ProposeVirtualUpdate"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vcLatest[u.State.ChannelID] = u.Copy()
	return nil
}

func (h *fakeHub) OpenVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error) {
	if err := h.respond(ctx, "OpenVirtualChannel"); err != nil {
		return nil, err
	}
	sig, cu, err := h.countersign(&cert.LedgerUpdate)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lcID := cu.State.ChannelID
	vc := cert.VirtualOpening.State.Copy()
	h.latest[lcID] = cu
	h.openings[lcID] = append(h.openings[lcID], vc.Copy())
	h.virtuals[vc.ChannelID] = &hub.VirtualChannel{
		State:   *vc,
		Status:  types.StatusPendingJoin,
		LedgerA: lcID,
		LedgerB: h.byParty[vc.PartyB],
	}
	h.vcOpenings[vc.ChannelID] = cert.VirtualOpening.Copy()
	h.vcLatest[vc.ChannelID] = cert.VirtualOpening.Copy()
	return sig, nil
}

func (h *fakeHub) JoinVirtualChannel(ctx context.Context, cert *types.OpeningCertificate) (*crypto.Signature, error) {
	if err := h.respond(ctx, "JoinVirtualChannel"); err != nil {
		return nil, err
	}
	sig, cu, err := h.countersign(&cert.LedgerUpdate)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lcID := cu.State.ChannelID
	vc := cert.VirtualOpening.State.Copy()
	h.latest[lcID] = cu
	h.openings[lcID] = append(h.openings[lcID], vc.Copy())
	h.virtuals[vc.ChannelID].Status = types.StatusOpen
	h.virtuals[vc.ChannelID].LedgerB = lcID
	h.vcOpenings[vc.ChannelID] = cert.VirtualOpening.Copy()
	h.vcLatest[vc.ChannelID] = cert.VirtualOpening.Copy()
	return sig, nil
}

// FastCloseVirtualChannel countersigns the closing side and proposes the
// unbonding update of the other side, signed by the hub alone.
func (h *fakeHub) FastCloseVirtualChannel(ctx context.Context, vcID common.Hash, u *types.SignedLedgerUpdate) (*crypto.Signature, error) {
	if err := h.respond(ctx, "FastCloseVirtualChannel"); err != nil {
		return nil, err
	}
	sig, cu, err := h.countersign(u)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	lcID := cu.State.ChannelID
	h.latest[lcID] = cu
	h.openings[lcID] = without(h.openings[lcID], vcID)

	vc := h.virtuals[vcID]
	vc.Status = types.StatusClosed
	other := vc.LedgerA
	if other == lcID {
		other = vc.LedgerB
	}
	prev, ok := h.latest[other]
	if !ok {
		return sig, nil
	}
	next, err := LedgerUpdateOnVirtualClose(&prev.State, h.openings[other], &h.vcLatest[vcID].State)
	if err != nil {
		return nil, err
	}
	proposal, err := types.NewSignedLedgerUpdate(next)
	if err != nil {
		return nil, err
	}
	if proposal.SigHub, err = crypto.SignFingerprint(proposal.Fingerprint, h.key); err != nil {
		return nil, err
	}
	h.latest[other] = proposal
	h.openings[other] = without(h.openings[other], vcID)
	return sig, nil
}

func (h *fakeHub) RequestJoinLedgerChannel(ctx context.Context, lcID common.Hash) (common.Hash, error) {
	h.record("RequestJoinLedgerChannel")
	return crypto.Keccak256Hash([]byte("join"), lcID[:]), nil
}

func (h *fakeHub) RequestDeposit(ctx context.Context, lcID common.Hash, amount *big.Int) (common.Hash, error) {
	h.record("RequestDeposit")
	return crypto.Keccak256Hash([]byte("deposit"), lcID[:]), nil
}

func without(openings []*types.VirtualChannelState, vcID common.Hash) []*types.VirtualChannelState {
	var ret []*types.VirtualChannelState
	for _, o := range openings {
		if o.ChannelID != vcID {
			ret = append(ret, o)
		}
	}
	return ret
}

type chainCall struct {
	method    string
	lcID      common.Hash
	update    *types.SignedLedgerUpdate
	vcUpdate  *types.SignedVirtualUpdate
	proof     *commitment.Proof
	challenge bool
}

//
// fakeChain records every call. A failure registered for a method is
// returned once, after the call is recorded.
//
type fakeChain struct {
	mu       sync.Mutex
	calls    []chainCall
	failures map[string]error
}

var _ chain.Chain = (*fakeChain)(nil)

func newFakeChain() *fakeChain {
	return &fakeChain{failures: make(map[string]error)}
}

func (c *fakeChain) failNext(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[method] = err
}

func (c *fakeChain) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []string
	for _, call := range c.calls {
		ret = append(ret, call.method)
	}
	return ret
}

func (c *fakeChain) last() chainCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

func (c *fakeChain) send(call chainCall) (*chain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if err, ok := c.failures[call.method]; ok {
		delete(c.failures, call.method)
		return nil, err
	}
	return &chain.Receipt{
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", call.method, len(c.calls)))),
		BlockNumber: big.NewInt(int64(len(c.calls))),
	}, nil
}

func (c *fakeChain) CreateChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, hub common.Address, challenge time.Duration, deposit *big.Int) (*chain.Receipt, error) {
	return c.send(chainCall{method: "CreateChannel", lcID: lcID})
}

func (c *fakeChain) JoinChannel(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, deposit *big.Int) (*chain.Receipt, error) {
	return c.send(chainCall{method: "JoinChannel", lcID: lcID})
}

func (c *fakeChain) Deposit(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, recipient common.Address, amount *big.Int) (*chain.Receipt, error) {
	return c.send(chainCall{method: "Deposit", lcID: lcID})
}

func (c *fakeChain) UpdateState(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate, challenge bool) (*chain.Receipt, error) {
	return c.send(chainCall{method: "UpdateState", lcID: update.State.ChannelID, update: update.Copy(), challenge: challenge})
}

func (c *fakeChain) ConsensusClose(ctx context.Context, key *crypto.PrivateKey, update *types.SignedLedgerUpdate) (*chain.Receipt, error) {
	return c.send(chainCall{method: "ConsensusClose", lcID: update.State.ChannelID, update: update.Copy()})
}

func (c *fakeChain) InitVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, opening *types.SignedVirtualUpdate, proof *commitment.Proof) (*chain.Receipt, error) {
	return c.send(chainCall{method: "InitVC", lcID: lcID, vcUpdate: opening.Copy(), proof: proof})
}

func (c *fakeChain) SettleVC(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash, update *types.SignedVirtualUpdate) (*chain.Receipt, error) {
	return c.send(chainCall{method: "SettleVC", lcID: lcID, vcUpdate: update.Copy()})
}

func (c *fakeChain) CloseVirtualChannel(ctx context.Context, key *crypto.PrivateKey, lcID, vcID common.Hash) (*chain.Receipt, error) {
	return c.send(chainCall{method: "CloseVirtualChannel", lcID: lcID})
}

func (c *fakeChain) ByzantineClose(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*chain.Receipt, error) {
	return c.send(chainCall{method: "ByzantineClose", lcID: lcID})
}

func (c *fakeChain) LCOpenTimeout(ctx context.Context, key *crypto.PrivateKey, lcID common.Hash) (*chain.Receipt, error) {
	return c.send(chainCall{method: "LCOpenTimeout", lcID: lcID})
}

type testEnv struct {
	hub   *fakeHub
	chain *fakeChain
}

func newTestEnv() *testEnv {
	return &testEnv{hub: newFakeHub(hubKey), chain: newFakeChain()}
}

// engine returns an engine with its own empty history, one per party.
func (env *testEnv) engine(t *testing.T) *Engine {
	hist, err := history.NewHistory(backend.NewMemDatabase(), 16)
	require.Nil(t, err)
	cfg := Config{HubAddress: hubKey.Address(), CountersignTimeout: 100 * time.Millisecond}
	return NewEngine(cfg, env.hub, env.chain, hist)
}

// registerLedger makes the hub know an open, joined ledger channel of party.
func (env *testEnv) registerLedger(name string, party common.Address, balanceA, balanceHub int64) common.Hash {
	state := types.NewTestLedgerState(name, party, hubKey.Address(), balanceA, balanceHub)
	env.hub.mu.Lock()
	defer env.hub.mu.Unlock()
	env.hub.ledgers[state.ChannelID] = &hub.LedgerChannel{State: *state, Status: types.StatusOpen}
	env.hub.byParty[party] = state.ChannelID
	return state.ChannelID
}
