package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/chain"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/ledger/validator"
	"github.com/thetatoken/hubchannel/store/history"
)

// LedgerChannelResult describes a ledger channel created on chain.
type LedgerChannelResult struct {
	ChannelID common.Hash    `json:"channel_id"`
	Receipt   *chain.Receipt `json:"receipt"`

	// JoinTx is the hub's join transaction, zero if the hub did not accept
	// the join request.
	JoinTx common.Hash `json:"join_tx"`
}

// WithdrawResult describes how a ledger channel was closed.
type WithdrawResult struct {
	ChannelID  common.Hash    `json:"channel_id"`
	Receipt    *chain.Receipt `json:"receipt"`
	FastClosed bool           `json:"fast_closed"`
}

// OpenLedgerChannel creates a ledger channel with the hub funded by deposit
// and asks the hub to join it. A zero challenge uses the hub's challenge timer.
func (e *Engine) OpenLedgerChannel(ctx context.Context, id *crypto.PrivateKey, deposit *big.Int, challenge time.Duration) (*LedgerChannelResult, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	if err := checkAmount("deposit", deposit, true); err != nil {
		return nil, err
	}

	lcID := types.GenerateChannelID()
	l := newOpLogger("OpenLedgerChannel", lcID)

	initial := &types.LedgerChannelState{
		ChannelID:  lcID,
		PartyA:     id.Address(),
		PartyHub:   e.cfg.HubAddress,
		VcRootHash: commitment.EmptyRoot,
		BalanceA:   new(big.Int).Set(deposit),
		BalanceHub: big.NewInt(0),
	}
	facts := validator.LedgerFacts{Role: validator.RolePartyA, Escrowed: deposit}
	if res := validator.ValidateLedgerTransition(nil, initial, facts); res.IsError() {
		return nil, res.Err()
	}

	if challenge <= 0 {
		var err error
		if challenge, err = e.hub.ChallengeTimer(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to fetch the challenge timer")
		}
	}
	if err := e.tracker.check(ledgerChannel, lcID, types.StatusPendingJoin, "cannot create channel"); err != nil {
		return nil, err
	}

	l.WithFields(log.Fields{"deposit": deposit, "challenge": challenge}).Info("Creating ledger channel")
	receipt, err := e.chain.CreateChannel(ctx, id, lcID, e.cfg.HubAddress, challenge, deposit)
	if err != nil {
		return nil, err
	}
	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusPendingJoin, "cannot create channel"); err != nil {
		return nil, err
	}

	res := &LedgerChannelResult{ChannelID: lcID, Receipt: receipt}
	joinTx, err := e.hub.RequestJoinLedgerChannel(ctx, lcID)
	if err != nil {
		l.WithError(err).Warn("Hub did not accept the join request, reclaim the deposit after the open timeout")
		return res, nil
	}
	res.JoinTx = joinTx
	l.WithField("joinTx", joinTx.Hex()).Info("Hub is joining the ledger channel")
	return res, nil
}

// Deposit adds amount to recipient's side of lcID on chain.
func (e *Engine) Deposit(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash, recipient common.Address, amount *big.Int) (*chain.Receipt, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	if err := checkAmount("amount", amount, false); err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		return nil, parameterError("no recipient provided")
	}

	l := newOpLogger("Deposit", lcID)
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "deposits need an open ledger channel", types.StatusOpen); err != nil {
		return nil, err
	}

	l.WithFields(log.Fields{"recipient": recipient.Hex(), "amount": amount}).Info("Depositing")
	return e.chain.Deposit(ctx, id, lcID, recipient, amount)
}

// RequestHubDeposit asks the hub to deposit amount on its side of lcID.
func (e *Engine) RequestHubDeposit(ctx context.Context, lcID common.Hash, amount *big.Int) (common.Hash, error) {
	if err := checkAmount("amount", amount, false); err != nil {
		return common.Hash{}, err
	}
	l := newOpLogger("RequestHubDeposit", lcID)
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := requireStatus(lcID, status, "deposits need an open ledger channel", types.StatusOpen); err != nil {
		return common.Hash{}, err
	}
	return e.hub.RequestDeposit(ctx, lcID, amount)
}

// Withdraw closes lcID. It proposes a closing update to the hub and closes
// cooperatively once countersigned. Without a countersignature the latest
// countersigned state is submitted with the challenge flag set, and
// WithdrawFinal releases the funds after the challenge window.
func (e *Engine) Withdraw(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash) (*WithdrawResult, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("Withdraw", lcID)

	// Checked against the local history before any collaborator is contacted.
	recorded, ok, err := e.history.Status(lcID)
	if err != nil {
		return nil, err
	}
	local, err := e.history.LatestLedger(lcID)
	if err == nil {
		if recorded == types.StatusFastClosing && local.State.IsClosing && local.IsCountersigned() {
			l.WithField("nonce", local.State.Nonce).Info("Resuming cooperative close")
			return e.consensusClose(ctx, l, id, local)
		}
		if err := checkClosable(&local.State); err != nil {
			return nil, err
		}
	}
	if ok {
		if err := requireStatus(lcID, recorded, "withdraw needs an open ledger channel", types.StatusOpen, types.StatusPendingJoin); err != nil {
			return nil, err
		}
	}

	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "withdraw needs an open ledger channel", types.StatusOpen); err != nil {
		return nil, err
	}
	latest, err := e.latestLedger(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if latest.State.PartyA != id.Address() {
		return nil, result.Error("%v is not party A of %v", id.Address().Hex(), lcID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}
	if err := checkClosable(&latest.State); err != nil {
		return nil, err
	}

	closing := latest.State.Next()
	closing.IsClosing = true
	emptyRoot := commitment.EmptyRoot
	facts := validator.LedgerFacts{Role: validator.RolePartyA, ExpectedRoot: &emptyRoot}
	if res := validator.ValidateLedgerTransition(&latest.State, closing, facts); res.IsError() {
		return nil, res.Err()
	}
	update, err := types.NewSignedLedgerUpdate(closing)
	if err != nil {
		return nil, err
	}
	if err := update.Sign(id); err != nil {
		return nil, err
	}
	dump(l, "closing update", update)

	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusFastClosing, "withdraw needs an open ledger channel"); err != nil {
		return nil, err
	}
	out := awaitCountersignature(ctx, e.cfg.CountersignTimeout, func(ctx context.Context) (*crypto.Signature, error) {
		return e.hub.ProposeLedgerUpdate(ctx, update)
	})
	if out.countersigned() {
		if err := e.attachHubSignature(update, out.sig); err != nil {
			return nil, err
		}
		if err := e.recordLedger(update); err != nil {
			return nil, err
		}
		return e.consensusClose(ctx, l, id, update)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !latest.IsCountersigned() {
		l.WithError(out.reason).Warn("Hub did not countersign the closing update, no signed state to dispute with")
		if err := e.tracker.revert(lcID, status); err != nil {
			return nil, err
		}
		return nil, &result.ChannelStateError{ChannelID: lcID, Status: status.String(),
			Reason: "no countersigned state to dispute with, retry the cooperative close"}
	}
	l.WithError(out.reason).Warn("Hub did not countersign the closing update, disputing on chain")
	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusDisputing, "cannot dispute"); err != nil {
		return nil, err
	}
	dispute := latest.Copy()
	receipt, err := e.chain.UpdateState(ctx, id, dispute, true)
	if err != nil {
		return nil, err
	}
	l.WithFields(log.Fields{"tx": receipt.TxHash.Hex(), "nonce": dispute.State.Nonce}).Info("Challenge window started")
	return &WithdrawResult{ChannelID: lcID, Receipt: receipt}, nil
}

func (e *Engine) consensusClose(ctx context.Context, l *log.Entry, id *crypto.PrivateKey, closing *types.SignedLedgerUpdate) (*WithdrawResult, error) {
	lcID := closing.State.ChannelID
	if err := e.tracker.check(ledgerChannel, lcID, types.StatusClosed, "cannot close"); err != nil {
		return nil, err
	}
	receipt, err := e.chain.ConsensusClose(ctx, id, closing)
	if err != nil {
		return nil, err
	}
	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusClosed, "cannot close"); err != nil {
		return nil, err
	}
	l.WithField("tx", receipt.TxHash.Hex()).Info("Ledger channel closed cooperatively")
	return &WithdrawResult{ChannelID: lcID, Receipt: receipt, FastClosed: true}, nil
}

// WithdrawFinal releases the funds of a disputed ledger channel once its
// challenge window elapsed.
func (e *Engine) WithdrawFinal(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash) (*chain.Receipt, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("WithdrawFinal", lcID)
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "finalizing needs a disputed ledger channel", types.StatusDisputing); err != nil {
		return nil, err
	}
	receipt, err := e.chain.ByzantineClose(ctx, id, lcID)
	if err != nil {
		return nil, err
	}
	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusClosed, "cannot close"); err != nil {
		return nil, err
	}
	l.WithField("tx", receipt.TxHash.Hex()).Info("Ledger channel closed after dispute")
	return receipt, nil
}

// Checkpoint submits the hub's latest update of lcID on chain without
// starting a challenge. An update the hub signed alone is countersigned first.
func (e *Engine) Checkpoint(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash) (*chain.Receipt, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("Checkpoint", lcID)
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "checkpoints need an open ledger channel", types.StatusOpen); err != nil {
		return nil, err
	}

	update, err := e.fetchLedgerUpdate(ctx, lcID)
	if err != nil {
		return nil, err
	}
	if update.SigA.IsEmpty() {
		if update, err = e.countersignHubUpdate(ctx, l, id, update); err != nil {
			return nil, err
		}
	}
	receipt, err := e.chain.UpdateState(ctx, id, update, false)
	if err != nil {
		return nil, err
	}
	l.WithFields(log.Fields{"tx": receipt.TxHash.Hex(), "nonce": update.State.Nonce}).Info("Checkpointed")
	return receipt, nil
}

// CosignLedgerUpdate countersigns the hub's latest update of lcID, which
// must be at nonce. It is how the hub unbonds a virtual channel closed by
// the counterparty.
func (e *Engine) CosignLedgerUpdate(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash, nonce uint64) (*types.SignedLedgerUpdate, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("CosignLedgerUpdate", lcID)
	update, err := e.fetchLedgerUpdate(ctx, lcID)
	if err != nil {
		return nil, err
	}
	if update.State.Nonce != nonce {
		return nil, result.Error("Hub's latest update is at nonce %v, expected %v", update.State.Nonce, nonce).
			WithErrorCode(result.CodeNonceGap).Err()
	}
	if update.IsCountersigned() {
		return update, nil
	}
	update, err = e.countersignHubUpdate(ctx, l, id, update)
	if err != nil {
		return nil, err
	}

	out := awaitCountersignature(ctx, e.cfg.CountersignTimeout, func(ctx context.Context) (*crypto.Signature, error) {
		return e.hub.ProposeLedgerUpdate(ctx, update)
	})
	if !out.countersigned() {
		l.WithError(out.reason).Warn("Hub did not acknowledge the countersignature, the update stays valid locally")
	}
	return update, nil
}

// ReclaimUnjoinedChannel recovers the deposit of a ledger channel the hub
// never joined.
func (e *Engine) ReclaimUnjoinedChannel(ctx context.Context, id *crypto.PrivateKey, lcID common.Hash) (*chain.Receipt, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("ReclaimUnjoinedChannel", lcID)
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "only unjoined ledger channels can be reclaimed", types.StatusPendingJoin); err != nil {
		return nil, err
	}
	receipt, err := e.chain.LCOpenTimeout(ctx, id, lcID)
	if err != nil {
		return nil, err
	}
	if err := e.tracker.advance(ledgerChannel, lcID, types.StatusClosed, "cannot reclaim"); err != nil {
		return nil, err
	}
	l.WithField("tx", receipt.TxHash.Hex()).Info("Reclaimed unjoined ledger channel")
	return receipt, nil
}

// countersignHubUpdate validates an update proposed by the hub against the
// latest countersigned state, signs it and records it. Virtual channels the
// update unbonds are released locally.
func (e *Engine) countersignHubUpdate(ctx context.Context, l *log.Entry, id *crypto.PrivateKey, update *types.SignedLedgerUpdate) (*types.SignedLedgerUpdate, error) {
	lcID := update.State.ChannelID
	if update.State.PartyA != id.Address() {
		return nil, result.Error("%v is not party A of %v", id.Address().Hex(), lcID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}

	proposedOpenings, err := e.hub.VirtualOpeningStates(ctx, lcID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch the openings bonded in %v", lcID.Hex())
	}
	root, err := commitment.BuildRoot(proposedOpenings)
	if err != nil {
		return nil, err
	}

	prev, err := e.history.LatestLedger(lcID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}
	if prev != nil {
		priorOpenings, err := e.history.BondedOpenings(lcID)
		if err != nil {
			return nil, err
		}
		if err := checkCommitment(&prev.State, priorOpenings); err != nil {
			return nil, err
		}
		facts := validator.LedgerFacts{
			Role:           validator.RoleHub,
			PriorBonded:    BondedValue(priorOpenings),
			ProposedBonded: BondedValue(proposedOpenings),
			ExpectedRoot:   &root,
		}
		if res := validator.ValidateLedgerTransition(&prev.State, &update.State, facts); res.IsError() {
			return nil, res.Err()
		}
	} else {
		l.Warn("No countersigned state known locally, accepting the hub's update as the base")
		if err := checkCommitment(&update.State, proposedOpenings); err != nil {
			return nil, err
		}
	}

	signed := update.Copy()
	if err := signed.Sign(id); err != nil {
		return nil, err
	}
	if err := e.recordLedger(signed); err != nil {
		return nil, err
	}
	e.releaseUnbonded(l, lcID, proposedOpenings)
	return signed, nil
}

// releaseUnbonded drops virtual channels that are no longer committed in
// lcID from the bond index and marks them closed.
func (e *Engine) releaseUnbonded(l *log.Entry, lcID common.Hash, openings []*types.VirtualChannelState) {
	bonded, err := e.history.BondedVirtuals(lcID)
	if err != nil {
		l.WithError(err).Warn("Failed to read the bond index")
		return
	}
	still := make(map[common.Hash]bool, len(openings))
	for _, o := range openings {
		still[o.ChannelID] = true
	}
	for _, vcID := range bonded {
		if still[vcID] {
			continue
		}
		if err := e.history.ReleaseVirtual(lcID, vcID); err != nil {
			l.WithError(err).Warn("Failed to release virtual channel")
			continue
		}
		for _, to := range []types.ChannelStatus{types.StatusFastClosing, types.StatusClosed} {
			if err := e.tracker.advance(virtualChannel, vcID, to, "closed by the counterparty"); err != nil {
				l.WithError(err).WithField("vc", vcID.Hex()).Debug("Virtual channel status not updated")
				break
			}
		}
	}
}

// checkClosable returns a *result.ChannelStateError while virtual channels
// are still bonded in lc.
func checkClosable(lc *types.LedgerChannelState) error {
	if lc.OpenVcCount != 0 || lc.VcRootHash != commitment.EmptyRoot {
		return &result.ChannelStateError{
			ChannelID: lc.ChannelID,
			Status:    types.StatusOpen.String(),
			Reason:    "virtual channels are still open",
		}
	}
	if lc.IsClosing {
		return &result.ChannelStateError{
			ChannelID: lc.ChannelID,
			Status:    types.StatusFastClosing.String(),
			Reason:    "already closing",
		}
	}
	return nil
}
