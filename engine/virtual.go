package engine

import (
	"context"
	"math/big"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/chain"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/ledger/validator"
)

// CloseResult describes how a virtual channel was closed.
type CloseResult struct {
	ChannelID  common.Hash `json:"channel_id"`
	FastClosed bool        `json:"fast_closed"`

	// LedgerUpdate is the countersigned ledger update unbonding the channel
	// on a fast close.
	LedgerUpdate *types.SignedLedgerUpdate `json:"ledger_update,omitempty"`

	// Receipts of the dispute path, initVC first if it was sent.
	Receipts []*chain.Receipt `json:"receipts,omitempty"`
}

// OpenVirtualChannel opens a virtual channel to counterparty funded with bond
// out of the caller's ledger channel. A nil bond commits the whole ledger
// balance. The returned certificate carries the hub's countersignature.
func (e *Engine) OpenVirtualChannel(ctx context.Context, id *crypto.PrivateKey, counterparty common.Address, bond *big.Int) (*types.OpeningCertificate, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	if bond != nil {
		if err := checkAmount("bond", bond, false); err != nil {
			return nil, err
		}
	}
	if counterparty == id.Address() {
		return nil, result.Error("Cannot open a virtual channel to self %v", counterparty.Hex()).
			WithErrorCode(result.CodeSelfChannel).Err()
	}

	vcID := types.GenerateChannelID()
	l := newOpLogger("OpenVirtualChannel", vcID)

	lcA, err := e.hub.LedgerChannelByParty(ctx, id.Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to find our ledger channel")
	}
	lcB, err := e.hub.LedgerChannelByParty(ctx, counterparty)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find the counterparty's ledger channel")
	}
	if lcB.Status != types.StatusOpen {
		return nil, &result.ChannelStateError{ChannelID: lcB.State.ChannelID, Status: lcB.Status.String(), Reason: "counterparty's ledger channel is not open"}
	}
	lcID := lcA.State.ChannelID
	status, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, status, "virtual channels need an open ledger channel", types.StatusOpen); err != nil {
		return nil, err
	}

	latest, err := e.latestLedger(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if bond == nil {
		bond = new(big.Int).Set(latest.State.BalanceA)
	}
	opening := &types.VirtualChannelState{
		ChannelID: vcID,
		PartyA:    id.Address(),
		PartyB:    counterparty,
		BalanceA:  bond,
		BalanceB:  big.NewInt(0),
	}
	if res := validator.ValidateVirtualTransition(nil, opening, validator.VirtualFacts{
		Role:      validator.RolePartyA,
		Available: latest.State.BalanceA,
	}); res.IsError() {
		return nil, res.Err()
	}

	cert, err := e.buildOpeningCertificate(ctx, l, id, latest, opening, nil)
	if err != nil {
		return nil, err
	}
	if err := e.tracker.advance(virtualChannel, vcID, types.StatusProposed, "cannot propose"); err != nil {
		return nil, err
	}

	out := awaitCountersignature(ctx, e.cfg.CountersignTimeout, func(ctx context.Context) (*crypto.Signature, error) {
		return e.hub.OpenVirtualChannel(ctx, cert)
	})
	if !out.countersigned() {
		// Nothing was committed, ledger channel state at the previous nonce stays authoritative.
		l.WithError(out.reason).Warn("Hub did not countersign the opening")
		return nil, errors.Wrap(out.reason, "virtual channel not opened")
	}
	if err := e.commitOpening(lcID, cert, out.sig); err != nil {
		return nil, err
	}
	if err := e.tracker.advance(virtualChannel, vcID, types.StatusPendingJoin, "cannot open"); err != nil {
		return nil, err
	}
	l.WithFields(log.Fields{"counterparty": counterparty.Hex(), "bond": bond}).Info("Virtual channel opened, waiting for the counterparty to join")
	return cert, nil
}

// JoinVirtualChannel joins vcID as party B. The hub bonds party A's share out
// of its side of the caller's ledger channel.
func (e *Engine) JoinVirtualChannel(ctx context.Context, id *crypto.PrivateKey, vcID common.Hash) (*types.OpeningCertificate, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("JoinVirtualChannel", vcID)

	vc, err := e.hub.VirtualChannel(ctx, vcID)
	if err != nil {
		return nil, err
	}
	if vc.State.PartyB != id.Address() {
		return nil, result.Error("%v is not party B of %v", id.Address().Hex(), vcID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}
	status, err := e.tracker.observe(vcID, vc.Status)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(vcID, status, "only pending virtual channels can be joined", types.StatusPendingJoin); err != nil {
		return nil, err
	}

	opening, err := e.hub.VirtualOpening(ctx, vcID)
	if err != nil {
		return nil, err
	}
	if opening.State.ChannelID != vcID || opening.State.PartyB != id.Address() {
		return nil, result.Malformed("opening", "hub returned %v for the opening of %v", &opening.State, vcID.Hex())
	}
	if opening.SigA.IsEmpty() {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "payer did not sign the opening of %v", vcID.Hex())
	}
	if err := opening.VerifySignatures(); err != nil {
		return nil, err
	}
	if res := validator.ValidateVirtualTransition(nil, &opening.State, validator.VirtualFacts{Role: validator.RolePartyA}); res.IsError() {
		return nil, res.Err()
	}

	lcB, err := e.hub.LedgerChannelByParty(ctx, id.Address())
	if err != nil {
		return nil, errors.Wrap(err, "failed to find our ledger channel")
	}
	lcID := lcB.State.ChannelID
	if expected, ok := vc.LedgerFor(id.Address()); ok && expected != lcID {
		return nil, result.Error("Virtual channel %v is routed through %v, not %v", vcID.Hex(), expected.Hex(), lcID.Hex()).
			WithErrorCode(result.CodePartyMismatch).Err()
	}
	lcStatus, err := e.ledgerStatus(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(lcID, lcStatus, "virtual channels need an open ledger channel", types.StatusOpen); err != nil {
		return nil, err
	}
	latest, err := e.latestLedger(ctx, l, lcID)
	if err != nil {
		return nil, err
	}

	cert, err := e.buildOpeningCertificate(ctx, l, id, latest, &opening.State, opening)
	if err != nil {
		return nil, err
	}
	out := awaitCountersignature(ctx, e.cfg.CountersignTimeout, func(ctx context.Context) (*crypto.Signature, error) {
		return e.hub.JoinVirtualChannel(ctx, cert)
	})
	if !out.countersigned() {
		l.WithError(out.reason).Warn("Hub did not countersign the join")
		return nil, errors.Wrap(out.reason, "virtual channel not joined")
	}
	if err := e.commitOpening(lcID, cert, out.sig); err != nil {
		return nil, err
	}
	if err := e.tracker.advance(virtualChannel, vcID, types.StatusOpen, "cannot join"); err != nil {
		return nil, err
	}
	l.WithField("payer", opening.State.PartyA.Hex()).Info("Joined virtual channel")
	return cert, nil
}

// buildOpeningCertificate signs the opening and derives, validates and signs
// the ledger update bonding it. signedOpening carries the signatures
// collected so far, nil for a new channel.
func (e *Engine) buildOpeningCertificate(ctx context.Context, l *log.Entry, id *crypto.PrivateKey, latest *types.SignedLedgerUpdate,
	opening *types.VirtualChannelState, signedOpening *types.SignedVirtualUpdate) (*types.OpeningCertificate, error) {
	openings, err := e.openingsFor(ctx, l, &latest.State)
	if err != nil {
		return nil, err
	}
	next, err := LedgerUpdateOnVirtualOpen(&latest.State, openings, opening)
	if err != nil {
		return nil, err
	}
	bonded := append(append([]*types.VirtualChannelState{}, openings...), opening)
	facts := validator.LedgerFacts{
		Role:           validator.RolePartyA,
		PriorBonded:    BondedValue(openings),
		ProposedBonded: BondedValue(bonded),
		ExpectedRoot:   &next.VcRootHash,
	}
	if res := validator.ValidateLedgerTransition(&latest.State, next, facts); res.IsError() {
		return nil, res.Err()
	}

	vcUpdate := signedOpening
	if vcUpdate == nil {
		if vcUpdate, err = types.NewSignedVirtualUpdate(opening); err != nil {
			return nil, err
		}
	} else {
		vcUpdate = vcUpdate.Copy()
	}
	if err := vcUpdate.Sign(id); err != nil {
		return nil, err
	}
	lcUpdate, err := types.NewSignedLedgerUpdate(next)
	if err != nil {
		return nil, err
	}
	if err := lcUpdate.Sign(id); err != nil {
		return nil, err
	}
	cert := &types.OpeningCertificate{VirtualOpening: *vcUpdate, LedgerUpdate: *lcUpdate}
	dump(l, "opening certificate", cert)
	return cert, nil
}

// commitOpening attaches the hub countersignature and records both halves
// of the certificate.
func (e *Engine) commitOpening(lcID common.Hash, cert *types.OpeningCertificate, hubSig *crypto.Signature) error {
	if err := e.attachHubSignature(&cert.LedgerUpdate, hubSig); err != nil {
		return err
	}
	if err := e.recordVirtual(&cert.VirtualOpening); err != nil {
		return err
	}
	if err := e.recordLedger(&cert.LedgerUpdate); err != nil {
		return err
	}
	return e.history.BondVirtual(lcID, cert.VirtualOpening.State.ChannelID)
}

// UpdateVirtualChannelBalance signs the next state of vcID with the given
// split and relays it through the hub. Only party A pays.
func (e *Engine) UpdateVirtualChannelBalance(ctx context.Context, id *crypto.PrivateKey, vcID common.Hash, balanceA, balanceB *big.Int) (*types.SignedVirtualUpdate, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	if err := checkAmount("balanceA", balanceA, true); err != nil {
		return nil, err
	}
	if err := checkAmount("balanceB", balanceB, true); err != nil {
		return nil, err
	}
	l := newOpLogger("UpdateVirtualChannelBalance", vcID)

	prev, err := e.latestVirtual(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	proposed := prev.State.Copy()
	proposed.Nonce++
	proposed.BalanceA = new(big.Int).Set(balanceA)
	proposed.BalanceB = new(big.Int).Set(balanceB)

	role := validator.RolePartyB
	if id.Address() == prev.State.PartyA {
		role = validator.RolePartyA
	}
	if res := validator.ValidateVirtualTransition(&prev.State, proposed, validator.VirtualFacts{Role: role}); res.IsError() {
		return nil, res.Err()
	}
	status, err := e.virtualStatus(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(vcID, status, "payments need an open virtual channel", types.StatusOpen); err != nil {
		return nil, err
	}

	update, err := types.NewSignedVirtualUpdate(proposed)
	if err != nil {
		return nil, err
	}
	if err := update.Sign(id); err != nil {
		return nil, err
	}
	if err := e.hub.ProposeVirtualUpdate(ctx, update); err != nil {
		return nil, errors.Wrapf(err, "hub did not relay nonce %v", proposed.Nonce)
	}
	if err := e.recordVirtual(update); err != nil {
		return nil, err
	}
	l.WithFields(log.Fields{"nonce": proposed.Nonce, "balanceA": balanceA, "balanceB": balanceB}).Info("Virtual channel updated")
	return update, nil
}

// CloseVirtualChannel unbonds vcID from the caller's ledger channel with the
// hub's countersignature. Without it the channel is closed on chain.
func (e *Engine) CloseVirtualChannel(ctx context.Context, id *crypto.PrivateKey, vcID common.Hash) (*CloseResult, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("CloseVirtualChannel", vcID)

	status, err := e.virtualStatus(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(vcID, status, "only open virtual channels can be closed", types.StatusOpen); err != nil {
		return nil, err
	}
	final, err := e.latestVirtual(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	if final.SigA.IsEmpty() {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "payer did not sign nonce %v of %v", final.State.Nonce, vcID.Hex())
	}
	lcID, err := e.bondingLedger(ctx, id.Address(), vcID, &final.State)
	if err != nil {
		return nil, err
	}
	latest, err := e.latestLedger(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	openings, err := e.openingsFor(ctx, l, &latest.State)
	if err != nil {
		return nil, err
	}
	next, err := LedgerUpdateOnVirtualClose(&latest.State, openings, &final.State)
	if err != nil {
		return nil, err
	}
	var remaining []*types.VirtualChannelState
	for _, o := range openings {
		if o.ChannelID != vcID {
			remaining = append(remaining, o)
		}
	}
	facts := validator.LedgerFacts{
		Role:           validator.RolePartyA,
		PriorBonded:    BondedValue(openings),
		ProposedBonded: BondedValue(remaining),
		ExpectedRoot:   &next.VcRootHash,
	}
	if res := validator.ValidateLedgerTransition(&latest.State, next, facts); res.IsError() {
		return nil, res.Err()
	}
	update, err := types.NewSignedLedgerUpdate(next)
	if err != nil {
		return nil, err
	}
	if err := update.Sign(id); err != nil {
		return nil, err
	}
	dump(l, "unbonding update", update)

	if err := e.tracker.advance(virtualChannel, vcID, types.StatusFastClosing, "only open virtual channels can be closed"); err != nil {
		return nil, err
	}
	out := awaitCountersignature(ctx, e.cfg.CountersignTimeout, func(ctx context.Context) (*crypto.Signature, error) {
		return e.hub.FastCloseVirtualChannel(ctx, vcID, update)
	})
	if out.countersigned() {
		if err := e.attachHubSignature(update, out.sig); err != nil {
			return nil, err
		}
		if err := e.recordLedger(update); err != nil {
			return nil, err
		}
		if err := e.history.ReleaseVirtual(lcID, vcID); err != nil {
			return nil, err
		}
		if err := e.tracker.advance(virtualChannel, vcID, types.StatusClosed, "cannot close"); err != nil {
			return nil, err
		}
		l.WithField("nonce", final.State.Nonce).Info("Virtual channel fast closed")
		return &CloseResult{ChannelID: vcID, FastClosed: true, LedgerUpdate: update}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.WithError(out.reason).Warn("Hub did not countersign the unbonding update, closing on chain")
	receipts, err := e.disputeVirtual(ctx, l, id, vcID, lcID)
	if err != nil {
		return nil, err
	}
	return &CloseResult{ChannelID: vcID, Receipts: receipts}, nil
}

// DisputeCloseVirtualChannel closes vcID on chain: the opening state is
// proven against the caller's ledger channel root with initVC, then the
// latest state is settled with settleVC. An interrupted dispute resumes
// after the step that already succeeded.
func (e *Engine) DisputeCloseVirtualChannel(ctx context.Context, id *crypto.PrivateKey, vcID common.Hash) (*CloseResult, error) {
	if id == nil {
		return nil, parameterError("no signing identity provided")
	}
	l := newOpLogger("DisputeCloseVirtualChannel", vcID)
	status, err := e.virtualStatus(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(vcID, status, "cannot dispute", types.StatusOpen, types.StatusFastClosing,
		types.StatusDisputing, types.StatusSettling); err != nil {
		return nil, err
	}
	opening, err := e.virtualOpening(ctx, vcID)
	if err != nil {
		return nil, err
	}
	lcID, err := e.bondingLedger(ctx, id.Address(), vcID, &opening.State)
	if err != nil {
		return nil, err
	}
	receipts, err := e.disputeVirtual(ctx, l, id, vcID, lcID)
	if err != nil {
		return nil, err
	}
	return &CloseResult{ChannelID: vcID, Receipts: receipts}, nil
}

func (e *Engine) disputeVirtual(ctx context.Context, l *log.Entry, id *crypto.PrivateKey, vcID, lcID common.Hash) ([]*chain.Receipt, error) {
	status, err := e.tracker.status(vcID)
	if err != nil {
		return nil, err
	}
	if status != types.StatusSettling {
		if err := e.tracker.advance(virtualChannel, vcID, types.StatusDisputing, "cannot dispute"); err != nil {
			return nil, err
		}
	}
	var receipts []*chain.Receipt

	seedTx, seeded, err := e.history.VirtualSeeded(vcID)
	if err != nil {
		return nil, err
	}
	if seeded {
		l.WithField("tx", seedTx.Hex()).Info("Virtual channel already seeded on chain, settling")
	} else {
		opening, err := e.virtualOpening(ctx, vcID)
		if err != nil {
			return nil, err
		}
		proof, err := e.inclusionProof(ctx, l, lcID, opening)
		if err != nil {
			return nil, err
		}
		receipt, err := e.chain.InitVC(ctx, id, lcID, opening, proof)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
		if err := e.history.MarkVirtualSeeded(lcID, vcID, receipt.TxHash); err != nil {
			return nil, err
		}
	}
	if err := e.tracker.advance(virtualChannel, vcID, types.StatusSettling, "cannot settle"); err != nil {
		return nil, err
	}

	final, err := e.latestVirtual(ctx, l, vcID)
	if err != nil {
		return nil, err
	}
	if final.SigA.IsEmpty() {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "payer did not sign nonce %v of %v", final.State.Nonce, vcID.Hex())
	}
	receipt, err := e.chain.SettleVC(ctx, id, lcID, final)
	if err != nil {
		return nil, err
	}
	receipts = append(receipts, receipt)
	if err := e.tracker.advance(virtualChannel, vcID, types.StatusClosed, "cannot close"); err != nil {
		return nil, err
	}
	l.WithFields(log.Fields{"nonce": final.State.Nonce, "tx": receipt.TxHash.Hex()}).Info("Virtual channel settled on chain")
	return receipts, nil
}

// inclusionProof proves opening against the root of the latest
// countersigned state of lcID.
func (e *Engine) inclusionProof(ctx context.Context, l *log.Entry, lcID common.Hash, opening *types.SignedVirtualUpdate) (*commitment.Proof, error) {
	latest, err := e.latestLedger(ctx, l, lcID)
	if err != nil {
		return nil, err
	}
	openings, err := e.openingsFor(ctx, l, &latest.State)
	if err != nil {
		return nil, err
	}
	proof, err := commitment.BuildProof(openings, opening.State.ChannelID)
	if err != nil {
		return nil, err
	}
	if !proof.Verify(opening.Fingerprint, latest.State.VcRootHash) {
		return nil, result.Error("Opening of %v is not committed in %v at nonce %v",
			opening.State.ChannelID.Hex(), lcID.Hex(), latest.State.Nonce).
			WithErrorCode(result.CodeRootHashMismatch).Err()
	}
	return proof, nil
}

// bondingLedger returns the ledger channel of party that bonds vcID.
func (e *Engine) bondingLedger(ctx context.Context, party common.Address, vcID common.Hash, vc *types.VirtualChannelState) (common.Hash, error) {
	if party != vc.PartyA && party != vc.PartyB {
		return common.Hash{}, result.Error("%v is not a party of %v", party.Hex(), vcID.Hex()).
			WithErrorCode(result.CodeUnauthorizedRole).Err()
	}
	lcID, ok, err := e.history.BondingLedger(vcID)
	if err != nil || ok {
		return lcID, err
	}
	rec, err := e.hub.VirtualChannel(ctx, vcID)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "failed to find the ledger channel bonding %v", vcID.Hex())
	}
	if lcID, ok := rec.LedgerFor(party); ok {
		return lcID, nil
	}
	return common.Hash{}, errors.Wrapf(hub.ErrNotFound, "no ledger channel of %v bonds %v", party.Hex(), vcID.Hex())
}

// CloseVirtualChannels closes each of vcIDs in turn. A failed close does not
// stop the others; all failures are returned together.
func (e *Engine) CloseVirtualChannels(ctx context.Context, id *crypto.PrivateKey, vcIDs []common.Hash) ([]*CloseResult, error) {
	var results []*CloseResult
	var errs *multierror.Error
	for _, vcID := range vcIDs {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		res, err := e.CloseVirtualChannel(ctx, id, vcID)
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "virtual channel %v", vcID.Hex()))
			continue
		}
		results = append(results, res)
	}
	return results, errs.ErrorOrNil()
}
