package engine

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store/history"
)

// Reconciliation between the local history and the hub. The hub is the
// relay of record, but every update it hands out is verified before use and
// the local history is consulted whenever the hub is silent.

// fetchLedgerUpdate returns the hub's latest update for lcID. The hub must
// have signed it. Countersigned updates are recorded.
func (e *Engine) fetchLedgerUpdate(ctx context.Context, lcID common.Hash) (*types.SignedLedgerUpdate, error) {
	u, err := e.hub.LatestLedgerUpdate(ctx, lcID)
	if err != nil {
		return nil, err
	}
	if u.State.ChannelID != lcID {
		return nil, result.Malformed("channelId", "hub returned %v for %v", u.State.ChannelID.Hex(), lcID.Hex())
	}
	if u.State.PartyHub != e.cfg.HubAddress {
		return nil, &result.SignatureError{Role: types.SignerPartyHub, Expected: e.cfg.HubAddress, Recovered: u.State.PartyHub}
	}
	if u.SigHub.IsEmpty() {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "hub did not sign nonce %v of %v", u.State.Nonce, lcID.Hex())
	}
	if err := u.VerifySignatures(); err != nil {
		return nil, err
	}
	if u.IsCountersigned() {
		if err := e.recordLedger(u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// latestLedger returns the newest countersigned update of lcID known locally
// or to the hub. A channel without any signed update yields the hub's
// record of its opening state, unsigned.
func (e *Engine) latestLedger(ctx context.Context, l *log.Entry, lcID common.Hash) (*types.SignedLedgerUpdate, error) {
	local, err := e.history.LatestLedger(lcID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}

	remote, err := e.fetchLedgerUpdate(ctx, lcID)
	switch {
	case err == nil:
		if !remote.IsCountersigned() {
			l.WithField("nonce", remote.State.Nonce).Info("Hub update awaits our countersignature, ignoring it")
			remote = nil
		}
	case result.IsUnresponsive(err) || errors.Is(err, hub.ErrNotFound):
		l.WithError(err).Warn("No ledger update from the hub, using local history")
	default:
		return nil, err
	}

	latest := local
	if remote != nil && (latest == nil || remote.State.Nonce > latest.State.Nonce) {
		latest = remote
	}
	if latest != nil {
		return latest, nil
	}

	rec, err := e.hub.LedgerChannel(ctx, lcID)
	if err != nil {
		return nil, errors.Wrapf(err, "no state known for ledger channel %v", lcID.Hex())
	}
	opening := rec.State
	if opening.ChannelID != lcID || opening.Nonce != 0 || opening.OpenVcCount != 0 || opening.VcRootHash != commitment.EmptyRoot {
		return nil, result.Malformed("state", "hub opening record of %v is not a nonce 0 state: %v", lcID.Hex(), &opening)
	}
	return types.NewSignedLedgerUpdate(&opening)
}

// openingsFor returns the opening states of the virtual channels bonded in
// lc. The local bond index is used when it reproduces lc's root.
func (e *Engine) openingsFor(ctx context.Context, l *log.Entry, lc *types.LedgerChannelState) ([]*types.VirtualChannelState, error) {
	local, err := e.history.BondedOpenings(lc.ChannelID)
	if err != nil {
		return nil, err
	}
	if checkCommitment(lc, local) == nil {
		return local, nil
	}

	remote, err := e.hub.VirtualOpeningStates(ctx, lc.ChannelID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch the openings bonded in %v", lc.ChannelID.Hex())
	}
	if err := checkCommitment(lc, remote); err != nil {
		return nil, err
	}
	l.WithField("count", len(remote)).Debug("Using the hub's opening states")
	return remote, nil
}

// latestVirtual returns the newest update of vcID signed by the payer,
// known locally or to the hub.
func (e *Engine) latestVirtual(ctx context.Context, l *log.Entry, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	local, err := e.history.LatestVirtual(vcID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}

	remote, err := e.hub.LatestVirtualUpdate(ctx, vcID)
	switch {
	case err == nil:
		if remote.State.ChannelID != vcID {
			return nil, result.Malformed("channelId", "hub returned %v for %v", remote.State.ChannelID.Hex(), vcID.Hex())
		}
		if remote.SigA.IsEmpty() {
			return nil, errors.Wrapf(result.ErrInvalidSignature, "payer did not sign nonce %v of %v", remote.State.Nonce, vcID.Hex())
		}
		if err := e.recordVirtual(remote); err != nil {
			return nil, err
		}
	case result.IsUnresponsive(err) || errors.Is(err, hub.ErrNotFound):
		l.WithError(err).Warn("No virtual update from the hub, using local history")
		remote = nil
	default:
		return nil, err
	}

	latest := local
	if remote != nil && (latest == nil || remote.State.Nonce > latest.State.Nonce) {
		latest = remote
	}
	if latest == nil {
		return nil, errors.Wrapf(history.ErrNotFound, "no update known for virtual channel %v", vcID.Hex())
	}
	return latest, nil
}

// virtualOpening returns the opening update of vcID signed by the payer.
func (e *Engine) virtualOpening(ctx context.Context, vcID common.Hash) (*types.SignedVirtualUpdate, error) {
	opening, err := e.history.VirtualOpening(vcID)
	if err == nil && !opening.SigA.IsEmpty() {
		return opening, nil
	}
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}
	opening, err = e.hub.VirtualOpening(ctx, vcID)
	if err != nil {
		return nil, err
	}
	if opening.State.ChannelID != vcID || !opening.State.IsOpening() {
		return nil, result.Malformed("opening", "hub returned %v for the opening of %v", &opening.State, vcID.Hex())
	}
	if opening.SigA.IsEmpty() {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "payer did not sign the opening of %v", vcID.Hex())
	}
	if err := e.recordVirtual(opening); err != nil {
		return nil, err
	}
	return opening, nil
}

// recordLedger appends u to the history. An update the history already
// superseded is not an error.
func (e *Engine) recordLedger(u *types.SignedLedgerUpdate) error {
	err := e.history.AppendLedger(u)
	if errors.Is(err, history.ErrStaleUpdate) {
		return nil
	}
	return err
}

func (e *Engine) recordVirtual(u *types.SignedVirtualUpdate) error {
	err := e.history.AppendVirtual(u)
	if errors.Is(err, history.ErrStaleUpdate) {
		return nil
	}
	return err
}

// attachHubSignature checks sig against the hub address before attaching it.
func (e *Engine) attachHubSignature(u *types.SignedLedgerUpdate, sig *crypto.Signature) error {
	if err := crypto.VerifySigner(types.SignerPartyHub, e.cfg.HubAddress, u.Fingerprint, sig); err != nil {
		logger.WithFields(log.Fields{
			"channel":  u.State.ChannelID.Hex(),
			"nonce":    u.State.Nonce,
			"expected": e.cfg.HubAddress.Hex(),
		}).WithError(err).Error("Hub countersignature does not verify")
		return err
	}
	u.SigHub = sig
	return nil
}

// ledgerStatus returns the recorded status of lcID, adopting the hub's view
// the first time the channel is seen. A channel waiting for the hub to join
// is refreshed until it opens.
func (e *Engine) ledgerStatus(ctx context.Context, l *log.Entry, lcID common.Hash) (types.ChannelStatus, error) {
	status, ok, err := e.history.Status(lcID)
	if err != nil || (ok && status != types.StatusPendingJoin) {
		return status, err
	}
	rec, err := e.hub.LedgerChannel(ctx, lcID)
	switch {
	case err != nil:
		l.WithError(err).Warn("Failed to fetch the hub's record of the ledger channel")
	case !ok:
		return e.tracker.observe(lcID, rec.Status)
	case rec.Status == types.StatusOpen:
		if err := e.tracker.advance(ledgerChannel, lcID, types.StatusOpen, "cannot join"); err != nil {
			return status, err
		}
		return types.StatusOpen, nil
	}
	if ok {
		return status, nil
	}
	if _, lerr := e.history.LatestLedger(lcID); lerr == nil {
		return e.tracker.observe(lcID, types.StatusOpen)
	}
	return types.StatusUnopened, nil
}

// virtualStatus is ledgerStatus for virtual channels. The payer learns from
// the hub when party B joined.
func (e *Engine) virtualStatus(ctx context.Context, l *log.Entry, vcID common.Hash) (types.ChannelStatus, error) {
	status, ok, err := e.history.Status(vcID)
	if err != nil || (ok && status != types.StatusPendingJoin) {
		return status, err
	}
	rec, err := e.hub.VirtualChannel(ctx, vcID)
	switch {
	case err != nil:
		l.WithError(err).Warn("Failed to fetch the hub's record of the virtual channel")
	case !ok:
		return e.tracker.observe(vcID, rec.Status)
	case rec.Status == types.StatusOpen:
		if err := e.tracker.advance(virtualChannel, vcID, types.StatusOpen, "cannot join"); err != nil {
			return status, err
		}
		return types.StatusOpen, nil
	}
	if ok {
		return status, nil
	}
	if _, lerr := e.history.LatestVirtual(vcID); lerr == nil {
		return e.tracker.observe(vcID, types.StatusOpen)
	}
	return types.StatusUnopened, nil
}

func requireStatus(id common.Hash, status types.ChannelStatus, reason string, allowed ...types.ChannelStatus) error {
	for _, s := range allowed {
		if s == status {
			return nil
		}
	}
	return &result.ChannelStateError{ChannelID: id, Status: status.String(), Reason: reason}
}
