package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store/history"
)

type channelKind byte

const (
	ledgerChannel channelKind = iota
	virtualChannel
)

func (k channelKind) canTransition(from, to types.ChannelStatus) bool {
	if k == ledgerChannel {
		return types.CanTransitionLC(from, to)
	}
	return types.CanTransitionVC(from, to)
}

//
// statusTracker enforces the channel state machines. Statuses are persisted
// in the history so that a later process resumes where this one stopped.
//
type statusTracker struct {
	mu      sync.Mutex
	history *history.History
}

func newStatusTracker(hist *history.History) *statusTracker {
	return &statusTracker{history: hist}
}

func (t *statusTracker) status(id common.Hash) (types.ChannelStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, _, err := t.history.Status(id)
	return status, err
}

// observe adopts status when nothing is recorded locally yet. A locally
// recorded status always wins.
func (t *statusTracker) observe(id common.Hash, status types.ChannelStatus) (types.ChannelStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok, err := t.history.Status(id)
	if err != nil {
		return current, err
	}
	if ok {
		return current, nil
	}
	if err := t.history.SetStatus(id, status); err != nil {
		return current, err
	}
	return status, nil
}

// check returns a *result.ChannelStateError if id may not move to `to`.
// Staying in the current status is always allowed.
func (t *statusTracker) check(kind channelKind, id common.Hash, to types.ChannelStatus, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.checkLocked(kind, id, to, reason)
	return err
}

// advance moves id to `to` if the state machine allows it.
func (t *statusTracker) advance(kind channelKind, id common.Hash, to types.ChannelStatus, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	from, err := t.checkLocked(kind, id, to, reason)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	logger.WithFields(log.Fields{
		"channel": id.Hex(),
		"from":    from,
		"to":      to,
	}).Debug("Channel status changed")
	return t.history.SetStatus(id, to)
}

// revert puts id back to `to` after an attempt that left no trace on chain.
func (t *statusTracker) revert(id common.Hash, to types.ChannelStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	logger.WithFields(log.Fields{
		"channel": id.Hex(),
		"to":      to,
	}).Debug("Channel status reverted")
	return t.history.SetStatus(id, to)
}

func (t *statusTracker) checkLocked(kind channelKind, id common.Hash, to types.ChannelStatus, reason string) (types.ChannelStatus, error) {
	from, _, err := t.history.Status(id)
	if err != nil {
		return from, err
	}
	if from == to || kind.canTransition(from, to) {
		return from, nil
	}
	return from, &result.ChannelStateError{ChannelID: id, Status: from.String(), Reason: reason}
}
