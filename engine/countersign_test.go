package engine

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store/database/backend"
	"github.com/thetatoken/hubchannel/store/history"
)

func TestAwaitCountersignature(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fp := crypto.Keccak256Hash([]byte("state"))
	sig, err := crypto.SignFingerprint(fp, hubKey)
	require.Nil(t, err)

	out := awaitCountersignature(ctx, time.Second, func(ctx context.Context) (*crypto.Signature, error) {
		return sig, nil
	})
	assert.True(out.countersigned())
	assert.Equal(sig, out.sig)

	out = awaitCountersignature(ctx, time.Second, func(ctx context.Context) (*crypto.Signature, error) {
		return nil, hub.ErrRefused
	})
	assert.False(out.countersigned())
	assert.True(errors.Is(out.reason, hub.ErrRefused))

	out = awaitCountersignature(ctx, time.Second, func(ctx context.Context) (*crypto.Signature, error) {
		return &crypto.Signature{}, nil
	})
	assert.False(out.countersigned())
	assert.True(errors.Is(out.reason, hub.ErrRefused))

	start := time.Now()
	release := make(chan struct{})
	defer close(release)
	out = awaitCountersignature(ctx, 50*time.Millisecond, func(ctx context.Context) (*crypto.Signature, error) {
		<-release
		return sig, nil
	})
	assert.False(out.countersigned())
	assert.True(result.IsUnresponsive(out.reason))
	assert.True(time.Since(start) < time.Second)
}

func TestStatusTracker(t *testing.T) {
	assert := assert.New(t)

	hist, err := history.NewHistory(backend.NewMemDatabase(), 4)
	require.Nil(t, err)
	tracker := newStatusTracker(hist)
	id := types.TestChannelID("tracked")

	status, err := tracker.status(id)
	assert.Nil(err)
	assert.Equal(types.StatusUnopened, status)

	err = tracker.advance(ledgerChannel, id, types.StatusOpen, "not joined")
	assert.True(result.IsChannelState(err))

	assert.Nil(tracker.advance(ledgerChannel, id, types.StatusPendingJoin, ""))
	assert.Nil(tracker.advance(ledgerChannel, id, types.StatusPendingJoin, ""))
	assert.Nil(tracker.advance(ledgerChannel, id, types.StatusOpen, ""))
	assert.Nil(tracker.check(ledgerChannel, id, types.StatusDisputing, ""))

	// Statuses survive the tracker.
	status, err = newStatusTracker(hist).status(id)
	assert.Nil(err)
	assert.Equal(types.StatusOpen, status)

	// A recorded status wins over an observed one.
	status, err = tracker.observe(id, types.StatusClosed)
	assert.Nil(err)
	assert.Equal(types.StatusOpen, status)

	vcID := types.TestChannelID("tracked-vc")
	status, err = tracker.observe(vcID, types.StatusPendingJoin)
	assert.Nil(err)
	assert.Equal(types.StatusPendingJoin, status)
	err = tracker.advance(virtualChannel, vcID, types.StatusClosed, "still pending")
	assert.True(result.IsChannelState(err))
	assert.Nil(tracker.advance(virtualChannel, vcID, types.StatusOpen, ""))
}
