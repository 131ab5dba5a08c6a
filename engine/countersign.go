package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/hub"
)

// countersignOutcome is either a hub signature or the reason to fall back.
type countersignOutcome struct {
	sig    *crypto.Signature
	reason error
}

func (o countersignOutcome) countersigned() bool {
	return o.reason == nil
}

// awaitCountersignature runs call as a single task racing against timeout.
// A refusal, an empty signature, a transport error and the deadline all
// resolve to a fallback outcome. The abandoned call is left to finish on
// its own.
func awaitCountersignature(ctx context.Context, timeout time.Duration,
	call func(ctx context.Context) (*crypto.Signature, error)) countersignOutcome {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan countersignOutcome, 1)
	go func() {
		sig, err := call(callCtx)
		if err == nil && sig.IsEmpty() {
			err = hub.ErrRefused
		}
		done <- countersignOutcome{sig: sig, reason: err}
	}()

	select {
	case out := <-done:
		return out
	case <-callCtx.Done():
		return countersignOutcome{
			reason: errors.Wrapf(result.ErrCounterpartyUnresponsive, "no countersignature within %v", timeout),
		}
	}
}
