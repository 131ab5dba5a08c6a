package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/thetatoken/hubchannel/chain"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/common/util"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/ledger/types"
	"github.com/thetatoken/hubchannel/store/history"
)

var logger *log.Entry = util.GetLoggerForModule("engine")

const defaultCountersignTimeout = 30 * time.Second

// Config holds the engine parameters.
type Config struct {
	// HubAddress is the address the hub signs ledger channel updates with.
	HubAddress common.Address

	// CountersignTimeout bounds every wait for a hub countersignature.
	CountersignTimeout time.Duration
}

// ConfigFromViper reads the engine config from viper.
func ConfigFromViper() (Config, error) {
	hubAddress, err := common.ParseAddress(viper.GetString(common.CfgHubAddress))
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid %s", common.CfgHubAddress)
	}
	if hubAddress == (common.Address{}) {
		return Config{}, errors.Errorf("%s is not set", common.CfgHubAddress)
	}
	return Config{
		HubAddress:         hubAddress,
		CountersignTimeout: viper.GetDuration(common.CfgHubCountersignTimeout),
	}, nil
}

//
// Engine drives ledger and virtual channels through their lifecycles. It
// builds every proposal locally, validates it, signs it with the identity
// given by the caller and only then talks to the hub or the chain.
//
type Engine struct {
	cfg     Config
	hub     hub.Hub
	chain   chain.Chain
	history *history.History
	tracker *statusTracker
}

// NewEngine creates an engine on top of the given collaborators.
func NewEngine(cfg Config, h hub.Hub, c chain.Chain, hist *history.History) *Engine {
	if cfg.CountersignTimeout <= 0 {
		cfg.CountersignTimeout = defaultCountersignTimeout
	}
	return &Engine{
		cfg:     cfg,
		hub:     h,
		chain:   c,
		history: hist,
		tracker: newStatusTracker(hist),
	}
}

// History returns the signed update history the engine records into.
func (e *Engine) History() *history.History {
	return e.history
}

// LedgerChannelStatus returns the locally known lifecycle status of a ledger channel.
func (e *Engine) LedgerChannelStatus(lcID common.Hash) (types.ChannelStatus, error) {
	return e.tracker.status(lcID)
}

// VirtualChannelStatus returns the locally known lifecycle status of a virtual channel.
func (e *Engine) VirtualChannelStatus(vcID common.Hash) (types.ChannelStatus, error) {
	return e.tracker.status(vcID)
}

// LedgerChannelID looks up the ledger channel party holds with the hub.
func (e *Engine) LedgerChannelID(ctx context.Context, party common.Address) (common.Hash, error) {
	lc, err := e.hub.LedgerChannelByParty(ctx, party)
	if err != nil {
		return common.Hash{}, err
	}
	return lc.State.ChannelID, nil
}

func newOpLogger(op string, channelID common.Hash) *log.Entry {
	return logger.WithFields(log.Fields{
		"op":      op,
		"opID":    uuid.New(),
		"channel": channelID.Hex(),
	})
}

func dump(l *log.Entry, what string, v interface{}) {
	if l.Logger.IsLevelEnabled(log.DebugLevel) {
		l.Debugf("%s: %s", what, spew.Sdump(v))
	}
}

func parameterError(format string, a ...interface{}) error {
	return result.ParameterError(format, a...)
}

func checkAmount(name string, amount *big.Int, allowZero bool) error {
	if amount == nil {
		return parameterError("%s is missing", name)
	}
	if amount.Sign() < 0 || (!allowZero && amount.Sign() == 0) {
		return parameterError("invalid %s %v", name, amount)
	}
	return nil
}
