package utils

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/thetatoken/hubchannel/chain"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/engine"
	"github.com/thetatoken/hubchannel/hub"
	"github.com/thetatoken/hubchannel/store/database/backend"
	"github.com/thetatoken/hubchannel/store/history"
	"github.com/thetatoken/hubchannel/wallet/keystore"
)

const (
	dbCacheSize   = 16
	dbFileHandles = 64
)

// ConfigPath returns the config folder in use.
func ConfigPath() string {
	return viper.GetString(common.CfgConfigPath)
}

// DataPath returns the folder of the signed update history.
func DataPath() string {
	if p := viper.GetString(common.CfgStorageDataPath); p != "" {
		return p
	}
	return path.Join(ConfigPath(), "db")
}

// OpenKeystore opens the keystore under the config folder.
func OpenKeystore() (keystore.Keystore, error) {
	return keystore.NewKeystore(path.Join(ConfigPath(), "keys"), viper.GetBool(common.CfgKeystoreEncrypted))
}

// LoadIdentity reads the key of address from the keystore, prompting for
// its password when the keystore is encrypted.
func LoadIdentity(address string) (*crypto.PrivateKey, error) {
	if address == "" {
		return nil, errors.New("no --from address given")
	}
	addr, err := common.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	ks, err := OpenKeystore()
	if err != nil {
		return nil, err
	}
	var password string
	if viper.GetBool(common.CfgKeystoreEncrypted) {
		if password, err = GetPassword(fmt.Sprintf("Please enter the password for %v: ", addr.Hex())); err != nil {
			return nil, err
		}
	}
	key, err := ks.GetKey(addr, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load key %v", addr.Hex())
	}
	return key.PrivateKey, nil
}

// NewEngine wires the engine from config: the hub JSON-RPC client, the
// contract on chain and the local history. The returned func closes the
// history.
func NewEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := engine.ConfigFromViper()
	if err != nil {
		return nil, nil, err
	}
	contract, err := common.ParseAddress(viper.GetString(common.CfgChainContractAddress))
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid chain.contractAddress")
	}
	c, err := chain.Dial(ctx, viper.GetString(common.CfgChainRPCEndpoint), contract, viper.GetDuration(common.CfgChainConfirmTimeout))
	if err != nil {
		return nil, nil, err
	}

	dataPath := DataPath()
	if err := common.EnsureDir(dataPath, 0700); err != nil {
		return nil, nil, err
	}
	db, err := backend.NewLDBDatabase(dataPath, dbCacheSize, dbFileHandles)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open history at %v", dataPath)
	}
	hist, err := history.NewHistory(db, viper.GetInt(common.CfgStorageHistoryCacheSize))
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	h := hub.NewRPCClient(viper.GetString(common.CfgHubRPCEndpoint))
	logger.WithField("dataPath", dataPath).Debug("Engine ready")
	return engine.NewEngine(cfg, h, c, hist), db.Close, nil
}

// Context is cancelled on interrupt.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// ResolveLedgerChannel returns the channel id given by flag, or the ledger
// channel the hub records for party.
func ResolveLedgerChannel(ctx context.Context, e *engine.Engine, flag string, party common.Address) (common.Hash, error) {
	if flag != "" {
		return common.ParseHash(flag)
	}
	return e.LedgerChannelID(ctx, party)
}

// RunWithEngine loads the identity of from when needIdentity is set, wires
// the engine and runs fn. Errors exit.
func RunWithEngine(from string, needIdentity bool, fn func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey)) {
	ctx, cancel := Context()
	defer cancel()

	var id *crypto.PrivateKey
	var err error
	if needIdentity {
		if id, err = LoadIdentity(from); err != nil {
			Error("%v\n", err)
		}
	}
	e, closeHistory, err := NewEngine(ctx)
	if err != nil {
		Error("Failed to start engine: %v\n", err)
	}
	defer closeHistory()
	fn(ctx, e, id)
}
