package common

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// CfgConfigPath defines custom config path
	CfgConfigPath = "config.path"

	// CfgHubRPCEndpoint is the JSON-RPC endpoint of the hub.
	CfgHubRPCEndpoint = "hub.rpcEndpoint"
	// CfgHubAddress is the on-chain address the hub signs ledger channel updates with.
	CfgHubAddress = "hub.address"
	// CfgHubCountersignTimeout bounds how long we wait for a hub countersignature
	// before falling back to the on-chain dispute path.
	CfgHubCountersignTimeout = "hub.countersignTimeout"

	// CfgChainRPCEndpoint is the Ethereum JSON-RPC endpoint.
	CfgChainRPCEndpoint = "chain.rpcEndpoint"
	// CfgChainContractAddress is the address of the deployed ledger channel contract.
	CfgChainContractAddress = "chain.contractAddress"
	// CfgChainConfirmTimeout bounds the wait for a transaction to be mined.
	CfgChainConfirmTimeout = "chain.confirmTimeout"

	// CfgStorageDataPath is the directory holding the signed update history.
	CfgStorageDataPath = "storage.dataPath"
	// CfgStorageHistoryCacheSize is the number of channels whose latest update is cached.
	CfgStorageHistoryCacheSize = "storage.historyCacheSize"

	// CfgKeystoreEncrypted selects the password protected keystore.
	CfgKeystoreEncrypted = "keystore.encrypted"

	// CfgLogLevels sets the log level, e.g. "*:info,engine:debug".
	CfgLogLevels = "log.levels"
)

// InitialConfig is the default configuartion produced by init command.
const InitialConfig = `# hubchannel configuration
hub:
  rpcEndpoint: http://localhost:16888/rpc
  address: "0x0000000000000000000000000000000000000000"
chain:
  rpcEndpoint: http://localhost:8545
  contractAddress: "0x0000000000000000000000000000000000000000"
keystore:
  encrypted: true
log:
  levels: "*:info"
`

func init() {
	viper.SetDefault(CfgHubRPCEndpoint, "http://localhost:16888/rpc")
	viper.SetDefault(CfgHubCountersignTimeout, 30*time.Second)

	viper.SetDefault(CfgChainRPCEndpoint, "http://localhost:8545")
	viper.SetDefault(CfgChainConfirmTimeout, 5*time.Minute)

	viper.SetDefault(CfgStorageDataPath, "")
	viper.SetDefault(CfgStorageHistoryCacheSize, 256)

	viper.SetDefault(CfgKeystoreEncrypted, true)

	viper.SetDefault(CfgLogLevels, "*:info")
}

// WriteInitialConfig writes initial config file to file system.
func WriteInitialConfig(filePath string) error {
	return WriteFileAtomic(filePath, []byte(InitialConfig), 0600)
}
