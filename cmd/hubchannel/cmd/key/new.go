package key

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/utils"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/wallet/keystore"
)

var privateKeyFlag string

// newCmd generates a new key, or imports one given in hex
var newCmd = &cobra.Command{
	Use:     "new",
	Short:   "Generates a new private key",
	Long:    `Generates a new private key, or stores the one given with --private-key.`,
	Example: "hubchannel key new",
	Run: func(cmd *cobra.Command, args []string) {
		ks, err := utils.OpenKeystore()
		if err != nil {
			utils.Error("Failed to open keystore: %v\n", err)
		}

		var key *keystore.Key
		if privateKeyFlag != "" {
			privKey, err := crypto.HexToPrivateKey(privateKeyFlag)
			if err != nil {
				utils.Error("Failed to parse private key: %v\n", err)
			}
			key = keystore.NewKey(privKey)
		} else if key, err = keystore.GenerateKey(); err != nil {
			utils.Error("Failed to generate new key: %v\n", err)
		}

		var password string
		if viper.GetBool(common.CfgKeystoreEncrypted) {
			if password, err = utils.GetPassword("Please enter password: "); err != nil {
				utils.Error("Failed to get password: %v\n", err)
			}
			password2, err := utils.GetPassword("Please enter password again: ")
			if err != nil {
				utils.Error("Failed to get password: %v\n", err)
			}
			if password != password2 {
				utils.Error("Passwords do not match, abort\n")
			}
		}

		if err := ks.StoreKey(key, password); err != nil {
			utils.Error("Failed to store key: %v\n", err)
		}
		fmt.Printf("Successfully created key: %v\n", key.Address.Hex())
	},
}

func init() {
	newCmd.Flags().StringVar(&privateKeyFlag, "private-key", "", "Hex encoded private key to import")
}
