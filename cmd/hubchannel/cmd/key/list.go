package key

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/utils"
)

// listCmd lists the addresses of the stored keys
var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the stored keys",
	Example: "hubchannel key list",
	Run: func(cmd *cobra.Command, args []string) {
		ks, err := utils.OpenKeystore()
		if err != nil {
			utils.Error("Failed to open keystore: %v\n", err)
		}
		addresses, err := ks.ListKeyAddresses()
		if err != nil {
			utils.Error("Failed to list keys: %v\n", err)
		}
		for _, address := range addresses {
			fmt.Println(address.Hex())
		}
	},
}
