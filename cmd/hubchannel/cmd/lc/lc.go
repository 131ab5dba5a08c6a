package lc

import (
	"github.com/spf13/cobra"
)

// Common flags used in ledger channel commands
var (
	fromFlag      string
	channelFlag   string
	toFlag        string
	amountFlag    string
	depositFlag   string
	challengeFlag int64
	nonceFlag     uint64
)

// LcCmd represents the ledger channel command
var LcCmd = &cobra.Command{
	Use:   "lc",
	Short: "Manage the ledger channel with the hub",
	Long:  `Open, fund, checkpoint and close the on-chain ledger channel with the hub.`,
}

func init() {
	LcCmd.PersistentFlags().StringVar(&fromFlag, "from", "", "Address of the key to sign with")
	LcCmd.PersistentFlags().StringVar(&channelFlag, "channel", "", "Ledger channel id (default: the hub's record for --from)")

	openCmd.Flags().StringVar(&depositFlag, "deposit", "0", "Deposit in wei")
	openCmd.Flags().Int64Var(&challengeFlag, "challenge", 0, "Challenge window in seconds (default: the hub's)")

	depositCmd.Flags().StringVar(&amountFlag, "amount", "", "Amount in wei")
	depositCmd.Flags().StringVar(&toFlag, "to", "", "Recipient side (default: --from)")
	depositCmd.MarkFlagRequired("amount")

	hubDepositCmd.Flags().StringVar(&amountFlag, "amount", "", "Amount in wei")
	hubDepositCmd.MarkFlagRequired("amount")

	cosignCmd.Flags().Uint64Var(&nonceFlag, "nonce", 0, "Nonce of the hub's update")
	cosignCmd.MarkFlagRequired("nonce")

	LcCmd.AddCommand(openCmd)
	LcCmd.AddCommand(depositCmd)
	LcCmd.AddCommand(hubDepositCmd)
	LcCmd.AddCommand(withdrawCmd)
	LcCmd.AddCommand(withdrawFinalCmd)
	LcCmd.AddCommand(checkpointCmd)
	LcCmd.AddCommand(cosignCmd)
	LcCmd.AddCommand(reclaimCmd)
	LcCmd.AddCommand(statusCmd)
	LcCmd.AddCommand(historyCmd)
}
