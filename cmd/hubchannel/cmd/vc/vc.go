package vc

import (
	"context"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/utils"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/engine"
)

// Common flags used in virtual channel commands
var (
	fromFlag     string
	channelFlag  string
	toFlag       string
	bondFlag     string
	balanceAFlag string
	balanceBFlag string
)

// VcCmd represents the virtual channel command
var VcCmd = &cobra.Command{
	Use:   "vc",
	Short: "Manage virtual channels routed through the hub",
}

// openCmd opens a virtual channel as payer
var openCmd = &cobra.Command{
	Use:     "open",
	Short:   "Open a virtual channel to a counterparty",
	Example: `hubchannel vc open --from=0x2E833968E5bB786Ae419c4d13189fB081Cc43bab --to=0x9F1233798E905E173560071255140b4A8aBd3Ec6 --bond=1000`,
	Run: func(cmd *cobra.Command, args []string) {
		counterparty, err := common.ParseAddress(toFlag)
		if err != nil {
			utils.Error("Invalid counterparty: %v\n", err)
		}
		var bond *big.Int
		if bondFlag != "" {
			if bond, err = utils.ParseAmount(bondFlag); err != nil {
				utils.Error("%v\n", err)
			}
		}
		utils.RunWithEngine(fromFlag, true, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			cert, err := e.OpenVirtualChannel(ctx, id, counterparty, bond)
			if err != nil {
				utils.Error("Failed to open virtual channel: %v\n", err)
			}
			utils.PrintJSON(cert)
		})
	},
}

// joinCmd joins a virtual channel as payee
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a virtual channel opened to us",
	Run: func(cmd *cobra.Command, args []string) {
		vcID := parseChannel()
		utils.RunWithEngine(fromFlag, true, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			cert, err := e.JoinVirtualChannel(ctx, id, vcID)
			if err != nil {
				utils.Error("Failed to join virtual channel: %v\n", err)
			}
			utils.PrintJSON(cert)
		})
	},
}

// payCmd signs the next balance split
var payCmd = &cobra.Command{
	Use:     "pay",
	Short:   "Update the balances of a virtual channel",
	Example: `hubchannel vc pay --from=0x2E833968E5bB786Ae419c4d13189fB081Cc43bab --channel=0x5c1f... --balance-a=700 --balance-b=300`,
	Run: func(cmd *cobra.Command, args []string) {
		vcID := parseChannel()
		balanceA, err := utils.ParseAmount(balanceAFlag)
		if err != nil {
			utils.Error("%v\n", err)
		}
		balanceB, err := utils.ParseAmount(balanceBFlag)
		if err != nil {
			utils.Error("%v\n", err)
		}
		utils.RunWithEngine(fromFlag, true, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			update, err := e.UpdateVirtualChannelBalance(ctx, id, vcID, balanceA, balanceB)
			if err != nil {
				utils.Error("Failed to update virtual channel: %v\n", err)
			}
			utils.PrintJSON(update)
		})
	},
}

// closeCmd closes one or more virtual channels
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close virtual channels",
	Long: `Closes the given virtual channels, comma separated. Each one is unbonded with
the hub's countersignature, or settled on chain when the hub does not respond.`,
	Run: func(cmd *cobra.Command, args []string) {
		vcIDs, err := utils.ParseHashes(channelFlag)
		if err != nil {
			utils.Error("%v\n", err)
		}
		utils.RunWithEngine(fromFlag, true, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			results, err := e.CloseVirtualChannels(ctx, id, vcIDs)
			utils.PrintJSON(results)
			if err != nil {
				utils.Error("Failed to close: %v\n", err)
			}
		})
	},
}

// disputeCmd closes a virtual channel on chain
var disputeCmd = &cobra.Command{
	Use:   "dispute",
	Short: "Close a virtual channel on chain",
	Long:  `Seeds the opening state on chain and settles the latest state. An interrupted dispute resumes where it stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		vcID := parseChannel()
		utils.RunWithEngine(fromFlag, true, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			res, err := e.DisputeCloseVirtualChannel(ctx, id, vcID)
			if err != nil {
				utils.Error("Failed to dispute: %v\n", err)
			}
			utils.PrintJSON(res)
		})
	},
}

// statusCmd prints the local view of a virtual channel
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the virtual channel status and latest state",
	Run: func(cmd *cobra.Command, args []string) {
		vcID := parseChannel()
		utils.RunWithEngine(fromFlag, false, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			status, err := e.VirtualChannelStatus(vcID)
			if err != nil {
				utils.Error("%v\n", err)
			}
			out := map[string]interface{}{"channel_id": vcID, "status": status}
			if latest, err := e.History().LatestVirtual(vcID); err == nil {
				out["latest"] = latest
			}
			if lcID, ok, err := e.History().BondingLedger(vcID); err == nil && ok {
				out["ledger_channel"] = lcID
			}
			if tx, seeded, err := e.History().VirtualSeeded(vcID); err == nil && seeded {
				out["seed_tx"] = tx
			}
			utils.PrintJSON(out)
		})
	},
}

// historyCmd prints every recorded update of a virtual channel
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every signed update recorded for a virtual channel",
	Run: func(cmd *cobra.Command, args []string) {
		vcID := parseChannel()
		utils.RunWithEngine(fromFlag, false, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
			updates, err := e.History().VirtualUpdates(vcID)
			if err != nil {
				utils.Error("Failed to read history: %v\n", err)
			}
			utils.PrintJSON(updates)
		})
	},
}

func parseChannel() common.Hash {
	vcID, err := common.ParseHash(channelFlag)
	if err != nil {
		utils.Error("Invalid --channel: %v\n", err)
	}
	return vcID
}

func init() {
	VcCmd.PersistentFlags().StringVar(&fromFlag, "from", "", "Address of the key to sign with")
	VcCmd.PersistentFlags().StringVar(&channelFlag, "channel", "", "Virtual channel id")

	openCmd.Flags().StringVar(&toFlag, "to", "", "Counterparty address")
	openCmd.Flags().StringVar(&bondFlag, "bond", "", "Bond in wei (default: the whole ledger channel balance)")
	openCmd.MarkFlagRequired("to")

	payCmd.Flags().StringVar(&balanceAFlag, "balance-a", "", "Payer balance in wei")
	payCmd.Flags().StringVar(&balanceBFlag, "balance-b", "", "Payee balance in wei")
	payCmd.MarkFlagRequired("balance-a")
	payCmd.MarkFlagRequired("balance-b")

	VcCmd.AddCommand(openCmd)
	VcCmd.AddCommand(joinCmd)
	VcCmd.AddCommand(payCmd)
	VcCmd.AddCommand(closeCmd)
	VcCmd.AddCommand(disputeCmd)
	VcCmd.AddCommand(statusCmd)
	VcCmd.AddCommand(historyCmd)
}
