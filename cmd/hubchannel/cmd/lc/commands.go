package lc

import (
	"context"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/utils"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/engine"
)

// session is what every ledger channel command needs: an engine, the
// signing identity and the channel.
type session struct {
	ctx    context.Context
	engine *engine.Engine
	id     *crypto.PrivateKey
	lcID   common.Hash
}

// withSession resolves the channel before running fn. needChannel is false
// for commands that create one.
func withSession(needIdentity, needChannel bool, fn func(s *session)) {
	utils.RunWithEngine(fromFlag, needIdentity, func(ctx context.Context, e *engine.Engine, id *crypto.PrivateKey) {
		s := &session{ctx: ctx, engine: e, id: id}
		if needChannel {
			var party common.Address
			var err error
			if id != nil {
				party = id.Address()
			} else if fromFlag != "" {
				if party, err = common.ParseAddress(fromFlag); err != nil {
					utils.Error("%v\n", err)
				}
			}
			if s.lcID, err = utils.ResolveLedgerChannel(ctx, e, channelFlag, party); err != nil {
				utils.Error("Failed to find the ledger channel: %v\n", err)
			}
		}
		fn(s)
	})
}

func parseAmount(flag string) *big.Int {
	amount, err := utils.ParseAmount(flag)
	if err != nil {
		utils.Error("%v\n", err)
	}
	return amount
}

// openCmd creates a ledger channel
var openCmd = &cobra.Command{
	Use:     "open",
	Short:   "Create a ledger channel with the hub",
	Example: `hubchannel lc open --from=0x2E833968E5bB786Ae419c4d13189fB081Cc43bab --deposit=1000000000000000000`,
	Run: func(cmd *cobra.Command, args []string) {
		deposit := parseAmount(depositFlag)
		withSession(true, false, func(s *session) {
			res, err := s.engine.OpenLedgerChannel(s.ctx, s.id, deposit, time.Duration(challengeFlag)*time.Second)
			if err != nil {
				utils.Error("Failed to open ledger channel: %v\n", err)
			}
			utils.PrintJSON(res)
		})
	},
}

// depositCmd adds funds on chain
var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit into the ledger channel",
	Run: func(cmd *cobra.Command, args []string) {
		amount := parseAmount(amountFlag)
		withSession(true, true, func(s *session) {
			recipient := s.id.Address()
			if toFlag != "" {
				var err error
				if recipient, err = common.ParseAddress(toFlag); err != nil {
					utils.Error("%v\n", err)
				}
			}
			receipt, err := s.engine.Deposit(s.ctx, s.id, s.lcID, recipient, amount)
			if err != nil {
				utils.Error("Failed to deposit: %v\n", err)
			}
			utils.PrintJSON(receipt)
		})
	},
}

// hubDepositCmd asks the hub to deposit on its side
var hubDepositCmd = &cobra.Command{
	Use:   "hub-deposit",
	Short: "Ask the hub to deposit into the ledger channel",
	Run: func(cmd *cobra.Command, args []string) {
		amount := parseAmount(amountFlag)
		withSession(false, true, func(s *session) {
			tx, err := s.engine.RequestHubDeposit(s.ctx, s.lcID, amount)
			if err != nil {
				utils.Error("Hub did not deposit: %v\n", err)
			}
			utils.PrintJSON(map[string]common.Hash{"tx": tx})
		})
	},
}

// withdrawCmd closes the ledger channel
var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Close the ledger channel",
	Long: `Closes the ledger channel with the hub's countersignature. If the hub does not
countersign in time the latest countersigned state is submitted on chain and
withdraw-final must be run after the challenge window.`,
	Run: func(cmd *cobra.Command, args []string) {
		withSession(true, true, func(s *session) {
			res, err := s.engine.Withdraw(s.ctx, s.id, s.lcID)
			if err != nil {
				utils.Error("Failed to withdraw: %v\n", err)
			}
			utils.PrintJSON(res)
		})
	},
}

// withdrawFinalCmd finalizes a disputed close
var withdrawFinalCmd = &cobra.Command{
	Use:   "withdraw-final",
	Short: "Release the funds of a disputed ledger channel",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(true, true, func(s *session) {
			receipt, err := s.engine.WithdrawFinal(s.ctx, s.id, s.lcID)
			if err != nil {
				utils.Error("Failed to finalize: %v\n", err)
			}
			utils.PrintJSON(receipt)
		})
	},
}

// checkpointCmd submits the latest state on chain
var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Submit the hub's latest update on chain",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(true, true, func(s *session) {
			receipt, err := s.engine.Checkpoint(s.ctx, s.id, s.lcID)
			if err != nil {
				utils.Error("Failed to checkpoint: %v\n", err)
			}
			utils.PrintJSON(receipt)
		})
	},
}

// cosignCmd countersigns the hub's latest update
var cosignCmd = &cobra.Command{
	Use:   "cosign",
	Short: "Countersign the hub's latest ledger update",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(true, true, func(s *session) {
			update, err := s.engine.CosignLedgerUpdate(s.ctx, s.id, s.lcID, nonceFlag)
			if err != nil {
				utils.Error("Failed to countersign: %v\n", err)
			}
			utils.PrintJSON(update)
		})
	},
}

// reclaimCmd recovers the deposit of a channel the hub never joined
var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Reclaim the deposit of a ledger channel the hub never joined",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(true, true, func(s *session) {
			receipt, err := s.engine.ReclaimUnjoinedChannel(s.ctx, s.id, s.lcID)
			if err != nil {
				utils.Error("Failed to reclaim: %v\n", err)
			}
			utils.PrintJSON(receipt)
		})
	},
}

// statusCmd prints the local view of the ledger channel
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ledger channel status and latest state",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(false, true, func(s *session) {
			status, err := s.engine.LedgerChannelStatus(s.lcID)
			if err != nil {
				utils.Error("%v\n", err)
			}
			out := map[string]interface{}{"channel_id": s.lcID, "status": status}
			if latest, err := s.engine.History().LatestLedger(s.lcID); err == nil {
				out["latest"] = latest
			}
			if bonded, err := s.engine.History().BondedVirtuals(s.lcID); err == nil {
				out["virtual_channels"] = bonded
			}
			utils.PrintJSON(out)
		})
	},
}

// historyCmd prints every recorded update of the ledger channel
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every signed update recorded for the ledger channel",
	Run: func(cmd *cobra.Command, args []string) {
		withSession(false, true, func(s *session) {
			updates, err := s.engine.History().LedgerUpdates(s.lcID)
			if err != nil {
				utils.Error("Failed to read history: %v\n", err)
			}
			utils.PrintJSON(updates)
		})
	},
}
