package state

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/utils"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/commitment"
	"github.com/thetatoken/hubchannel/ledger/types"
)

// Offline commands over channel states given as JSON, inline, as @file or
// as - for stdin.

var (
	encodedFlag bool
	sigFlag     string
	proofFlag   string
)

// FingerprintCmd prints the fingerprint a channel state is signed over.
var FingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute the fingerprint of a channel state",
}

// RecoverCmd prints the address that produced a signature over a channel state.
var RecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover the signer of a channel state",
}

// RootCmd prints the commitment root over a set of virtual channel openings.
var RootCmd = &cobra.Command{
	Use:     "root <openings>",
	Short:   "Compute the virtual channel root of a ledger channel",
	Example: `hubchannel root @openings.json --proof 0x5c1f...`,
	Args:    cobra.ExactArgs(1),
	Run:     doRootCmd,
}

var fingerprintLcCmd = &cobra.Command{
	Use:     "lc <state>",
	Short:   "Fingerprint a ledger channel state",
	Example: `hubchannel fingerprint lc @state.json --encoded`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := readLedgerState(args[0])
		if encodedFlag {
			encoded, err := types.EncodeLC(s)
			if err != nil {
				utils.Error("Failed to encode state: %v\n", err)
			}
			fmt.Println(common.Bytes(encoded).String())
		}
		fp, err := types.FingerprintLC(s)
		if err != nil {
			utils.Error("Failed to fingerprint state: %v\n", err)
		}
		fmt.Println(fp.Hex())
	},
}

var fingerprintVcCmd = &cobra.Command{
	Use:   "vc <state>",
	Short: "Fingerprint a virtual channel state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := readVirtualState(args[0])
		if encodedFlag {
			encoded, err := types.EncodeVC(s)
			if err != nil {
				utils.Error("Failed to encode state: %v\n", err)
			}
			fmt.Println(common.Bytes(encoded).String())
		}
		fp, err := types.FingerprintVC(s)
		if err != nil {
			utils.Error("Failed to fingerprint state: %v\n", err)
		}
		fmt.Println(fp.Hex())
	},
}

var recoverLcCmd = &cobra.Command{
	Use:   "lc <state>",
	Short: "Recover the signer of a ledger channel state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := readLedgerState(args[0])
		signer, err := types.RecoverLCSigner(s, readSignature())
		if err != nil {
			utils.Error("Failed to recover signer: %v\n", err)
		}
		fmt.Println(signer.Hex())
	},
}

var recoverVcCmd = &cobra.Command{
	Use:   "vc <state>",
	Short: "Recover the signer of a virtual channel state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := readVirtualState(args[0])
		signer, err := types.RecoverVCSigner(s, readSignature())
		if err != nil {
			utils.Error("Failed to recover signer: %v\n", err)
		}
		fmt.Println(signer.Hex())
	},
}

func doRootCmd(cmd *cobra.Command, args []string) {
	var openings []*types.VirtualChannelState
	if err := utils.ReadJSONArg(args[0], &openings); err != nil {
		utils.Error("%v\n", err)
	}
	root, err := commitment.BuildRoot(openings)
	if err != nil {
		utils.Error("Failed to build root: %v\n", err)
	}
	if proofFlag == "" {
		fmt.Println(root.Hex())
		return
	}

	target, err := common.ParseHash(proofFlag)
	if err != nil {
		utils.Error("Invalid channel id: %v\n", err)
	}
	proof, err := commitment.BuildProof(openings, target)
	if err != nil {
		utils.Error("Failed to build proof: %v\n", err)
	}
	utils.PrintJSON(struct {
		Root  common.Hash       `json:"root"`
		Proof *commitment.Proof `json:"proof"`
		Bytes common.Bytes      `json:"encoded"`
	}{root, proof, proof.Encode()})
}

func readLedgerState(arg string) *types.LedgerChannelState {
	s := &types.LedgerChannelState{}
	if err := utils.ReadJSONArg(arg, s); err != nil {
		utils.Error("%v\n", err)
	}
	return s
}

func readVirtualState(arg string) *types.VirtualChannelState {
	s := &types.VirtualChannelState{}
	if err := utils.ReadJSONArg(arg, s); err != nil {
		utils.Error("%v\n", err)
	}
	return s
}

func readSignature() *crypto.Signature {
	if sigFlag == "" {
		utils.Error("No --sig given\n")
	}
	sig, err := crypto.HexToSignature(sigFlag)
	if err != nil {
		utils.Error("Invalid signature: %v\n", err)
	}
	return sig
}

func init() {
	FingerprintCmd.PersistentFlags().BoolVar(&encodedFlag, "encoded", false, "Also print the packed encoding")
	FingerprintCmd.AddCommand(fingerprintLcCmd)
	FingerprintCmd.AddCommand(fingerprintVcCmd)

	RecoverCmd.PersistentFlags().StringVar(&sigFlag, "sig", "", "Hex encoded 65 byte signature")
	RecoverCmd.AddCommand(recoverLcCmd)
	RecoverCmd.AddCommand(recoverVcCmd)

	RootCmd.Flags().StringVar(&proofFlag, "proof", "", "Also print the inclusion proof of this virtual channel")
}
