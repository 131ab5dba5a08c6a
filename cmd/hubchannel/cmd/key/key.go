package key

import (
	"github.com/spf13/cobra"
)

// KeyCmd represents the key command
var KeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage signing keys",
	Long:  `Manage the keys channel states are signed with.`,
}

func init() {
	KeyCmd.AddCommand(newCmd)
	KeyCmd.AddCommand(listCmd)
}
