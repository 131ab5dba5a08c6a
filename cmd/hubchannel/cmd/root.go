package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/key"
	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/lc"
	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/state"
	"github.com/thetatoken/hubchannel/cmd/hubchannel/cmd/vc"
	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/util"
)

var cfgPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "hubchannel",
	Short: "Hub-routed payment channel client",
	Long:  `Opens, pays through and closes ledger and virtual payment channels routed through a hub.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", fmt.Sprintf("config path (default is %s)", getDefaultConfigPath()))
	viper.BindPFlag(common.CfgConfigPath, RootCmd.PersistentFlags().Lookup("config"))

	RootCmd.PersistentFlags().String("data", "", "data path (default to <config>/db)")
	viper.BindPFlag(common.CfgStorageDataPath, RootCmd.PersistentFlags().Lookup("data"))

	RootCmd.AddCommand(key.KeyCmd)
	RootCmd.AddCommand(lc.LcCmd)
	RootCmd.AddCommand(vc.VcCmd)
	RootCmd.AddCommand(state.FingerprintCmd)
	RootCmd.AddCommand(state.RecoverCmd)
	RootCmd.AddCommand(state.RootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Search config (without extension).
	viper.SetConfigName("config")

	viper.SetEnvPrefix("HUBCHANNEL")
	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfgPath = viper.GetString(common.CfgConfigPath)
	if cfgPath == "" {
		cfgPath = getDefaultConfigPath()
		viper.Set(common.CfgConfigPath, cfgPath)
	}
	viper.AddConfigPath(cfgPath)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	util.ResetLogLevels()
}

// getDefaultConfigPath returns the default config path.
func getDefaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return path.Join(home, ".hubchannel")
}
