package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpsledger/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "rpsledger",
		Short:         "Rock-paper-scissors arena with a commit-reveal ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (any format viper reads)")
	cmd.PersistentFlags().String("port", "", "HTTP port (overrides PORT)")
	cmd.PersistentFlags().String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	v.BindPFlag("port", cmd.PersistentFlags().Lookup("port"))
	v.BindPFlag("database_path", cmd.PersistentFlags().Lookup("db"))

	cmd.AddCommand(
		serveCmd(v),
		commitCmd(v),
		balancesCmd(v),
		gameCmd(v),
	)
	return cmd
}

// loadConfig reads the --config file, if any, over the defaults and environment
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(v, configFile)
}
