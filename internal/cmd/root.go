package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Version   string
	BuildTime string
	cfgFile   string
)

var rootCmd = &cobra.Command{
	Use:   "pagebuilder",
	Short: "Bulk page creation API server",
	Long: `Pagebuilder exposes a REST endpoint for bulk page creation, gated by
API keys and per-key rate limits, with an auditable activity trail and
signed webhook notifications.`,
	RunE: runServe, // bare invocation starts the server
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "data directory")

	viper.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./data")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// No config file yet; LoadOrCreate will generate one on serve.
		if cfgFile == "" {
			viper.SetConfigFile("./config.yaml")
		}
	} else {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
