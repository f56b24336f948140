package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "automlctl",
	Short: "automlctl is a command line client for the AutoML Pro portal",
	Long: `automlctl talks to the AutoML Pro portal API from the terminal.

Describe a model in plain language, submit it as a training job, and follow it
until the trained model summary is available.

Common workflows:

  Sign in and keep the token:
    automlctl signin --email you@example.com --password ...
    export AUTOMLCTL_TOKEN=<token>

  Submit a training request:
    automlctl submit "Predict customer churn from the usage export"

  List your jobs:
    automlctl jobs --status running --search churn

  Inspect a job and its result:
    automlctl status <job-id>
    automlctl result <job-id>

Configuration:
  Flags, environment variables or $HOME/.automlctl.yaml:
    AUTOMLCTL_URL      API endpoint (default: http://localhost:8080)
    AUTOMLCTL_TOKEN    Access token from 'automlctl signin'`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".automlctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AUTOMLCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// requireToken prints a hint and reports false when no token is configured.
func requireToken(cmd *cobra.Command) (string, bool) {
	token := viper.GetString("token")
	if token == "" {
		cmd.Println("Access token not found. Run 'automlctl signin' and set --token or AUTOMLCTL_TOKEN")
		return "", false
	}
	return token, true
}

// printAPIError reports err under the given action label.
func printAPIError(cmd *cobra.Command, action string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", action, err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.automlctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "AutoML Pro API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Access token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
