package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Automated phone screening agent",
	Long: `screener places outbound screening calls, drives the conversation from
the telephony provider's voice webhooks with a language model, and stores a
transcript and summary for every call.

  screener serve                       # run the webhook server
  screener call +15551234567           # place a call through a running server
  screener summary CA0123...           # summarise a finished call`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, toml or json)")
	rootCmd.AddCommand(serveCmd, callCmd, transcriptCmd, summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
