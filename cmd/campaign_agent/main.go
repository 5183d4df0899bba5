// Package main provides the entry point for the campaign message agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campaign_agent",
	Short: "CRM campaign message generation agent",
	Long:  "campaign_agent executes CRM campaign runs: it loads the planned audience and template, picks one product per user, renders channel-compliant messages, and records the send log.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
