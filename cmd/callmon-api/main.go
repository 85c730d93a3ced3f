package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "callmon-api",
	Short: "Callmon API - Call monitoring and CRM linking service",
	Long:  `A Go service that polls the phone system for call history, keeps a bounded in-memory call log, resolves callers against the CRM and links calls to support tickets.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
