package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "carepilot",
	Short: "CarePilot: weekly care plans for family caregivers",
	Long: `CarePilot turns a caregiver's situation into a realistic 7-day care
plan, delivered over WhatsApp and a web dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the carepilot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("carepilot version %s\n", version)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, sweepCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
