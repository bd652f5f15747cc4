package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagSTUN     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "callpeer",
	Short: "Join a signaling room from the terminal",
	Long: `callpeer connects to a signaling relay, joins a room and negotiates a
peer connection with whoever else is there. Lines typed on stdin are sent to
the room as chat messages.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "", "signaling WebSocket URL (env SIGNALING_URL)")
	rootCmd.PersistentFlags().StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	rootCmd.AddCommand(joinCmd)
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
