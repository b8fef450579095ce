package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemates/realtime/cmd/teemates/commands"
)

var rootCmd = &cobra.Command{
	Use:   "teemates",
	Short: "TeeMates realtime service",
	Long: `TeeMates realtime service - event processing for the tee time marketplace.

Consumes marketplace domain events, scores player/tee-time compatibility,
runs the durable background job queues, and pushes live updates to
connected clients over WebSocket.

Examples:
  teemates serve            # Start the realtime service
  teemates serve --config teemates.toml
  teemates version          # Show build information`,
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
