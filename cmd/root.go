// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "auris",
	Short: "Auris - Live network audio stream reconstruction and playback",
	Long: `Auris captures live network traffic, identifies real-time audio streams
(RTP, with optional SIP/SDP signaling correlation), reconstructs them through
an adaptive jitter buffer, and renders the decoded audio to a local output
device with hot-plug awareness.

Features:
  - Live interface, AF_PACKET and pcap file capture
  - Heuristic RTP detection plus SIP/SDP signaling correlation
  - Per-stream adaptive jitter buffering with loss concealment
  - G.711 (PCMU/PCMA) and Opus decoding
  - Device hot-plug handling with bounded buffering on device loss`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml",
		"config file path")
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
