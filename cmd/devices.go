package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/auris/internal/sink"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio playback devices",
	Run: func(cmd *cobra.Command, args []string) {
		be, err := sink.NewMalgoBackend()
		if err != nil {
			exitWithError("failed to initialise audio backend", err)
		}
		defer be.Close()

		infos, err := be.Playbacks()
		if err != nil {
			exitWithError("device enumeration failed", err)
		}

		if len(infos) == 0 {
			fmt.Println("no playback devices found")
			return
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\n", info.ID, info.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
