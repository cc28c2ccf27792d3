package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/metrics"
	"firestige.xyz/auris/internal/pipeline"
	"firestige.xyz/auris/internal/sink"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture traffic and play reconstructed audio streams",
	Long: `
Capture network traffic, reconstruct any real-time audio streams found in it,
and play them on the local audio output device.

Examples:
  auris listen -c config.yaml               # Capture per the configured source
  auris listen -c config.yaml --device usb  # Play on the first device matching "usb"
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}

		if device, _ := cmd.Flags().GetString("device"); device != "" {
			cfg.Output.Device = device
		}

		log.Init(&cfg.Log)
		logger := log.GetLogger()

		be, err := sink.NewMalgoBackend()
		if err != nil {
			exitWithError("failed to initialise audio backend", err)
		}

		p, err := pipeline.New(cfg, be)
		if err != nil {
			exitWithError("failed to assemble pipeline", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var srv *metrics.Server
		if cfg.Metrics.Enabled {
			srv = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := srv.Start(ctx); err != nil {
				exitWithError("failed to start metrics server", err)
			}
		}

		logger.Infof("auris listening: capture=%s output_rate=%d", cfg.Capture.Type, cfg.Output.SampleRate)
		err = p.Run(ctx)

		if srv != nil {
			srv.Stop(context.Background())
		}

		stats := p.Stats()
		logger.Infof("run finished: frames=%d audio=%d signaling=%d dropped=%d sessions=%d",
			stats.Classifier.Seen, stats.Classifier.Audio, stats.Classifier.Signaling,
			stats.Classifier.Dropped, stats.Sessions)

		if err != nil {
			exitWithError("pipeline failed", err)
		}
	},
}

func init() {
	listenCmd.Flags().String("device", "", "playback device name substring (overrides config)")
	rootCmd.AddCommand(listenCmd)
}
