// Package run provides the command that streams audio through the FIFO.
package run

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fifostream/internal/conf"
)

// Command creates the run command. settings is filled by the root command
// before RunE executes.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream audio through the FIFO",
		Long: `Start the streaming engine and the configured player mode:
  playback  play a WAV file or a test tone
  loopback  retransmit every received chunk
  record    capture received audio into a WAV file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := Build(settings)
			if err != nil {
				return err
			}
			defer p.Close()
			return p.Run(cmd.Context())
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the run command and binds them
// to their viper keys so they take precedence over the config file.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("backend", "", "FIFO backend (sim or mmio)")
	flags.String("mode", "", "Player mode (playback, loopback or record)")
	flags.String("wav", "", "WAV file to play; empty plays a test tone")
	flags.String("record", "", "Output WAV file for record mode")
	flags.Bool("receive", false, "Enable the receive path in playback mode")
	flags.Bool("metrics", false, "Enable the Prometheus metrics endpoint")
	flags.String("listen", "", "Listen address of the metrics endpoint")

	bindings := map[string]string{
		"backend": "fifo.backend",
		"mode":    "player.mode",
		"wav":     "player.wav",
		"record":  "player.record",
		"receive": "stream.receive",
		"metrics": "metrics.enabled",
		"listen":  "metrics.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
