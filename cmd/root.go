package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/harichselvamc/peertopeer/internal/ui"
	"github.com/harichselvamc/peertopeer/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "peertopeer",
	Short:   "Peer-to-peer chat over WebRTC data channels",
	Long:    `Peertopeer connects two devices directly over a WebRTC data channel. A shared relay carries only the connection handshake; once the peers find each other, messages travel between them without an intermediary. The relay can be self-hosted with the serve command.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
