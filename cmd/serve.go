package cmd

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/harichselvamc/peertopeer/internal/relay"
)

var flagServeListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that rooms use to exchange connection
details. Peers connect over WebSocket at /ws; /health answers liveness
probes.

Examples:
  peertopeer serve
  peertopeer serve --listen :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

func runRelay() error {
	srv := relay.NewServer()

	slog.Info("starting signaling relay", "addr", flagServeListen)
	return http.ListenAndServe(flagServeListen, srv.Handler())
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeListen, "listen", "l", ":8080", "Address to listen on")
}
