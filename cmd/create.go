package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harichselvamc/peertopeer/internal/config"
	"github.com/harichselvamc/peertopeer/internal/room"
	"github.com/harichselvamc/peertopeer/internal/ui"
)

var (
	flagDomain   string
	flagRelayURL string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for a peer",
	Long: `Create a chat room and wait for the other party to join.

Examples:
  peertopeer create
  peertopeer create --name alice
  peertopeer create --relay --turn turn:turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRoom()
	},
}

func createRoom() error {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		RelayURL:   flagRelayURL,
		Name:       flagName,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	st, err := connectStore(cfg)
	if err != nil {
		stopSpinner()
		return err
	}
	defer st.Close()
	stopSpinner()

	m := room.NewManager(st, cfg)
	roomID, err := m.Create(context.Background())
	if err != nil {
		return err
	}

	ui.NewRoomInfo(roomID, cfg.GetRoomLink(roomID)).Render()
	fmt.Println()

	return runChat(m, cfg, roomID)
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&flagDomain, "domain", "", "Custom relay domain")
	createCmd.Flags().StringVar(&flagRelayURL, "relay-url", "", "Relay websocket URL (overrides domain)")
	createCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to the peer")
	createCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	createCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	createCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	createCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	createCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
}
