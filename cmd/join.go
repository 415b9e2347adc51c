package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harichselvamc/peertopeer/internal/config"
	"github.com/harichselvamc/peertopeer/internal/room"
	"github.com/harichselvamc/peertopeer/internal/rtc"
	"github.com/harichselvamc/peertopeer/internal/ui"
)

var (
	flagJoinDomain   string
	flagJoinRelayURL string
	flagJoinName     string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
	flagJoinRole     string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a chat room created by the other party.

Examples:
  peertopeer join ABC123
  peertopeer join https://peertopeer.qzz.io/r/ABC123
  peertopeer join ABC123 --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return joinRoom(roomID)
	},
}

func joinRoom(roomID string) error {
	cfg, err := config.Load(config.Options{
		Domain:     flagJoinDomain,
		RelayURL:   flagJoinRelayURL,
		Name:       flagJoinName,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
		ForceRelay: flagJoinRelay,
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

	ctx := context.Background()
	switch flagJoinRole {
	case "":
		err = m.Join(ctx, roomID)
	case "caller":
		err = m.JoinAs(ctx, roomID, rtc.RoleCaller)
	case "callee":
		err = m.JoinAs(ctx, roomID, rtc.RoleCallee)
	default:
		return fmt.Errorf("invalid role %q, want caller or callee", flagJoinRole)
	}
	if err != nil {
		return err
	}

	ui.PrintSuccessf("Joined room %s as %s", roomID, m.Role())
	fmt.Println()

	return runChat(m, cfg, roomID)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagJoinDomain, "domain", "", "Custom relay domain")
	joinCmd.Flags().StringVar(&flagJoinRelayURL, "relay-url", "", "Relay websocket URL (overrides domain)")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name shown to the peer")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagJoinRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagJoinRole, "role", "", "Pin the negotiation role (caller or callee) instead of auto-detecting")
}
