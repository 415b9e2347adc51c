package rtc

import (
	pion "github.com/pion/webrtc/v4"

	"github.com/harichselvamc/peertopeer/internal/config"
)

// NewPeerConnection builds a pion peer connection from the configured
// ICE servers.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && cfg.ForceRelay {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}
