package config

import (
	"fmt"
	"os"
)

// Default configuration values (production)
const (
	DefaultDomain = "peertopeer.qzz.io"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
	DefaultTURN   = "" // Optional, empty by default
	DefaultName   = ""
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling relay domain
	Domain string

	// RelayURL is the websocket endpoint of the signaling store relay,
	// constructed from Domain unless overridden directly
	RelayURL string

	// DisplayName is the name written into the room's participant record
	DisplayName string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN-relayed routes
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	RelayURL   string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("PEERTOPEER_DOMAIN"), DefaultDomain)

	relayURL := firstOf(opts.RelayURL, os.Getenv("PEERTOPEER_RELAY_URL"))
	if relayURL == "" {
		relayURL = fmt.Sprintf("wss://%s/ws", domain)
	}

	name := firstOf(opts.Name, os.Getenv("PEERTOPEER_NAME"))
	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		} else {
			name = "anonymous"
		}
	}

	cfg := &Config{
		Domain:      domain,
		RelayURL:    relayURL,
		DisplayName: name,
		STUNServer:  firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:  firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN),
		TURNUser:    firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  opts.ForceRelay,
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// firstOf returns the first non-empty value
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
