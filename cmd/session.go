package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/harichselvamc/peertopeer/internal/chat"
	"github.com/harichselvamc/peertopeer/internal/config"
	"github.com/harichselvamc/peertopeer/internal/room"
	"github.com/harichselvamc/peertopeer/internal/rtc"
	"github.com/harichselvamc/peertopeer/internal/store"
	"github.com/harichselvamc/peertopeer/internal/ui"
)

// connectStore dials the signaling relay. The returned handle carries
// everything the room needs: writes, watches and the server-side
// disconnect hooks.
func connectStore(cfg *config.Config) (*store.Client, error) {
	client := store.NewClient(cfg.RelayURL)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

// runChat drives the interactive screen for an already-joined room and
// prints the session summary once the user leaves.
func runChat(m *room.Manager, cfg *config.Config, roomID string) error {
	started := time.Now()
	channel := m.Channel()

	selfID := m.Self().ID
	screen := ui.NewChatUI(selfID, cfg.DisplayName, roomID, channel.Send)

	// Peer name for the summary: the first participant that is not us.
	var peerMu sync.Mutex
	peerName := "-"

	channel.OnMessage(screen.PostMessage)
	channel.OnStatusChange(func(s chat.Status) {
		screen.SetStatus(string(s))
	})
	m.OnParticipants(func(snapshot map[string]room.Participant) {
		peerMu.Lock()
		for id, p := range snapshot {
			if id != selfID {
				peerName = p.Name
			}
		}
		peerMu.Unlock()
		screen.SetParticipants(snapshot)
	})
	m.OnError(screen.Fail)
	m.OnStateChange(func(s rtc.State) {
		if s == rtc.StateFailed {
			screen.SetStatus("connection failed")
		}
	})

	err := screen.Run()

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if leaveErr := m.Leave(leaveCtx); leaveErr != nil {
		ui.PrintWarning(leaveErr.Error())
	}

	sent, received := screen.Counts()
	peerMu.Lock()
	peer := peerName
	peerMu.Unlock()

	fmt.Println()
	ui.RenderSessionSummary(ui.SessionSummary{
		RoomID:   roomID,
		Role:     string(m.Role()),
		Peer:     peer,
		Sent:     sent,
		Received: received,
		Duration: time.Since(started),
	})

	return err
}

// parseRoomInput accepts either a bare room identifier or a shareable
// room link.
func parseRoomInput(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}
