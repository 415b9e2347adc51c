package ui

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/harichselvamc/peertopeer/internal/room"
)

// RoomInfo renders the post-create banner with the identifier the
// other party needs.
type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)

	return SuccessBoxStyle.Render(content)
}

func (r *RoomInfo) Render() {
	fmt.Println(r.View())
}

// ParticipantTableView renders the room's current participant set,
// oldest member first.
func ParticipantTableView(participants map[string]room.Participant, selfID string) string {
	if len(participants) == 0 {
		return MutedStyle.Render("No participants")
	}

	members := make([]room.Participant, 0, len(participants))
	for _, p := range participants {
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt < members[j].JoinedAt
	})

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"", "Name", "Joined"})
	for _, p := range members {
		marker := IconPeer
		name := p.Name
		if p.ID == selfID {
			name += " (you)"
		}
		joined := time.UnixMilli(p.JoinedAt).Format("15:04:05")
		t.AppendRow(table.Row{marker, name, joined})
	}

	return t.Render()
}

// SessionSummary holds the figures printed after a chat session ends.
type SessionSummary struct {
	RoomID   string
	Role     string
	Peer     string
	Sent     int
	Received int
	Duration time.Duration
}

func SessionSummaryView(summary SessionSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", summary.RoomID},
		{"Role", summary.Role},
		{"Peer", summary.Peer},
		{"Messages Sent", summary.Sent},
		{"Messages Received", summary.Received},
		{"Duration", summary.Duration.Round(time.Second).String()},
	})

	return t.Render()
}

func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}
