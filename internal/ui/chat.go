package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harichselvamc/peertopeer/internal/chat"
	"github.com/harichselvamc/peertopeer/internal/room"
)

// maxHistory caps the scrollback kept in memory.
const maxHistory = 200

type chatEventKind int

const (
	eventMessage chatEventKind = iota
	eventStatus
	eventParticipants
	eventFailure
)

type chatEvent struct {
	kind         chatEventKind
	message      chat.Message
	status       string
	participants map[string]room.Participant
	err          error
}

// ChatUI runs the interactive chat screen. Negotiation callbacks feed
// it through a channel so the Bubble Tea loop stays the only writer of
// model state.
type ChatUI struct {
	program *tea.Program
	model   *chatModel
	events  chan chatEvent
}

// NewChatUI builds the chat screen. send is invoked on the UI goroutine
// when the user submits a line; the returned message is echoed locally.
// selfID marks the local entry in the participant roster.
func NewChatUI(selfID, selfName, roomID string, send func(body string) (chat.Message, error)) *ChatUI {
	events := make(chan chatEvent, 64)

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4096
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &chatModel{
		selfID:   selfID,
		selfName: selfName,
		roomID:   roomID,
		send:     send,
		input:    input,
		spinner:  s,
		status:   "waiting for peer",
		events:   events,
	}

	return &ChatUI{model: model, events: events}
}

// Run blocks until the user quits or the session fails.
func (ui *ChatUI) Run() error {
	ui.program = tea.NewProgram(ui.model)
	_, err := ui.program.Run()
	return err
}

// PostMessage shows a message received from the peer.
func (ui *ChatUI) PostMessage(msg chat.Message) {
	ui.post(chatEvent{kind: eventMessage, message: msg})
}

// SetStatus updates the channel status line.
func (ui *ChatUI) SetStatus(status string) {
	ui.post(chatEvent{kind: eventStatus, status: status})
}

// SetParticipants updates the participant snapshot shown in the header.
func (ui *ChatUI) SetParticipants(snapshot map[string]room.Participant) {
	ui.post(chatEvent{kind: eventParticipants, participants: snapshot})
}

// Fail surfaces a fatal session error and stops the screen.
func (ui *ChatUI) Fail(err error) {
	ui.post(chatEvent{kind: eventFailure, err: err})
}

// Counts reports how many messages were sent and received, for the
// post-session summary.
func (ui *ChatUI) Counts() (sent, received int) {
	return ui.model.counts()
}

func (ui *ChatUI) post(ev chatEvent) {
	select {
	case ui.events <- ev:
	default:
	}
}

type chatLine struct {
	at   time.Time
	from string
	body string
	self bool
	note bool
}

type chatModel struct {
	selfID   string
	selfName string
	roomID   string
	send     func(body string) (chat.Message, error)

	input   textinput.Model
	spinner spinner.Model
	events  chan chatEvent

	history    []chatLine
	status     string
	roster     map[string]room.Participant
	showRoster bool
	failure    error

	sent     int
	received int

	width    int
	quitting bool
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.listenForEvents(),
	)
}

func (m *chatModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
		case tea.KeyTab:
			m.showRoster = !m.showRoster
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-4)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case chatEvent:
		m.apply(msg)
		if m.failure != nil {
			m.quitting = true
			return m, tea.Quit
		}
		cmds = append(cmds, m.listenForEvents())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *chatModel) submit() {
	body := strings.TrimSpace(m.input.Value())
	if body == "" {
		return
	}

	sent, err := m.send(body)
	if err != nil {
		m.appendLine(chatLine{at: time.Now(), body: err.Error(), note: true})
		return
	}

	m.input.Reset()
	m.sent++
	m.appendLine(chatLine{
		at:   time.UnixMilli(sent.SentAt),
		from: m.selfName,
		body: sent.Body,
		self: true,
	})
}

func (m *chatModel) apply(ev chatEvent) {
	switch ev.kind {
	case eventMessage:
		m.received++
		m.appendLine(chatLine{
			at:   time.UnixMilli(ev.message.SentAt),
			from: ev.message.From,
			body: ev.message.Body,
		})
	case eventStatus:
		m.status = ev.status
		m.appendLine(chatLine{at: time.Now(), body: "channel " + ev.status, note: true})
	case eventParticipants:
		m.roster = ev.participants
	case eventFailure:
		m.failure = ev.err
	}
}

func (m *chatModel) appendLine(line chatLine) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m *chatModel) counts() (int, int) {
	return m.sent, m.received
}

func (m *chatModel) View() string {
	var b strings.Builder

	header := fmt.Sprintf("%s Room %s", IconRoom, m.roomID)
	if len(m.roster) > 0 {
		header += MutedStyle.Render(fmt.Sprintf("  %s %d", IconPeer, len(m.roster)))
	}
	b.WriteString(TitleStyle.Render(header))
	b.WriteString("\n")

	if m.status == string(chat.StatusConnected) {
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("%s connected", IconConnect)))
	} else {
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), MutedStyle.Render(m.status)))
	}
	b.WriteString("\n")

	if m.showRoster {
		b.WriteString(ParticipantTableView(m.roster, m.selfID))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, line := range m.history {
		b.WriteString(m.renderLine(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.quitting {
		if m.failure != nil {
			b.WriteString(FormatError(m.failure))
		} else {
			b.WriteString(MutedStyle.Render("Leaving room..."))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render("enter to send, tab for participants, esc to leave"))
	b.WriteString("\n")

	return b.String()
}

func (m *chatModel) renderLine(line chatLine) string {
	stamp := TimestampStyle.Render(line.at.Format("15:04"))
	if line.note {
		return fmt.Sprintf("%s %s", stamp, MutedStyle.Render(line.body))
	}

	nameStyle := PeerStyle
	if line.self {
		nameStyle = SelfStyle
	}
	return fmt.Sprintf("%s %s %s", stamp, nameStyle.Render(line.from+":"), line.body)
}
