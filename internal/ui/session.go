package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/utils"
)

// Mode selects which parts of the session view are interactive.
type Mode int

const (
	ModeSend Mode = iota
	ModeReceive
	ModeChat
)

func (m Mode) String() string {
	switch m {
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	default:
		return "chat"
	}
}

// chatHistory is how many chat lines stay on screen.
const chatHistory = 12

// Actions are the operations the view can trigger on the live session.
type Actions interface {
	Accept() error
	Reject() error
	SendChat(text string) (transfer.ChatMessage, error)
	SendImage(path string) (transfer.ChatMessage, error)
	SendFiles(paths []string) error
	Quit()
}

// Messages posted by the session controller.
type (
	RoomMsg struct {
		Code string
		Role signaling.Role
	}
	PeerMsg struct {
		Name    string
		Present bool
	}
	StatusMsg        string
	NoticeMsg        string
	SendUpdateMsg    transfer.SendItem
	ReceiveUpdateMsg transfer.ReceiveItem
	OfferMsg         transfer.ReceiveItem
	ChatMsg          transfer.ChatMessage
	DoneMsg          struct{ Err error }
)

// actionResultMsg carries the outcome of an Actions call back into Update.
type actionResultMsg struct {
	chat *transfer.ChatMessage
	err  error
}

// SessionModel is the Bubble Tea model for one connected room.
type SessionModel struct {
	mode    Mode
	actions Actions

	code   string
	role   signaling.Role
	peer   string
	joined bool
	status string
	notice string

	sends []transfer.SendItem
	recvs []transfer.ReceiveItem
	offer *transfer.ReceiveItem
	chat  []transfer.ChatMessage

	input   textinput.Model
	bar     progress.Model
	spinner spinner.Model
	width   int

	quitting bool
	err      error
}

// NewSessionModel creates the view for the given mode.
func NewSessionModel(mode Mode, actions Actions) *SessionModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "Message, /send <file>, /image <file>"
	in.Prompt = "› "
	in.CharLimit = 4000
	if mode == ModeChat {
		in.Focus()
	}

	return &SessionModel{
		mode:    mode,
		actions: actions,
		status:  "Connecting to relay",
		input:   in,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(24),
			progress.WithoutPercentage(),
		),
		spinner: s,
		width:   80,
	}
}

// Err returns the error the session ended with, if any.
func (m *SessionModel) Err() error {
	return m.err
}

// Summary returns the final queue state.
func (m *SessionModel) Summary() Summary {
	return Summary{Sent: m.sends, Received: m.recvs}
}

func (m *SessionModel) Init() tea.Cmd {
	if m.mode == ModeChat {
		return tea.Batch(m.spinner.Tick, textinput.Blink)
	}
	return m.spinner.Tick
}

func (m *SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(24, msg.Width-60))
		m.input.Width = max(20, msg.Width-6)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RoomMsg:
		m.code = msg.Code
		m.role = msg.Role

	case PeerMsg:
		m.joined = msg.Present
		if msg.Present {
			m.peer = msg.Name
		} else {
			m.offer = nil
		}

	case StatusMsg:
		m.status = string(msg)

	case NoticeMsg:
		m.notice = string(msg)

	case SendUpdateMsg:
		m.upsertSend(transfer.SendItem(msg))

	case ReceiveUpdateMsg:
		item := transfer.ReceiveItem(msg)
		m.upsertReceive(item)
		if m.offer != nil && m.offer.ID == item.ID && item.State != transfer.ReceivePending {
			m.offer = nil
		}

	case OfferMsg:
		item := transfer.ReceiveItem(msg)
		m.offer = &item
		m.upsertReceive(item)

	case ChatMsg:
		m.appendChat(transfer.ChatMessage(msg))

	case actionResultMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = ""
		}
		if msg.chat != nil {
			m.appendChat(*msg.chat)
		}

	case DoneMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *SessionModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.mode != ModeChat {
		switch msg.String() {
		case "q", "esc":
			return m.quit()
		case "y":
			if m.offer != nil {
				return m, m.run(m.actions.Accept)
			}
		case "n":
			if m.offer != nil {
				return m, m.run(m.actions.Reject)
			}
		}
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		return m.command(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command interprets one line typed in chat mode.
func (m *SessionModel) command(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, "/") {
		return m, m.chatCmd(func() (transfer.ChatMessage, error) {
			return m.actions.SendChat(line)
		})
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/send":
		paths := strings.Fields(arg)
		if len(paths) == 0 {
			m.notice = "Usage: /send <file> [file...]"
			return m, nil
		}
		return m, m.run(func() error { return m.actions.SendFiles(paths) })
	case "/image":
		if arg == "" {
			m.notice = "Usage: /image <file>"
			return m, nil
		}
		return m, m.chatCmd(func() (transfer.ChatMessage, error) {
			return m.actions.SendImage(arg)
		})
	case "/accept":
		return m, m.run(m.actions.Accept)
	case "/reject":
		return m, m.run(m.actions.Reject)
	case "/quit":
		return m.quit()
	default:
		m.notice = fmt.Sprintf("Unknown command %s", name)
		return m, nil
	}
}

func (m *SessionModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.actions.Quit()
	return m, tea.Quit
}

func (m *SessionModel) run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{err: fn()}
	}
}

func (m *SessionModel) chatCmd(fn func() (transfer.ChatMessage, error)) tea.Cmd {
	return func() tea.Msg {
		msg, err := fn()
		if err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{chat: &msg}
	}
}

func (m *SessionModel) upsertSend(item transfer.SendItem) {
	for i := range m.sends {
		if m.sends[i].ID == item.ID {
			m.sends[i] = item
			return
		}
	}
	m.sends = append(m.sends, item)
}

func (m *SessionModel) upsertReceive(item transfer.ReceiveItem) {
	for i := range m.recvs {
		if m.recvs[i].ID == item.ID {
			m.recvs[i] = item
			return
		}
	}
	m.recvs = append(m.recvs, item)
}

func (m *SessionModel) appendChat(msg transfer.ChatMessage) {
	m.chat = append(m.chat, msg)
	if len(m.chat) > chatHistory {
		m.chat = m.chat[len(m.chat)-chatHistory:]
	}
}

func (m *SessionModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + m.header() + "\n")

	if m.joined {
		b.WriteString(fmt.Sprintf("%s %s\n", IconPeer, PeerNameStyle.Render(displayName(m.peer))))
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.status))
	}

	if len(m.sends) > 0 {
		b.WriteString(SectionStyle.Render(IconSend+" Outgoing") + "\n")
		for _, item := range m.sends {
			b.WriteString(m.sendRow(item) + "\n")
		}
	}
	if len(m.recvs) > 0 {
		b.WriteString(SectionStyle.Render(IconReceive+" Incoming") + "\n")
		for _, item := range m.recvs {
			b.WriteString(m.receiveRow(item) + "\n")
		}
	}

	if m.offer != nil {
		b.WriteString("\n" + m.offerView() + "\n")
	}

	if m.mode == ModeChat {
		b.WriteString(SectionStyle.Render(IconChat+" Chat") + "\n")
		for _, msg := range m.chat {
			b.WriteString(chatLine(msg) + "\n")
		}
		b.WriteString("\n" + m.input.View() + "\n")
	}

	if m.notice != "" {
		b.WriteString(WarningStyle.Render(m.notice) + "\n")
	}

	b.WriteString(FooterStyle.Render(m.help()))
	return b.String()
}

func (m *SessionModel) header() string {
	title := TitleStyle.Render("web-drop") + MutedStyle.Render(" · "+m.mode.String())
	if m.code == "" {
		return title
	}
	return fmt.Sprintf("%s  %s %s", title, BadgeStyle.Render(m.code), MutedStyle.Render(string(m.role)))
}

func (m *SessionModel) help() string {
	if m.mode == ModeChat {
		if m.offer != nil {
			return "/accept or /reject the offer • /quit to leave"
		}
		return "enter to send • /quit to leave"
	}
	if m.offer != nil {
		return "y accept • n reject • q quit"
	}
	return "q quit"
}

func (m *SessionModel) sendRow(item transfer.SendItem) string {
	var icon string
	switch {
	case item.State == transfer.SendDone:
		icon = IconSuccess
	case item.State == transfer.SendRejected || item.State == transfer.SendPaused:
		icon = IconWarning
	case item.State.Active():
		icon = m.spinner.View()
	default:
		icon = MutedStyle.Render("○")
	}
	showBar := item.State == transfer.SendSending || item.State == transfer.SendHashing
	return m.row(icon, item.Name, item.Size, item.Progress, showBar, item.Status, item.Meta)
}

func (m *SessionModel) receiveRow(item transfer.ReceiveItem) string {
	var icon string
	switch {
	case item.Finished && item.Status == transfer.StatusComplete:
		icon = IconSuccess
	case item.Finished:
		icon = IconError
	case item.State == transfer.ReceiveRejected:
		icon = IconWarning
	case item.State == transfer.ReceiveAccepted:
		icon = m.spinner.View()
	default:
		icon = MutedStyle.Render("○")
	}
	showBar := item.State == transfer.ReceiveAccepted && !item.Finished
	return m.row(icon, item.Name, item.Size, item.Progress, showBar, item.Status, item.Meta)
}

func (m *SessionModel) row(icon, name string, size int64, pct int, showBar bool, status, meta string) string {
	nameCol := lipgloss.NewStyle().Width(26).Render(utils.TruncateString(name, 24))
	line := fmt.Sprintf("  %s %s %8s  ", icon, nameCol, utils.FormatSize(size))
	if showBar {
		line += m.bar.ViewAs(float64(pct)/100) + fmt.Sprintf(" %3d%%  ", pct)
	}
	line += status
	if meta != "" {
		line += MutedStyle.Render(" · " + meta)
	}
	return line
}

func (m *SessionModel) offerView() string {
	who := "Peer"
	if m.peer != "" {
		who = m.peer
	}
	return OfferBoxStyle.Render(fmt.Sprintf("%s %s wants to send %s (%s)",
		IconWaiting, BoldStyle.Render(who),
		BoldStyle.Render(utils.TruncateString(m.offer.Name, 40)),
		utils.FormatSize(m.offer.Size),
	))
}

func chatLine(msg transfer.ChatMessage) string {
	nameStyle := PeerNameStyle
	if msg.Self {
		nameStyle = SelfNameStyle
	}
	body := msg.Text
	if msg.IsImage() {
		if mime, data, err := transfer.DecodeDataURL(msg.ImageDataURL); err == nil {
			body = fmt.Sprintf("%s %s image, %s", IconImage, mime, utils.FormatSize(int64(len(data))))
		} else {
			body = IconImage + " image"
		}
	}
	return fmt.Sprintf("%s %s %s",
		MutedStyle.Render(msg.Time.Format(time.TimeOnly)),
		nameStyle.Render(displayName(msg.Name)+":"),
		body,
	)
}

func displayName(name string) string {
	if name == "" {
		return transfer.DefaultChatName
	}
	return name
}
