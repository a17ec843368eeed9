package ui

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/dothash/huddle/internal/client"
	huddlelog "github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/protocol"
)

// Model is the main chat UI model. It owns the client core and renders
// everything the server pushes at us.
type Model struct {
	ServerAddr string
	Nickname   string
	Status     string
	Err        error
	Program    *tea.Program

	client  *client.Client
	backend *huddlelog.Backend

	chatArea ChatAreaModel
	Progress progress.Model
	Messages []Message

	IsConnected    bool
	IsTransferring bool
	ShowHelp       bool

	username         string
	users            []string
	publicTyping     map[string]bool
	privateTyping    map[string]bool
	peerFingerprints map[string]string
}

func NewModel(serverAddr, nickname string, backend *huddlelog.Backend) *Model {
	initialWidth := 80
	initialChatAreaHeight := 20

	ca := NewChatAreaModel(initialWidth, initialChatAreaHeight, nickname)
	prog := progress.New(progress.WithDefaultGradient())

	return &Model{
		ServerAddr:       serverAddr,
		Nickname:         nickname,
		Status:           fmt.Sprintf("Connecting to %s...", serverAddr),
		backend:          backend,
		chatArea:         ca,
		Progress:         prog,
		Messages:         []Message{{Timestamp: time.Now(), Sender: "System", Content: "Waiting for connection..."}},
		publicTyping:     make(map[string]bool),
		privateTyping:    make(map[string]bool),
		peerFingerprints: make(map[string]string),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return FocusTextareaMsg{} },
		func() tea.Msg {
			cl, err := client.New(m.ServerAddr, &programEventSink{program: m.Program}, m.backend)
			if err != nil {
				return ErrorMsg{Err: fmt.Errorf("failed to initialize client: %w", err)}
			}
			m.client = cl
			cl.Register(m.Nickname)
			return nil
		},
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		chatAreaCmd tea.Cmd
		cmds        []tea.Cmd
	)

	if m.IsTransferring {
		newProgress, pgCmd := m.Progress.Update(msg)
		if progressModel, ok := newProgress.(progress.Model); ok {
			m.Progress = progressModel
		}
		if pgCmd != nil {
			cmds = append(cmds, pgCmd)
		}
	}

	m.chatArea, chatAreaCmd = m.chatArea.Update(msg)
	if chatAreaCmd != nil {
		cmds = append(cmds, chatAreaCmd)
	}

	switch msg := msg.(type) {
	case SubmitInputMsg:
		m.handleInput(msg.Content)
		if m.client != nil {
			m.client.IndicatePublicTyping(false)
		}

	case tea.KeyMsg:
		if m.ShowHelp {
			if msg.Type == tea.KeyEsc {
				m.ShowHelp = false
			}
			break
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.client != nil {
				m.client.Disconnect()
			}
			return m, tea.Quit
		default:
			if m.client != nil && m.IsConnected {
				m.client.IndicatePublicTyping(strings.TrimSpace(m.chatArea.Value()) != "")
			}
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		chatAreaHeight := msg.Height - headerHeight
		if chatAreaHeight < 0 {
			chatAreaHeight = 0
		}
		m.chatArea.SetDimensions(msg.Width, chatAreaHeight)
		StatusStyle = StatusStyle.Width(msg.Width)

	case ConnectedMsg:
		m.IsConnected = true
		m.Status = "CONNECTED: Registering..."

	case DisconnectedMsg:
		m.IsConnected = false
		m.Status = "DISCONNECTED: Connection closed by server."
		m.addLine("Error", m.Status)

	case UserListMsg:
		m.announcePresenceChanges(msg.Users)
		m.users = msg.Users

	case UsernameMsg:
		m.username = msg.Name
		if msg.Name != "" {
			m.chatArea.SetNickname(msg.Name)
			m.Status = fmt.Sprintf("CONNECTED as %s", msg.Name)
			m.addLine("System", fmt.Sprintf("Registered as %s.", msg.Name))
		} else if m.IsConnected {
			m.Status = "CONNECTED: Not registered."
		}

	case ChatMsg:
		m.appendChatMessage(msg.Message)

	case PrivateMsg:
		m.appendPrivateMessage(msg.Message, false)
		if m.client != nil && msg.Message.MessageID > 0 {
			m.client.MarkPrivateMessagesRead([]int64{msg.Message.MessageID})
		}

	case PrivateSentMsg:
		m.appendPrivateMessage(msg.Message, true)

	case ReadReceiptMsg:
		m.addLine("System", fmt.Sprintf("Your private message #%d was read.", msg.MessageID))

	case HistoryMsg:
		for _, hm := range msg.Messages {
			m.appendChatMessage(hm)
		}

	case TypingMsg:
		typing := m.publicTyping
		if msg.Private {
			typing = m.privateTyping
		}
		if msg.IsTyping {
			typing[msg.Username] = true
		} else {
			delete(typing, msg.Username)
		}

	case PeerKeyMsg:
		m.peerFingerprints[msg.Username] = msg.Fingerprint
		m.addLine("System", fmt.Sprintf("Received public key from %s (fingerprint %s).", msg.Username, msg.Fingerprint))

	case TransferProgressMsg:
		m.IsTransferring = true
		if msg.Expected > 0 {
			cmds = append(cmds, m.Progress.SetPercent(float64(msg.Received)/float64(msg.Expected)))
		}

	case FileReceivedMsg:
		m.IsTransferring = false
		path, err := saveReceivedFile(msg.Filename, msg.Data)
		if err != nil {
			m.addLine("Error", fmt.Sprintf("Failed to save received file: %v", err))
		} else {
			m.addLine("System", fmt.Sprintf("Received encrypted file %s, saved to %s.", msg.Filename, path))
		}

	case TransferResultMsg:
		m.IsTransferring = false
		if msg.Ack.Success {
			m.addLine("System", "File transfer complete.")
		} else {
			m.addLine("Error", "File transfer failed: "+msg.Ack.Error)
		}

	case InfoMsg:
		m.addLine("System", msg.Info)

	case ErrorMsg:
		m.addLine("Error", msg.Err.Error())
	}

	return m, tea.Batch(cmds...)
}

// handleInput parses a submitted line: slash commands act on the client,
// anything else is a public message.
func (m *Model) handleInput(text string) {
	if m.client == nil {
		return
	}

	switch {
	case text == "/help":
		m.ShowHelp = !m.ShowHelp

	case text == "/quit":
		m.client.Disconnect()

	case text == "/users":
		if len(m.users) == 0 {
			m.addLine("System", "No users online.")
		} else {
			m.addLine("System", "Online: "+strings.Join(m.users, ", "))
		}

	case text == "/fingerprint":
		m.addLine("System", "Your key fingerprint: "+m.client.Fingerprint())
		names := make([]string, 0, len(m.peerFingerprints))
		for name := range m.peerFingerprints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m.addLine("System", fmt.Sprintf("%s's key fingerprint: %s", name, m.peerFingerprints[name]))
		}

	case strings.HasPrefix(text, "/key "):
		target := strings.TrimSpace(strings.TrimPrefix(text, "/key "))
		m.client.SharePublicKey(target)
		m.addLine("System", "Sent your public key to "+target+".")

	case strings.HasPrefix(text, "/msg "):
		rest := strings.TrimPrefix(text, "/msg ")
		recipient, body, ok := splitFirstWord(rest)
		if !ok {
			m.addLine("Error", "Usage: /msg <user> <message>")
			return
		}
		m.client.SendPrivateMessage(recipient, body)
		if m.client.Username() != "" {
			m.client.IndicatePrivateTyping(recipient, false)
		}

	case strings.HasPrefix(text, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/send "))
		m.addLine("System", "Sending file: "+path)
		m.client.SendPublicFile(path)

	case strings.HasPrefix(text, "/sendto "):
		rest := strings.TrimPrefix(text, "/sendto ")
		recipient, path, ok := splitFirstWord(rest)
		if !ok {
			m.addLine("Error", "Usage: /sendto <user> <file_path>")
			return
		}
		m.addLine("System", fmt.Sprintf("Sending file %s to %s...", path, recipient))
		m.client.SendPrivateFile(recipient, path)

	case strings.HasPrefix(text, "/"):
		m.addLine("Error", "Unknown command. Type /help for a list of commands.")

	default:
		m.client.SendMessage(text)
	}
}

// announcePresenceChanges diffs the previous user list against the new
// one and emits join/leave notices for everyone but ourselves.
func (m *Model) announcePresenceChanges(next []string) {
	if m.username == "" {
		return
	}

	previous := make(map[string]bool, len(m.users))
	for _, name := range m.users {
		previous[name] = true
	}
	current := make(map[string]bool, len(next))
	for _, name := range next {
		current[name] = true
	}

	for _, name := range next {
		if !previous[name] && name != m.username {
			m.addLine("System", name+" has joined the chat.")
		}
	}
	for _, name := range m.users {
		if !current[name] && name != m.username {
			m.addLine("System", name+" has left the chat.")
			delete(m.publicTyping, name)
			delete(m.privateTyping, name)
			delete(m.peerFingerprints, name)
		}
	}
}

func (m *Model) appendChatMessage(msg protocol.Message) {
	sender := msg.Username
	if sender == "" {
		sender = "Unknown"
	}
	if msg.Message != "" {
		m.Messages = append(m.Messages, Message{
			Timestamp: eventTime(msg.Timestamp),
			Sender:    sender,
			Content:   msg.Message,
		})
	}
	if msg.File != nil {
		m.saveAttachment(sender, msg.File)
	}
}

func (m *Model) appendPrivateMessage(msg protocol.PrivateMessageEvent, outbound bool) {
	sender := msg.Sender
	content := msg.Message
	if outbound {
		sender = m.username
		if content != "" {
			content = fmt.Sprintf("(to %s) %s", msg.Recipient, content)
		}
	}
	if content != "" {
		m.Messages = append(m.Messages, Message{
			Timestamp: eventTime(msg.Timestamp),
			Sender:    sender,
			Content:   content,
			Private:   true,
		})
	}
	if msg.File != nil && !outbound {
		m.saveAttachment(sender, msg.File)
	}
}

// saveAttachment decodes an inline file payload into the temp directory
// and announces where it went.
func (m *Model) saveAttachment(sender string, file *protocol.FilePayload) {
	data, err := base64.StdEncoding.DecodeString(file.Data)
	if err != nil {
		m.addLine("Error", fmt.Sprintf("Received a corrupt attachment from %s.", sender))
		return
	}
	path, err := saveReceivedFile(file.Name, data)
	if err != nil {
		m.addLine("Error", fmt.Sprintf("Failed to save attachment: %v", err))
		return
	}
	m.addLine("System", fmt.Sprintf("%s sent file %s, saved to %s.", sender, file.Name, path))
}

func (m *Model) addLine(sender, content string) {
	m.Messages = append(m.Messages, Message{Timestamp: time.Now(), Sender: sender, Content: content})
}

func (m *Model) View() string {
	if m.Err != nil {
		return fmt.Sprintf("An error occurred: %v\n\nPress Ctrl+C to quit.", m.Err)
	}

	if m.ShowHelp {
		return m.helpView()
	}

	chatAreaView := m.chatArea.View(m.Messages)
	footer := m.footerView()

	if footer != "" {
		return fmt.Sprintf("%s\n%s\n%s", m.headerView(), chatAreaView, footer)
	}
	return fmt.Sprintf("%s\n%s", m.headerView(), chatAreaView)
}

func (m *Model) helpView() string {
	return lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder()).Render(
		"Available Commands:\n" +
			"  /msg <user> <text>     - Send a private message\n" +
			"  /send <file_path>      - Send a file to everyone\n" +
			"  /sendto <user> <path>  - Send a file to one user (encrypted when their key is known)\n" +
			"  /key <user>            - Send your public key to a user\n" +
			"  /fingerprint           - Show known key fingerprints\n" +
			"  /users                 - List online users\n" +
			"  /help                  - Toggle this help message\n" +
			"  /quit                  - Disconnect (Ctrl+C/Esc exits)\n" +
			"\nKeybindings:\n" +
			"  Ctrl+C/Esc             - Disconnect and exit\n" +
			"  Enter                  - Send message\n" +
			"\n(Press Esc to close this help menu)",
	)
}

func (m *Model) headerView() string {
	status := m.Status
	if len(m.users) > 0 {
		status = fmt.Sprintf("%s | %d online", status, len(m.users))
	}
	return StatusStyle.Render(status)
}

func (m *Model) footerView() string {
	if m.IsTransferring {
		return m.Progress.View()
	}
	if line := m.typingLine(); line != "" {
		return SystemStyle.Render(line)
	}
	return ""
}

// typingLine summarizes who is currently typing, private typers marked.
func (m *Model) typingLine() string {
	var names []string
	for name := range m.publicTyping {
		names = append(names, name)
	}
	for name := range m.privateTyping {
		names = append(names, name+" (private)")
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}

// eventTime converts a server timestamp in Unix seconds, falling back to
// the local clock when absent.
func eventTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// saveReceivedFile writes data into the temp directory under a unique
// name derived from the original filename.
func saveReceivedFile(filename string, data []byte) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "received-file"
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("huddle-%s-%s", uuid.NewString()[:8], base))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func splitFirstWord(s string) (first, rest string, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return "", "", false
	}
	first = s[:idx]
	rest = strings.TrimSpace(s[idx:])
	if first == "" || rest == "" {
		return "", "", false
	}
	return first, rest, true
}
