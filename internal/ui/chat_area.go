package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SubmitInputMsg signals that text was submitted from the textarea.
type SubmitInputMsg struct{ Content string }

// FocusTextareaMsg commands the ChatAreaModel to focus its textarea.
type FocusTextareaMsg struct{}

// Message is a single rendered chat line. Sender "System" and "Error"
// are sentinel values styled differently from user messages.
type Message struct {
	Timestamp time.Time
	Sender    string
	Content   string
	Private   bool
}

// ChatAreaModel holds the scrollback viewport and the input textarea.
type ChatAreaModel struct {
	viewport viewport.Model
	textarea textarea.Model
	width    int
	height   int

	viewportStyle lipgloss.Style
	nickname      string
}

// NewChatAreaModel creates the chat area with initial dimensions. The
// real dimensions arrive with the first tea.WindowSizeMsg.
func NewChatAreaModel(initialWidth, initialHeight int, nickname string) ChatAreaModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.CharLimit = 0
	ta.SetWidth(initialWidth)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ta.Prompt = nickname + ": "
	ta.FocusedStyle.Prompt = promptStyle
	ta.BlurredStyle.Prompt = promptStyle

	vp := viewport.New(initialWidth, initialHeight-3)

	return ChatAreaModel{
		textarea: ta,
		viewport: vp,
		width:    initialWidth,
		height:   initialHeight,
		nickname: nickname,
	}
}

func (m ChatAreaModel) Init() tea.Cmd {
	return nil
}

// Value returns the current textarea content.
func (m *ChatAreaModel) Value() string {
	return m.textarea.Value()
}

// SetNickname updates the input prompt to the given display name.
func (m *ChatAreaModel) SetNickname(nickname string) {
	m.nickname = nickname
	promptStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	m.textarea.Prompt = nickname + ": "
	m.textarea.FocusedStyle.Prompt = promptStyle
	m.textarea.BlurredStyle.Prompt = promptStyle
}

// Update handles messages for the chat area. Enter submits the trimmed
// textarea content to the main model as a SubmitInputMsg.
func (m ChatAreaModel) Update(msg tea.Msg) (ChatAreaModel, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
		cmds  []tea.Cmd
	)

	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter {
			input := strings.TrimSpace(m.textarea.Value())
			if input != "" {
				m.textarea.Reset()
				return m, func() tea.Msg { return SubmitInputMsg{Content: input} }
			}
		}
	case FocusTextareaMsg:
		cmds = append(cmds, m.textarea.Focus())
	}

	return m, tea.Batch(cmds...)
}

// SetDimensions resizes the viewport and textarea to fill the space the
// main model allocated to the chat area.
func (m *ChatAreaModel) SetDimensions(width, totalHeight int) {
	m.width = width
	m.height = totalHeight

	inputHeight := m.textarea.Height() + 2
	if inputHeight < 3 {
		inputHeight = 3
	}
	if inputHeight > totalHeight {
		inputHeight = totalHeight
	}

	vpHeight := totalHeight - inputHeight
	if vpHeight < 0 {
		vpHeight = 0
	}

	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(width)
}

// View renders the scrollback above the input box.
func (m *ChatAreaModel) View(messages []Message) string {
	m.viewportStyle = lipgloss.NewStyle().
		Width(m.width).
		Height(m.viewport.Height).
		Border(lipgloss.NormalBorder(), true, true, false, true).
		PaddingLeft(1).
		PaddingRight(1)

	m.viewport.SetContent(m.renderMessages(messages))
	m.viewport.GotoBottom()

	inputHeight := m.textarea.Height() + 2
	if inputHeight < 3 {
		inputHeight = 3
	}
	if inputHeight > m.height {
		inputHeight = m.height
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true).
		Width(m.width).
		Height(inputHeight).
		PaddingLeft(1).
		PaddingRight(1)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewportStyle.Render(m.viewport.View()),
		inputStyle.Render(m.textarea.View()),
	)
}

// renderMessages formats and wraps messages, indenting continuation
// lines under the timestamp and sender prefix.
func (m *ChatAreaModel) renderMessages(messages []Message) string {
	var lines []string

	contentWidth := m.width - m.viewportStyle.GetHorizontalBorderSize() - m.viewportStyle.GetHorizontalPadding()
	if contentWidth < 1 {
		contentWidth = 1
	}

	for _, msg := range messages {
		timestamp := TimestampStyle.Render(msg.Timestamp.Format("15:04"))

		var prefix, content string
		switch {
		case msg.Sender == "System":
			prefix = fmt.Sprintf("%s --- ", timestamp)
			content = SystemStyle.Render(msg.Content)
		case msg.Sender == "Error":
			prefix = fmt.Sprintf("%s --- ", timestamp)
			content = ErrorStyle.Italic(true).Render(msg.Content)
		case msg.Private:
			sender := PrivateStyle.Render("[" + msg.Sender + "]")
			prefix = fmt.Sprintf("%s %s ", timestamp, sender)
			content = msg.Content
		case msg.Sender == m.nickname:
			sender := SenderStyle.Render("<" + msg.Sender + ">")
			prefix = fmt.Sprintf("%s %s ", timestamp, sender)
			content = msg.Content
		default:
			sender := ReceiverStyle.Render("<" + msg.Sender + ">")
			prefix = fmt.Sprintf("%s %s ", timestamp, sender)
			content = msg.Content
		}

		prefixLen := lipgloss.Width(prefix)
		maxContentWidth := contentWidth - prefixLen
		if maxContentWidth < 1 {
			maxContentWidth = 1
		}

		wrapped := lipgloss.NewStyle().Width(maxContentWidth).Render(content)
		contentLines := strings.Split(wrapped, "\n")

		lines = append(lines, prefix+contentLines[0])
		if len(contentLines) > 1 {
			indent := strings.Repeat(" ", prefixLen)
			for _, line := range contentLines[1:] {
				lines = append(lines, indent+line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
