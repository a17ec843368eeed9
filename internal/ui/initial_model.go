package ui

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	huddlelog "github.com/dothash/huddle/internal/logging"
	"github.com/dothash/huddle/internal/util"
)

// InitialModel prompts for a nickname before handing off to the main
// chat model.
type InitialModel struct {
	program       *tea.Program
	serverAddr    string
	backend       *huddlelog.Backend
	nicknameInput textinput.Model
	err           error
}

func NewInitialModel(serverAddr string, backend *huddlelog.Backend) *InitialModel {
	nicknameInput := textinput.New()
	nicknameInput.Placeholder = "Your Nickname"
	nicknameInput.Focus()

	return &InitialModel{
		serverAddr:    serverAddr,
		backend:       backend,
		nicknameInput: nicknameInput,
	}
}

func (m *InitialModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *InitialModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			nickname := strings.TrimSpace(m.nicknameInput.Value())
			if nickname == "" {
				nickname = util.GenerateRandomNickname()
			}
			mainModel := NewModel(m.serverAddr, nickname, m.backend)
			mainModel.Program = m.program
			return mainModel, mainModel.Init()
		}
	case error:
		m.err = msg
		return m, nil
	}

	m.nicknameInput, cmd = m.nicknameInput.Update(msg)
	return m, cmd
}

func (m *InitialModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to quit.", m.err)
	}
	return fmt.Sprintf(
		"Enter your nickname (or press Enter for a random one):\n%s\n\n(esc to quit)",
		m.nicknameInput.View(),
	)
}

func (m *InitialModel) SetProgram(p *tea.Program) {
	m.program = p
}

// Start runs the TUI against the given server address. When nickname is
// non-empty the initial prompt is skipped.
func Start(serverAddr, nickname string, backend *huddlelog.Backend) {
	var p *tea.Program
	if nickname != "" {
		mainModel := NewModel(serverAddr, nickname, backend)
		p = tea.NewProgram(mainModel, tea.WithAltScreen())
		mainModel.Program = p
	} else {
		initialModel := NewInitialModel(serverAddr, backend)
		p = tea.NewProgram(initialModel, tea.WithAltScreen())
		initialModel.SetProgram(p)
	}

	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}
