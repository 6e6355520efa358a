// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// CommandType identifies a transport request from the keyboard
type CommandType int

const (
	CmdTogglePause CommandType = iota
	CmdNext
	CmdPrevious
	CmdSeek
	CmdVolume
	CmdPitch
	CmdStop
)

// Command is a transport request; Delta is used by seek, Value by volume and pitch
type Command struct {
	Type  CommandType
	Delta time.Duration
	Value float64
}

// QuitMsg is sent when the user leaves the TUI
type QuitMsg struct{}

// Controls holds channels for TUI to player communication
type Controls struct {
	Commands chan Command
	Quit     chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Controls) Model {
	return Model{
		volume:   100,
		pitch:    1,
		state:    "stopped",
		controls: ctrl,
	}
}

// Run creates the TUI program; the caller runs it
func Run(ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
