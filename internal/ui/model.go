// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	seekStep   = 5 * time.Second
	volumeStep = 5
	pitchStep  = 0.01
)

// Model represents the TUI state
type Model struct {
	// Track
	filename string
	title    string
	artist   string
	album    string
	position time.Duration
	duration time.Duration
	gainDB   float64

	// Output
	codec      string
	sampleRate int
	channels   int
	bitDepth   int
	device     string

	// Playback
	state  string
	volume int
	muted  bool
	pitch  float64
	levels []float32

	// Stats
	underruns  int64
	crossfades int64
	lastError  string
	goroutines int
	memAlloc   uint64
	memSys     uint64

	// Debug
	showDebug bool

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderTrackInfo()
	s += m.renderControls()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders transport state and device
func (m Model) renderHeader() string {
	icon := "■"
	switch m.state {
	case "playing":
		icon = "▶"
	case "paused":
		icon = "❚❚"
	}
	device := m.device
	if device == "" {
		device = "default"
	}

	return fmt.Sprintf(`┌─ Wavedeck ───────────────────────────────────────────┐
│ %-2s %-49s │
│ Output: %-45s │
├──────────────────────────────────────────────────────┤
`, icon, m.state, truncate(device, 45))
}

// renderTrackInfo renders the current item and its progress
func (m Model) renderTrackInfo() string {
	if m.filename == "" {
		return "│ Nothing playing                                      │\n"
	}

	title := m.title
	if title == "" {
		title = filepath.Base(m.filename)
	}
	s := "│ Now Playing:                                         │\n"
	s += fmt.Sprintf("│   Track:  %-42s │\n", truncate(title, 42))
	s += fmt.Sprintf("│   Artist: %-42s │\n", truncate(m.artist, 42))
	s += fmt.Sprintf("│   Album:  %-42s │\n", truncate(m.album, 42))
	s += "│                                                      │\n"

	progress := 0
	if m.duration > 0 {
		progress = int(m.position * 100 / m.duration)
	}
	s += fmt.Sprintf("│ [%s] %s / %s%-9s │\n",
		renderBar(progress, 100, 24), formatDuration(m.position), formatDuration(m.duration), "")

	if m.codec != "" {
		s += fmt.Sprintf("│ Format: %s %dHz %s %d-bit%-17s │\n",
			m.codec, m.sampleRate, channelName(m.channels), m.bitDepth, "")
	}
	return s
}

// renderControls renders volume, pitch, gain and level meters
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	volumeBar := renderBar(m.volume, 100, 10)
	s := fmt.Sprintf("│                                                      │\n"+
		"│ Volume: [%s] %d%%%s%-17s │\n"+
		"│ Pitch:  %.2fx   Gain: %+.1f dB%-19s │\n",
		volumeBar, m.volume, muteIcon, "",
		m.pitch, m.gainDB, "")

	for i, level := range m.levels {
		if i >= 2 {
			break
		}
		s += fmt.Sprintf("│ %s [%s]%-20s │\n",
			channelLabel(i), renderBar(int(level*100), 100, 24), "")
	}
	return s
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	s := fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  Crossfades: %d  Underruns: %d%-12s │
`, m.crossfades, m.underruns, "")
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error: %-45s │\n", truncate(m.lastError, 45))
	}
	return s + "│                                                      │\n"
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ space:Pause  n/p:Next/Prev  ←/→:Seek  ↑/↓:Volume    │
│ +/-:Pitch  m:Mute  s:Stop  d:Debug  q:Quit           │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Goroutines: %-38d │
│   Mem Alloc: %-10s Sys: %-20s │
│   File: %-44s │
`, m.goroutines, formatBytes(m.memAlloc), formatBytes(m.memSys), truncate(m.filename, 44))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case " ":
		m.send(Command{Type: CmdTogglePause})
	case "n":
		m.send(Command{Type: CmdNext})
	case "p":
		m.send(Command{Type: CmdPrevious})
	case "s":
		m.send(Command{Type: CmdStop})
	case "left":
		m.send(Command{Type: CmdSeek, Delta: -seekStep})
	case "right":
		m.send(Command{Type: CmdSeek, Delta: seekStep})
	case "up":
		if m.volume < 100 {
			m.volume = min(m.volume+volumeStep, 100)
			m.sendVolume()
		}
	case "down":
		if m.volume > 0 {
			m.volume = max(m.volume-volumeStep, 0)
			m.sendVolume()
		}
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "+", "=":
		m.send(Command{Type: CmdPitch, Value: m.pitch + pitchStep})
	case "-":
		m.send(Command{Type: CmdPitch, Value: m.pitch - pitchStep})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	v := float64(m.volume) / 100
	if m.muted {
		v = 0
	}
	m.send(Command{Type: CmdVolume, Value: v})
}

// send forwards a command without blocking the UI
func (m Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
		if msg.State == "stopped" {
			m.position = 0
			m.levels = nil
		}
	}
	if msg.Filename != "" {
		m.filename = msg.Filename
		m.title = msg.Title
		m.artist = msg.Artist
		m.album = msg.Album
	}
	if msg.Position != nil {
		m.position = *msg.Position
	}
	if msg.Duration != 0 {
		m.duration = msg.Duration
	}
	if msg.GainDB != nil {
		m.gainDB = *msg.GainDB
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.bitDepth = msg.BitDepth
	}
	if msg.Device != "" {
		m.device = msg.Device
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Pitch != 0 {
		m.pitch = msg.Pitch
	}
	if msg.Levels != nil {
		m.levels = msg.Levels
	}
	if msg.Underruns != 0 {
		m.underruns = msg.Underruns
	}
	if msg.Crossfade {
		m.crossfades++
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
		m.memSys = msg.MemSys
	}
}

// StatusMsg updates TUI state; zero fields leave the model unchanged
type StatusMsg struct {
	State      string
	Filename   string
	Title      string
	Artist     string
	Album      string
	Position   *time.Duration
	Duration   time.Duration
	GainDB     *float64
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Device     string
	Volume     *int
	Pitch      float64
	Levels     []float32
	Underruns  int64
	Crossfade  bool
	Error      string
	Goroutines int
	MemAlloc   uint64
	MemSys     uint64
}

// Utility functions
func renderBar(value, max, width int) string {
	value = min(value, max)
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

func channelLabel(i int) string {
	if i == 0 {
		return "L"
	}
	return "R"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatBytes(b uint64) string {
	const mb = 1 << 20
	return fmt.Sprintf("%.1fMB", float64(b)/mb)
}
