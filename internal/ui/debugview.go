package ui

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const banner = `
 ╦  ╦ ╔═╗ ╦ ╔═╗ ╔═╗ ╔╦╗ ╦ ╦ ╔═╗ ╦  ╔═╗ ╔═╗ ╔═╗
 ╚╗╔╝ ║ ║ ║ ║   ║╣   ║  ╚╦╝ ╠═╝ ║  ║╣  ╚═╗ ╚═╗
  ╚╝  ╚═╝ ╩ ╚═╝ ╚═╝  ╩   ╩  ╩   ╩═╝╚═╝ ╚═╝ ╚═╝
          local voice-to-text
`

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#61E3FA")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(1, 2)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")).MarginTop(1)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A9B1D6"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E"))
	frameStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7AA2F7")).Padding(1, 2)
)

// DebugModel is a read-only bubbletea view of the running pipeline:
// state, audio level history, and the latest transcript. It takes no
// commands of its own beyond quit; recording is toggled by the hotkey
// or tray, not this view.
type DebugModel struct {
	mu sync.Mutex

	spinner     spinner.Model
	levels      []float32
	state       string
	transcript  string
	errorMsg    string
	width       int
	ready       bool
}

// NewDebugModel creates a model with an empty audio history.
func NewDebugModel() *DebugModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A"))
	return &DebugModel{spinner: s, levels: make([]float32, 30), state: "idle"}
}

func (m *DebugModel) Init() tea.Cmd {
	return tea.Batch(spinner.Tick, tea.EnterAltScreen, tickEvery(time.Second/10))
}

type tickMsg time.Time

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *DebugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.ready = msg.Width, true
		m.mu.Unlock()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tickEvery(time.Second / 10)
	}
	return m, nil
}

// SetState records the session's current state for display.
func (m *DebugModel) SetState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// PushLevel shifts a new RMS reading into the scrolling level history.
func (m *DebugModel) PushLevel(level float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.levels[1:], m.levels)
	m.levels[0] = level
}

// SetTranscript records the latest final transcript text.
func (m *DebugModel) SetTranscript(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcript = text
}

// SetError records the latest error message, or clears it if empty.
func (m *DebugModel) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsg = msg
}

func (m *DebugModel) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(bannerStyle.Render(banner))

	indicator := ""
	if m.state == "recording" || m.state == "transcribing" {
		indicator = m.spinner.View() + " "
	}
	b.WriteString("\n" + statusStyle.Render(indicator+"State: "+m.state))
	b.WriteString("\n" + infoStyle.Render("Press 'q' to quit (this also stops voicetypeless)"))
	b.WriteString("\n\n" + renderLevels(m.levels, m.state == "recording"))

	text := m.transcript
	if text == "" {
		text = "No transcript yet..."
	}
	width := m.width - 4
	if width < 10 {
		width = 10
	}
	b.WriteString("\n\n" + frameStyle.Width(width).Render(text))

	if m.errorMsg != "" {
		b.WriteString("\n\n" + errorStyle.Render("Error: "+m.errorMsg))
	}
	return b.String()
}

func renderLevels(levels []float32, active bool) string {
	var b strings.Builder
	b.WriteString("Audio: [")
	barColor := "#555555"
	if active {
		barColor = "#7AA2F7"
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(barColor))
	for _, level := range levels {
		var bar string
		switch {
		case level > 0.2:
			bar = "█"
		case level > 0.05:
			bar = "▓"
		case level > 0.01:
			bar = "▒"
		default:
			bar = "·"
		}
		b.WriteString(style.Render(bar))
	}
	b.WriteString("]")
	return b.String()
}
