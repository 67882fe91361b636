package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the bottom line of the browser: catalog version, how many
// tasks the list shows, and the centered task.
type StatusBar struct {
	version  uint64
	shown    int
	total    int
	centered string
	filter   string
	message  string
	width    int
}

func NewStatusBar() StatusBar {
	return StatusBar{width: 80}
}

func (s StatusBar) Init() tea.Cmd {
	return nil
}

type UpdateStatusBarMsg struct {
	Version  uint64
	Shown    int
	Total    int
	Centered string
	Filter   string
}

// StatusMessageMsg replaces the transient message at the end of the bar.
// An empty Text clears it.
type StatusMessageMsg struct {
	Text string
}

func (s StatusBar) Update(msg tea.Msg) (StatusBar, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = typed.Width
	case UpdateStatusBarMsg:
		s.version = typed.Version
		s.shown = typed.Shown
		s.total = typed.Total
		s.centered = typed.Centered
		s.filter = typed.Filter
	case StatusMessageMsg:
		s.message = typed.Text
	}
	return s, nil
}

func (s StatusBar) View() string {
	parts := []string{fmt.Sprintf("v%d", s.version)}
	if s.shown != s.total {
		parts = append(parts, fmt.Sprintf("[%d/%d tasks]", s.shown, s.total))
	} else {
		parts = append(parts, fmt.Sprintf("[%d tasks]", s.total))
	}
	if s.filter != "" {
		parts = append(parts, fmt.Sprintf("filter %q", s.filter))
	}
	if s.centered != "" {
		parts = append(parts, "centered "+s.centered)
	}
	if s.message != "" {
		parts = append(parts, s.message)
	}

	style := lipgloss.NewStyle().
		Width(s.width).
		Foreground(lipgloss.Color("#ffffff")).
		Background(lipgloss.Color("#1a1a1a")).
		Border(lipgloss.NormalBorder()).
		Padding(0, 1)
	return style.Render(strings.Join(parts, " "))
}

func (s *StatusBar) SetWidth(width int) {
	// Border adds two columns.
	s.width = max(width-2, 0)
}
