package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

const (
	minListWidth = 18
	maxListWidth = 40
)

type Options struct {
	// Reload, when set, is bound to the r key.
	Reload func(ctx context.Context) (uint64, error)
	// StartTask centers the browser on a task before the first key press.
	StartTask string
	// PlainMarkdown skips glamour rendering of task details.
	PlainMarkdown bool
	// MarkdownStyle is a glamour standard style; empty detects one.
	MarkdownStyle string
}

// Model is the task browser: a filterable task list on the left and the
// blueprint of the selected or centered task on the right.
type Model struct {
	browser   Browser
	opts      Options
	tasks     []contracts.Task
	total     int
	cursor    int
	centered  string
	filtering bool
	filter    textinput.Model
	pane      viewport.Model
	markdown  MarkdownBubble
	status    StatusBar
	width     int
	height    int
	err       error
}

type reloadedMsg struct {
	version uint64
	err     error
}

func NewModel(browser Browser, opts Options) Model {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter tasks"

	m := Model{
		browser:  browser,
		opts:     opts,
		filter:   filter,
		pane:     viewport.New(60, 20),
		markdown: NewMarkdownBubble(opts.PlainMarkdown),
		status:   NewStatusBar(),
		width:    80,
		height:   24,
		centered: opts.StartTask,
	}
	m.markdown.style = opts.MarkdownStyle
	m.resize(m.width, m.height)
	m.refreshTasks()
	if opts.StartTask != "" {
		m.moveCursorTo(opts.StartTask)
	}
	m.refreshPane()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(typed.Width, typed.Height)
		m.refreshPane()
		return m, nil
	case reloadedMsg:
		if typed.err != nil {
			m.status, _ = m.status.Update(StatusMessageMsg{Text: "reload failed: " + typed.err.Error()})
		} else {
			m.status, _ = m.status.Update(StatusMessageMsg{Text: fmt.Sprintf("reloaded v%d", typed.version)})
		}
		m.refreshTasks()
		m.refreshPane()
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(typed)
		}
		return m.updateBrowse(typed)
	}

	var cmd tea.Cmd
	m.pane, cmd = m.pane.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter":
		if task, ok := m.selected(); ok {
			m.centered = task.ID
		}
	case "esc":
		m.centered = ""
		m.filter.SetValue("")
		m.refreshTasks()
	case "/":
		m.filtering = true
		return m, m.filter.Focus()
	case "r":
		if m.opts.Reload == nil {
			return m, nil
		}
		reload := m.opts.Reload
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			version, err := reload(ctx)
			return reloadedMsg{version: version, err: err}
		}
	default:
		var cmd tea.Cmd
		m.pane, cmd = m.pane.Update(key)
		return m, cmd
	}
	m.refreshPane()
	return m, nil
}

func (m Model) updateFilter(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
	case "enter":
		m.filtering = false
		m.filter.Blur()
	default:
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(key)
		m.refreshTasks()
		m.refreshPane()
		return m, cmd
	}
	m.refreshTasks()
	m.refreshPane()
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	listWidth := min(max(width/3, minListWidth), maxListWidth)
	paneWidth := max(width-listWidth-1, 10)
	m.pane.Width = paneWidth
	m.pane.Height = max(height-m.chromeHeight(), 1)
	m.markdown.SetWidth(paneWidth)
	m.status.SetWidth(width)
}

// chromeHeight is the status bar plus the filter line.
func (m Model) chromeHeight() int {
	return 4
}

func (m *Model) refreshTasks() {
	if m.browser == nil {
		return
	}
	all, err := m.browser.Tasks(catalog.FilterOptions{})
	if err != nil {
		m.err = err
		m.tasks = nil
		m.total = 0
		m.updateStatus()
		return
	}
	m.err = nil
	m.total = len(all)
	m.tasks = catalog.Filter(all, catalog.FilterOptions{Query: m.filter.Value()})
	if m.cursor >= len(m.tasks) {
		m.cursor = max(len(m.tasks)-1, 0)
	}
	m.updateStatus()
}

func (m *Model) refreshPane() {
	m.updateStatus()
	taskID := m.focusID()
	if taskID == "" || m.browser == nil {
		m.pane.SetContent(m.emptyPane())
		return
	}
	inspection, err := m.browser.Inspect(taskID)
	if err != nil {
		m.pane.SetContent("error: " + err.Error())
		return
	}
	m.markdown.SetContent(inspectionMarkdown(inspection))
	content := RenderBlueprint(inspection)
	if details := m.markdown.View(); details != "" {
		content += "\n\n" + details
	}
	m.pane.SetContent(content)
	m.pane.GotoTop()
}

func (m Model) emptyPane() string {
	if m.err != nil {
		return "error: " + m.err.Error()
	}
	if m.filter.Value() != "" {
		return "no tasks match the filter"
	}
	return "catalog is empty"
}

func (m *Model) updateStatus() {
	version := uint64(0)
	if m.browser != nil {
		version = m.browser.Version()
	}
	m.status, _ = m.status.Update(UpdateStatusBarMsg{
		Version:  version,
		Shown:    len(m.tasks),
		Total:    m.total,
		Centered: m.centered,
		Filter:   m.filter.Value(),
	})
}

func (m *Model) moveCursorTo(taskID string) {
	for i, task := range m.tasks {
		if task.ID == taskID {
			m.cursor = i
			return
		}
	}
}

func (m Model) selected() (contracts.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return contracts.Task{}, false
	}
	return m.tasks[m.cursor], true
}

// focusID is the centered task if any, else the task under the cursor.
func (m Model) focusID() string {
	if m.centered != "" {
		return m.centered
	}
	if task, ok := m.selected(); ok {
		return task.ID
	}
	return ""
}

// Centered returns the task the blueprint is pinned to, or "".
func (m Model) Centered() string {
	return m.centered
}

func (m Model) Filtering() bool {
	return m.filtering
}

var (
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff"))
	centeredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf00"))
	paneStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).PaddingLeft(1)
)

func (m Model) View() string {
	listWidth := min(max(m.width/3, minListWidth), maxListWidth)
	listHeight := m.pane.Height

	lines := make([]string, 0, len(m.tasks))
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	for i := start; i < len(m.tasks) && len(lines) < listHeight; i++ {
		task := m.tasks[i]
		marker := "  "
		if task.ID == m.centered {
			marker = "* "
		}
		line := truncate(fmt.Sprintf("%s%s %s", marker, task.ID, task.Name), listWidth)
		switch {
		case i == m.cursor:
			line = cursorStyle.Render(line)
		case task.ID == m.centered:
			line = centeredStyle.Render(line)
		}
		lines = append(lines, line)
	}
	list := lipgloss.NewStyle().Width(listWidth).Height(listHeight).Render(strings.Join(lines, "\n"))
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, paneStyle.Render(m.pane.View()))

	footer := "j/k move  enter center  / filter  esc clear  q quit"
	if m.opts.Reload != nil {
		footer = "j/k move  enter center  / filter  esc clear  r reload  q quit"
	}
	if m.filtering || m.filter.Value() != "" {
		footer = m.filter.View()
	}
	return strings.Join([]string{body, footer, m.status.View()}, "\n")
}

func truncate(text string, width int) string {
	runes := []rune(text)
	if width <= 1 || len(runes) <= width {
		return text
	}
	return string(runes[:width-1]) + "…"
}
