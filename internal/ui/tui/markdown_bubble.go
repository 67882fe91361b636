package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// MarkdownBubble renders a task description and script with glamour. In
// plain mode the markdown source is returned unchanged.
type MarkdownBubble struct {
	content  string
	width    int
	plain    bool
	style    string
	renderer *glamour.TermRenderer
	rendered int
}

func NewMarkdownBubble(plain bool) MarkdownBubble {
	return MarkdownBubble{width: 80, plain: plain}
}

func (m MarkdownBubble) Init() tea.Cmd {
	return nil
}

type SetMarkdownContentMsg struct {
	Content string
}

func (m MarkdownBubble) Update(msg tea.Msg) (MarkdownBubble, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetWidth(typed.Width)
	case SetMarkdownContentMsg:
		m.content = typed.Content
	}
	return m, nil
}

func (m MarkdownBubble) View() string {
	content := normalizeMarkdownNewlines(m.content)
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if m.plain || m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// SetWidth rebuilds the renderer only when the wrap width changes.
func (m *MarkdownBubble) SetWidth(width int) {
	if width <= 0 {
		width = 80
	}
	m.width = width
	if m.plain || (m.renderer != nil && m.rendered == width) {
		return
	}
	styleOption := glamour.WithAutoStyle()
	if m.style != "" {
		styleOption = glamour.WithStandardStyle(m.style)
	}
	renderer, err := glamour.NewTermRenderer(
		styleOption,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = renderer
	m.rendered = width
}

// SetStyle picks a glamour standard style such as "dark" or "light". An
// empty style detects one from the terminal.
func (m *MarkdownBubble) SetStyle(style string) {
	if m.style == style {
		return
	}
	m.style = style
	m.renderer = nil
	m.SetWidth(m.width)
}

func (m *MarkdownBubble) SetContent(content string) {
	m.content = content
}

func normalizeMarkdownNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// taskMarkdown is the markdown body shown under the blueprint.
func taskMarkdown(name, description, image, script string) string {
	var b strings.Builder
	if name != "" {
		b.WriteString("## " + name + "\n\n")
	}
	if description != "" {
		b.WriteString(description + "\n\n")
	}
	if image != "" {
		b.WriteString("Image: `" + image + "`\n\n")
	}
	if strings.TrimSpace(script) != "" {
		b.WriteString("```sh\n" + strings.TrimRight(script, "\n") + "\n```\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
