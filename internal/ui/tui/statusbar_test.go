package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestStatusBarViewEmptyState(t *testing.T) {
	sb := NewStatusBar()
	view := sb.View()
	if !strings.Contains(view, "v0") || !strings.Contains(view, "[0 tasks]") {
		t.Fatalf("expected version and count, got %q", view)
	}
	if strings.Contains(view, "centered") || strings.Contains(view, "filter") {
		t.Fatalf("did not expect centered or filter in empty state, got %q", view)
	}
}

func TestStatusBarView(t *testing.T) {
	tests := []struct {
		name string
		msg  UpdateStatusBarMsg
		want []string
	}{
		{
			name: "all tasks",
			msg:  UpdateStatusBarMsg{Version: 3, Shown: 12, Total: 12},
			want: []string{"v3", "[12 tasks]"},
		},
		{
			name: "filtered",
			msg:  UpdateStatusBarMsg{Version: 3, Shown: 2, Total: 12, Filter: "test"},
			want: []string{"[2/12 tasks]", `filter "test"`},
		},
		{
			name: "centered",
			msg:  UpdateStatusBarMsg{Version: 1, Shown: 12, Total: 12, Centered: "6"},
			want: []string{"centered 6"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sb, _ := NewStatusBar().Update(tc.msg)
			view := sb.View()
			for _, want := range tc.want {
				if !strings.Contains(view, want) {
					t.Fatalf("expected %q in %q", want, view)
				}
			}
		})
	}
}

func TestStatusBarMessage(t *testing.T) {
	sb, _ := NewStatusBar().Update(StatusMessageMsg{Text: "reloaded v2"})
	if !strings.Contains(sb.View(), "reloaded v2") {
		t.Fatalf("expected message, got %q", sb.View())
	}
	sb, _ = sb.Update(StatusMessageMsg{})
	if strings.Contains(sb.View(), "reloaded") {
		t.Fatalf("expected message cleared, got %q", sb.View())
	}
}

func TestStatusBarWidthFollowsWindow(t *testing.T) {
	sb, _ := NewStatusBar().Update(tea.WindowSizeMsg{Width: 120, Height: 10})
	if sb.width != 120 {
		t.Fatalf("width = %d, want 120", sb.width)
	}
	sb.SetWidth(50)
	if sb.width != 48 {
		t.Fatalf("width after SetWidth(50) = %d, want 48", sb.width)
	}
}
