package cli

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/service"
	"github.com/egv/autotask/internal/ui/tui"
)

func newTUICommand(o *rootOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "tui [task-id]",
		Short: "Browse the catalog in the terminal",
		Long:  `Opens a full-screen task browser. When stdout is not a terminal the task list, or the blueprint of the given task, is printed as plain text instead.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startTask := ""
			if len(args) == 1 {
				startTask = args[0]
			}
			return o.withService(cmd, func(svc *service.QueryService) error {
				out := cmd.OutOrStdout()
				if !shouldUseFullscreen(out) {
					return tui.RenderPlain(out, svc, startTask, catalog.FilterOptions{Query: query})
				}
				model := tui.NewModel(svc, tui.Options{Reload: svc.Reload, StartTask: startTask})
				program := tea.NewProgram(model,
					tea.WithContext(cmd.Context()),
					tea.WithInput(cmd.InOrStdin()),
					tea.WithOutput(out),
					tea.WithAltScreen(),
				)
				_, err := program.Run()
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter the plain task list")
	return cmd
}

func shouldUseFullscreen(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok || file == nil {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
