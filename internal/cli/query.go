package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/graph"
	"github.com/egv/autotask/internal/service"
	"github.com/egv/autotask/internal/ui/tui"
)

// withService loads the configured catalog and runs fn against it.
func (o *rootOptions) withService(cmd *cobra.Command, fn func(*service.QueryService) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}
	sink, cleanup, err := eventSinks(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	svc, closer, err := openService(cmd.Context(), cfg, sink)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(svc)
}

func newListCommand(o *rootOptions) *cobra.Command {
	var query string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(svc *service.QueryService) error {
				tasks, err := svc.Tasks(catalog.FilterOptions{Query: query})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), tasks)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tIMAGE")
				for _, task := range tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\n", task.ID, task.Name, task.Image)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by id, name, or description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRelatedCommand(o *rootOptions) *cobra.Command {
	var order, asJSON bool
	cmd := &cobra.Command{
		Use:   "related <task-id>",
		Short: "Print the task and everything it transitively depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			return o.withService(cmd, func(svc *service.QueryService) error {
				closure, err := svc.Closure(taskID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), closure)
				}
				ids := closure.Related
				if order {
					ids = closure.Order
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " "))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&order, "order", false, "print in discovery order instead of sorted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRelationsCommand(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "relations <task-id>",
		Short: "Print every relation that touches a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(svc *service.QueryService) error {
				relations, err := svc.TaskRelations(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), relations)
				}
				for _, relation := range relations {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), relation.String()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newInspectCommand(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Show a task with its upstream closure and relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(svc *service.QueryService) error {
				inspection, err := svc.Inspect(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), inspection)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tui.RenderBlueprint(inspection))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCheckCommand(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report structural problems in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withService(cmd, func(svc *service.QueryService) error {
				report, err := svc.Check()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					if err := writeJSON(out, report); err != nil {
						return err
					}
				} else if len(report.Issues) == 0 {
					fmt.Fprintln(out, "no issues")
				} else {
					for _, issue := range report.Issues {
						fmt.Fprintln(out, issue.String())
					}
					fmt.Fprintf(out, "%d errors, %d warnings, %d info\n",
						report.Count(graph.SeverityError),
						report.Count(graph.SeverityWarning),
						report.Count(graph.SeverityInfo))
				}
				if report.HasErrors() {
					return fmt.Errorf("catalog has %d errors", report.Count(graph.SeverityError))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
