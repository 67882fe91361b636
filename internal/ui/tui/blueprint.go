package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/graph"
)

// Browser is the read side of the query service the browser needs.
type Browser interface {
	Version() uint64
	Tasks(filter catalog.FilterOptions) ([]contracts.Task, error)
	Inspect(taskID string) (graph.NodeInspection, error)
}

// RenderBlueprint lays out one task's neighbourhood as plain text: the
// upstream closure in discovery order, then its relations grouped by kind.
func RenderBlueprint(inspection graph.NodeInspection) string {
	var b strings.Builder

	title := inspection.TaskID
	if inspection.Task != nil && inspection.Task.Name != "" {
		title += "  " + inspection.Task.Name
	}
	if !inspection.Known {
		title += "  (not in catalog)"
	}
	b.WriteString(title + "\n\n")

	fmt.Fprintf(&b, "Upstream:   %s\n", joinOrDash(inspection.Upstream, " <- "))
	fmt.Fprintf(&b, "Depends on: %s\n", joinOrDash(inspection.DependsOn, ", "))
	fmt.Fprintf(&b, "Needed by:  %s\n", joinOrDash(inspection.Dependents, ", "))
	fmt.Fprintf(&b, "Parallel:   %s\n", joinOrDash(inspection.Parallel, ", "))

	if len(inspection.Conditions) > 0 {
		b.WriteString("Conditions:\n")
		for _, relation := range inspection.Conditions {
			fmt.Fprintf(&b, "  %s -> %s  when %s\n", relation.From, relation.To, conditionText(relation))
		}
	}

	grouped := groupRelations(inspection.Relations)
	if len(inspection.Relations) > 0 {
		b.WriteString("\nRelations:\n")
	}
	for _, kind := range contracts.RelationTypes() {
		relations := grouped[kind]
		if len(relations) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s (%d)\n", kind, len(relations))
		for _, relation := range relations {
			fmt.Fprintf(&b, "    %s\n", relation.String())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func groupRelations(relations []contracts.TaskRelation) map[contracts.RelationType][]contracts.TaskRelation {
	grouped := make(map[contracts.RelationType][]contracts.TaskRelation, 3)
	for _, relation := range relations {
		grouped[relation.Type] = append(grouped[relation.Type], relation)
	}
	return grouped
}

func conditionText(relation contracts.TaskRelation) string {
	if strings.TrimSpace(relation.Condition) == "" {
		return "(no expression)"
	}
	return relation.Condition
}

func joinOrDash(values []string, sep string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, sep)
}

func inspectionMarkdown(inspection graph.NodeInspection) string {
	if inspection.Task == nil {
		return ""
	}
	task := inspection.Task
	return taskMarkdown(task.Name, task.Description, task.Image, task.Script)
}

// RenderPlain writes the browser output for a non-interactive terminal. With
// an empty taskID it lists the catalog; otherwise it prints the blueprint and
// the task details as markdown source.
func RenderPlain(out io.Writer, browser Browser, taskID string, filter catalog.FilterOptions) error {
	if taskID == "" {
		tasks, err := browser.Tasks(filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "catalog v%d, %d tasks\n", browser.Version(), len(tasks))
		for _, task := range tasks {
			fmt.Fprintf(out, "%-6s %s\n", task.ID, task.Name)
		}
		return nil
	}

	inspection, err := browser.Inspect(taskID)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, RenderBlueprint(inspection)+"\n"); err != nil {
		return err
	}
	if body := inspectionMarkdown(inspection); body != "" {
		_, err = io.WriteString(out, "\n"+body+"\n")
	}
	return err
}
