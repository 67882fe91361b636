package catalog

import (
	"strings"

	"github.com/egv/autotask/internal/contracts"
)

type FilterOptions struct {
	// Query matches id, name, or description, ignoring case. Empty matches all.
	Query string `json:"query,omitempty"`
}

func (o FilterOptions) Matches(task contracts.Task) bool {
	query := strings.ToLower(strings.TrimSpace(o.Query))
	if query == "" {
		return true
	}
	for _, field := range []string{task.ID, task.Name, task.Description} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Filter returns the matching tasks in their original order.
func Filter(tasks []contracts.Task, opts FilterOptions) []contracts.Task {
	out := make([]contracts.Task, 0, len(tasks))
	for _, task := range tasks {
		if opts.Matches(task) {
			out = append(out, task.Clone())
		}
	}
	return out
}
