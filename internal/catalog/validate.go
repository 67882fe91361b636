package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/egv/autotask/internal/contracts"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Validate rejects catalogs the query engine cannot index: empty or
// duplicate task ids, relations with empty endpoints, and unknown relation
// types. Relations naming tasks outside the catalog are allowed.
func Validate(catalog contracts.Catalog) error {
	var problems []string

	seen := make(map[string]struct{}, len(catalog.Tasks))
	for i, task := range catalog.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			problems = append(problems, fmt.Sprintf("task %d: empty id", i))
			continue
		}
		if _, exists := seen[task.ID]; exists {
			problems = append(problems, fmt.Sprintf("task %d: duplicate id %q", i, task.ID))
			continue
		}
		seen[task.ID] = struct{}{}
	}

	for i, relation := range catalog.Relations {
		if strings.TrimSpace(relation.From) == "" || strings.TrimSpace(relation.To) == "" {
			problems = append(problems, fmt.Sprintf("relation %d: empty endpoint", i))
		}
		if !relation.Type.Valid() {
			problems = append(problems, fmt.Sprintf("relation %d: %v %q", i, contracts.ErrUnknownRelationType, relation.Type))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
}
