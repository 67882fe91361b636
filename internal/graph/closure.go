package graph

import (
	"sort"

	"github.com/egv/autotask/internal/contracts"
)

// TaskIDSet is an unordered set of task ids.
type TaskIDSet map[string]struct{}

func NewTaskIDSet(ids ...string) TaskIDSet {
	set := make(TaskIDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s TaskIDSet) Has(taskID string) bool {
	_, ok := s[taskID]
	return ok
}

func (s TaskIDSet) Len() int {
	return len(s)
}

func (s TaskIDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s TaskIDSet) Equal(other TaskIDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// UpstreamClosure returns taskID plus every task reachable by following
// depends_on edges From -> To. Parallel and condition edges never expand the
// closure. The start id is always a member, even when no task or relation
// mentions it.
func UpstreamClosure(relations *RelationSet, taskID string) TaskIDSet {
	related, _ := walkUpstream(relations, taskID)
	return related
}

// UpstreamOrder returns the same members as UpstreamClosure in breadth-first
// discovery order, starting with taskID.
func UpstreamOrder(relations *RelationSet, taskID string) []string {
	_, order := walkUpstream(relations, taskID)
	return order
}

func walkUpstream(relations *RelationSet, start string) (TaskIDSet, []string) {
	related := NewTaskIDSet(start)
	order := []string{start}
	visited := make(map[string]struct{})
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		// Several edges can enqueue the same id before it is expanded.
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		for _, relation := range relations.Outgoing(current, contracts.RelationDependsOn) {
			if related.Has(relation.To) {
				continue
			}
			related[relation.To] = struct{}{}
			order = append(order, relation.To)
			queue = append(queue, relation.To)
		}
	}

	return related, order
}
