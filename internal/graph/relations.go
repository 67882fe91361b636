package graph

import "github.com/egv/autotask/internal/contracts"

// RelationSet is an immutable, ordered collection of relation records. Records
// sharing a (From, To) pair are kept as separate entries in insertion order.
//
// It is safe for concurrent read access.
type RelationSet struct {
	relations []contracts.TaskRelation
	touching  map[string][]int
	outgoing  map[string][]int
}

func NewRelationSet(relations []contracts.TaskRelation) *RelationSet {
	set := &RelationSet{
		relations: append([]contracts.TaskRelation(nil), relations...),
		touching:  make(map[string][]int, len(relations)),
		outgoing:  make(map[string][]int, len(relations)),
	}
	for i, relation := range set.relations {
		set.outgoing[relation.From] = append(set.outgoing[relation.From], i)
		set.touching[relation.From] = append(set.touching[relation.From], i)
		if relation.To != relation.From {
			set.touching[relation.To] = append(set.touching[relation.To], i)
		}
	}
	return set
}

func (s *RelationSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.relations)
}

// All returns a copy of every record in insertion order.
func (s *RelationSet) All() []contracts.TaskRelation {
	if s == nil {
		return []contracts.TaskRelation{}
	}
	return append([]contracts.TaskRelation{}, s.relations...)
}

// RelationsTouching returns every record where taskID is From or To, in
// insertion order. Unknown ids yield an empty, non-nil slice.
func (s *RelationSet) RelationsTouching(taskID string) []contracts.TaskRelation {
	if s == nil {
		return []contracts.TaskRelation{}
	}
	return s.collect(s.touching[taskID], "")
}

// Outgoing returns the records leaving taskID with the given type, in
// insertion order. An empty kind matches every type.
func (s *RelationSet) Outgoing(taskID string, kind contracts.RelationType) []contracts.TaskRelation {
	if s == nil {
		return []contracts.TaskRelation{}
	}
	return s.collect(s.outgoing[taskID], kind)
}

func (s *RelationSet) collect(indexes []int, kind contracts.RelationType) []contracts.TaskRelation {
	out := make([]contracts.TaskRelation, 0, len(indexes))
	for _, i := range indexes {
		relation := s.relations[i]
		if kind != "" && relation.Type != kind {
			continue
		}
		out = append(out, relation)
	}
	return out
}
