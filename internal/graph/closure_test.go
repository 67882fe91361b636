package graph

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

func dep(from, to string) contracts.TaskRelation {
	return contracts.TaskRelation{From: from, To: to, Type: contracts.RelationDependsOn}
}

func parallel(from, to string) contracts.TaskRelation {
	return contracts.TaskRelation{From: from, To: to, Type: contracts.RelationParallel}
}

func condition(from, to, expr string) contracts.TaskRelation {
	return contracts.TaskRelation{From: from, To: to, Type: contracts.RelationCondition, Condition: expr}
}

func TestUpstreamClosureOnSampleCatalog(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	tests := []struct {
		taskID string
		want   []string
		order  []string
	}{
		{taskID: "1", want: []string{"1"}, order: []string{"1"}},
		{taskID: "6", want: []string{"1", "2", "3", "5", "6"}, order: []string{"6", "5", "2", "3", "1"}},
		{taskID: "9", want: []string{"1", "8", "9"}, order: []string{"9", "8", "1"}},
		{taskID: "12", want: []string{"1", "12", "8", "9"}, order: []string{"12", "9", "8", "1"}},
		{taskID: "10", want: []string{"1", "10", "2", "3", "5", "6", "7"}, order: []string{"10", "6", "7", "5", "2", "3", "1"}},
		{taskID: "4", want: []string{"3", "4"}, order: []string{"4", "3"}},
	}

	for _, tt := range tests {
		t.Run("task "+tt.taskID, func(t *testing.T) {
			if got := engine.RelatedTaskIDs(tt.taskID).Sorted(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("RelatedTaskIDs(%s) = %v, want %v", tt.taskID, got, tt.want)
			}
			if got := engine.UpstreamOrder(tt.taskID); !reflect.DeepEqual(got, tt.order) {
				t.Fatalf("UpstreamOrder(%s) = %v, want %v", tt.taskID, got, tt.order)
			}
		})
	}
}

func TestUpstreamClosureAlwaysContainsStart(t *testing.T) {
	relations := NewRelationSet([]contracts.TaskRelation{dep("a", "b")})

	for _, id := range []string{"a", "b", "missing", ""} {
		got := UpstreamClosure(relations, id)
		if !got.Has(id) {
			t.Fatalf("UpstreamClosure(%q) = %v, want it to contain %q", id, got.Sorted(), id)
		}
	}
	if got := UpstreamClosure(relations, "missing").Sorted(); !reflect.DeepEqual(got, []string{"missing"}) {
		t.Fatalf("UpstreamClosure(missing) = %v, want [missing]", got)
	}
	if got := UpstreamClosure(nil, "x").Sorted(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("UpstreamClosure(nil, x) = %v, want [x]", got)
	}
}

func TestUpstreamClosureTerminatesOnCycles(t *testing.T) {
	tests := []struct {
		name      string
		relations []contracts.TaskRelation
		start     string
		want      []string
	}{
		{name: "two node cycle", relations: []contracts.TaskRelation{dep("a", "b"), dep("b", "a")}, start: "a", want: []string{"a", "b"}},
		{name: "self loop", relations: []contracts.TaskRelation{dep("a", "a")}, start: "a", want: []string{"a"}},
		{name: "cycle behind chain", relations: []contracts.TaskRelation{dep("x", "a"), dep("a", "b"), dep("b", "c"), dep("c", "a")}, start: "x", want: []string{"a", "b", "c", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpstreamClosure(NewRelationSet(tt.relations), tt.start).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("UpstreamClosure(%s) = %v, want %v", tt.start, got, tt.want)
			}
		})
	}
}

func TestUpstreamClosureIgnoresNonDependencyEdges(t *testing.T) {
	relations := NewRelationSet([]contracts.TaskRelation{
		parallel("a", "b"),
		condition("a", "c", "exit_code == 0"),
		dep("d", "a"),
	})

	if got := UpstreamClosure(relations, "a").Sorted(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("UpstreamClosure(a) = %v, want [a]", got)
	}
	// Edges are followed From -> To only.
	if got := UpstreamClosure(relations, "d").Sorted(); !reflect.DeepEqual(got, []string{"a", "d"}) {
		t.Fatalf("UpstreamClosure(d) = %v, want [a d]", got)
	}
}

func TestUpstreamClosureIsTransitiveAndIdempotent(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	for _, task := range engine.Tasks() {
		closure := engine.RelatedTaskIDs(task.ID)
		for member := range closure {
			for inner := range engine.RelatedTaskIDs(member) {
				if !closure.Has(inner) {
					t.Fatalf("RelatedTaskIDs(%s) = %v misses %s reachable through %s", task.ID, closure.Sorted(), inner, member)
				}
			}
		}
		if again := engine.RelatedTaskIDs(task.ID); !again.Equal(closure) {
			t.Fatalf("RelatedTaskIDs(%s) changed between calls: %v then %v", task.ID, closure.Sorted(), again.Sorted())
		}
	}
}

func TestUpstreamClosureDuplicateEdgesDoNotRepeat(t *testing.T) {
	relations := NewRelationSet([]contracts.TaskRelation{
		dep("c", "a"),
		dep("c", "b"),
		dep("c", "a"),
		dep("b", "a"),
	})

	if got := UpstreamOrder(relations, "c"); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("UpstreamOrder(c) = %v, want [c a b]", got)
	}
}

func TestUpstreamClosureHandlesLongChains(t *testing.T) {
	const size = 20000
	relations := make([]contracts.TaskRelation, 0, size)
	for i := 1; i < size; i++ {
		relations = append(relations, dep(strconv.Itoa(i), strconv.Itoa(i-1)))
	}
	// A back edge makes the whole chain one cycle.
	relations = append(relations, dep("0", strconv.Itoa(size-1)))
	set := NewRelationSet(relations)

	if got := UpstreamClosure(set, "0").Len(); got != size {
		t.Fatalf("UpstreamClosure(0).Len() = %d, want %d", got, size)
	}
	order := UpstreamOrder(set, strconv.Itoa(size-1))
	if len(order) != size {
		t.Fatalf("len(UpstreamOrder) = %d, want %d", len(order), size)
	}
	if order[1] != strconv.Itoa(size-2) {
		t.Fatalf("UpstreamOrder()[1] = %s, want %d", order[1], size-2)
	}
}

func TestTaskIDSetEqual(t *testing.T) {
	if !NewTaskIDSet("a", "b").Equal(NewTaskIDSet("b", "a", "a")) {
		t.Fatalf("expected sets with the same members to be equal")
	}
	if NewTaskIDSet("a").Equal(NewTaskIDSet("b")) {
		t.Fatalf("expected sets with different members to differ")
	}
}
