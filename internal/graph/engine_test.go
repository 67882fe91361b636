package graph

import (
	"reflect"
	"sync"
	"testing"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

func TestRelationsTouchingKeepsOrderAndDuplicates(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	got := engine.TaskRelations("8")
	want := []contracts.TaskRelation{
		dep("8", "1"),
		dep("9", "8"),
		parallel("9", "8"),
		dep("11", "8"),
		parallel("11", "8"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TaskRelations(8) = %v, want %v", got, want)
	}

	got = engine.TaskRelations("12")
	want = []contracts.TaskRelation{
		dep("12", "9"),
		condition("12", "9", "upload_size > 0"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TaskRelations(12) = %v, want %v", got, want)
	}
}

func TestRelationsTouchingUnknownAndSelfLoop(t *testing.T) {
	set := NewRelationSet([]contracts.TaskRelation{dep("a", "a"), parallel("a", "b")})

	if got := set.RelationsTouching("zzz"); got == nil || len(got) != 0 {
		t.Fatalf("RelationsTouching(zzz) = %#v, want empty non-nil slice", got)
	}
	if got := set.RelationsTouching("a"); !reflect.DeepEqual(got, []contracts.TaskRelation{dep("a", "a"), parallel("a", "b")}) {
		t.Fatalf("RelationsTouching(a) = %v, want self loop once then parallel", got)
	}

	var nilSet *RelationSet
	if got := nilSet.RelationsTouching("a"); len(got) != 0 {
		t.Fatalf("nil RelationsTouching(a) = %v, want empty", got)
	}
	if nilSet.Len() != 0 {
		t.Fatalf("nil Len() = %d, want 0", nilSet.Len())
	}
}

func TestRelationSetDoesNotAliasInput(t *testing.T) {
	input := []contracts.TaskRelation{dep("a", "b")}
	set := NewRelationSet(input)
	input[0].To = "changed"

	if got := set.All(); got[0].To != "b" {
		t.Fatalf("All()[0].To = %q, want b", got[0].To)
	}
	out := set.RelationsTouching("a")
	out[0].To = "mutated"
	if got := set.RelationsTouching("a"); got[0].To != "b" {
		t.Fatalf("RelationsTouching(a)[0].To = %q, want b", got[0].To)
	}
}

func TestEngineOutgoingFiltersByType(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	if got := engine.Relations().Outgoing("6", contracts.RelationCondition); !reflect.DeepEqual(got, []contracts.TaskRelation{condition("6", "5", "exit_code == 0")}) {
		t.Fatalf("Outgoing(6, condition) = %v", got)
	}
	if got := len(engine.Relations().Outgoing("6", "")); got != 2 {
		t.Fatalf("len(Outgoing(6, any)) = %d, want 2", got)
	}
}

func TestEngineDependenciesAndDependents(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	if got := engine.DependenciesOf("5"); !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Fatalf("DependenciesOf(5) = %v, want [2 3]", got)
	}
	if got := engine.DependentsOf("8"); !reflect.DeepEqual(got, []string{"11", "9"}) {
		t.Fatalf("DependentsOf(8) = %v, want [11 9]", got)
	}
	if got := engine.DependentsOf("12"); len(got) != 0 {
		t.Fatalf("DependentsOf(12) = %v, want empty", got)
	}
}

func TestEngineInspect(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	got := engine.Inspect("9")
	if !got.Known || got.Task == nil || got.Task.Name != "Implement file upload" {
		t.Fatalf("Inspect(9).Task = %#v, want the upload task", got.Task)
	}
	if !reflect.DeepEqual(got.Upstream, []string{"9", "8", "1"}) {
		t.Fatalf("Inspect(9).Upstream = %v, want [9 8 1]", got.Upstream)
	}
	if !reflect.DeepEqual(got.DependsOn, []string{"8"}) {
		t.Fatalf("Inspect(9).DependsOn = %v, want [8]", got.DependsOn)
	}
	if !reflect.DeepEqual(got.Dependents, []string{"12"}) {
		t.Fatalf("Inspect(9).Dependents = %v, want [12]", got.Dependents)
	}
	if !reflect.DeepEqual(got.Parallel, []string{"8"}) {
		t.Fatalf("Inspect(9).Parallel = %v, want [8]", got.Parallel)
	}
	if len(got.Conditions) != 0 {
		t.Fatalf("Inspect(9).Conditions = %v, want none", got.Conditions)
	}
	if len(got.Relations) != 4 {
		t.Fatalf("len(Inspect(9).Relations) = %d, want 4", len(got.Relations))
	}

	six := engine.Inspect("6")
	if !reflect.DeepEqual(six.Conditions, []contracts.TaskRelation{condition("6", "5", "exit_code == 0")}) {
		t.Fatalf("Inspect(6).Conditions = %v", six.Conditions)
	}
}

func TestEngineInspectUnknownTask(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	got := engine.Inspect("404")
	if got.Known || got.Task != nil {
		t.Fatalf("Inspect(404) = %#v, want unknown", got)
	}
	if !reflect.DeepEqual(got.Upstream, []string{"404"}) {
		t.Fatalf("Inspect(404).Upstream = %v, want [404]", got.Upstream)
	}
	if len(got.Relations) != 0 || len(got.Parallel) != 0 || len(got.DependsOn) != 0 {
		t.Fatalf("Inspect(404) = %#v, want no relations", got)
	}
}

func TestEngineKeepsFirstDuplicateTask(t *testing.T) {
	engine := NewEngine(contracts.Catalog{Tasks: []contracts.Task{
		{ID: "a", Name: "first"},
		{ID: "a", Name: "second"},
		{ID: "b", Name: "other"},
	}})

	task, ok := engine.Task("a")
	if !ok || task.Name != "first" {
		t.Fatalf("Task(a) = %#v, %v; want first", task, ok)
	}
	if got := len(engine.Tasks()); got != 2 {
		t.Fatalf("len(Tasks()) = %d, want 2", got)
	}
}

func TestEngineIsolatedFromCatalogMutation(t *testing.T) {
	source := catalog.SampleCatalog()
	engine := NewEngine(source)
	source.Relations[0] = dep("2", "12")
	source.Tasks[0].Prerequisites = append(source.Tasks[0].Prerequisites, "x")

	if got := engine.RelatedTaskIDs("2").Sorted(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("RelatedTaskIDs(2) = %v, want [1 2]", got)
	}
	task, _ := engine.Task("1")
	if len(task.Prerequisites) != 0 {
		t.Fatalf("Task(1).Prerequisites = %v, want empty", task.Prerequisites)
	}
}

func TestEngineConcurrentQueries(t *testing.T) {
	engine := NewEngine(catalog.SampleCatalog())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := engine.RelatedTaskIDs("12").Len(); got != 4 {
					t.Errorf("RelatedTaskIDs(12).Len() = %d, want 4", got)
					return
				}
				if got := len(engine.TaskRelations("8")); got != 5 {
					t.Errorf("len(TaskRelations(8)) = %d, want 5", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNilEngineIsEmpty(t *testing.T) {
	var engine *Engine

	if got := engine.RelatedTaskIDs("a").Sorted(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("RelatedTaskIDs(a) = %v, want [a]", got)
	}
	if got := engine.TaskRelations("a"); len(got) != 0 {
		t.Fatalf("TaskRelations(a) = %v, want empty", got)
	}
	if _, ok := engine.Task("a"); ok {
		t.Fatalf("Task(a) found on nil engine")
	}
}
