package graph

import (
	"sort"

	"github.com/egv/autotask/internal/contracts"
)

// Engine answers graph queries over one catalog. It copies the catalog on
// construction and never mutates it, so one Engine can serve concurrent
// callers without locking. Every query allocates a fresh result.
type Engine struct {
	tasks     []contracts.Task
	taskIndex map[string]int
	relations *RelationSet
}

type NodeInspection struct {
	TaskID     string                   `json:"task_id"`
	Known      bool                     `json:"known"`
	Task       *contracts.Task          `json:"task,omitempty"`
	Upstream   []string                 `json:"upstream"`
	DependsOn  []string                 `json:"depends_on"`
	Dependents []string                 `json:"dependents"`
	Parallel   []string                 `json:"parallel"`
	Conditions []contracts.TaskRelation `json:"conditions"`
	Relations  []contracts.TaskRelation `json:"relations"`
}

func NewEngine(catalog contracts.Catalog) *Engine {
	engine := &Engine{
		tasks:     make([]contracts.Task, 0, len(catalog.Tasks)),
		taskIndex: make(map[string]int, len(catalog.Tasks)),
		relations: NewRelationSet(catalog.Relations),
	}
	for _, task := range catalog.Tasks {
		if _, exists := engine.taskIndex[task.ID]; exists {
			continue
		}
		engine.taskIndex[task.ID] = len(engine.tasks)
		engine.tasks = append(engine.tasks, task.Clone())
	}
	return engine
}

// RelatedTaskIDs returns the upstream dependency closure of taskID, including
// taskID itself. Unknown ids yield a singleton set.
func (e *Engine) RelatedTaskIDs(taskID string) TaskIDSet {
	return UpstreamClosure(e.relationSet(), taskID)
}

func (e *Engine) UpstreamOrder(taskID string) []string {
	return UpstreamOrder(e.relationSet(), taskID)
}

// TaskRelations returns every relation record touching taskID in catalog
// order, including several records for the same pair.
func (e *Engine) TaskRelations(taskID string) []contracts.TaskRelation {
	return e.relationSet().RelationsTouching(taskID)
}

func (e *Engine) Relations() *RelationSet {
	return e.relationSet()
}

func (e *Engine) Task(taskID string) (contracts.Task, bool) {
	if e == nil {
		return contracts.Task{}, false
	}
	i, ok := e.taskIndex[taskID]
	if !ok {
		return contracts.Task{}, false
	}
	return e.tasks[i].Clone(), true
}

// Tasks returns the catalog tasks in catalog order.
func (e *Engine) Tasks() []contracts.Task {
	if e == nil {
		return []contracts.Task{}
	}
	tasks := make([]contracts.Task, 0, len(e.tasks))
	for _, task := range e.tasks {
		tasks = append(tasks, task.Clone())
	}
	return tasks
}

// DependenciesOf returns the direct depends_on targets of taskID, sorted.
func (e *Engine) DependenciesOf(taskID string) []string {
	ids := NewTaskIDSet()
	for _, relation := range e.relationSet().Outgoing(taskID, contracts.RelationDependsOn) {
		ids[relation.To] = struct{}{}
	}
	return ids.Sorted()
}

// DependentsOf returns the tasks that directly depend on taskID, sorted.
func (e *Engine) DependentsOf(taskID string) []string {
	ids := NewTaskIDSet()
	for _, relation := range e.relationSet().RelationsTouching(taskID) {
		if relation.Type == contracts.RelationDependsOn && relation.To == taskID {
			ids[relation.From] = struct{}{}
		}
	}
	return ids.Sorted()
}

func (e *Engine) Inspect(taskID string) NodeInspection {
	relations := e.TaskRelations(taskID)
	inspection := NodeInspection{
		TaskID:     taskID,
		Upstream:   e.UpstreamOrder(taskID),
		DependsOn:  e.DependenciesOf(taskID),
		Dependents: e.DependentsOf(taskID),
		Conditions: []contracts.TaskRelation{},
		Relations:  relations,
	}
	if task, ok := e.Task(taskID); ok {
		inspection.Known = true
		inspection.Task = &task
	}

	parallel := NewTaskIDSet()
	for _, relation := range relations {
		switch relation.Type {
		case contracts.RelationParallel:
			peer := relation.To
			if peer == taskID {
				peer = relation.From
			}
			parallel[peer] = struct{}{}
		case contracts.RelationCondition:
			if relation.From == taskID {
				inspection.Conditions = append(inspection.Conditions, relation)
			}
		case contracts.RelationDependsOn:
		}
	}
	inspection.Parallel = parallel.Sorted()
	return inspection
}

func (e *Engine) relationSet() *RelationSet {
	if e == nil {
		return nil
	}
	return e.relations
}

func sortedKeys(values map[string][]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
