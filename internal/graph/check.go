package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/egv/autotask/internal/contracts"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type IssueCode string

const (
	IssueEmptyTaskID          IssueCode = "empty_task_id"
	IssueDuplicateTaskID      IssueCode = "duplicate_task_id"
	IssueInvalidRelationType  IssueCode = "invalid_relation_type"
	IssueUnknownEndpoint      IssueCode = "unknown_endpoint"
	IssueSelfRelation         IssueCode = "self_relation"
	IssueMissingCondition     IssueCode = "missing_condition"
	IssueUnexpectedCondition  IssueCode = "unexpected_condition"
	IssueDependencyCycle      IssueCode = "dependency_cycle"
	IssuePrerequisiteMismatch IssueCode = "prerequisite_mismatch"
)

type Issue struct {
	Severity Severity                `json:"severity"`
	Code     IssueCode               `json:"code"`
	TaskID   string                  `json:"task_id,omitempty"`
	Relation *contracts.TaskRelation `json:"relation,omitempty"`
	Message  string                  `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s] %s", i.Severity, i.Code, i.Message)
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

func (r Report) Count(severity Severity) int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			count++
		}
	}
	return count
}

// Check reports structural problems in a catalog. Queries stay total on any
// catalog, so only broken task ids and relation types are errors; dangling endpoints and
// depends_on cycles are warnings, and prerequisites that disagree with the
// relation set are informational because prerequisites are not authoritative.
func Check(catalog contracts.Catalog) Report {
	report := Report{Issues: []Issue{}}
	add := func(issue Issue) {
		report.Issues = append(report.Issues, issue)
	}

	known := make(map[string]struct{}, len(catalog.Tasks))
	for i, task := range catalog.Tasks {
		id := task.ID
		if strings.TrimSpace(id) == "" {
			add(Issue{Severity: SeverityError, Code: IssueEmptyTaskID, Message: fmt.Sprintf("task at position %d has an empty id", i)})
			continue
		}
		if _, exists := known[id]; exists {
			add(Issue{Severity: SeverityError, Code: IssueDuplicateTaskID, TaskID: id, Message: fmt.Sprintf("duplicate task id %q", id)})
			continue
		}
		known[id] = struct{}{}
	}

	dependencies := make(map[string][]string)
	for i := range catalog.Relations {
		relation := catalog.Relations[i]
		ref := &relation
		if !relation.Type.Valid() {
			add(Issue{Severity: SeverityError, Code: IssueInvalidRelationType, Relation: ref, Message: fmt.Sprintf("relation %s -> %s has unsupported type %q", relation.From, relation.To, relation.Type)})
			continue
		}
		for _, endpoint := range []string{relation.From, relation.To} {
			if _, ok := known[endpoint]; !ok {
				add(Issue{Severity: SeverityWarning, Code: IssueUnknownEndpoint, TaskID: endpoint, Relation: ref, Message: fmt.Sprintf("relation %s references unknown task %q", relation, endpoint)})
			}
		}
		if relation.From == relation.To {
			add(Issue{Severity: SeverityWarning, Code: IssueSelfRelation, TaskID: relation.From, Relation: ref, Message: fmt.Sprintf("self-referential relation %s", relation)})
		}

		switch relation.Type {
		case contracts.RelationCondition:
			if strings.TrimSpace(relation.Condition) == "" {
				add(Issue{Severity: SeverityWarning, Code: IssueMissingCondition, TaskID: relation.From, Relation: ref, Message: fmt.Sprintf("condition relation %s has no expression", relation)})
			}
		case contracts.RelationDependsOn, contracts.RelationParallel:
			if strings.TrimSpace(relation.Condition) != "" {
				add(Issue{Severity: SeverityWarning, Code: IssueUnexpectedCondition, TaskID: relation.From, Relation: ref, Message: fmt.Sprintf("%s relation %s -> %s carries condition %q which is ignored", relation.Type, relation.From, relation.To, relation.Condition)})
			}
		}

		if relation.Type == contracts.RelationDependsOn && relation.From != relation.To {
			dependencies[relation.From] = append(dependencies[relation.From], relation.To)
		}
	}

	for _, cycle := range findDependencyCycles(dependencies) {
		add(Issue{Severity: SeverityWarning, Code: IssueDependencyCycle, TaskID: cycle[0], Message: fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> "))})
	}

	for _, issue := range prerequisiteMismatches(catalog, dependencies) {
		add(issue)
	}

	return report
}

func prerequisiteMismatches(catalog contracts.Catalog, dependencies map[string][]string) []Issue {
	var issues []Issue
	seen := make(map[string]struct{}, len(catalog.Tasks))
	for _, task := range catalog.Tasks {
		if _, dup := seen[task.ID]; dup || strings.TrimSpace(task.ID) == "" {
			continue
		}
		seen[task.ID] = struct{}{}

		declared := NewTaskIDSet(task.Prerequisites...)
		linked := NewTaskIDSet(dependencies[task.ID]...)
		for _, id := range declared.Sorted() {
			if !linked.Has(id) {
				issues = append(issues, Issue{Severity: SeverityInfo, Code: IssuePrerequisiteMismatch, TaskID: task.ID, Message: fmt.Sprintf("task %q lists prerequisite %q without a depends_on relation", task.ID, id)})
			}
		}
		for _, id := range linked.Sorted() {
			if !declared.Has(id) {
				issues = append(issues, Issue{Severity: SeverityInfo, Code: IssuePrerequisiteMismatch, TaskID: task.ID, Message: fmt.Sprintf("task %q depends on %q which is not listed in its prerequisites", task.ID, id)})
			}
		}
	}
	return issues
}

// findDependencyCycles walks the depends_on edges depth-first in sorted order
// and returns one path per back edge, e.g. [a b a].
func findDependencyCycles(dependencies map[string][]string) [][]string {
	const (
		unvisited = iota
		visiting
		visited
	)

	for taskID, deps := range dependencies {
		deps = NewTaskIDSet(deps...).Sorted()
		dependencies[taskID] = deps
	}

	state := make(map[string]int, len(dependencies))
	stack := make([]string, 0, len(dependencies))
	stackIndex := make(map[string]int, len(dependencies))

	var cycles [][]string
	var dfs func(taskID string)
	dfs = func(taskID string) {
		state[taskID] = visiting
		stackIndex[taskID] = len(stack)
		stack = append(stack, taskID)

		for _, depID := range dependencies[taskID] {
			switch state[depID] {
			case unvisited:
				dfs(depID)
			case visiting:
				start := stackIndex[depID]
				cycle := append([]string(nil), stack[start:]...)
				cycles = append(cycles, append(cycle, depID))
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackIndex, taskID)
		state[taskID] = visited
	}

	for _, taskID := range sortedKeys(dependencies) {
		if state[taskID] != unvisited {
			continue
		}
		dfs(taskID)
	}

	sort.SliceStable(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], "|") < strings.Join(cycles[j], "|")
	})
	return cycles
}
