package contracts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRelationType = errors.New("unknown relation type")
	ErrCatalogNotFound     = errors.New("catalog not found")
)

// Task is a described unit of work. The core treats it as a graph node only:
// Image and Script are opaque, and Prerequisites is author-facing metadata
// that is never consulted by graph queries.
type Task struct {
	ID            string   `json:"id" yaml:"id" db:"id"`
	Name          string   `json:"name" yaml:"name" db:"name"`
	Description   string   `json:"description" yaml:"description" db:"description"`
	Image         string   `json:"image" yaml:"image" db:"image"`
	Prerequisites []string `json:"prerequisites" yaml:"prerequisites" db:"-"`
	Script        string   `json:"script" yaml:"script" db:"script"`
}

func (t Task) Clone() Task {
	t.Prerequisites = append([]string(nil), t.Prerequisites...)
	return t
}

type RelationType string

const (
	// RelationDependsOn means From requires To to complete first.
	RelationDependsOn RelationType = "depends_on"
	// RelationParallel means From and To may run concurrently.
	RelationParallel RelationType = "parallel"
	// RelationCondition gates From's continuation from To by an opaque expression.
	RelationCondition RelationType = "condition"
)

func RelationTypes() []RelationType {
	return []RelationType{RelationDependsOn, RelationParallel, RelationCondition}
}

func ParseRelationType(raw string) (RelationType, error) {
	value := RelationType(strings.TrimSpace(raw))
	if !value.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownRelationType, raw)
	}
	return value, nil
}

func (t RelationType) Valid() bool {
	switch t {
	case RelationDependsOn, RelationParallel, RelationCondition:
		return true
	default:
		return false
	}
}

// IsOrdering reports whether the relation constrains execution order.
func (t RelationType) IsOrdering() bool {
	switch t {
	case RelationDependsOn, RelationCondition:
		return true
	case RelationParallel:
		return false
	default:
		return false
	}
}

func (t *RelationType) UnmarshalText(text []byte) error {
	parsed, err := ParseRelationType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TaskRelation is a directed, typed edge From -> To. Several records may share
// the same (From, To) pair with different types; they are never collapsed.
type TaskRelation struct {
	From      string       `json:"from" yaml:"from" db:"from_id"`
	To        string       `json:"to" yaml:"to" db:"to_id"`
	Type      RelationType `json:"type" yaml:"type" db:"type"`
	Condition string       `json:"condition,omitempty" yaml:"condition,omitempty" db:"condition"`
}

func (r TaskRelation) Touches(taskID string) bool {
	return r.From == taskID || r.To == taskID
}

func (r TaskRelation) String() string {
	if r.Type == RelationCondition && r.Condition != "" {
		return fmt.Sprintf("%s -%s-> %s [%s]", r.From, r.Type, r.To, r.Condition)
	}
	return fmt.Sprintf("%s -%s-> %s", r.From, r.Type, r.To)
}

// Catalog is the unit that sources load and stores persist. It is replaced as
// a whole, never patched in place.
type Catalog struct {
	Tasks     []Task         `json:"tasks" yaml:"tasks"`
	Relations []TaskRelation `json:"relations" yaml:"relations"`
}

func (c Catalog) Clone() Catalog {
	clone := Catalog{
		Tasks:     make([]Task, 0, len(c.Tasks)),
		Relations: append([]TaskRelation(nil), c.Relations...),
	}
	for _, task := range c.Tasks {
		clone.Tasks = append(clone.Tasks, task.Clone())
	}
	if clone.Relations == nil {
		clone.Relations = []TaskRelation{}
	}
	return clone
}

func (c Catalog) TaskByID(taskID string) (Task, bool) {
	for _, task := range c.Tasks {
		if task.ID == taskID {
			return task, true
		}
	}
	return Task{}, false
}

// CatalogSource provides a task catalog and its relation set. Where the data
// lives is irrelevant to the graph engine.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (Catalog, error)
}

// CatalogStore is a CatalogSource that can also persist a catalog. SaveCatalog
// must replace the stored catalog atomically.
type CatalogStore interface {
	CatalogSource
	SaveCatalog(ctx context.Context, catalog Catalog) error
}

type EventSink interface {
	Emit(ctx context.Context, event Event) error
}
