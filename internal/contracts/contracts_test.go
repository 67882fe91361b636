package contracts

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		raw     string
		want    RelationType
		wantErr bool
	}{
		{raw: "depends_on", want: RelationDependsOn},
		{raw: " parallel ", want: RelationParallel},
		{raw: "condition", want: RelationCondition},
		{raw: "blocks", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "DEPENDS_ON", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseRelationType(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownRelationType) {
					t.Fatalf("ParseRelationType(%q) error = %v, want ErrUnknownRelationType", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRelationType(%q) error = %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseRelationType(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRelationTypeIsOrdering(t *testing.T) {
	tests := []struct {
		kind RelationType
		want bool
	}{
		{kind: RelationDependsOn, want: true},
		{kind: RelationCondition, want: true},
		{kind: RelationParallel, want: false},
		{kind: RelationType("other"), want: false},
	}
	for _, tc := range tests {
		if got := tc.kind.IsOrdering(); got != tc.want {
			t.Fatalf("%s.IsOrdering() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestTaskRelationJSONRejectsUnknownType(t *testing.T) {
	var relation TaskRelation
	err := json.Unmarshal([]byte(`{"from":"2","to":"1","type":"blocks"}`), &relation)
	if !errors.Is(err, ErrUnknownRelationType) {
		t.Fatalf("json.Unmarshal() error = %v, want ErrUnknownRelationType", err)
	}

	if err := json.Unmarshal([]byte(`{"from":"6","to":"5","type":"condition","condition":"exit_code == 0"}`), &relation); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := TaskRelation{From: "6", To: "5", Type: RelationCondition, Condition: "exit_code == 0"}
	if relation != want {
		t.Fatalf("decoded relation = %#v, want %#v", relation, want)
	}
}

func TestTaskRelationString(t *testing.T) {
	plain := TaskRelation{From: "9", To: "8", Type: RelationParallel}
	if got := plain.String(); got != "9 -parallel-> 8" {
		t.Fatalf("String() = %q", got)
	}
	gated := TaskRelation{From: "12", To: "9", Type: RelationCondition, Condition: "upload_size > 0"}
	if got := gated.String(); got != "12 -condition-> 9 [upload_size > 0]" {
		t.Fatalf("String() = %q", got)
	}
}

func TestCatalogCloneIsDeep(t *testing.T) {
	original := Catalog{
		Tasks:     []Task{{ID: "5", Prerequisites: []string{"2", "3"}}},
		Relations: []TaskRelation{{From: "5", To: "2", Type: RelationDependsOn}},
	}
	clone := original.Clone()
	clone.Tasks[0].Prerequisites[0] = "changed"
	clone.Relations[0].To = "changed"

	if original.Tasks[0].Prerequisites[0] != "2" {
		t.Fatalf("clone shares prerequisites with original")
	}
	if original.Relations[0].To != "2" {
		t.Fatalf("clone shares relations with original")
	}
	if !reflect.DeepEqual(Catalog{}.Clone().Relations, []TaskRelation{}) {
		t.Fatalf("clone of empty catalog should carry an empty relation slice")
	}
}

func TestCatalogTaskByID(t *testing.T) {
	catalog := Catalog{Tasks: []Task{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}}
	task, ok := catalog.TaskByID("2")
	if !ok || task.Name != "two" {
		t.Fatalf("TaskByID(2) = %#v, %v", task, ok)
	}
	if _, ok := catalog.TaskByID("3"); ok {
		t.Fatalf("TaskByID(3) should miss")
	}
}
