package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

// Store persists a catalog in catalog_tasks and catalog_relations, ordered
// by position. catalog_meta holds a single row once a catalog was saved.
type Store struct {
	db *sqlx.DB
}

var _ contracts.CatalogStore = (*Store)(nil)

type taskRow struct {
	Position      int    `db:"position"`
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	Image         string `db:"image"`
	Prerequisites string `db:"prerequisites"`
	Script        string `db:"script"`
}

type relationRow struct {
	Position int `db:"position"`
	contracts.TaskRelation
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LoadCatalog(ctx context.Context) (contracts.Catalog, error) {
	if s == nil || s.db == nil {
		return contracts.Catalog{}, fmt.Errorf("postgres store is nil")
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return contracts.Catalog{}, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	var saved int
	if err := tx.GetContext(ctx, &saved, "SELECT COUNT(*) FROM catalog_meta"); err != nil {
		return contracts.Catalog{}, fmt.Errorf("read catalog meta: %w", err)
	}
	if saved == 0 {
		return contracts.Catalog{}, fmt.Errorf("%w: postgres", contracts.ErrCatalogNotFound)
	}

	tasks := []taskRow{}
	if err := tx.SelectContext(ctx, &tasks, "SELECT position, id, name, description, image, prerequisites, script FROM catalog_tasks ORDER BY position"); err != nil {
		return contracts.Catalog{}, fmt.Errorf("read tasks: %w", err)
	}
	relations := []relationRow{}
	if err := tx.SelectContext(ctx, &relations, "SELECT position, from_id, to_id, type, condition FROM catalog_relations ORDER BY position"); err != nil {
		return contracts.Catalog{}, fmt.Errorf("read relations: %w", err)
	}

	out := contracts.Catalog{
		Tasks:     make([]contracts.Task, 0, len(tasks)),
		Relations: make([]contracts.TaskRelation, 0, len(relations)),
	}
	for _, row := range tasks {
		prerequisites := []string{}
		if err := json.Unmarshal([]byte(row.Prerequisites), &prerequisites); err != nil {
			return contracts.Catalog{}, fmt.Errorf("decode prerequisites of %s: %w", row.ID, err)
		}
		if prerequisites == nil {
			prerequisites = []string{}
		}
		out.Tasks = append(out.Tasks, contracts.Task{
			ID:            row.ID,
			Name:          row.Name,
			Description:   row.Description,
			Image:         row.Image,
			Prerequisites: prerequisites,
			Script:        row.Script,
		})
	}
	for _, row := range relations {
		out.Relations = append(out.Relations, row.TaskRelation)
	}
	return out, nil
}

// SaveCatalog replaces the stored catalog in one transaction.
func (s *Store) SaveCatalog(ctx context.Context, value contracts.Catalog) (err error) {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := catalog.Validate(value); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM catalog_relations"); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM catalog_tasks"); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}

	for i, task := range value.Tasks {
		prerequisites := task.Prerequisites
		if prerequisites == nil {
			prerequisites = []string{}
		}
		encoded, marshalErr := json.Marshal(prerequisites)
		if marshalErr != nil {
			return fmt.Errorf("encode prerequisites of %s: %w", task.ID, marshalErr)
		}
		row := taskRow{
			Position:      i,
			ID:            task.ID,
			Name:          task.Name,
			Description:   task.Description,
			Image:         task.Image,
			Prerequisites: string(encoded),
			Script:        task.Script,
		}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO catalog_tasks (position, id, name, description, image, prerequisites, script)
			VALUES (:position, :id, :name, :description, :image, :prerequisites, :script)`, row); err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}
	for i, relation := range value.Relations {
		row := relationRow{Position: i, TaskRelation: relation}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO catalog_relations (position, from_id, to_id, type, condition)
			VALUES (:position, :from_id, :to_id, :type, :condition)`, row); err != nil {
			return fmt.Errorf("insert relation %s: %w", relation, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO catalog_meta (id, tasks, relations, saved_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET tasks = EXCLUDED.tasks, relations = EXCLUDED.relations, saved_at = EXCLUDED.saved_at`,
		len(value.Tasks), len(value.Relations)); err != nil {
		return fmt.Errorf("update catalog meta: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}
