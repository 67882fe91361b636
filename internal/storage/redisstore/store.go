package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
)

const DefaultPrefix = "autotask:catalog"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps a catalog in three keys: {prefix}:tasks and {prefix}:relations
// hold one JSON document per list entry in catalog order, and {prefix}:meta
// marks that a catalog was saved. Reads and writes both run inside
// MULTI/EXEC so a reader never sees half of a save.
type Store struct {
	client *redis.Client
	prefix string
}

var _ contracts.CatalogStore = (*Store)(nil)

type meta struct {
	Tasks     int       `json:"tasks"`
	Relations int       `json:"relations"`
	SavedAt   time.Time `json:"saved_at"`
}

func New(cfg Config) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.Prefix), nil
}

func NewWithClient(client *redis.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is nil")
	}
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Store) LoadCatalog(ctx context.Context) (contracts.Catalog, error) {
	if s == nil || s.client == nil {
		return contracts.Catalog{}, fmt.Errorf("redis store is nil")
	}

	var metaCmd *redis.StringCmd
	var tasksCmd, relationsCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.Get(ctx, s.key("meta"))
		tasksCmd = pipe.LRange(ctx, s.key("tasks"), 0, -1)
		relationsCmd = pipe.LRange(ctx, s.key("relations"), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return contracts.Catalog{}, fmt.Errorf("read catalog from redis: %w", err)
	}
	if errors.Is(metaCmd.Err(), redis.Nil) {
		return contracts.Catalog{}, fmt.Errorf("%w: redis prefix %s", contracts.ErrCatalogNotFound, s.prefix)
	}

	var stored meta
	if err := json.Unmarshal([]byte(metaCmd.Val()), &stored); err != nil {
		return contracts.Catalog{}, fmt.Errorf("decode catalog meta: %w", err)
	}

	out := contracts.Catalog{
		Tasks:     make([]contracts.Task, 0, len(tasksCmd.Val())),
		Relations: make([]contracts.TaskRelation, 0, len(relationsCmd.Val())),
	}
	for i, raw := range tasksCmd.Val() {
		var task contracts.Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return contracts.Catalog{}, fmt.Errorf("decode task %d: %w", i, err)
		}
		if task.Prerequisites == nil {
			task.Prerequisites = []string{}
		}
		out.Tasks = append(out.Tasks, task)
	}
	for i, raw := range relationsCmd.Val() {
		var relation contracts.TaskRelation
		if err := json.Unmarshal([]byte(raw), &relation); err != nil {
			return contracts.Catalog{}, fmt.Errorf("decode relation %d: %w", i, err)
		}
		out.Relations = append(out.Relations, relation)
	}
	if len(out.Tasks) != stored.Tasks || len(out.Relations) != stored.Relations {
		return contracts.Catalog{}, fmt.Errorf("catalog under %s is incomplete: %d/%d tasks, %d/%d relations", s.prefix, len(out.Tasks), stored.Tasks, len(out.Relations), stored.Relations)
	}
	return out, nil
}

func (s *Store) SaveCatalog(ctx context.Context, value contracts.Catalog) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := catalog.Validate(value); err != nil {
		return err
	}

	tasks := make([]interface{}, 0, len(value.Tasks))
	for _, task := range value.Tasks {
		payload, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", task.ID, err)
		}
		tasks = append(tasks, string(payload))
	}
	relations := make([]interface{}, 0, len(value.Relations))
	for _, relation := range value.Relations {
		payload, err := json.Marshal(relation)
		if err != nil {
			return fmt.Errorf("encode relation %s: %w", relation, err)
		}
		relations = append(relations, string(payload))
	}
	metaPayload, err := json.Marshal(meta{Tasks: len(tasks), Relations: len(relations), SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode catalog meta: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("tasks"), s.key("relations"))
		if len(tasks) > 0 {
			pipe.RPush(ctx, s.key("tasks"), tasks...)
		}
		if len(relations) > 0 {
			pipe.RPush(ctx, s.key("relations"), relations...)
		}
		pipe.Set(ctx, s.key("meta"), string(metaPayload), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write catalog to redis: %w", err)
	}
	return nil
}
