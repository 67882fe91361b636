package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/graph"
	"github.com/egv/autotask/internal/log"
)

const DefaultCacheSize = 1024

var (
	ErrNotLoaded    = errors.New("catalog not loaded")
	ErrTaskNotFound = errors.New("task not found")
)

type Options struct {
	// CacheSize bounds the per-snapshot closure cache. Zero uses DefaultCacheSize.
	CacheSize  int
	SourceName string
	Logger     logrus.FieldLogger
	Sink       contracts.EventSink
	// EmitQueries also sends a query_served event for every closure or
	// relation lookup.
	EmitQueries bool
}

// snapshot is one immutable, fully indexed catalog. Readers hold on to the
// snapshot they started with, so a reload never changes an answer mid-query.
type snapshot struct {
	version  uint64
	loadedAt time.Time
	catalog  contracts.Catalog
	engine   *graph.Engine
	related  *lru.Cache[string, []string]
}

// QueryService serves graph queries from the latest catalog snapshot and
// swaps in a new snapshot on every successful reload.
type QueryService struct {
	source   contracts.CatalogSource
	opts     Options
	logger   logrus.FieldLogger
	current  atomic.Pointer[snapshot]
	versions atomic.Uint64
	reloadMu sync.Mutex
}

func NewQueryService(source contracts.CatalogSource, opts Options) *QueryService {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.SourceName == "" {
		opts.SourceName = "catalog"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &QueryService{
		source: source,
		opts:   opts,
		logger: logger.WithField("source", opts.SourceName),
	}
}

// Reload loads, validates, and indexes the catalog, then publishes it as the
// current snapshot. On failure the previous snapshot stays in place.
func (s *QueryService) Reload(ctx context.Context) (uint64, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	started := time.Now()
	loaded, err := s.source.LoadCatalog(ctx)
	if err == nil {
		err = catalog.Validate(loaded)
	}
	if err != nil {
		s.logger.WithError(err).Warn("catalog reload failed")
		s.emit(ctx, contracts.Event{
			Type:    contracts.EventTypeCatalogReloadFailed,
			Source:  s.opts.SourceName,
			Version: s.Version(),
			Message: err.Error(),
		})
		return 0, errors.Wrapf(err, "reload %s", s.opts.SourceName)
	}

	related, err := lru.New[string, []string](s.opts.CacheSize)
	if err != nil {
		return 0, errors.Wrap(err, "create closure cache")
	}
	next := &snapshot{
		version:  s.versions.Add(1),
		loadedAt: time.Now().UTC(),
		catalog:  loaded.Clone(),
		engine:   graph.NewEngine(loaded),
		related:  related,
	}
	s.current.Store(next)

	s.logger.WithFields(logrus.Fields{
		"version":   next.version,
		"tasks":     len(next.catalog.Tasks),
		"relations": len(next.catalog.Relations),
		"took":      time.Since(started).String(),
	}).Info("catalog loaded")
	s.emit(ctx, contracts.Event{
		Type:    contracts.EventTypeCatalogLoaded,
		Source:  s.opts.SourceName,
		Version: next.version,
		Metadata: map[string]string{
			"tasks":     strconv.Itoa(len(next.catalog.Tasks)),
			"relations": strconv.Itoa(len(next.catalog.Relations)),
		},
	})
	return next.version, nil
}

// Version is the number of the current snapshot, or zero before the first
// successful reload.
func (s *QueryService) Version() uint64 {
	if snap := s.current.Load(); snap != nil {
		return snap.version
	}
	return 0
}

func (s *QueryService) LoadedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

func (s *QueryService) SourceName() string {
	return s.opts.SourceName
}

// Closure is the upstream closure of one task, answered from a single
// snapshot.
type Closure struct {
	TaskID  string   `json:"task_id"`
	Version uint64   `json:"version"`
	Related []string `json:"related"`
	Order   []string `json:"order"`
}

// RelatedTaskIDs returns the upstream dependency closure of taskID, sorted.
// Unknown ids yield just the id itself.
func (s *QueryService) RelatedTaskIDs(taskID string) ([]string, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return s.related(snap, taskID), nil
}

// Closure returns the sorted closure and its discovery order from the same
// snapshot, so a concurrent reload cannot mix catalog versions.
func (s *QueryService) Closure(taskID string) (Closure, error) {
	snap, err := s.snapshot()
	if err != nil {
		return Closure{}, err
	}
	return Closure{
		TaskID:  taskID,
		Version: snap.version,
		Related: s.related(snap, taskID),
		Order:   snap.engine.UpstreamOrder(taskID),
	}, nil
}

func (s *QueryService) related(snap *snapshot, taskID string) []string {
	ids, hit := snap.related.Get(taskID)
	if !hit {
		ids = snap.engine.RelatedTaskIDs(taskID).Sorted()
		snap.related.Add(taskID, ids)
	}
	s.traceQuery("related", taskID, snap.version, hit)
	return append([]string(nil), ids...)
}

func (s *QueryService) UpstreamOrder(taskID string) ([]string, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.engine.UpstreamOrder(taskID), nil
}

func (s *QueryService) TaskRelations(taskID string) ([]contracts.TaskRelation, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	relations := snap.engine.TaskRelations(taskID)
	s.traceQuery("relations", taskID, snap.version, false)
	return relations, nil
}

func (s *QueryService) Inspect(taskID string) (graph.NodeInspection, error) {
	snap, err := s.snapshot()
	if err != nil {
		return graph.NodeInspection{}, err
	}
	return snap.engine.Inspect(taskID), nil
}

func (s *QueryService) Tasks(filter catalog.FilterOptions) ([]contracts.Task, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return catalog.Filter(snap.engine.Tasks(), filter), nil
}

func (s *QueryService) Task(taskID string) (contracts.Task, error) {
	snap, err := s.snapshot()
	if err != nil {
		return contracts.Task{}, err
	}
	task, ok := snap.engine.Task(taskID)
	if !ok {
		return contracts.Task{}, errors.Wrapf(ErrTaskNotFound, "task %q", taskID)
	}
	return task, nil
}

func (s *QueryService) Check() (graph.Report, error) {
	snap, err := s.snapshot()
	if err != nil {
		return graph.Report{}, err
	}
	return graph.Check(snap.catalog), nil
}

// Catalog returns a copy of the current catalog.
func (s *QueryService) Catalog() (contracts.Catalog, error) {
	snap, err := s.snapshot()
	if err != nil {
		return contracts.Catalog{}, err
	}
	return snap.catalog.Clone(), nil
}

func (s *QueryService) snapshot() (*snapshot, error) {
	if s == nil {
		return nil, ErrNotLoaded
	}
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

func (s *QueryService) traceQuery(kind string, taskID string, version uint64, cacheHit bool) {
	if !s.opts.EmitQueries {
		return
	}
	s.emit(context.Background(), contracts.Event{
		Type:    contracts.EventTypeQueryServed,
		TaskID:  taskID,
		Source:  s.opts.SourceName,
		Version: version,
		Metadata: map[string]string{
			"query": kind,
			"cache": strconv.FormatBool(cacheHit),
		},
	})
}

func (s *QueryService) emit(ctx context.Context, event contracts.Event) {
	if s.opts.Sink == nil {
		return
	}
	if err := s.opts.Sink.Emit(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", event.Type).Debug("event sink rejected event")
	}
}
