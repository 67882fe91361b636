package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/graph"
	"github.com/egv/autotask/internal/log"
	"github.com/egv/autotask/internal/service"
)

// Catalog is the query surface the API serves. *service.QueryService
// implements it.
type Catalog interface {
	Reload(ctx context.Context) (uint64, error)
	Version() uint64
	LoadedAt() time.Time
	SourceName() string
	RelatedTaskIDs(taskID string) ([]string, error)
	UpstreamOrder(taskID string) ([]string, error)
	Closure(taskID string) (service.Closure, error)
	TaskRelations(taskID string) ([]contracts.TaskRelation, error)
	Inspect(taskID string) (graph.NodeInspection, error)
	Tasks(filter catalog.FilterOptions) ([]contracts.Task, error)
	Task(taskID string) (contracts.Task, error)
	Check() (graph.Report, error)
}

var _ Catalog = (*service.QueryService)(nil)

type HandlerOptions struct {
	// Hub enables GET /api/events when set.
	Hub *Hub
	// StaticDir is served at / when set.
	StaticDir string
	Logger    logrus.FieldLogger
}

type handler struct {
	catalog Catalog
	hub     *Hub
	logger  logrus.FieldLogger
}

type relationsResponse struct {
	TaskID    string                   `json:"task_id"`
	Relations []contracts.TaskRelation `json:"relations"`
}

type tasksResponse struct {
	Version uint64           `json:"version"`
	Tasks   []contracts.Task `json:"tasks"`
}

type healthResponse struct {
	Status   string     `json:"status"`
	Source   string     `json:"source"`
	Version  uint64     `json:"version"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(c Catalog, opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	h := &handler{catalog: c, hub: opts.Hub, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("GET /api/tasks/{id}/related", h.related)
	mux.HandleFunc("GET /api/tasks/{id}/relations", h.relations)
	mux.HandleFunc("GET /api/tasks/{id}/inspect", h.inspect)
	mux.HandleFunc("GET /api/check", h.check)
	mux.HandleFunc("POST /api/reload", h.reload)
	mux.HandleFunc("GET /api/events", h.serveEvents)
	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	}
	return mux
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Source: h.catalog.SourceName(), Version: h.catalog.Version()}
	if resp.Version == 0 {
		resp.Status = "loading"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	loadedAt := h.catalog.LoadedAt()
	resp.LoadedAt = &loadedAt
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.catalog.Tasks(catalog.FilterOptions{Query: r.URL.Query().Get("q")})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasksResponse{Version: h.catalog.Version(), Tasks: tasks})
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.catalog.Task(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// related never answers 404: an unknown id yields a closure holding only
// that id.
func (h *handler) related(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	closure, err := h.catalog.Closure(taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closure)
}

func (h *handler) relations(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	relations, err := h.catalog.TaskRelations(taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, relationsResponse{TaskID: taskID, Relations: relations})
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.catalog.Inspect(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

func (h *handler) check(w http.ResponseWriter, _ *http.Request) {
	report, err := h.catalog.Check()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) reload(w http.ResponseWriter, r *http.Request) {
	version, err := h.catalog.Reload(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("reload requested over http failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"version": version})
}

func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.WithError(err).Error("query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
