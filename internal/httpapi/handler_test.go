package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/egv/autotask/internal/catalog"
	"github.com/egv/autotask/internal/contracts"
	"github.com/egv/autotask/internal/log"
	"github.com/egv/autotask/internal/service"
)

func newTestService(t *testing.T, sink contracts.EventSink, load bool) *service.QueryService {
	t.Helper()
	svc := service.NewQueryService(catalog.Sample(), service.Options{
		SourceName: "sample",
		Logger:     log.New("error", io.Discard),
		Sink:       sink,
	})
	if load {
		if _, err := svc.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	return svc
}

func newTestServer(t *testing.T, opts HandlerOptions, load bool) (*httptest.Server, *service.QueryService) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New("error", io.Discard)
	}
	var sink contracts.EventSink
	if opts.Hub != nil {
		sink = opts.Hub
	}
	svc := newTestService(t, sink, load)
	server := httptest.NewServer(NewHandler(svc, opts))
	t.Cleanup(server.Close)
	return server, svc
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d: %s", url, resp.StatusCode, wantStatus, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("GET %s Content-Type = %q", url, ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestRelatedEndpoint(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)

	var got service.Closure
	getJSON(t, server.URL+"/api/tasks/12/related", http.StatusOK, &got)
	want := service.Closure{TaskID: "12", Version: 1, Related: []string{"1", "12", "8", "9"}, Order: []string{"12", "9", "8", "1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("related = %#v, want %#v", got, want)
	}

	getJSON(t, server.URL+"/api/tasks/ghost/related", http.StatusOK, &got)
	if !reflect.DeepEqual(got.Related, []string{"ghost"}) {
		t.Fatalf("related(ghost) = %v, want [ghost]", got.Related)
	}
}

// alternatingSource serves the sample catalog on odd loads and a catalog
// where 12 has no dependencies on even loads.
type alternatingSource struct {
	mu    sync.Mutex
	loads int
}

func (s *alternatingSource) LoadCatalog(context.Context) (contracts.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loads%2 == 1 {
		return catalog.SampleCatalog(), nil
	}
	return contracts.Catalog{Tasks: []contracts.Task{{ID: "12"}}}, nil
}

// reloadAfterRead swaps in the next catalog right after every read the
// handler makes.
type reloadAfterRead struct {
	*service.QueryService
	t *testing.T
}

func (c reloadAfterRead) swap() {
	if _, err := c.Reload(context.Background()); err != nil {
		c.t.Errorf("Reload() error = %v", err)
	}
}

func (c reloadAfterRead) RelatedTaskIDs(taskID string) ([]string, error) {
	defer c.swap()
	return c.QueryService.RelatedTaskIDs(taskID)
}

func (c reloadAfterRead) UpstreamOrder(taskID string) ([]string, error) {
	defer c.swap()
	return c.QueryService.UpstreamOrder(taskID)
}

func (c reloadAfterRead) Closure(taskID string) (service.Closure, error) {
	defer c.swap()
	return c.QueryService.Closure(taskID)
}

func TestRelatedEndpointAnswersFromOneSnapshot(t *testing.T) {
	svc := service.NewQueryService(&alternatingSource{}, service.Options{Logger: log.New("error", io.Discard)})
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	server := httptest.NewServer(NewHandler(reloadAfterRead{QueryService: svc, t: t}, HandlerOptions{Logger: log.New("error", io.Discard)}))
	defer server.Close()

	wants := []service.Closure{
		{TaskID: "12", Version: 1, Related: []string{"1", "12", "8", "9"}, Order: []string{"12", "9", "8", "1"}},
		{TaskID: "12", Version: 2, Related: []string{"12"}, Order: []string{"12"}},
	}
	for _, want := range wants {
		var got service.Closure
		getJSON(t, server.URL+"/api/tasks/12/related", http.StatusOK, &got)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("related = %#v, want %#v", got, want)
		}
	}
}

func TestRelationsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)

	var got relationsResponse
	getJSON(t, server.URL+"/api/tasks/9/relations", http.StatusOK, &got)
	if len(got.Relations) != 4 {
		t.Fatalf("len(relations) = %d, want 4", len(got.Relations))
	}
	if got.Relations[1].Type != contracts.RelationParallel || got.Relations[3].Condition != "upload_size > 0" {
		t.Fatalf("relations = %v", got.Relations)
	}

	getJSON(t, server.URL+"/api/tasks/ghost/relations", http.StatusOK, &got)
	if got.Relations == nil || len(got.Relations) != 0 {
		t.Fatalf("relations(ghost) = %#v, want empty list", got.Relations)
	}
}

func TestTaskEndpoints(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)

	var task contracts.Task
	getJSON(t, server.URL+"/api/tasks/10", http.StatusOK, &task)
	if task.Image != "docker:latest" || !reflect.DeepEqual(task.Prerequisites, []string{"6", "7"}) {
		t.Fatalf("task 10 = %#v", task)
	}

	var errResp errorResponse
	getJSON(t, server.URL+"/api/tasks/404", http.StatusNotFound, &errResp)
	if !strings.Contains(errResp.Error, "task not found") {
		t.Fatalf("error = %q", errResp.Error)
	}

	var list tasksResponse
	getJSON(t, server.URL+"/api/tasks?q=memory", http.StatusOK, &list)
	if list.Version != 1 || len(list.Tasks) != 1 || list.Tasks[0].ID != "7" {
		t.Fatalf("tasks?q=memory = %#v", list)
	}
}

func TestInspectAndCheckEndpoints(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)

	var inspection struct {
		Known      bool     `json:"known"`
		Dependents []string `json:"dependents"`
	}
	getJSON(t, server.URL+"/api/tasks/8/inspect", http.StatusOK, &inspection)
	if !inspection.Known || !reflect.DeepEqual(inspection.Dependents, []string{"11", "9"}) {
		t.Fatalf("inspect(8) = %#v", inspection)
	}

	var report struct {
		Issues []json.RawMessage `json:"issues"`
	}
	getJSON(t, server.URL+"/api/check", http.StatusOK, &report)
	if len(report.Issues) != 0 {
		t.Fatalf("check issues = %d, want 0", len(report.Issues))
	}
}

func TestEndpointsBeforeLoad(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, false)

	var health healthResponse
	getJSON(t, server.URL+"/healthz", http.StatusServiceUnavailable, &health)
	if health.Status != "loading" {
		t.Fatalf("health = %#v", health)
	}
	getJSON(t, server.URL+"/api/tasks/1/related", http.StatusServiceUnavailable, nil)

	resp, err := http.Post(server.URL+"/api/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reload error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST reload status = %d", resp.StatusCode)
	}

	getJSON(t, server.URL+"/healthz", http.StatusOK, &health)
	if health.Status != "ok" || health.Version != 1 || health.Source != "sample" || health.LoadedAt == nil {
		t.Fatalf("health = %#v", health)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)

	resp, err := http.Get(server.URL + "/api/reload")
	if err != nil {
		t.Fatalf("GET reload error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/reload status = %d, want 405", resp.StatusCode)
	}
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>blueprint</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	server, _ := newTestServer(t, HandlerOptions{StaticDir: dir}, true)

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "blueprint") {
		t.Fatalf("GET / = %d %q", resp.StatusCode, body)
	}

	getJSON(t, server.URL+"/api/tasks/1/related", http.StatusOK, nil)
}

func TestEventsWebsocketStreamsReloads(t *testing.T) {
	hub := NewHub()
	server, _ := newTestServer(t, HandlerOptions{Hub: hub}, true)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(server.URL+"/api/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reload error = %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	event, err := contracts.ParseEventJSONLLine(payload)
	if err != nil {
		t.Fatalf("ParseEventJSONLLine() error = %v", err)
	}
	if event.Type != contracts.EventTypeCatalogLoaded || event.Version != 2 || event.Source != "sample" {
		t.Fatalf("event = %#v", event)
	}

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("ReadMessage() after hub close error = %v, want going away", err)
	}
}

func TestEventsDisabledWithoutHub(t *testing.T) {
	server, _ := newTestServer(t, HandlerOptions{}, true)
	getJSON(t, server.URL+"/api/events", http.StatusNotFound, nil)
}
