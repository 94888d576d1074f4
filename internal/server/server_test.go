package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("demo"))
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// initProject creates a project over the API and returns it with its seeded
// use case.
func initProject(t *testing.T, srv *testServer) (domain.Project, domain.UseCase) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "demo"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+project.ID+"/usecases", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list use cases status %d: %s", res.StatusCode, string(data))
	}
	var ucs []domain.UseCase
	if err := json.Unmarshal(data, &ucs); err != nil {
		t.Fatalf("unmarshal use cases: %v", err)
	}
	if len(ucs) == 0 {
		t.Fatal("no seeded use case")
	}
	return project, ucs[0]
}

func TestCreateAndFetchRequirement(t *testing.T) {
	srv := newTestServer(t)
	_, uc := initProject(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/system", map[string]any{
		"use_case_id": uc.ID,
		"operation":   "Persist the order",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Requirement
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal requirement: %v", err)
	}
	if created.Variant != domain.VariantSystem || created.Operation != "Persist the order" {
		t.Fatalf("created %+v", created)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requirements/"+created.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/usecases/"+uc.ID+"/requirements", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var listed []domain.Requirement
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("listing %v", listed)
	}
}

func TestValidationErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	_, uc := initProject(t, srv)
	client := srv.Client()

	// The seeded human actor cannot anchor an event system requirement.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list projects: %d", res.StatusCode)
	}
	var projects []domain.Project
	_ = json.Unmarshal(data, &projects)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projects[0].ID+"/actors", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list actors: %d", res.StatusCode)
	}
	var actors []domain.Actor
	_ = json.Unmarshal(data, &actors)
	var human string
	for _, a := range actors {
		if a.Subtype == domain.SubtypeHuman {
			human = a.ID
		}
	}
	if human == "" {
		t.Fatal("no seeded human actor")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/event-system", map[string]any{
		"use_case_id": uc.ID,
		"operation":   "Expire the session",
		"actor_ids":   []string{human},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, string(data))
	}
	if env.Error.Code != "bad_request" {
		t.Fatalf("code %q", env.Error.Code)
	}
	if env.Error.Message != "Actor with ID "+human+" is of type HUMAN, but must be one of: EVENT" {
		t.Fatalf("message %q", env.Error.Message)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv := newTestServer(t)
	initProject(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requirements/ghost", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Error.Code != "not_found" {
		t.Fatalf("code %q", env.Error.Code)
	}
	if env.Error.Details["entity"] != "Requirement" || env.Error.Details["id"] != "ghost" {
		t.Fatalf("details %v", env.Error.Details)
	}
}

func TestDeleteRequirementIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	_, uc := initProject(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/system", map[string]any{
		"use_case_id": uc.ID,
		"operation":   "Persist the order",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Requirement
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/requirements/"+created.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	var del DeleteResponse
	if err := json.Unmarshal(data, &del); err != nil || !del.Removed {
		t.Fatalf("first delete removed=%v err=%v", del.Removed, err)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/requirements/"+created.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second delete status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &del)
	if del.Removed {
		t.Fatal("second delete reported removed=true")
	}
}

func TestNestAndCascadeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, uc := initProject(t, srv)
	client := srv.Client()

	create := func(operation string) domain.Requirement {
		t.Helper()
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/system", map[string]any{
			"use_case_id": uc.ID,
			"operation":   operation,
		})
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create status %d: %s", res.StatusCode, string(data))
		}
		var req domain.Requirement
		_ = json.Unmarshal(data, &req)
		return req
	}

	parent := create("Parent step")
	child := create("Child step")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/"+parent.ID+"/nested", map[string]any{
		"child_id": child.ID,
	})
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("nest status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/requirements/"+parent.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requirements/"+child.ID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("nested child survived cascade: %d", res.StatusCode)
	}
}

func TestValidateDependencyEndpoint(t *testing.T) {
	srv := newTestServer(t)
	_, uc := initProject(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/system", map[string]any{
		"use_case_id": uc.ID,
		"operation":   "Persist the order",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var sys domain.Requirement
	_ = json.Unmarshal(data, &sys)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/validate-dependency", map[string]any{
		"variant":   "conditional",
		"target_id": sys.ID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var verdict ValidateDependencyResponse
	if err := json.Unmarshal(data, &verdict); err != nil || !verdict.Allowed {
		t.Fatalf("verdict %+v err=%v: %s", verdict, err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requirements/validate-dependency", map[string]any{
		"variant":   "bogus",
		"target_id": sys.ID,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown variant, got %d: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "unknown_variant" {
		t.Fatalf("code %q", env.Error.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	project, _ := initProject(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?project_id="+project.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no audit events after project init")
	}
}
