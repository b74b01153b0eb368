package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/droidscope/internal/agent"
	"github.com/lucasnoah/droidscope/internal/analysis"
	"github.com/lucasnoah/droidscope/internal/bus"
	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/executor"
	"github.com/lucasnoah/droidscope/internal/exploration"
	"github.com/lucasnoah/droidscope/internal/run"
)

type stubRunner struct {
	gate chan struct{} // when set, the first turn blocks until closed
	done bool
}

func (f *stubRunner) RunTurn(ctx context.Context, goal string, maxSteps int) (*agent.Report, error) {
	if f.gate != nil && !f.done {
		f.done = true
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &agent.Report{Success: true, Text: "findings for: " + goal[:20]}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, in analysis.Input) (*analysis.Result, string, error) {
	res := &analysis.Result{
		Summary:           "clean flows, noisy permissions",
		UXConfidenceScore: &analysis.UXConfidenceScore{Score: 8.1},
		ComplexityScore:   4.0,
	}
	return res, `{"summary":"clean flows, noisy permissions"}`, nil
}

type testEnv struct {
	srv      *httptest.Server
	registry *run.Registry
	database *db.DB
	runner   *stubRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := exploration.NewStore(t.TempDir())
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := bus.New(bus.Options{KeepaliveInterval: time.Hour})
	t.Cleanup(b.Close)
	registry := run.NewRegistry()
	runner := &stubRunner{}
	exec := executor.New(executor.Config{MaxSteps: 10, StressSteps: 5}, store, database, b, registry, runner, stubAnalyzer{})
	s := NewServer(store, database, b, registry, exec, 0)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, registry: registry, database: database, runner: runner}
}

func startBody() *bytes.Buffer {
	return bytes.NewBufferString(`{"app_name":"Wikipedia","category":"Reference","persona":"qa_engineer","max_depth":6}`)
}

func postStart(t *testing.T, env *testEnv) string {
	t.Helper()
	resp, err := http.Post(env.srv.URL+"/api/explorations", "application/json", startBody())
	if err != nil {
		t.Fatalf("POST explorations: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", resp.StatusCode)
	}
	var body struct {
		ExplorationID string `json:"exploration_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if body.ExplorationID == "" {
		t.Fatal("empty exploration_id")
	}
	return body.ExplorationID
}

func waitIdle(t *testing.T, env *testEnv) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		if _, active := env.registry.ActiveID(); !active {
			return
		}
		select {
		case <-deadline:
			t.Fatal("run never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// readProgress reads SSE progress events until the terminal one.
func readProgress(t *testing.T, body *bufio.Reader) []exploration.ProgressEvent {
	t.Helper()
	var events []exploration.ProgressEvent
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v (got %d events)", err, len(events))
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev exploration.ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if ev.Keepalive {
			continue
		}
		events = append(events, ev)
		if ev.Terminal() {
			return events
		}
	}
}

func TestStartStreamAndResults(t *testing.T) {
	env := newTestEnv(t)

	// Connect the progress stream before starting so every event is seen.
	resp, err := http.Get(env.srv.URL + "/api/progress")
	if err != nil {
		t.Fatalf("GET progress: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	id := postStart(t, env)
	events := readProgress(t, bufio.NewReader(resp.Body))

	want := []int{5, 25, 30, 50, 55, 75, 80, 95, 100}
	var got []int
	for _, ev := range events {
		got = append(got, ev.Percentage)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
	waitIdle(t, env)

	// Detail endpoint.
	dresp, err := http.Get(env.srv.URL + "/api/explorations/" + id)
	if err != nil {
		t.Fatalf("GET detail: %v", err)
	}
	defer dresp.Body.Close()
	if dresp.StatusCode != http.StatusOK {
		t.Fatalf("detail status = %d", dresp.StatusCode)
	}
	var detail struct {
		Exploration exploration.Exploration `json:"exploration"`
		Stages      []struct {
			Stage  int    `json:"stage"`
			Status string `json:"status"`
		} `json:"stages"`
	}
	if err := json.NewDecoder(dresp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Exploration.Status != exploration.StatusCompleted {
		t.Errorf("status = %q, want completed", detail.Exploration.Status)
	}
	if len(detail.Stages) != 4 {
		t.Fatalf("stages = %d, want 4", len(detail.Stages))
	}

	// Result endpoint, by id and latest.
	for _, path := range []string{"/api/results/" + id, "/api/results"} {
		rresp, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var result struct {
			ExplorationID string          `json:"exploration_id"`
			Summary       string          `json:"summary"`
			UXScore       float64         `json:"ux_score"`
			Analysis      json.RawMessage `json:"analysis"`
		}
		err = json.NewDecoder(rresp.Body).Decode(&result)
		rresp.Body.Close()
		if err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if result.ExplorationID != id || result.UXScore != 8.1 || len(result.Analysis) == 0 {
			t.Errorf("%s = %+v", path, result)
		}
	}

	// Library lists it.
	lresp, err := http.Get(env.srv.URL + "/api/library?category=Reference")
	if err != nil {
		t.Fatalf("GET library: %v", err)
	}
	defer lresp.Body.Close()
	var lib struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(lresp.Body).Decode(&lib); err != nil {
		t.Fatalf("decode library: %v", err)
	}
	if lib.Count != 1 {
		t.Errorf("library count = %d, want 1", lib.Count)
	}
}

func TestStartValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing app name", `{"category":"Games"}`},
		{"bad persona", `{"app_name":"Chess","category":"Games","persona":"wizard"}`},
		{"depth out of range", `{"app_name":"Chess","category":"Games","max_depth":99}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(env.srv.URL+"/api/explorations", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestConcurrentStartRejected(t *testing.T) {
	env := newTestEnv(t)
	env.runner.gate = make(chan struct{})

	postStart(t, env)

	resp, err := http.Post(env.srv.URL+"/api/explorations", "application/json", startBody())
	if err != nil {
		t.Fatalf("second POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	close(env.runner.gate)
	waitIdle(t, env)
}

func TestStopEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Nothing running yet.
	resp, err := http.Post(env.srv.URL+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stop with no run = %d, want 409", resp.StatusCode)
	}

	env.runner.gate = make(chan struct{})
	id := postStart(t, env)

	resp, err = http.Post(env.srv.URL+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop status = %d, want 200", resp.StatusCode)
	}

	close(env.runner.gate)
	waitIdle(t, env)

	got, err := env.database.GetExploration(id)
	if err != nil {
		t.Fatalf("get exploration: %v", err)
	}
	if got.Status != exploration.StatusStopped && got.Status != exploration.StatusCompleted {
		t.Errorf("status after stop = %q", got.Status)
	}
}

func TestDeleteExploration(t *testing.T) {
	env := newTestEnv(t)
	env.runner.gate = make(chan struct{})
	id := postStart(t, env)

	// Deleting the active run is refused.
	req, _ := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/explorations/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete active status = %d, want 409", resp.StatusCode)
	}

	close(env.runner.gate)
	waitIdle(t, env)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", resp.StatusCode)
	}

	get, err := http.Get(env.srv.URL + "/api/explorations/" + id)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", get.StatusCode)
	}

	// Deleting an id that never existed is a 404, not a server error.
	req, _ = http.NewRequest(http.MethodDelete, env.srv.URL+"/api/explorations/never-existed", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestResultNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/results", "/api/results/nope"} {
		resp, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var idle struct {
		Active bool `json:"active"`
	}
	err = json.NewDecoder(resp.Body).Decode(&idle)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if idle.Active {
		t.Error("active = true with no run")
	}

	env.runner.gate = make(chan struct{})
	id := postStart(t, env)

	resp, err = http.Get(env.srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var busy struct {
		Active        bool   `json:"active"`
		ExplorationID string `json:"exploration_id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&busy)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !busy.Active || busy.ExplorationID != id {
		t.Errorf("status = %+v, want active run %s", busy, id)
	}

	close(env.runner.gate)
	waitIdle(t, env)
}
