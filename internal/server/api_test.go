package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sevir/agentrelay/pkg/models"
)

func postRun(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/run", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestRunEndpoint_EchoScenario(t *testing.T) {
	srv := setupTestServer(t)

	w := postRun(t, srv, `{"cli":"echo-agent","args":[],"stdin":"hello\n"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type got %q", ct)
	}

	events := decodeFrames(t, w.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 frames got %d: %v", len(events), events)
	}
	if events[0].Type != models.EventSession {
		t.Fatalf("expected session frame first, got %+v", events[0])
	}
	if _, err := uuid.Parse(events[0].ID); err != nil {
		t.Fatalf("expected generated uuid id, got %q", events[0].ID)
	}
	if events[1].Type != models.EventStdout || events[1].Data != "hello\n" {
		t.Fatalf("expected stdout hello frame, got %+v", events[1])
	}
	if events[2].Type != models.EventExit || events[2].Code != 0 {
		t.Fatalf("expected exit 0 frame last, got %+v", events[2])
	}
}

func TestRunEndpoint_CallerSuppliedSessionID(t *testing.T) {
	srv := setupTestServer(t)

	w := postRun(t, srv, `{"cli":"echo-agent","stdin":"x\n","session_id":"  my-session  "}`)
	events := decodeFrames(t, w.Body.String())
	if events[0].ID != "my-session" {
		t.Fatalf("expected trimmed caller id, got %q", events[0].ID)
	}
}

func TestRunEndpoint_UnknownCLI(t *testing.T) {
	srv := setupTestServer(t)

	w := postRun(t, srv, `{"cli":"not-an-agent"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unsupported CLI") {
		t.Fatalf("expected unsupported CLI error, got %s", w.Body.String())
	}
}

func TestRunEndpoint_BadBody(t *testing.T) {
	srv := setupTestServer(t)

	w := postRun(t, srv, `{`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestRunEndpoint_SpawnFailureStreamsTerminalEvent(t *testing.T) {
	srv := setupTestServer(t)
	srv.config.Agents["broken"] = "/nonexistent/agent-binary"

	w := postRun(t, srv, `{"cli":"broken"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected streamed failure with 200, got %d", w.Code)
	}

	events := decodeFrames(t, w.Body.String())
	last := events[len(events)-1]
	if last.Type != models.EventExit || last.Code != 1 {
		t.Fatalf("expected generic failure exit frame, got %+v", last)
	}
	if srv.registry.Active() != 0 {
		t.Fatal("expected no session left behind")
	}
}

func TestRunEndpoint_Conflict(t *testing.T) {
	srv := setupTestServer(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- postRun(t, srv, `{"cli":"sh","args":["-c","exec sleep 30"],"session_id":"dup"}`)
	}()

	waitForActiveSession(t, srv, "dup")

	w := postRun(t, srv, `{"cli":"sh","args":["-c","true"],"session_id":"dup"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already running") {
		t.Fatalf("expected conflict error, got %s", w.Body.String())
	}

	// Stop the first run and check its stopped outcome.
	stopReq := httptest.NewRequest("POST", "/stop/dup", nil)
	stopW := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(stopW, stopReq)
	if stopW.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", stopW.Code)
	}

	var ack models.StopResponse
	if err := json.Unmarshal(stopW.Body.Bytes(), &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Status != "stopping" || ack.SessionID != "dup" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	first := <-done
	events := decodeFrames(t, first.Body.String())
	last := events[len(events)-1]
	if last.Type != models.EventExit || last.Code != 0 {
		t.Fatalf("expected stopped outcome exit 0, got %+v", last)
	}
}

func TestStopEndpoint_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("POST", "/stop/missing", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "no active session") {
		t.Fatalf("expected not-found error, got %s", w.Body.String())
	}
	if srv.registry.Active() != 0 {
		t.Fatal("expected no state mutation")
	}
}

func waitForActiveSession(t *testing.T, srv *Server, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := srv.registry.LookupActive(id); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never became active", id)
}
