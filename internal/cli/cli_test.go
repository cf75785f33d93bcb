package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"runner":{"queued":1,"active":4,"available":6,"max":10},
			"summary":{"events":3,"verdicts":{"ALL_SUCCESS":2,"MIXED":1},"results":{"SUCCESS":8,"FAILURE_RETRYABLE":1}}}}`))
	})
	mux.HandleFunc("GET /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit = %q, want 5", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"data":[{"event_id":"event1","verdict":"MIXED","submitted":9,"success":8,"retryable":1}],"total":1}`))
	})
	mux.HandleFunc("GET /api/v1/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "event1" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"event not found"}}`))
			return
		}
		w.Write([]byte(`{"data":{"event_id":"event1","verdict":"MIXED","submitted":9,"success":8,"retryable":1,
			"failures":[{"result":"FAILURE_RETRYABLE","asset_id":"asset2","rule_id":"rule1","cause":"timeout"}],"source":"memory"}}`))
	})
	mux.HandleFunc("POST /api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID != "event7" || len(req.AssetIDs) != 2 {
			t.Errorf("unexpected request: %+v (%v)", req, err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"id":"event7"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	c := NewClient(fakeAPI(t).URL)

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Runner == nil || stats.Runner.Active != 4 || stats.Summary.Verdicts["MIXED"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	events, err := c.ListEvents(5)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventID != "event1" {
		t.Errorf("unexpected events: %+v", events)
	}

	ev, err := c.GetEvent("event1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if len(ev.Failures) != 1 || ev.Failures[0].Cause != "timeout" {
		t.Errorf("unexpected event: %+v", ev)
	}

	_, err = c.GetEvent("missing")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err != nil && err.Error() != "NOT_FOUND: event not found" {
		t.Errorf("error = %q", err.Error())
	}

	if err := c.EnqueueEvent(CreateEventRequest{ID: "event7", AssetIDs: []string{"a", "b"}}); err != nil {
		t.Errorf("EnqueueEvent: %v", err)
	}
}

func runCmd(t *testing.T, apiURL string, jsonMode bool, cmd func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	c := cmd(
		func() *Client { return NewClient(apiURL) },
		func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) },
	)
	c.SetArgs(args)
	c.SetOut(&stderr)
	c.SetErr(&stderr)
	c.SilenceUsage = true
	err := c.Execute()
	return stdout.String(), stderr.String(), err
}

func TestStatsCmd(t *testing.T) {
	srv := fakeAPI(t)

	out, _, err := runCmd(t, srv.URL, false, NewStatsCmd)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"RUNNER", "VERDICTS (3 events)", "ALL_SUCCESS", "FAILURE_RETRYABLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCmd(t, srv.URL, true, NewStatsCmd)
	if err != nil {
		t.Fatalf("stats --json: %v", err)
	}
	var stats StatsResponse
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if stats.Summary.Events != 3 {
		t.Errorf("events = %d, want 3", stats.Summary.Events)
	}
}

func TestEventCmd(t *testing.T) {
	srv := fakeAPI(t)

	out, _, err := runCmd(t, srv.URL, false, NewEventCmd, "list", "--limit", "5")
	if err != nil {
		t.Fatalf("event list: %v", err)
	}
	if !strings.Contains(out, "event1") {
		t.Errorf("list output missing event:\n%s", out)
	}

	out, _, err = runCmd(t, srv.URL, false, NewEventCmd, "show", "event1")
	if err != nil {
		t.Fatalf("event show: %v", err)
	}
	if !strings.Contains(out, "FAILURES") || !strings.Contains(out, "rule1") {
		t.Errorf("show output missing failures:\n%s", out)
	}

	_, _, err = runCmd(t, srv.URL, false, NewEventCmd, "show", "missing")
	if err == nil || !strings.Contains(err.Error(), "not been reported") {
		t.Errorf("expected not reported error, got %v", err)
	}

	_, msg, err := runCmd(t, srv.URL, false, NewEventCmd, "enqueue", "event7", "--assets", "a, b")
	if err != nil {
		t.Fatalf("event enqueue: %v", err)
	}
	if !strings.Contains(msg, "enqueued") {
		t.Errorf("unexpected message: %q", msg)
	}

	if _, _, err := runCmd(t, srv.URL, false, NewEventCmd, "enqueue", "event7"); err == nil {
		t.Error("expected error without --assets")
	}
}

func TestOutput_Verdict(t *testing.T) {
	var buf bytes.Buffer
	if got := NewOutputTo(true, &buf, &buf).Verdict("MIXED"); got != "MIXED" {
		t.Errorf("JSON mode must not colorize, got %q", got)
	}
	if got := NewOutputTo(false, &buf, &buf).Verdict("UNKNOWN"); got != "UNKNOWN" {
		t.Errorf("unknown verdict changed: %q", got)
	}
}

func TestSimCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c := NewSimCmd(func() *Output { return NewOutputTo(true, &stdout, &stderr) })
	c.SetArgs([]string{"--duration", "50ms", "--events", "0", "--max-tasks", "10", "--completion", "0"})
	c.SetOut(&stderr)
	c.SetErr(&stderr)

	t.Setenv("POLL_INITIAL_DELAY", "1h")

	if err := c.Execute(); err != nil {
		t.Fatalf("sim: %v", err)
	}

	var res struct {
		Ticks int64 `json:"ticks"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout.String())
	}
	if res.Ticks != 0 {
		t.Errorf("no tick expected before the initial delay, got %d", res.Ticks)
	}
}
