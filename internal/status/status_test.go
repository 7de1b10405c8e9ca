package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erilali/rayvtt/internal/observability"
	"github.com/erilali/rayvtt/internal/session"
)

type fixedSource session.Snapshot

func (f fixedSource) Snapshot() session.Snapshot { return session.Snapshot(f) }

func TestHealthReportsSnapshot(t *testing.T) {
	src := fixedSource{Endpoint: "ws://table:8080", State: "Connected", ClientID: "abc", Room: "tavern", Ready: true}
	srv := httptest.NewServer(NewHandler(src, true))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("status %d content-type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var body struct {
		Status  string           `json:"status"`
		Journal string           `json:"journal"`
		Session session.Snapshot `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Journal != "enabled" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Session != session.Snapshot(src) {
		t.Fatalf("snapshot %+v", body.Session)
	}
}

func TestMetricsExposeSessionCounters(t *testing.T) {
	observability.RecordDropped("broadcast", "disconnected")
	srv := httptest.NewServer(NewHandler(fixedSource{}, false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `rayvtt_session_messages_dropped_total{reason="disconnected",type="broadcast"}`) {
		t.Fatalf("dropped counter missing from /metrics")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := httptest.NewServer(NewHandler(fixedSource{}, false))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
