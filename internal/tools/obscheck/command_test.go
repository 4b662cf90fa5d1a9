package obscheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newStubGrafana(t *testing.T, handler http.HandlerFunc) *grafanaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gc := newGrafanaClient(&options{grafanaURL: srv.URL, grafanaUser: "admin", grafanaPassword: "admin"})
	return gc
}

func TestSeriesTotalParsesInstantQuery(t *testing.T) {
	gc := newStubGrafana(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "session_transitions_total") {
			t.Fatalf("unexpected query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"data":{"result":[{"value":[1724800000,"37"]}]}}`)
	})

	total, err := gc.seriesTotal(context.Background(), "session_transitions_total")
	if err != nil {
		t.Fatalf("seriesTotal: %v", err)
	}
	if total != 37 {
		t.Fatalf("total=%g want 37", total)
	}
}

func TestSeriesTotalEmptyResultIsZero(t *testing.T) {
	gc := newStubGrafana(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"result":[]}}`)
	})

	total, err := gc.seriesTotal(context.Background(), "session_refresh_attempts_total")
	if err != nil {
		t.Fatalf("seriesTotal: %v", err)
	}
	if total != 0 {
		t.Fatalf("total=%g want 0", total)
	}
}

func TestLatestExemplarTraceIDPicksNewest(t *testing.T) {
	older := strings.Repeat("a", 32)
	newer := strings.Repeat("b", 32)
	gc := newStubGrafana(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"exemplars":[
			{"labels":{"trace_id":"%s"},"timestamp":%d},
			{"labels":{"trace_id":"%s"},"timestamp":%d}
		]}]}`, older, time.Now().Unix()-10, newer, time.Now().Unix())
	})

	got, err := gc.latestExemplarTraceID(context.Background(), 20*time.Minute, time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("latestExemplarTraceID: %v", err)
	}
	if got != newer {
		t.Fatalf("trace_id=%q want %q", got, newer)
	}
}
