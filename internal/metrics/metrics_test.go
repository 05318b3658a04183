package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ReportSent("hourly")
	m.ReportSent("hourly")
	m.ReportSent("refresh")
	m.ReportFailed("startup")
	m.AlertSent()
	m.UpdatesProcessed(3)
	m.LoopError()

	if got := testutil.ToFloat64(m.reportsSent.WithLabelValues("hourly")); got != 2 {
		t.Fatalf("reports_sent{hourly} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reportsSent.WithLabelValues("refresh")); got != 1 {
		t.Fatalf("reports_sent{refresh} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reportsFailed.WithLabelValues("startup")); got != 1 {
		t.Fatalf("reports_failed{startup} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.alertsSent); got != 1 {
		t.Fatalf("critical_alerts_sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.updatesProcessed); got != 3 {
		t.Fatalf("updates_processed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.loopErrors); got != 1 {
		t.Fatalf("loop_errors = %v, want 1", got)
	}
}

func TestObserve(t *testing.T) {
	m := New()

	m.Observe(context.Background(), battery.Record{Capacity: "42", Temperature: battery.ParseTemperature("315")})
	if got := testutil.ToFloat64(m.capacity); got != 42 {
		t.Fatalf("capacity = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.temperature); got != 31.5 {
		t.Fatalf("temperature = %v, want 31.5", got)
	}

	m.Observe(context.Background(), battery.Record{Capacity: battery.UnknownCapacity, Temperature: battery.ParseTemperature("hot")})
	if got := testutil.ToFloat64(m.capacity); got != -1 {
		t.Fatalf("capacity = %v, want -1 for unknown", got)
	}
	if got := testutil.ToFloat64(m.temperature); got != 31.5 {
		t.Fatalf("temperature = %v, want unchanged 31.5", got)
	}
}

func TestRouter_Metrics(t *testing.T) {
	m := New()
	m.ReportSent("startup")

	rec := httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `battery_notifier_reports_sent_total{kind="startup"} 1`) {
		t.Fatalf("GET /metrics body = %q, want startup counter", body)
	}
}

func TestRouter_Healthz(t *testing.T) {
	m := New()
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	m.ReportSent("hourly")

	rec := httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", rec.Code)
	}
	var got health
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode /healthz: %v", err)
	}
	if got.Status != "ok" || got.LastReport != 1700000000 {
		t.Fatalf("GET /healthz = %+v, want ok at 1700000000", got)
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	New().Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /nope status = %d, want 404", rec.Code)
	}
}
