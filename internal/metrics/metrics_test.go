package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// counterValue は指定名のカウンタ値を返すテストヘルパー。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordCheck_IncrementsCounter はチェックカウンタが増加することを検証する。
func TestRecordCheck_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheck("example.com")
	c.RecordCheck("example.org")

	if val := counterValue(t, reg, "namedrop_checks_total"); val != 2 {
		t.Errorf("checks_total = %v, want 2", val)
	}
}

// TestRecordCheckError_IncrementsCounter はチェック失敗カウンタが増加することを検証する。
func TestRecordCheckError_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckError("example.com")

	if val := counterValue(t, reg, "namedrop_check_errors_total"); val != 1 {
		t.Errorf("check_errors_total = %v, want 1", val)
	}
}

// TestRecordStatusTransition_IncrementsCounterWithLabels は状態遷移カウンタがラベル付きで増加することを検証する。
func TestRecordStatusTransition_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStatusTransition("registered", "expiring_soon")
	c.RecordStatusTransition("registered", "expiring_soon")
	c.RecordStatusTransition("pending_delete", "available")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "namedrop_status_transitions_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				var from, to string
				for _, label := range m.GetLabel() {
					switch label.GetName() {
					case "from_status":
						from = label.GetValue()
					case "to_status":
						to = label.GetValue()
					}
				}
				val := m.GetCounter().GetValue()
				switch from + "->" + to {
				case "registered->expiring_soon":
					if val != 2 {
						t.Errorf("transitions{registered,expiring_soon} = %v, want 2", val)
					}
				case "pending_delete->available":
					if val != 1 {
						t.Errorf("transitions{pending_delete,available} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label combination: %s -> %s", from, to)
				}
			}
		}
	}
	if !found {
		t.Error("namedrop_status_transitions_total metric not found")
	}
}

// TestRecordCheckLatency_ObservesHistogram はチェックレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordCheckLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheckLatency(100 * time.Millisecond)
	c.RecordCheckLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "namedrop_check_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("namedrop_check_latency_seconds metric not found")
	}
}

// TestRecordNotification_IncrementsCounterWithResult は通知カウンタが結果ラベル付きで増加することを検証する。
func TestRecordNotification_IncrementsCounterWithResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotification("telegram", true)
	c.RecordNotification("telegram", true)
	c.RecordNotification("webhook", false)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "namedrop_notifications_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("namedrop_notifications_total metric not found")
	}
}

// TestRecordRegistration_IncrementsCounterWithOutcome は登録試行カウンタが結果ラベル付きで増加することを検証する。
func TestRecordRegistration_IncrementsCounterWithOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration("dynadot", true)
	c.RecordRegistration("dynadot", false)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "namedrop_registrations_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("namedrop_registrations_total metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordCheck("example.com")
	c.RecordCheckError("example.com")
	c.RecordStatusTransition("unknown", "available")
	c.RecordCheckLatency(500 * time.Millisecond)
	c.RecordSweepDuration(3 * time.Second)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"namedrop_checks_total",
		"namedrop_check_errors_total",
		"namedrop_status_transitions_total",
		"namedrop_check_latency_seconds",
		"namedrop_sweep_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordCheck("a.com")
	c2.RecordCheck("b.com")
	c2.RecordCheck("b.net")

	if val := counterValue(t, reg1, "namedrop_checks_total"); val != 1 {
		t.Errorf("reg1 checks_total = %v, want 1", val)
	}
	if val := counterValue(t, reg2, "namedrop_checks_total"); val != 2 {
		t.Errorf("reg2 checks_total = %v, want 2", val)
	}
}
