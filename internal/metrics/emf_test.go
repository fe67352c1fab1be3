package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "resize-prod"
	t.Cleanup(func() { functionName = "" })

	r := New(Namespace)
	if r.namespace != Namespace {
		t.Errorf("namespace = %s", r.namespace)
	}
	if r.dimensions["FunctionName"] != "resize-prod" {
		t.Errorf("FunctionName dimension = %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	initOnce.Do(func() {})
	functionName = ""

	var buf bytes.Buffer
	rec := New(Namespace).WithOutput(&buf)
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }
	rec.Dimension("Category", "ARTICLE").
		Duration("PipelineMs", 1234*time.Millisecond).
		Count("DerivativesWritten", 3).
		Metric("SourceBytes", 2048, UnitBytes).
		Property("runId", "abc-123").
		Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Errorf("EMF must be exactly one line: %q", buf.String())
	}

	aws := doc["_aws"].(map[string]any)
	if aws["Timestamp"] != float64(1700000000000) {
		t.Errorf("Timestamp = %v", aws["Timestamp"])
	}
	cw := aws["CloudWatchMetrics"].([]any)[0].(map[string]any)
	if cw["Namespace"] != Namespace {
		t.Errorf("Namespace = %v", cw["Namespace"])
	}
	dims := cw["Dimensions"].([]any)[0].([]any)
	if len(dims) != 1 || dims[0] != "Category" {
		t.Errorf("Dimensions = %v", dims)
	}
	var names []string
	for _, m := range cw["Metrics"].([]any) {
		names = append(names, m.(map[string]any)["Name"].(string))
	}
	if len(names) != 3 || names[0] != "DerivativesWritten" || names[1] != "PipelineMs" || names[2] != "SourceBytes" {
		t.Errorf("metric names = %v, want sorted", names)
	}

	tests := []struct {
		field string
		want  any
	}{
		{"Category", "ARTICLE"},
		{"PipelineMs", float64(1234)},
		{"DerivativesWritten", float64(3)},
		{"SourceBytes", float64(2048)},
		{"runId", "abc-123"},
	}
	for _, tt := range tests {
		if doc[tt.field] != tt.want {
			t.Errorf("%s = %v, want %v", tt.field, doc[tt.field], tt.want)
		}
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	New("Test").WithOutput(&buf).Property("runId", "x").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output without metrics, got: %s", buf.String())
	}
}

func TestRecorder_MetricOverwrites(t *testing.T) {
	rec := New("Test").Count("Failures", 1).Count("Failures", 0)
	if rec.values["Failures"] != 0 || len(rec.metrics) != 1 {
		t.Errorf("values = %v", rec.values)
	}
}
