package logbuffer

import (
	"testing"
	"time"
)

func TestBufferWrapsAndKeepsOrder(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}

	all := b.GetAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Fatalf("entries = %+v", all)
	}
}

func TestWriterParsesZerologJSON(t *testing.T) {
	b := New(10)
	w := NewWriter(b)

	line := `{"level":"info","component":"driver","run_id":"r1","time":1767225600000,"message":"pulse fired"}`
	if _, err := w.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("12:00:00 INF console line")); err != nil {
		t.Fatalf("write console: %v", err)
	}

	all := b.GetAll()
	if len(all) != 1 {
		t.Fatalf("got %d entries, want only the JSON line", len(all))
	}
	e := all[0]
	if e.Level != "info" || e.Component != "driver" || e.Message != "pulse fired" || e.Fields["run_id"] != "r1" {
		t.Fatalf("entry = %+v", e)
	}
	if !e.Timestamp.Equal(time.UnixMilli(1767225600000)) {
		t.Fatalf("timestamp = %v", e.Timestamp)
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "driver", Message: "driver started", Fields: map[string]any{"run_id": "r1"}})
	b.Add(LogEntry{Level: "debug", Component: "driver", Message: "Pulse fired", Fields: map[string]any{"run_id": "r1"}})
	b.Add(LogEntry{Level: "info", Component: "queue", Message: "queue drained", Fields: map[string]any{"run_id": "r2"}})

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"all", QueryParams{}, 3},
		{"level", QueryParams{Level: "info"}, 2},
		{"component", QueryParams{Component: "queue"}, 1},
		{"run id", QueryParams{RunID: "r1"}, 2},
		{"search ignores case", QueryParams{Search: "pulse"}, 1},
		{"limit keeps newest", QueryParams{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Query(tt.params); len(got) != tt.want {
				t.Fatalf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}

	if got := b.Query(QueryParams{Limit: 1}); got[0].Message != "queue drained" {
		t.Fatalf("limit kept %q, want newest", got[0].Message)
	}
	if st := b.Stats(); st.Count != 3 || st.LevelCount["info"] != 2 {
		t.Fatalf("stats = %+v", st)
	}
}
