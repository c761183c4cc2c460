package workspace

import (
	"context"
	"encoding/json"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(newTestWorkspace(t))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

func paths(items []AssetItem) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.Path
	}
	return out
}

func TestQuery(t *testing.T) {
	one := 1
	tests := []struct {
		name      string
		args      Args
		wantTotal int
		wantPaths []string
	}{
		{name: "everything", args: Args{}, wantTotal: 5},
		{name: "path prefix", args: Args{Path: "internal"}, wantTotal: 2, wantPaths: []string{"internal/queue/queue.go", "internal/queue/queue_test.go"}},
		{name: "trailing slash", args: Args{Path: "internal/queue/"}, wantTotal: 2},
		{name: "type filter", args: Args{Filter: "t:gotest"}, wantTotal: 1, wantPaths: []string{"internal/queue/queue_test.go"}},
		{name: "type and name", args: Args{Filter: "t:GoSource MAIN"}, wantTotal: 1, wantPaths: []string{"main.go"}},
		{name: "max count", args: Args{Filter: "t:GoSource", MaxCount: &one}, wantTotal: 2, wantPaths: []string{"internal/queue/queue.go"}},
		{name: "no match", args: Args{Path: "cmd"}, wantTotal: 0, wantPaths: []string{}},
	}

	idx := newTestIndex(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Query(context.Background(), idx, tt.args)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if want, got := tt.wantTotal, res.TotalCount; want != got {
				t.Fatalf("unexpected total: want %d got %d", want, got)
			}
			if tt.wantPaths == nil {
				return
			}
			got := paths(res.Assets)
			if len(got) != len(tt.wantPaths) {
				t.Fatalf("unexpected assets: want %v got %v", tt.wantPaths, got)
			}
			for i := range got {
				if got[i] != tt.wantPaths[i] {
					t.Fatalf("unexpected assets: want %v got %v", tt.wantPaths, got)
				}
			}
		})
	}
}

func TestQueryRejectsEscapingPaths(t *testing.T) {
	idx := newTestIndex(t)
	for _, p := range []string{"..", "../etc", "internal/../../x", "/etc"} {
		if _, err := Query(context.Background(), idx, Args{Path: p}); err == nil {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
}

func TestToolResultShape(t *testing.T) {
	tool := NewTool(newTestIndex(t))
	v, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"internal","maxCount":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		TotalCount int              `json:"totalCount"`
		Assets     []map[string]any `json:"assets"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want, got := 2, got.TotalCount; want != got {
		t.Fatalf("unexpected total: want %d got %d", want, got)
	}
	if want, got := "queue", got.Assets[0]["name"]; want != got {
		t.Fatalf("unexpected name: want %v got %v", want, got)
	}
	for _, key := range []string{"path", "name", "type", "size"} {
		if _, ok := got.Assets[0][key]; !ok {
			t.Fatalf("asset is missing %q: %s", key, b)
		}
	}
}
