package consolelog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func seededStore(t *testing.T) Store {
	t.Helper()
	s := NewMemoryStore(1000)
	types := []LogType{TypeLog, TypeWarning, TypeError}
	for i := 0; i < 150; i++ {
		e := LogEntry{Type: types[i%3], Message: fmt.Sprintf("entry %03d", i)}
		if err := s.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return s
}

func TestQueryDefaultsToMostRecentHundred(t *testing.T) {
	res, err := Query(context.Background(), seededStore(t), Args{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want, got := 150, res.TotalCount; want != got {
		t.Fatalf("unexpected total: want %d got %d", want, got)
	}
	if want, got := 100, res.ReturnedCount; want != got {
		t.Fatalf("unexpected returned count: want %d got %d", want, got)
	}
	if want, got := "entry 050", res.Logs[0].Message; want != got {
		t.Fatalf("unexpected first entry: want %q got %q", want, got)
	}
	if want, got := "entry 149", res.Logs[99].Message; want != got {
		t.Fatalf("unexpected last entry: want %q got %q", want, got)
	}
}

func TestQueryFilters(t *testing.T) {
	five := 5
	res, err := Query(context.Background(), seededStore(t), Args{
		LogTypes: []LogType{TypeError},
		MaxCount: &five,
		Filter:   "entry 1",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want, got := 150, res.TotalCount; want != got {
		t.Fatalf("unexpected total: want %d got %d", want, got)
	}
	if want, got := 5, res.ReturnedCount; want != got {
		t.Fatalf("unexpected returned count: want %d got %d", want, got)
	}
	for _, e := range res.Logs {
		if e.Type != TypeError || !strings.Contains(e.Message, "entry 1") {
			t.Fatalf("entry does not match filters: %+v", e)
		}
	}
	if want, got := "entry 149", res.Logs[4].Message; want != got {
		t.Fatalf("unexpected last entry: want %q got %q", want, got)
	}
}

func TestQueryZeroMaxCount(t *testing.T) {
	zero := 0
	res, err := Query(context.Background(), seededStore(t), Args{MaxCount: &zero})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want, got := 0, res.ReturnedCount; want != got {
		t.Fatalf("unexpected returned count: want %d got %d", want, got)
	}
}

func TestQueryRejectsUnknownLogType(t *testing.T) {
	if _, err := Query(context.Background(), seededStore(t), Args{LogTypes: []LogType{"Verbose"}}); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestToolDecodesArguments(t *testing.T) {
	tool := NewTool(seededStore(t))
	if want, got := ToolName, tool.Name(); want != got {
		t.Fatalf("unexpected name: want %q got %q", want, got)
	}

	v, err := tool.Execute(context.Background(), json.RawMessage(`{"logTypes":["Warning"],"maxCount":2}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := v.(*Result)
	if want, got := 2, res.ReturnedCount; want != got {
		t.Fatalf("unexpected returned count: want %d got %d", want, got)
	}
	if res.Logs[0].Type != TypeWarning {
		t.Fatalf("unexpected type: %s", res.Logs[0].Type)
	}

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"level":"x"}`)); err == nil {
		t.Fatalf("expected unknown argument to be rejected")
	}

	var schema map[string]any
	if err := json.Unmarshal(tool.InputSchema(), &schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	props, _ := schema["properties"].(map[string]any)
	for _, key := range []string{"logTypes", "maxCount", "filter"} {
		if _, ok := props[key]; !ok {
			t.Fatalf("schema is missing %s: %s", key, tool.InputSchema())
		}
	}
}
