package gotest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestCommandRunner(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the go toolchain")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not on PATH")
	}

	dir := t.TempDir()
	files := map[string]string{
		"go.mod": "module example.com/calc\n\ngo 1.21\n",
		"calc.go": "package calc\n\nfunc Add(a, b int) int { return a + b }\n",
		"calc_test.go": `package calc

import "testing"

func TestAdd(t *testing.T) {
	if Add(1, 2) != 3 {
		t.Fatal("bad add")
	}
}

func TestBroken(t *testing.T) {
	t.Fatal("always fails")
}

func TestLong(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
}
`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	runner := &CommandRunner{Dir: dir, GoBin: goBin}
	var results []TestResult
	done := make(chan error, 1)
	err = runner.Start(context.Background(), Request{Short: true}, Callbacks{
		TestFinished: func(r TestResult) { results = append(results, r) },
		RunFinished:  func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunFinished: %v", err)
		}
	case <-time.After(2 * time.Minute):
		t.Fatalf("go test did not finish")
	}

	s := Summarize(results)
	if want, got := "1 passed, 1 failed, 1 skipped (3 total)", s.Summary; want != got {
		t.Fatalf("unexpected summary: want %q got %q", want, got)
	}
	if want, got := "example.com/calc.TestBroken", s.Failures[0].TestName; want != got {
		t.Fatalf("unexpected failure: want %q got %q", want, got)
	}
}

func TestCommandRunnerReportsMissingBinary(t *testing.T) {
	runner := &CommandRunner{Dir: t.TempDir(), GoBin: filepath.Join(t.TempDir(), "no-such-go")}
	if err := runner.Start(context.Background(), Request{}, Callbacks{}); err == nil {
		t.Fatalf("expected Start to fail")
	}
}
