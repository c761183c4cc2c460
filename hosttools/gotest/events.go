// Package gotest runs the workspace's Go tests for the run_tests and
// run_short_tests tools and reduces the test2json stream to a summary.
package gotest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Status of a finished test or package.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// TestResult is reported once per finished test. Package results have an
// empty Test.
type TestResult struct {
	Package string
	Test    string
	Status  Status
	Elapsed time.Duration
	// Output holds the lines the test printed, without the framing lines
	// go test adds around them.
	Output string
}

// event is one line of `go test -json` output.
type event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`

	// Set on build-output events and on package results whose build failed.
	ImportPath  string `json:"ImportPath"`
	FailedBuild string `json:"FailedBuild"`
}

// Parse reads a test2json stream from r and calls fn for every finished test
// and package. Lines that are not JSON are skipped.
func Parse(r io.Reader, fn func(TestResult)) error {
	outputs := make(map[string]*strings.Builder)
	key := func(e event) string { return e.Package + "\x00" + e.Test }
	appendOutput := func(k, line string) {
		b, ok := outputs[k]
		if !ok {
			b = &strings.Builder{}
			outputs[k] = b
		}
		b.WriteString(line)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var e event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}

		switch e.Action {
		case "output":
			if isFraming(e.Output) {
				continue
			}
			appendOutput(key(e), e.Output)
		case "build-output":
			appendOutput("build\x00"+e.ImportPath, e.Output)
		case "pass", "fail", "skip":
			res := TestResult{
				Package: e.Package,
				Test:    e.Test,
				Status:  Status(e.Action),
				Elapsed: time.Duration(e.Elapsed * float64(time.Second)),
			}
			k := key(e)
			if e.FailedBuild != "" {
				k = "build\x00" + e.FailedBuild
			}
			if b, ok := outputs[k]; ok {
				res.Output = strings.TrimRight(b.String(), "\n")
				if e.FailedBuild == "" {
					delete(outputs, k)
				}
			}
			fn(res)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read test output: %w", err)
	}
	return nil
}

// isFraming reports lines go test prints around every test.
func isFraming(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range []string{"=== ", "--- PASS", "--- FAIL", "--- SKIP", "PASS", "FAIL", "ok "} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}
