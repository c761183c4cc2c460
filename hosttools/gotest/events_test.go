package gotest

import (
	"strings"
	"testing"
)

const sampleStream = `{"Action":"start","Package":"example.com/calc"}
{"Action":"run","Package":"example.com/calc","Test":"TestAdd"}
{"Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"=== RUN   TestAdd\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"--- PASS: TestAdd (0.00s)\n"}
{"Action":"pass","Package":"example.com/calc","Test":"TestAdd","Elapsed":0.01}
{"Action":"run","Package":"example.com/calc","Test":"TestDiv"}
{"Action":"run","Package":"example.com/calc","Test":"TestDiv/by_zero"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv/by_zero","Output":"=== RUN   TestDiv/by_zero\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv/by_zero","Output":"    calc_test.go:21: want error got 0\n"}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv/by_zero","Output":"    --- FAIL: TestDiv/by_zero (0.00s)\n"}
{"Action":"fail","Package":"example.com/calc","Test":"TestDiv/by_zero","Elapsed":0}
{"Action":"run","Package":"example.com/calc","Test":"TestDiv/exact"}
{"Action":"pass","Package":"example.com/calc","Test":"TestDiv/exact","Elapsed":0}
{"Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"--- FAIL: TestDiv (0.00s)\n"}
{"Action":"fail","Package":"example.com/calc","Test":"TestDiv","Elapsed":0}
{"Action":"run","Package":"example.com/calc","Test":"TestSlow"}
{"Action":"output","Package":"example.com/calc","Test":"TestSlow","Output":"    calc_test.go:40: skipping in short mode\n"}
{"Action":"skip","Package":"example.com/calc","Test":"TestSlow","Elapsed":0}
{"Action":"output","Package":"example.com/calc","Output":"FAIL\n"}
{"Action":"fail","Package":"example.com/calc","Elapsed":0.2}
not json at all
{"ImportPath":"example.com/broken","Action":"build-output","Output":"# example.com/broken\n"}
{"ImportPath":"example.com/broken","Action":"build-output","Output":"broken.go:3:1: syntax error: non-declaration statement outside function body\n"}
{"Action":"start","Package":"example.com/broken"}
{"Action":"output","Package":"example.com/broken","Output":"FAIL\texample.com/broken [build failed]\n"}
{"Action":"fail","Package":"example.com/broken","Elapsed":0,"FailedBuild":"example.com/broken"}
`

func parseSample(t *testing.T) []TestResult {
	t.Helper()
	var results []TestResult
	if err := Parse(strings.NewReader(sampleStream), func(r TestResult) { results = append(results, r) }); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return results
}

func TestParse(t *testing.T) {
	results := parseSample(t)
	if want, got := 7, len(results); want != got {
		t.Fatalf("unexpected result count: want %d got %d (%+v)", want, got, results)
	}

	byName := make(map[string]TestResult)
	for _, r := range results {
		byName[r.Package+"/"+r.Test] = r
	}

	add := byName["example.com/calc/TestAdd"]
	if want, got := StatusPass, add.Status; want != got {
		t.Fatalf("unexpected status: want %s got %s", want, got)
	}
	if want, got := "", add.Output; want != got {
		t.Fatalf("framing lines leaked into output: %q", got)
	}

	div := byName["example.com/calc/TestDiv/by_zero"]
	if want, got := "    calc_test.go:21: want error got 0", div.Output; want != got {
		t.Fatalf("unexpected output: want %q got %q", want, got)
	}

	broken := byName["example.com/broken/"]
	if want, got := StatusFail, broken.Status; want != got {
		t.Fatalf("unexpected status: want %s got %s", want, got)
	}
	if !strings.Contains(broken.Output, "syntax error") {
		t.Fatalf("build output missing from package failure: %q", broken.Output)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(parseSample(t))

	if want, got := "2 passed, 2 failed, 1 skipped (5 total)", s.Summary; want != got {
		t.Fatalf("unexpected summary: want %q got %q", want, got)
	}
	if s.AllPassed {
		t.Fatalf("expected AllPassed to be false")
	}
	if want, got := 2, len(s.Failures); want != got {
		t.Fatalf("unexpected failure count: want %d got %d", want, got)
	}
	if want, got := "example.com/calc.TestDiv/by_zero", s.Failures[0].TestName; want != got {
		t.Fatalf("unexpected failure: want %q got %q", want, got)
	}
	if want, got := "example.com/broken", s.Failures[1].TestName; want != got {
		t.Fatalf("unexpected failure: want %q got %q", want, got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if want, got := "0 passed, 0 failed, 0 skipped (0 total)", s.Summary; want != got {
		t.Fatalf("unexpected summary: want %q got %q", want, got)
	}
	if !s.AllPassed {
		t.Fatalf("expected an empty run to pass")
	}
	if s.Failures == nil {
		t.Fatalf("failures must serialize as an empty array")
	}
}
