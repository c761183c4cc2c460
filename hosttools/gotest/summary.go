package gotest

import (
	"fmt"
	"strings"
)

// TestFailure names one failed test and what it printed.
type TestFailure struct {
	TestName string `json:"testName"`
	Message  string `json:"message"`
}

// TestResultSummary is the result of run_tests and run_short_tests.
type TestResultSummary struct {
	Summary    string        `json:"summary"`
	TotalCount int           `json:"totalCount"`
	PassCount  int           `json:"passCount"`
	FailCount  int           `json:"failCount"`
	SkipCount  int           `json:"skipCount"`
	AllPassed  bool          `json:"allPassed"`
	Failures   []TestFailure `json:"failures"`
}

// Summarize counts leaf tests only: a test with subtests is represented by
// its subtests. A package that failed without any failing test (a build
// failure, a panic in TestMain) is reported as a failure of its own.
func Summarize(results []TestResult) *TestResultSummary {
	parents := make(map[string]bool)
	for _, r := range results {
		if r.Test == "" {
			continue
		}
		name := r.Test
		for {
			i := strings.LastIndexByte(name, '/')
			if i < 0 {
				break
			}
			name = name[:i]
			parents[r.Package+"\x00"+name] = true
		}
	}

	s := &TestResultSummary{Failures: []TestFailure{}}
	failedPkgs := make(map[string]bool)
	var pkgFailures []TestResult
	for _, r := range results {
		if r.Test == "" {
			if r.Status == StatusFail {
				pkgFailures = append(pkgFailures, r)
			}
			continue
		}
		if parents[r.Package+"\x00"+r.Test] {
			continue
		}
		switch r.Status {
		case StatusPass:
			s.PassCount++
		case StatusSkip:
			s.SkipCount++
		case StatusFail:
			s.FailCount++
			failedPkgs[r.Package] = true
			s.Failures = append(s.Failures, TestFailure{TestName: r.Package + "." + r.Test, Message: r.Output})
		}
	}
	for _, r := range pkgFailures {
		if failedPkgs[r.Package] {
			continue
		}
		s.FailCount++
		s.Failures = append(s.Failures, TestFailure{TestName: r.Package, Message: r.Output})
	}

	s.TotalCount = s.PassCount + s.FailCount + s.SkipCount
	s.AllPassed = s.FailCount == 0
	s.Summary = fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)", s.PassCount, s.FailCount, s.SkipCount, s.TotalCount)
	return s
}
