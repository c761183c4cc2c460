// Package diagnostics collects compiler errors and vet warnings for the
// workspace and serves them through the get_compile_errors tool.
package diagnostics

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Message types.
const (
	TypeError   = "Error"
	TypeWarning = "Warning"
)

// CompileMessage is one diagnostic. File is reported as printed by the go
// command, relative to the workspace when possible.
type CompileMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

var positionRE = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?: (.+)$`)

// ParseOutput extracts diagnostics of type typ from go build or go vet
// output. Package headers ("# pkg") are dropped and indented continuation
// lines are folded into the preceding message.
func ParseOutput(out, typ string) []CompileMessage {
	var msgs []CompileMessage
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if (strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ")) && len(msgs) > 0 {
			last := &msgs[len(msgs)-1]
			last.Message += "\n" + strings.TrimSpace(line)
			continue
		}

		m := positionRE.FindStringSubmatch(strings.TrimPrefix(line, "vet: "))
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		msgs = append(msgs, CompileMessage{
			Type:    typ,
			Message: m[4],
			File:    strings.TrimPrefix(m[1], "./"),
			Line:    lineNo,
			Column:  col,
		})
	}
	return msgs
}
