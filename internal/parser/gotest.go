package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxLineSize = 4 * 1024 * 1024

// GoTestParser parses go test -json output
type GoTestParser struct{}

// NewGoTestParser creates a new GoTestParser
func NewGoTestParser() *GoTestParser {
	return &GoTestParser{}
}

// Parse decodes one event per line. Lines that are not JSON events (e.g. build
// errors printed by older toolchains) become package-level output events.
func (p *GoTestParser) Parse(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if line[0] == '{' {
			var ev Event
			if err := json.Unmarshal(line, &ev); err == nil && ev.Action != "" {
				events = append(events, ev)
				continue
			}
		}
		events = append(events, Event{Action: ActionOutput, Output: string(line) + "\n"})
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read test events: %w", err)
	}
	return events, nil
}

// ParseTestCounts counts passed and failed leaf tests. A test that has
// subtests is not counted itself.
func (p *GoTestParser) ParseTestCounts(events []Event) (passed, failed int) {
	outcomes := make(map[string]string)
	var order []string
	for _, ev := range events {
		if ev.Test == "" || (ev.Action != ActionPass && ev.Action != ActionFail) {
			continue
		}
		key := ev.Package + "\x00" + ev.Test
		if _, seen := outcomes[key]; !seen {
			order = append(order, key)
		}
		outcomes[key] = ev.Action
	}

	for _, key := range order {
		if hasChild(outcomes, key) {
			continue
		}
		if outcomes[key] == ActionPass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func hasChild(outcomes map[string]string, key string) bool {
	prefix := key + "/"
	for other := range outcomes {
		if strings.HasPrefix(other, prefix) {
			return true
		}
	}
	return false
}
