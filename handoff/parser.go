package handoff

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// Parse scans an agent's raw output for a handoff declaration block.
// When the output contains multiple candidate blocks, the first
// well-formed one is honored and later ones are ignored.
func Parse(output string) Result {
	lines := strings.Split(output, "\n")

	sawHeader := false
	for i, line := range lines {
		if strings.TrimSpace(line) != HeaderToken {
			continue
		}
		sawHeader = true
		if decl := parseBlock(lines[i+1:]); decl != nil {
			return Result{Status: StatusOK, Declaration: decl}
		}
	}

	if sawHeader {
		return Result{Status: StatusMalformed, Reason: "declaration block is missing a To: line"}
	}
	return Result{Status: StatusAbsent}
}

// Extract is the tolerant entry point: it returns the parsed declaration
// or nil, never an error. Malformed blocks read as "no handoff".
func Extract(output string) *Declaration {
	res := Parse(output)
	if res.Status != StatusOK {
		return nil
	}
	return res.Declaration
}

// parseBlock reads the lines following a header token. It stops at the
// first line that belongs to neither the field grammar nor an indented
// context item. Returns nil when no To: line is present.
func parseBlock(lines []string) *Declaration {
	decl := &Declaration{
		Context:   make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
	inContext := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			// A blank line terminates the block.
			goto done
		case strings.HasPrefix(trimmed, "To:") && decl.ToAgent == "":
			decl.ToAgent = strings.TrimSpace(strings.TrimPrefix(trimmed, "To:"))
			inContext = false
		case strings.HasPrefix(trimmed, "Reason:") && decl.Reason == "":
			decl.Reason = strings.TrimSpace(strings.TrimPrefix(trimmed, "Reason:"))
			inContext = false
		case trimmed == "Context:":
			inContext = true
		case inContext && (isIndented(line) || strings.HasPrefix(trimmed, "- ")):
			if key, value, ok := parseContextItem(trimmed); ok {
				decl.Context[key] = value
			}
		default:
			goto done
		}
	}

done:
	if decl.ToAgent == "" {
		return nil
	}
	if len(decl.Context) == 0 {
		decl.Context = nil
	}
	return decl
}

func isIndented(line string) bool {
	return len(line) > 0 && unicode.IsSpace(rune(line[0]))
}

// parseContextItem parses one "- key: value" (or bare "key: value")
// context line. The Key data value is decoded as inline JSON when it
// parses; a broken JSON payload keeps the raw string rather than
// invalidating the block.
func parseContextItem(trimmed string) (string, any, bool) {
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
	key, raw, found := strings.Cut(trimmed, ":")
	if !found {
		return "", nil, false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil, false
	}
	value := strings.TrimSpace(raw)

	if key == KeyDataKey && strings.HasPrefix(value, "{") {
		var structured map[string]any
		if err := json.Unmarshal([]byte(value), &structured); err == nil {
			return key, structured, true
		}
	}
	return key, value, true
}
