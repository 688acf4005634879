package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Keys carrying this prefix are internal metadata: available to code but
// never rendered into an agent's prompt.
const internalKeyPrefix = "_"

const (
	contextBlockHeader = "=== Context from previous agents ==="
	contextBlockFooter = "=== End context ==="
)

// InjectContext appends a delimited context block to an agent prompt.
// The input prompt and context are not modified; the result is a new
// string. Map and slice values are pretty-printed as JSON.
func InjectContext(prompt string, context map[string]any, handoffReason string) string {
	if len(context) == 0 && handoffReason == "" {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(contextBlockHeader)
	b.WriteString("\n")

	if handoffReason != "" {
		fmt.Fprintf(&b, "Handoff reason: %s\n", handoffReason)
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		if strings.HasPrefix(k, internalKeyPrefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, renderValue(context[k]))
	}

	b.WriteString(contextBlockFooter)
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.MarshalIndent(val, "  ", "  ")
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
