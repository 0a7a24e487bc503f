package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON parses a model reply into v. It first tries the whole
// reply, then falls back to the substring between the first '{' and
// the last '}' to tolerate prose around the JSON object.
func ExtractJSON(reply string, v interface{}) error {
	text := strings.TrimSpace(reply)
	if text == "" {
		return fmt.Errorf("empty reply")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse extracted JSON: %w", err)
	}
	return nil
}
