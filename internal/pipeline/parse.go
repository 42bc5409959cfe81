package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a surrounding Markdown code fence, if present.
// Models routinely wrap JSON in ```json ... ``` despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseStageJSON strips fences and unmarshals into out. A failure here is
// terminal for the pipeline run: no retry, no repair pass.
func parseStageJSON(stage, raw string, out any) error {
	cleaned := stripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("parsing %s output: %w", stage, err)
	}
	return nil
}
