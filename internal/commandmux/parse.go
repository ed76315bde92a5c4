package commandmux

import (
	"encoding/json"
	"strings"
)

// ParseCommand extracts the command text from one device line. Devices may
// send plain text ("start") or a JSON object with a "command" or "text"
// field, as speech-to-text modules do. Blank lines and lines starting with
// '#' yield "".
func ParseCommand(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if strings.HasPrefix(line, "{") {
		var payload struct {
			Command string `json:"command"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &payload); err == nil {
			if c := strings.TrimSpace(payload.Command); c != "" {
				return c
			}
			return strings.TrimSpace(payload.Text)
		}
	}
	return line
}
