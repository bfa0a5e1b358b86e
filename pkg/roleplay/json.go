package roleplay

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrMalformedReply = errors.New("model reply is not valid JSON")

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")
	// "A" or "B" inside a JSON value; models emit it when unsure of a correction.
	alternatives = regexp.MustCompile(`"([^"]+)" or "[^"]+"`)
)

// extractJSON pulls the JSON object out of a model reply that may be
// wrapped in a markdown fence or surrounded by prose.
func extractJSON(reply string) string {
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	reply = strings.TrimSpace(reply)
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return reply[start : end+1]
	}
	return reply
}

func repairJSON(s string) string {
	if strings.Contains(s, `"grammar_errors"`) {
		s = alternatives.ReplaceAllString(s, `"$1"`)
	}
	return s
}

func decodeReply(reply string, out interface{}) error {
	raw := repairJSON(extractJSON(reply))
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return nil
}
