package search

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OneOrMany is a filter dimension that accepts either a single string or
// an array of strings on the JSON boundary. It normalizes both shapes to
// a slice before queries reach the index.
type OneOrMany []string

// UnmarshalJSON accepts "value", ["a","b"], or null.
func (o *OneOrMany) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*o = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("filter value: %w", err)
		}
		*o = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("filter value: %w", err)
	}
	*o = []string{one}
	return nil
}

// MarshalJSON emits the canonical array form.
func (o OneOrMany) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(o))
}

func (o OneOrMany) containsFold(v string) bool {
	for _, s := range o {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
