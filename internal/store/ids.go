package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeIDs parses a JSON array of identifiers. Numbers and strings are both
// accepted so caches written by older tooling (numeric IDs) keep working.
func decodeIDs(data []byte) ([]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding cache: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("decoding cache entry %d: %s is neither string nor number", i, string(r))
		}
		ids = append(ids, n.String())
	}
	return ids, nil
}

// dedupe drops repeated IDs, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
