package store

import (
	"encoding/json"
	"fmt"
)

// MergeData deep-merges src into a copy of dst. Maps are merged key by key;
// any other value in src (arrays included) replaces the one in dst. Neither
// argument is modified.
func MergeData(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = MergeData(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}

// normalizeData converts arbitrary payload values (structs, typed maps) into
// the generic JSON tree stored in the data column, so nested objects merge as
// maps.
func normalizeData(data map[string]any) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return out, nil
}
