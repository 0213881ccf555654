package resolver

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"
)

// mergeJSONObjects is the default MergeFunc: both payloads must be JSON
// objects; local fields win and remote-only fields are carried over. Entity
// types whose payloads are not flat-mergeable should register their own
// MergeFunc or use a different strategy.
func mergeJSONObjects(local, remote []byte) ([]byte, error) {
	var localMap, remoteMap map[string]any
	if err := json.Unmarshal(local, &localMap); err != nil {
		return nil, fmt.Errorf("local payload is not a JSON object: %w", err)
	}
	if err := json.Unmarshal(remote, &remoteMap); err != nil {
		return nil, fmt.Errorf("remote payload is not a JSON object: %w", err)
	}

	if err := mergo.Merge(&localMap, remoteMap); err != nil {
		return nil, fmt.Errorf("merge payload fields: %w", err)
	}

	merged, err := json.Marshal(localMap)
	if err != nil {
		return nil, fmt.Errorf("encode merged payload: %w", err)
	}
	return merged, nil
}
