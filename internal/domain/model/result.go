package model

import "encoding/json"

// Result is the inference output attached to a completed job. It stays an
// open map because the engine behind the InferenceEngine port owns the
// schema; the egress guard redacts it by field path before release.
type Result map[string]any

// Clone returns a deep copy via a JSON round trip. Results are JSON-shaped by
// construction (they cross the broker as JSON), so the round trip is total.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		// A Result that came off the wire always re-marshals; a handcrafted
		// one that cannot is a programming error.
		panic("model: result not JSON-serializable: " + err.Error())
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("model: result round trip failed: " + err.Error())
	}
	return out
}
