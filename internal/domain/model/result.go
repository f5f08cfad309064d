package model

// DispatchResult captures per-destination delivery counts for one event.
// Partial delivery is reported through the counts, never as an error.
type DispatchResult struct {
	MessageID string `json:"message_id"`
	Resolved  int    `json:"resolved"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// Unreachable is true when no live destination resolved at all.
func (r DispatchResult) Unreachable() bool { return r.Resolved == 0 }
