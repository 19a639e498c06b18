package keychain

// Backend is a platform secret store addressed by attribute queries.
// Implementations must be safe for a single request at a time; Store
// serializes its own requests.
type Backend interface {
	// Add creates one item. It reports StatusDuplicateItem if a matching
	// item exists.
	Add(q Query) Status

	// Find looks up items matching q. On success the result carries the
	// value bytes (AttrReturnData) or an item reference (AttrReturnRef).
	Find(q Query) (Status, Result)

	// Delete removes every item matching q.
	Delete(q Query) Status
}

// Result is what Find returns on success.
type Result struct {
	Data []byte
	Ref  *ItemRef
}

// ItemRef identifies a stored item without exposing its value.
type ItemRef struct {
	Account     string `json:"account"`
	AccessGroup string `json:"access_group,omitempty"`
}
