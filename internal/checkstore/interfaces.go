package checkstore

// QueueClient is the narrow slice of the remote queue protocol CheckStore
// needs: acknowledging completed work on removal. Defined here, at the
// point of use, rather than imported from the queueclient package, so
// CheckStore has no import-time dependency on it — the one-way wiring
// spec.md §9 calls "graph with back-reference" (CheckStore depends on
// QueueClient; QueueClient never depends on CheckStore).
type QueueClient interface {
	CompleteItems(ids []string) error
}

// ExistenceResult is the outcome of an ExistenceProbe.Check call.
type ExistenceResult struct {
	Success bool
	Exists  bool
	Error   string
}

// ExistenceProbe is consulted by AddProfile before inserting a brand-new
// identifier, to suppress profiles already present in some downstream
// system. A probe that fails (Success == false) does not block insertion —
// only a successful "exists" verdict does.
type ExistenceProbe interface {
	Check(steamID string) (ExistenceResult, error)
}
