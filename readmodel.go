package eventflow

// ReadModel represents a query-side data model: a read-optimized view
// derived from events, returned by query handlers.
type ReadModel interface {
}

// DLQStats is a read model summarizing dead letter queue depth.
type DLQStats struct {
	Failed int
	Parked int
}
