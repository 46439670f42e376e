package ledger

import "sync/atomic"

// Metrics are updated on the mutation/read paths and read from the HTTP
// /metrics handler and tests.
type Metrics struct {
	purchases        atomic.Uint64
	sales            atomic.Uint64
	conflicts        atomic.Uint64
	adjacencyQueries atomic.Uint64
	storageFaults    atomic.Uint64
}

type MetricsSnapshot struct {
	Purchases        uint64 `json:"purchases_total"`
	Sales            uint64 `json:"sales_total"`
	Conflicts        uint64 `json:"conflicts_total"`
	AdjacencyQueries uint64 `json:"adjacency_queries_total"`
	StorageFaults    uint64 `json:"storage_faults_total"`
}

func (s *Store) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Purchases:        s.metrics.purchases.Load(),
		Sales:            s.metrics.sales.Load(),
		Conflicts:        s.metrics.conflicts.Load(),
		AdjacencyQueries: s.metrics.adjacencyQueries.Load(),
		StorageFaults:    s.metrics.storageFaults.Load(),
	}
}
