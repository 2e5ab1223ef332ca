package polling

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// pollingMetrics holds the OTel instruments for the polling loop,
// registered against the global meter provider at package init time: a
// no-op until telemetry.Init runs.
var pollingMetrics struct {
	indexingStatusRequests metric.Int64Counter
	poiRequests            metric.Int64Counter
	tickErrors             metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/graphix-core/graphix-core/polling")
	pollingMetrics.indexingStatusRequests, _ = m.Int64Counter("graphix.indexing_statuses_requests",
		metric.WithDescription("Indexing-status requests issued to indexers"),
		metric.WithUnit("{request}"),
	)
	pollingMetrics.poiRequests, _ = m.Int64Counter("graphix.public_proofs_of_indexing_requests",
		metric.WithDescription("Proof-of-indexing requests issued to indexers"),
		metric.WithUnit("{request}"),
	)
	pollingMetrics.tickErrors, _ = m.Int64Counter("graphix.polling_tick_errors",
		metric.WithDescription("Polling tick iterations that ended with a write or planning error"),
		metric.WithUnit("{error}"),
	)
}
