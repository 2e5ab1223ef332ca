package investigate

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// investigateMetrics holds the OTel instruments for the investigator,
// registered at package init time against the global meter provider:
// harmless no-ops until telemetry.Init wires a real one, same pattern as
// internal/polling/metrics.go.
var investigateMetrics struct {
	bisectionsPerformed metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/graphix-core/graphix-core/investigate")
	investigateMetrics.bisectionsPerformed, _ = m.Int64Counter("graphix.bisections_performed",
		metric.WithDescription("Completed bisection runs, one per unordered PoI pair investigated"),
		metric.WithUnit("{run}"),
	)
}
