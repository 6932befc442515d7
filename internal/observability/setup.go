package observability

import (
	"context"

	"github.com/vedant2606-dev/bg-removal-service/internal/infrastructure/observability"
)

// Setup wires logging, metrics and tracing in one call; the returned func
// flushes the trace exporter on shutdown.
func Setup(serviceName string) func(context.Context) error {
	observability.InitLogger()
	observability.InitMetrics()
	return observability.InitTracing(serviceName)
}
