package zone

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacsim/battlesim/internal/zone"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
