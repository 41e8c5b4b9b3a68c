package los

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacsim/battlesim/internal/los"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
