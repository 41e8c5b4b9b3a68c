package lod

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacsim/battlesim/internal/lod"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
