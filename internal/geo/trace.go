package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/tacsim/battlesim/pkg/core"
)

// TraceLineString builds a LineString from a sequence of positions, used by
// the recorders to store fire lines and movement traces in WKT form.
func TraceLineString(positions []core.Position3D) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("trace must have at least 2 points, got %d", len(positions))
	}

	flat := make([]float64, 0, len(positions)*2)
	for _, p := range positions {
		flat = append(flat, p.X, p.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// TraceWKT renders a movement trace as WKT, or an empty string when the
// trace is too short to form a line.
func TraceWKT(positions []core.Position3D) string {
	ls, err := TraceLineString(positions)
	if err != nil {
		return ""
	}
	return ls.AsText()
}
