// Package geo parses scenario coordinates and places zones in world space.
// Scenario files write positions either as planar "x,y,z" meters or, for
// real-terrain scenarios, as geodetic "lon,lat" pairs converted to EPSG:3857
// planar meters at load time.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"

	"github.com/tacsim/battlesim/internal/config"
	"github.com/tacsim/battlesim/pkg/core"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PositionFromString parses "x,y" or "x,y,z" into a core.Position3D.
func PositionFromString(coords string) (core.Position3D, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var z float64
	if len(parts) > 2 {
		z, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
	}
	return core.Position3D{X: x, Y: y, Z: z}, nil
}

// PositionFrom4326 converts a WGS84 longitude/latitude pair into EPSG:3857
// planar meters.
func PositionFrom4326(longitude, latitude float64) core.Position3D {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return core.Position3D{X: x, Y: y}
}

// HeightQuerier is the narrow terrain interface zone placement needs.
// Implemented externally; may be nil, in which case configured elevations
// are kept as written.
type HeightQuerier interface {
	GetHeightAt(x, z float64) float64
	IsChunkLoaded(x, z float64) bool
}

// parseFaction maps a scenario owner string to a faction. Empty and unknown
// strings mean unowned.
func parseFaction(s string) core.Faction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "US", "WEST", "BLUFOR":
		return core.FactionUS
	case "OPFOR", "EAST":
		return core.FactionOPFOR
	default:
		return core.FactionNone
	}
}

// ZonesFromConfig converts scenario zone entries into zone definitions.
// When geodetic is set, positions are "lon,lat" pairs; otherwise planar
// "x,y,z". When terrain is non-nil and the chunk is loaded, the zone is
// snapped to terrain height.
func ZonesFromConfig(entries []config.ZoneConfig, geodetic bool, terrain HeightQuerier) ([]core.ZoneDefinition, error) {
	defs := make([]core.ZoneDefinition, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("zone %d: missing id", i)
		}
		if e.Radius <= 0 {
			return nil, fmt.Errorf("zone %q: radius must be positive", e.ID)
		}

		var pos core.Position3D
		if geodetic {
			ll, err := PositionFromString(e.Position)
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", e.ID, err)
			}
			pos = PositionFrom4326(ll.X, ll.Y)
		} else {
			p, err := PositionFromString(e.Position)
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", e.ID, err)
			}
			pos = p
		}

		if terrain != nil && terrain.IsChunkLoaded(pos.X, pos.Y) {
			pos.Z = terrain.GetHeightAt(pos.X, pos.Y)
		}

		defs = append(defs, core.ZoneDefinition{
			ID:              e.ID,
			Name:            e.Name,
			Position:        pos,
			Radius:          e.Radius,
			Owner:           parseFaction(e.Owner),
			IsHomeBase:      e.IsHomeBase,
			TicketBleedRate: e.TicketBleedRate,
		})
	}
	return defs, nil
}
