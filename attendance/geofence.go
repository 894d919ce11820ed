package attendance

import (
	"math"

	"github.com/warp/timeclock/generic"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// boundaryEpsilon absorbs float noise so a point computed to sit exactly on
// the radius is inside.
const boundaryEpsilon = 1e-6

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance in meters.
func Haversine(a, b generic.Coordinate) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Contains reports whether c lies within the zone (boundary inclusive).
func (z GeoZone) Contains(c generic.Coordinate) bool {
	return Haversine(z.Center, c) <= z.Radius()+boundaryEpsilon
}

// MatchZone decides whether c is authorized. It returns the matched zone
// name, or generic.ZoneUnrestricted when geofencing does not apply.
//
// Home is tried first, then extra zones in declaration order.
func MatchZone(c *generic.Coordinate, zones ZoneSet, enforced bool) (string, error) {
	if zones.FreeRoaming || !enforced {
		return generic.ZoneUnrestricted, nil
	}
	if c == nil {
		return "", ErrLocationRequired
	}

	candidates := make([]GeoZone, 0, 1+len(zones.Extra))
	if zones.Home != nil {
		candidates = append(candidates, *zones.Home)
	}
	candidates = append(candidates, zones.Extra...)

	nearest := &OutOfZoneError{DistanceMeters: math.Inf(1)}
	for _, z := range candidates {
		d := Haversine(z.Center, *c)
		if d <= z.Radius()+boundaryEpsilon {
			return z.Name, nil
		}
		if d < nearest.DistanceMeters {
			nearest.NearestZone = z.Name
			nearest.DistanceMeters = d
			nearest.RadiusMeters = z.Radius()
		}
	}
	if len(candidates) == 0 {
		nearest.DistanceMeters = 0
	}
	return "", nearest
}
