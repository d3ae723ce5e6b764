package service

import (
	"context"
	"math"
	"strconv"
)

const earthRadiusKm = 6371

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(v float64) float64 { return v * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// NearbyOpenCases returns non-terminal cases within radiusKm of the
// given point, each annotated with its computed distance. Cases whose
// stored coordinates do not parse are skipped, never an error: the core
// stores coordinates verbatim and only validates them at consumption.
// The scan is O(total cases); fine at this scale.
func (s *Service) NearbyOpenCases(ctx context.Context, lat, lon, radiusKm float64) ([]CaseView, error) {
	list, err := s.cases.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []CaseView{}
	for _, c := range list {
		if c.Status.Terminal() {
			continue
		}
		cLat, err1 := strconv.ParseFloat(c.Latitude, 64)
		cLon, err2 := strconv.ParseFloat(c.Longitude, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		dist := haversineKm(lat, lon, cLat, cLon)
		if dist > radiusKm {
			continue
		}
		v := s.view(c)
		d := dist
		v.DistanceKm = &d
		out = append(out, v)
	}
	return out, nil
}
