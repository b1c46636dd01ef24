// Package geo provides the distance and travel-time functions consumed by the route engine.
package geo

import (
	"math"

	"darpm/internal/model"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Haversine measures as the crow flies at a constant speed.
type Haversine struct {
	SpeedKph float64
}

// NewHaversine returns a Haversine metric, defaulting to 40 km/h.
func NewHaversine(speedKph float64) Haversine {
	if speedKph <= 0 {
		speedKph = 40
	}
	return Haversine{SpeedKph: speedKph}
}

// Distance is in kilometres; it doubles as the trip cost.
func (h Haversine) Distance(a, b model.GeoPoint) float64 {
	return HaversineKm(a, b)
}

// TravelTime is in seconds.
func (h Haversine) TravelTime(a, b model.GeoPoint) float64 {
	return HaversineKm(a, b) / h.SpeedKph * 3600
}

// Euclidean treats coordinates as plane units. Travel time is distance/Speed.
// It keeps tests free of spherical rounding.
type Euclidean struct {
	Speed float64
}

func (e Euclidean) Distance(a, b model.GeoPoint) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

func (e Euclidean) TravelTime(a, b model.GeoPoint) float64 {
	speed := e.Speed
	if speed <= 0 {
		speed = 1
	}
	return e.Distance(a, b) / speed
}
