package domain

import (
	"context"
	"time"
)

// Incident is an active wildfire reported by a live incident feed.
type Incident struct {
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Name    string    `json:"name"`
	Acres   float64   `json:"size_acres"`
	Status  string    `json:"status"`
	Started time.Time `json:"started"`
}

// IncidentSource lists currently active incidents. Callers treat it as best
// effort.
type IncidentSource interface {
	ActiveIncidents(ctx context.Context) ([]Incident, error)
}
