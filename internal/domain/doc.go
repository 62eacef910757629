// Package domain models the wildfire ignition risk pipeline: satellite fire
// detections, the fixed-resolution grid they are binned into, daily weather
// readings and the per-cell features and scores derived from them.
//
// # Data Sources
//
// Fire detections come from NASA FIRMS VIIRS archive and near-real-time CSV
// exports. Each row is a point detection with an acquisition date, brightness
// temperature, fire radiative power and a confidence code ("l", "n", "h").
// Low-confidence rows are dropped at ingestion.
//
// Daily weather comes from the Open-Meteo forecast API (one representative
// point for the whole region), the NWS observation API (per point) and the
// NOAA GHCN-Daily station archive (historical backfill).
//
// # Grid Conventions
//
// Coordinates are WGS-84 degrees. A grid cell is identified by its snapped
// (lat, lon) pair, a multiple of the resolution step (0.1° by default):
//
//	snapped = round(value / step) * step
//
// Snapping is nearest-grid-point, not containment, so a detection close to the
// bounding box edge may snap to a coordinate outside the grid. Such detections
// fall out of the label join and are counted as unmatched.
//
// Joins between stages compare integer lattice indices (round(value/step))
// instead of the float coordinates, which is the same exact-match join without
// float equality surprises.
//
// # Units
//
//	Temperature:   °C (daily mean)
//	Humidity:      % relative humidity (daily mean), 0–100
//	Wind:          km/h (daily maximum)
//	Precipitation: mm (daily sum), never negative
//	Distances:     km
//
// # Feature Bounds
//
// Every feature used by the risk formula is clipped where it is computed:
//
//	dryness             [0, 1]   VPD proxy / batch maximum
//	precip_factor       [0, 1]
//	wind_factor         [0, 1]
//	dust_factor         [0, 2]   dust exposure × 2
//	human_factor        [0, 1]
//	low_precip_dryness  {0.5, 1}
package domain
