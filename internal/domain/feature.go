package domain

import "time"

// Feature names. Classifier features keep the column names the model was
// trained with.
const (
	FeatureDryness          = "dryness"
	FeaturePrecipFactor     = "precip_factor"
	FeatureWindFactor       = "wind_factor"
	FeatureDustFactor       = "dust_factor"
	FeatureHumanFactor      = "human_factor"
	FeatureLowPrecipDryness = "low_precip_dryness"

	FeatureDistToRoadKm = "dist_to_road_km"
	FeatureDistToCityKm = "dist_to_city_km"
	FeatureDistToLakeKm = "dist_to_lake_km"
	FeatureDustExposure = "dust_exposure"
	FeatureMonth        = "month"
	FeatureVPDProxy     = "vpd_proxy"
	FeatureDrynessProxy = "dryness_proxy"
	FeatureGridLat      = "grid_lat"
	FeatureGridLon      = "grid_lon"
)

// FeatureVector maps feature names to values for one cell (or cell-day).
type FeatureVector map[string]float64

// CellProximity is the per-cell output of the proximity stage.
type CellProximity struct {
	Cell         GridCell `json:"cell"`
	DistToRoadKm float64  `json:"dist_to_road_km"`
	DistToCityKm float64  `json:"dist_to_city_km"`
	DistToLakeKm float64  `json:"dist_to_lake_km"`
	DustExposure float64  `json:"dust_exposure"`
}

// DailyFeatures are the weather-derived features of one day. They are shared
// by every cell of a run.
type DailyFeatures struct {
	Date             time.Time `json:"date"`
	Month            int       `json:"month"`
	VPDProxy         float64   `json:"vpd_proxy"`
	DrynessProxy     float64   `json:"dryness_proxy"`
	PrecipFactor     float64   `json:"precip_factor"`
	WindFactor       float64   `json:"wind_factor"`
	LowPrecipDryness float64   `json:"low_precip_dryness"`
}

// ScoringBatch is the input of a scorer: the cells of one run, the day's
// weather features and the batch-normalized dryness per cell.
type ScoringBatch struct {
	Cells   []CellProximity
	Day     DailyFeatures
	Dryness []float64
}

// Len returns the number of cells in the batch.
func (b ScoringBatch) Len() int {
	return len(b.Cells)
}

// ScoredCell is a cell with its ranking score and the features behind it.
type ScoredCell struct {
	Cell     GridCell      `json:"cell"`
	Score    float64       `json:"score"`
	Features FeatureVector `json:"features,omitempty"`
}
