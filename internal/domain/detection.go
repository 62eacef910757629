package domain

import "time"

// LowConfidence is the FIRMS confidence code excluded at ingestion.
const LowConfidence = "l"

// FireDetection is one satellite fire detection as ingested.
type FireDetection struct {
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	AcqDate    time.Time `json:"acq_date"`
	Brightness float64   `json:"brightness"`
	FRP        float64   `json:"frp"`
	Confidence string    `json:"confidence"`
	Source     string    `json:"source_file"`
}

// IngestStats counts what happened to raw rows during ingestion.
type IngestStats struct {
	Read           int            `json:"read"`
	Accepted       int            `json:"accepted"`
	OutOfBounds    int            `json:"out_of_bounds"`
	LowConfidence  int            `json:"low_confidence"`
	Malformed      int            `json:"malformed"`
	PerSourceCount map[string]int `json:"per_source"`
}

// Dropped is the number of rows that did not make it into the table.
func (s IngestStats) Dropped() int {
	return s.OutOfBounds + s.LowConfidence + s.Malformed
}

// ClipDetections keeps detections inside the box. It returns the kept rows and
// the number dropped.
func ClipDetections(detections []FireDetection, box BoundingBox) ([]FireDetection, int) {
	kept := make([]FireDetection, 0, len(detections))
	for _, d := range detections {
		if box.Contains(d.Lat, d.Lon) {
			kept = append(kept, d)
		}
	}
	return kept, len(detections) - len(kept)
}
