package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// City is a named population center.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// References are the fixed point sets the proximity features measure against.
type References struct {
	Roads  []orb.Point
	Cities []City
	Lake   orb.Point
}

// CityPoints returns the city coordinates as orb points.
func (r References) CityPoints() []orb.Point {
	pts := make([]orb.Point, len(r.Cities))
	for i, c := range r.Cities {
		pts[i] = orb.Point{c.Lon, c.Lat}
	}
	return pts
}

// ProximityConfig selects how the proximity stage measures distances.
type ProximityConfig struct {
	// CityMetric is "planar" or "haversine".
	CityMetric string
}

// DefaultProximityConfig measures everything with the planar metric.
var DefaultProximityConfig = ProximityConfig{CityMetric: "planar"}

// GreatSaltLake is the lake-bed centroid of the reference deployment.
var GreatSaltLake = orb.Point{-112.5, 41.0}

// DefaultReferences returns the road sample points and the twelve largest
// Utah cities.
func DefaultReferences() References {
	return References{
		Roads: []orb.Point{
			{-111.89, 40.76}, // I-15 near Salt Lake City
			{-111.90, 40.75}, // I-15
			{-112.0, 41.0},   // near the lake
			{-111.7, 40.3},   // Provo
			{-112.0, 38.0},   // southern Utah
		},
		Cities: []City{
			{"Salt Lake City", 40.76, -111.89},
			{"West Valley City", 40.69, -112.00},
			{"Provo", 40.23, -111.66},
			{"West Jordan", 40.61, -111.94},
			{"Orem", 40.30, -111.70},
			{"Sandy", 40.59, -111.88},
			{"St. George", 37.10, -113.58},
			{"Ogden", 41.22, -111.97},
			{"Layton", 41.06, -111.97},
			{"Lehi", 40.39, -111.85},
			{"Logan", 41.74, -111.83},
			{"South Jordan", 40.56, -111.93},
		},
		Lake: GreatSaltLake,
	}
}

type referencesFile struct {
	Roads  [][2]float64 `json:"roads"` // [lat, lon]
	Cities []City       `json:"cities"`
	Lake   *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"lake"`
}

// LoadReferences reads a JSON reference file. Sections the file omits keep
// the defaults.
func LoadReferences(path string) (References, error) {
	refs := DefaultReferences()
	data, err := os.ReadFile(path)
	if err != nil {
		return refs, fmt.Errorf("read references: %w", err)
	}
	var f referencesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return refs, fmt.Errorf("decode references: %w", err)
	}
	if f.Roads != nil {
		if len(f.Roads) == 0 {
			return refs, errors.New("references: roads is empty")
		}
		refs.Roads = make([]orb.Point, len(f.Roads))
		for i, r := range f.Roads {
			refs.Roads[i] = orb.Point{r[1], r[0]}
		}
	}
	if f.Cities != nil {
		if len(f.Cities) == 0 {
			return refs, errors.New("references: cities is empty")
		}
		refs.Cities = f.Cities
	}
	if f.Lake != nil {
		refs.Lake = orb.Point{f.Lake.Lon, f.Lake.Lat}
	}
	return refs, nil
}
