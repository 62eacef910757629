package domain

import "fmt"

// Names of the external sources a run depends on.
const (
	SourceForecast    = "forecast"
	SourceModel       = "model"
	SourceStore       = "store"
	SourceWeatherDir  = "weather_archive"
	SourceObservation = "observation"
	SourceIncidents   = "incidents"
)

// SourceError marks a failure of an external source the current path cannot
// run without. The run reports Source and stops that path.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a SourceError for source.
func Unavailable(source string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Err: err}
}
