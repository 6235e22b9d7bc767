package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyRecord is returned when a record has no payload.
var ErrEmptyRecord = errors.New("empty weather record")

// WeatherRecord is the provider payload kept verbatim. The fetch path only
// requires it to be valid JSON; display fields are decoded on demand by Summary.
type WeatherRecord json.RawMessage

// ParseWeatherRecord validates that body is JSON and returns it as a record.
func ParseWeatherRecord(body []byte) (WeatherRecord, error) {
	if len(body) == 0 {
		return nil, ErrEmptyRecord
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("parse weather record: invalid JSON")
	}
	out := make(WeatherRecord, len(body))
	copy(out, body)
	return out, nil
}

// MarshalJSON emits the payload unchanged, or null for an empty record.
func (r WeatherRecord) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON stores a copy of data. A JSON null leaves the record empty.
func (r *WeatherRecord) UnmarshalJSON(data []byte) error {
	if r == nil {
		return errors.New("models.WeatherRecord: UnmarshalJSON on nil pointer")
	}
	if string(data) == "null" {
		*r = nil
		return nil
	}
	*r = append((*r)[0:0], data...)
	return nil
}

// WeatherSummary holds the fields the display layer relies on.
type WeatherSummary struct {
	Location    string  `json:"location"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Conditions  string  `json:"conditions"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

type providerPayload struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Summary decodes the display fields. Missing nested fields decode to zero values;
// a missing name or empty weather list is reported as an error.
func (r WeatherRecord) Summary() (WeatherSummary, error) {
	if len(r) == 0 {
		return WeatherSummary{}, ErrEmptyRecord
	}
	var p providerPayload
	if err := json.Unmarshal(r, &p); err != nil {
		return WeatherSummary{}, fmt.Errorf("decode weather record: %w", err)
	}
	if p.Name == "" {
		return WeatherSummary{}, errors.New("decode weather record: missing name")
	}
	if len(p.Weather) == 0 {
		return WeatherSummary{}, errors.New("decode weather record: missing weather conditions")
	}
	conditions := p.Weather[0].Main
	if p.Weather[0].Description != "" {
		conditions = p.Weather[0].Description
	}
	return WeatherSummary{
		Location:    p.Name,
		Country:     p.Sys.Country,
		Temperature: p.Main.Temp,
		Conditions:  conditions,
		Humidity:    p.Main.Humidity,
		WindSpeed:   p.Wind.Speed,
	}, nil
}
