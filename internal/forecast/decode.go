package forecast

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"goodweather/internal/metrics"
)

type timelineDocument struct {
	Latitude        float64       `json:"latitude"`
	Longitude       float64       `json:"longitude"`
	ResolvedAddress string        `json:"resolvedAddress"`
	Address         string        `json:"address"`
	Timezone        string        `json:"timezone"`
	TZOffset        float64       `json:"tzoffset"`
	Description     string        `json:"description"`
	Days            []timelineDay `json:"days"`
}

type timelineDay struct {
	Datetime string                       `json:"datetime"`
	Hours    []map[string]json.RawMessage `json:"hours"`
}

// Decode reads a Visual Crossing timeline document. Hourly fields are picked
// up for every metric in catalog; anything else in the payload is ignored.
func Decode(r io.Reader, catalog metrics.Catalog) (*Forecast, error) {
	var doc timelineDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("forecast decode: %w", err)
	}

	f := &Forecast{
		Latitude:        doc.Latitude,
		Longitude:       doc.Longitude,
		Timezone:        doc.Timezone,
		TZOffset:        doc.TZOffset,
		Address:         doc.Address,
		ResolvedAddress: doc.ResolvedAddress,
		Description:     doc.Description,
		Days:            make([]Day, 0, len(doc.Days)),
	}
	loc := f.Location()

	for _, d := range doc.Days {
		day := Day{Date: d.Datetime, Hours: make([]HourlySample, 0, len(d.Hours))}
		for _, raw := range d.Hours {
			day.Hours = append(day.Hours, decodeHour(raw, catalog, loc))
		}
		f.Days = append(f.Days, day)
	}
	return f, nil
}

func decodeHour(raw map[string]json.RawMessage, catalog metrics.Catalog, loc *time.Location) HourlySample {
	sample := HourlySample{Values: make(metrics.Values)}

	var epoch int64
	if field, ok := raw["datetimeEpoch"]; ok && json.Unmarshal(field, &epoch) == nil && epoch > 0 {
		sample.Timestamp = time.Unix(epoch, 0).In(loc)
	}
	if field, ok := raw["datetime"]; ok {
		_ = json.Unmarshal(field, &sample.Clock)
	}
	if field, ok := raw["conditions"]; ok {
		_ = json.Unmarshal(field, &sample.Conditions)
	}

	for _, m := range catalog.Metrics() {
		field, ok := raw[string(m)]
		if !ok {
			continue
		}
		var v *float64
		if err := json.Unmarshal(field, &v); err != nil {
			continue
		}
		SetValue(sample.Values, m, v)
	}
	return sample
}
