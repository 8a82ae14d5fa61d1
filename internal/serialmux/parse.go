package serialmux

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	EventTypeRadarObject = "radar_object"
	EventTypeRawData     = "raw_data"
	EventTypeConfig      = "config"
	EventTypeUnknown     = "unknown"
)

// ClassifyPayload inspects a payload string and returns a simple event type
// token.
func ClassifyPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if strings.Contains(payload, "end_time") || strings.Contains(payload, "classifier") {
		return EventTypeRadarObject
	}
	if strings.Contains(payload, "magnitude") || strings.Contains(payload, "speed") {
		return EventTypeRawData
	}
	if strings.HasPrefix(payload, "{") {
		return EventTypeConfig
	}
	if _, err := parseCSVReading(payload); err == nil {
		return EventTypeRawData
	}
	return EventTypeUnknown
}

// Reading is one speed measurement. Speed is in metres per second.
type Reading struct {
	Uptime    float64 `json:"uptime"`
	Magnitude float64 `json:"magnitude"`
	Speed     float64 `json:"speed"`
}

// UnmarshalJSON accepts numbers and numeric strings; the radar quotes its
// values in some output modes.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw struct {
		Uptime    json.Number `json:"uptime"`
		Magnitude json.Number `json:"magnitude"`
		Speed     json.Number `json:"speed"`
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var err error
	if r.Uptime, err = numberOrZero(raw.Uptime); err != nil {
		return fmt.Errorf("uptime: %w", err)
	}
	if r.Magnitude, err = numberOrZero(raw.Magnitude); err != nil {
		return fmt.Errorf("magnitude: %w", err)
	}
	if r.Speed, err = numberOrZero(raw.Speed); err != nil {
		return fmt.Errorf("speed: %w", err)
	}
	return nil
}

func numberOrZero(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	return n.Float64()
}

// Event is a parsed line from the radar.
type Event struct {
	Type    string
	Reading Reading        // EventTypeRawData
	Fields  map[string]any // EventTypeRadarObject and EventTypeConfig
}

// ParseEvent turns one line of radar output into an Event. Readings arrive
// either as JSON objects or as "uptime,magnitude,speed" CSV.
func ParseEvent(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	ev := Event{Type: ClassifyPayload(payload)}

	switch ev.Type {
	case EventTypeRawData:
		if !strings.HasPrefix(payload, "{") {
			r, err := parseCSVReading(payload)
			if err != nil {
				return ev, err
			}
			ev.Reading = r
			return ev, nil
		}
		if err := json.Unmarshal([]byte(payload), &ev.Reading); err != nil {
			return ev, fmt.Errorf("failed to parse reading %q: %w", payload, err)
		}
	case EventTypeRadarObject, EventTypeConfig:
		if err := json.Unmarshal([]byte(payload), &ev.Fields); err != nil {
			return ev, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
	default:
		return ev, fmt.Errorf("unknown event type: %q", payload)
	}
	return ev, nil
}

func parseCSVReading(payload string) (Reading, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return Reading{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Reading{Uptime: vals[0], Magnitude: vals[1], Speed: vals[2]}, nil
}
