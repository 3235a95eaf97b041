package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawEvent is the per-event shape shared by every sport: basketball and
// tennis emit a "shots" array, soccer an "events" array, but each item
// carries a timestamp and feedback text.
type rawEvent struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Feedback  string          `json:"feedback"`
}

// ExtractEvents pulls coachable moments out of the sport-specific analysis
// payload, sorted as delivered (list order is preserved; ordering by offset
// happens when tips are attached to a session). A payload with no event
// array, or events missing timestamp or feedback, is a format error.
func ExtractEvents(payload json.RawMessage) ([]Event, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("analysis payload not an object: %w", err)
	}

	for _, key := range []string{"shots", "events"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var items []rawEvent
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("analysis %q not an array: %w", key, err)
		}
		events := make([]Event, 0, len(items))
		for i, it := range items {
			if len(it.Timestamp) == 0 || it.Feedback == "" {
				return nil, fmt.Errorf("analysis %s[%d] missing timestamp or feedback", key, i)
			}
			offset, err := parseTimestamp(it.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("analysis %s[%d]: %w", key, i, err)
			}
			events = append(events, Event{OffsetSeconds: offset, Feedback: it.Feedback})
		}
		return events, nil
	}
	return nil, fmt.Errorf("analysis payload has no event array")
}

// parseTimestamp accepts the "M:SS.s" strings the analysis model emits as
// well as bare numeric seconds.
func parseTimestamp(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative timestamp %v", n)
		}
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("timestamp is neither number nor string")
	}
	return ParseClock(s)
}

// ParseClock parses "M:SS.s" (or bare seconds like "5.6") into seconds.
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		sec, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || sec < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		return sec, nil
	case 2:
		min, err := strconv.Atoi(parts[0])
		if err != nil || min < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		sec, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || sec < 0 || sec >= 60 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		return float64(min)*60 + sec, nil
	default:
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
}
