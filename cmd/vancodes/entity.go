package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/vancodes/pkg/van"
)

// parseEntity reads a --supported-entity value of the form
// name[,searchable=bool][,applicable=bool][,start=RFC3339][,end=RFC3339].
func parseEntity(raw string) (van.SupportedEntity, error) {
	parts := strings.Split(raw, ",")
	e := van.SupportedEntity{Name: strings.TrimSpace(parts[0])}
	if e.Name == "" {
		return e, fmt.Errorf("supported entity %q: name is required", raw)
	}

	for _, part := range parts[1:] {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return e, fmt.Errorf("supported entity %q: expected key=value, got %q", raw, part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "searchable", "applicable":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return e, fmt.Errorf("supported entity %q: %s: %w", raw, key, err)
			}
			if key == "searchable" {
				e.IsSearchable = &b
			} else {
				e.IsApplicable = &b
			}
		case "start", "end":
			ts, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return e, fmt.Errorf("supported entity %q: %s: %w", raw, key, err)
			}
			if key == "start" {
				e.StartTime = &ts
			} else {
				e.EndTime = &ts
			}
		default:
			return e, fmt.Errorf("supported entity %q: unknown key %q", raw, key)
		}
	}
	return e, nil
}

func parseEntities(raws []string) ([]van.SupportedEntity, error) {
	out := make([]van.SupportedEntity, 0, len(raws))
	for _, raw := range raws {
		e, err := parseEntity(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid code id %q", raw)
	}
	return id, nil
}
