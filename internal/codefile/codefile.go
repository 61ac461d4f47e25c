// Package codefile reads bulk code definitions (YAML or JSON) for apply.
package codefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samvad-hq/vancodes/pkg/van"
	"gopkg.in/yaml.v3"
)

// Definition is one code to create.
type Definition struct {
	Name              string                `json:"name" yaml:"name"`
	ParentCodeID      *int                  `json:"parent_code_id" yaml:"parent_code_id"`
	Description       *string               `json:"description" yaml:"description"`
	CodeType          string                `json:"code_type" yaml:"code_type"`
	SupportedEntities []van.SupportedEntity `json:"supported_entities" yaml:"supported_entities"`
}

type file struct {
	Codes []Definition `json:"codes" yaml:"codes"`
}

// CreateOptions converts the definition into a create request.
func (d Definition) CreateOptions() van.CreateOptions {
	opts := van.CreateOptions{
		Name:              d.Name,
		CodeType:          d.CodeType,
		SupportedEntities: d.SupportedEntities,
	}
	if d.ParentCodeID != nil {
		opts.ParentCodeID = van.Set(*d.ParentCodeID)
	}
	if d.Description != nil {
		opts.Description = van.Set(*d.Description)
	}
	return opts
}

// Load reads and validates definitions from path.
func Load(path string) ([]Definition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("codes file path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open codes file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read codes file: %w", err)
	}

	parsed, err := parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Codes) == 0 {
		return nil, errors.New("codes file contains no codes entries")
	}

	seen := make(map[string]struct{}, len(parsed.Codes))
	for i := range parsed.Codes {
		d := sanitize(parsed.Codes[i])
		if d.Name == "" {
			return nil, fmt.Errorf("codes[%d]: name is required", i)
		}
		key := strings.ToLower(d.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("codes[%d]: duplicate code name %q", i, d.Name)
		}
		seen[key] = struct{}{}
		for j, e := range d.SupportedEntities {
			if e.Name == "" {
				return nil, fmt.Errorf("codes[%d].supported_entities[%d]: name is required", i, j)
			}
		}
		parsed.Codes[i] = d
	}
	return parsed.Codes, nil
}

func parse(data []byte, ext string) (file, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var errs []error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var out file
		if err := d.fn(data, &out); err != nil {
			errs = append(errs, fmt.Errorf("decode %s codes: %w", d.name, err))
			continue
		}
		return out, nil
	}
	if len(errs) > 0 {
		return file{}, errors.Join(errs...)
	}
	return file{}, fmt.Errorf("codes file format %q not recognized (expected YAML or JSON)", ext)
}

func sanitize(d Definition) Definition {
	d.Name = strings.TrimSpace(d.Name)
	d.CodeType = strings.TrimSpace(d.CodeType)
	for i := range d.SupportedEntities {
		d.SupportedEntities[i].Name = strings.TrimSpace(d.SupportedEntities[i].Name)
	}
	return d
}
