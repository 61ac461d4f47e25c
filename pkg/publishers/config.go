package publishers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
	TypeHTTP   = "http"

	httpDefaultTimeoutSeconds = 5
)

// PublisherConfig is one sink entry in the publishers file.
type PublisherConfig struct {
	ID      string                 `json:"id" yaml:"id"`
	Type    string                 `json:"type" yaml:"type"`
	Enabled *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SQS     *SQSPublisherConfig    `json:"sqs,omitempty" yaml:"sqs,omitempty"`
	SNS     *SNSPublisherConfig    `json:"sns,omitempty" yaml:"sns,omitempty"`
	PubSub  *PubSubPublisherConfig `json:"pubsub,omitempty" yaml:"pubsub,omitempty"`
	HTTP    *HTTPPublisherConfig   `json:"http,omitempty" yaml:"http,omitempty"`
}

type SQSPublisherConfig struct {
	QueueURL string `json:"uri" yaml:"uri"`
	Region   string `json:"region" yaml:"region"`
}

type SNSPublisherConfig struct {
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
	Region   string `json:"region" yaml:"region"`
}

// PubSubPublisherConfig points at a Pub/Sub topic. Endpoint and
// CredentialsFile are optional overrides.
type PubSubPublisherConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
}

type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// IsEnabled reports whether the entry should be built. Entries default to on.
func (c PublisherConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *PublisherConfig) normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))

	if s := c.SQS; s != nil {
		s.QueueURL = strings.TrimSpace(s.QueueURL)
		s.Region = strings.TrimSpace(s.Region)
	}
	if s := c.SNS; s != nil {
		s.TopicARN = strings.TrimSpace(s.TopicARN)
		s.Region = strings.TrimSpace(s.Region)
	}
	if p := c.PubSub; p != nil {
		p.ProjectID = strings.TrimSpace(p.ProjectID)
		p.Topic = strings.TrimSpace(p.Topic)
		p.Endpoint = strings.TrimSpace(p.Endpoint)
		p.CredentialsFile = strings.TrimSpace(p.CredentialsFile)
	}
	if h := c.HTTP; h != nil {
		h.URL = strings.TrimSpace(h.URL)
		h.Method = strings.ToUpper(strings.TrimSpace(h.Method))
		if h.Method == "" {
			h.Method = http.MethodPost
		}
		if h.TimeoutSeconds <= 0 {
			h.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		headers := make(map[string]string, len(h.Headers))
		for k, v := range h.Headers {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				headers[k] = v
			}
		}
		h.Headers = headers
	}
}

// validate reports every missing field for the entry's type at once.
func (c PublisherConfig) validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}

	var missing []string
	need := func(field, value string) {
		if value == "" {
			missing = append(missing, field)
		}
	}
	switch c.Type {
	case "":
		return fmt.Errorf("publisher %q: type is required", c.ID)
	case TypeSQS:
		if c.SQS == nil {
			return fmt.Errorf("publisher %q: sqs block is required", c.ID)
		}
		need("sqs.uri", c.SQS.QueueURL)
		need("sqs.region", c.SQS.Region)
	case TypeSNS:
		if c.SNS == nil {
			return fmt.Errorf("publisher %q: sns block is required", c.ID)
		}
		need("sns.topic_arn", c.SNS.TopicARN)
		need("sns.region", c.SNS.Region)
	case TypePubSub:
		if c.PubSub == nil {
			return fmt.Errorf("publisher %q: pubsub block is required", c.ID)
		}
		need("pubsub.project_id", c.PubSub.ProjectID)
		need("pubsub.topic", c.PubSub.Topic)
	case TypeHTTP:
		if c.HTTP == nil {
			return fmt.Errorf("publisher %q: http block is required", c.ID)
		}
		need("http.url", c.HTTP.URL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("publisher %q: missing %s", c.ID, strings.Join(missing, ", "))
	}
	return nil
}

// File is a parsed and validated publishers file.
type File struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// LoadFile reads a publishers file. Files ending in .json are decoded as
// JSON; anything else as YAML. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers file %s: %w", filepath.Base(path), err)
	}
	if len(f.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	seen := make(map[string]struct{}, len(f.Publishers))
	for i := range f.Publishers {
		cfg := &f.Publishers[i]
		cfg.normalize()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("publishers[%d]: duplicate id %q", i, cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
	}
	return &f, nil
}

// ByID returns the entry with the given id.
func (f *File) ByID(id string) (PublisherConfig, bool) {
	if f == nil {
		return PublisherConfig{}, false
	}
	id = strings.TrimSpace(id)
	for _, cfg := range f.Publishers {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return PublisherConfig{}, false
}

// Enabled returns the entries that should be built, in file order.
func (f *File) Enabled() []PublisherConfig {
	if f == nil {
		return nil
	}
	out := make([]PublisherConfig, 0, len(f.Publishers))
	for _, cfg := range f.Publishers {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}
