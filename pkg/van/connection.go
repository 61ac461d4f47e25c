package van

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/vancodes/pkg/httpclient"
	"github.com/samvad-hq/vancodes/pkg/table"
)

const (
	// DefaultBaseURI is the production VAN API root.
	DefaultBaseURI = "https://api.securevan.com/v4/"

	// Database modes appended to the API key.
	DBModeVoterFile  = 0
	DBModeMyCampaign = 1

	defaultTimeout = 30 * time.Second
	maxPages       = 10000
)

// Config describes how to reach and authenticate against the VAN API.
type Config struct {
	BaseURI string
	AppName string
	APIKey  string
	DBMode  int
	Timeout time.Duration
}

// Connector is the request surface the Codes client relies on.
type Connector interface {
	URI() string
	Request(ctx context.Context, method, rawURL string, query url.Values, body any) (any, error)
	RequestRaw(ctx context.Context, method, rawURL string, query url.Values, body any) (httpclient.Response, error)
	RequestPaginate(ctx context.Context, rawURL string, query url.Values) (*table.Table, error)
}

// Connection performs authenticated VAN API calls. It holds no per-call state
// and is safe for concurrent use when its httpclient.Client is.
type Connection struct {
	uri    string
	client httpclient.Client
	log    Logger
}

// NewConnection builds a Connection backed by resty with VAN basic auth.
func NewConnection(cfg Config, log Logger) (*Connection, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("van api key is required")
	}
	if cfg.DBMode != DBModeVoterFile && cfg.DBMode != DBModeMyCampaign {
		return nil, fmt.Errorf("invalid van db mode %d", cfg.DBMode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := httpclient.NewRestyClient(httpclient.Options{
		Timeout:  cfg.Timeout,
		Username: cfg.AppName,
		Password: cfg.APIKey + "|" + strconv.Itoa(cfg.DBMode),
		Headers:  map[string]string{"Accept": "application/json"},
	})
	return NewConnectionWithClient(cfg.BaseURI, client, log), nil
}

// NewConnectionWithClient builds a Connection over any transport.
func NewConnectionWithClient(baseURI string, client httpclient.Client, log Logger) *Connection {
	return &Connection{
		uri:    normalizeBaseURI(baseURI),
		client: client,
		log:    ensureLogger(log),
	}
}

func normalizeBaseURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		uri = DefaultBaseURI
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri
}

// URI returns the API root, always ending in a slash.
func (c *Connection) URI() string { return c.uri }

// RequestRaw executes the call and returns the response for any 2xx status.
// Other statuses produce an *APIError.
func (c *Connection) RequestRaw(ctx context.Context, method, rawURL string, query url.Values, body any) (httpclient.Response, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("van connection is not initialized")
	}
	if method == "" {
		method = http.MethodGet
	}

	c.log.DebugObj("van request", "van_request", map[string]any{
		"method": method,
		"url":    rawURL,
		"query":  query.Encode(),
	})

	resp, err := c.client.Do(ctx, httpclient.Request{
		Method: method,
		URL:    rawURL,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("van %s %s: %w", method, rawURL, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, newAPIError(method, rawURL, resp.StatusCode(), resp.Body())
	}
	return resp, nil
}

// Request executes the call and decodes the JSON response. An empty body
// decodes to nil.
func (c *Connection) Request(ctx context.Context, method, rawURL string, query url.Values, body any) (any, error) {
	resp, err := c.RequestRaw(ctx, method, rawURL, query, body)
	if err != nil {
		return nil, err
	}
	return decodeJSON(resp.Body())
}

type page struct {
	Items        []map[string]any `json:"items"`
	NextPageLink string           `json:"nextPageLink"`
}

// RequestPaginate issues a GET and follows nextPageLink until exhausted,
// returning every item as one table.
func (c *Connection) RequestPaginate(ctx context.Context, rawURL string, query url.Values) (*table.Table, error) {
	out := table.New()
	next := rawURL
	seen := make(map[string]struct{})

	for pages := 0; next != ""; pages++ {
		if pages >= maxPages {
			return nil, fmt.Errorf("van paginate %s: exceeded %d pages", rawURL, maxPages)
		}
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("van paginate %s: repeated page link %s", rawURL, next)
		}
		seen[next] = struct{}{}

		// nextPageLink already carries the query string.
		q := query
		if pages > 0 {
			q = nil
		}
		resp, err := c.RequestRaw(ctx, http.MethodGet, next, q, nil)
		if err != nil {
			return nil, err
		}

		items, link, err := decodePage(resp.Body())
		if err != nil {
			return nil, fmt.Errorf("van paginate %s: %w", next, err)
		}
		out.Concat(table.FromRows(items))
		next = link
	}

	return out, nil
}

func decodePage(body []byte) ([]map[string]any, string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, "", nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]any
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, "", fmt.Errorf("decode page: %w", err)
		}
		return items, "", nil
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, "", fmt.Errorf("decode page: %w", err)
	}
	return p.Items, strings.TrimSpace(p.NextPageLink), nil
}

func decodeJSON(body []byte) (any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
