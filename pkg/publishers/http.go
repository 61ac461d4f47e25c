package publishers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/vancodes/pkg/httpclient"
)

const maxResponseSnippet = 512

// httpPublisher posts each change event as JSON to a webhook.
type httpPublisher struct {
	id     string
	method string
	url    string
	client httpclient.Client
	log    Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.HTTP.Method))
	if method == "" {
		method = http.MethodPost
	}

	client := httpclient.NewRestyClient(httpclient.Options{
		Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		Headers: cfg.HTTP.Headers,
	})
	return &httpPublisher{
		id:     cfg.ID,
		method: method,
		url:    cfg.HTTP.URL,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := h.client.Do(ctx, httpclient.Request{
		Method: h.method,
		URL:    h.url,
		Headers: map[string]string{
			"X-Vancodes-Action":  evt.Action,
			"X-Vancodes-Code-Id": strconv.Itoa(evt.CodeID),
		},
		Body: evt,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.method, h.url, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return fmt.Errorf("%s %s: status %d: %s", h.method, h.url, resp.StatusCode(), snippet(resp.Body()))
	}
	h.log.DebugObj("webhook accepted code event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"action":       evt.Action,
		"code_id":      evt.CodeID,
		"status":       resp.StatusCode(),
	})
	return nil
}

func snippet(body []byte) string {
	if len(body) > maxResponseSnippet {
		body = body[:maxResponseSnippet]
	}
	return strings.TrimSpace(string(body))
}
