package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// Options configures the shared resty client.
type Options struct {
	Timeout  time.Duration
	Username string
	Password string
	Headers  map[string]string
}

// NewRestyClient creates a new RestyClient with the specified options.
func NewRestyClient(opts Options) *RestyClient {
	return &RestyClient{client: newRestyBaseClient(opts)}
}

// newRestyBaseClient creates a new resty.Client from opts.
func newRestyBaseClient(opts Options) *resty.Client {
	c := resty.New()
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	if opts.Username != "" || opts.Password != "" {
		c.SetBasicAuth(opts.Username, opts.Password)
	}
	if len(opts.Headers) > 0 {
		c.SetHeaders(opts.Headers)
	}
	return c
}

// Do performs the described request. Non-2xx statuses are not errors here;
// callers inspect the response.
func (r *RestyClient) Do(ctx context.Context, in Request) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(in.Headers) > 0 {
		req.SetHeaders(in.Headers)
	}
	if len(in.Query) > 0 {
		req.SetQueryParamsFromValues(in.Query)
	}
	if in.Body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(in.Body)
	}

	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	resp, err := req.Execute(method, in.URL)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte    { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Status() string  { return r.resp.Status() }
