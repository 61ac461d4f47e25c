// Package van talks to the NGP VAN REST API: an authenticated connection
// with pagination and a client for the codes endpoints.
package van

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samvad-hq/vancodes/pkg/httpclient"
	"github.com/samvad-hq/vancodes/pkg/table"
)

const (
	// Code types accepted by VAN at the time of writing. The authoritative
	// list comes from ListTypes.
	CodeTypeTag        = "Tag"
	CodeTypeSourceCode = "SourceCode"

	// DefaultPageSize is sent as $top when ListOptions.PageSize is unset.
	DefaultPageSize = 200

	ColumnCodeType          = "code_type"
	ColumnSupportedEntities = "supported_entities"
	ColumnCodeID            = "codeId"

	codesPath             = "codes"
	codeTypesPath         = "codeTypes"
	supportedEntitiesPath = "codes/supportedEntities"
)

// SupportedEntity declares a record type a code can be applied to. Nil flags
// and times are left off the wire.
type SupportedEntity struct {
	Name         string     `json:"name" yaml:"name"`
	IsSearchable *bool      `json:"is_searchable,omitempty" yaml:"is_searchable,omitempty"`
	IsApplicable *bool      `json:"is_applicable,omitempty" yaml:"is_applicable,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
}

// wire renders the entity using VAN's field names.
func (s SupportedEntity) wire() map[string]any {
	out := map[string]any{"name": s.Name}
	if s.IsSearchable != nil {
		out["isSearchable"] = *s.IsSearchable
	}
	if s.IsApplicable != nil {
		out["isApplicable"] = *s.IsApplicable
	}
	if s.StartTime != nil {
		out["startTime"] = s.StartTime.Format(time.RFC3339)
	}
	if s.EndTime != nil {
		out["endTime"] = s.EndTime.Format(time.RFC3339)
	}
	return out
}

func wireEntities(entities []SupportedEntity) []map[string]any {
	out := make([]map[string]any, 0, len(entities))
	for _, s := range entities {
		out = append(out, s.wire())
	}
	return out
}

// ListOptions filters List. Empty strings and an absent ParentCodeID are not
// sent; Set(0) filters on parentCodeId=0.
type ListOptions struct {
	Name              string
	SupportedEntities string
	ParentCodeID      Field[int]
	CodeType          string
	// PageSize is passed to VAN as $top. It is a hint; pagination still
	// returns every match.
	PageSize int
}

func (o ListOptions) query(defaultPageSize int) url.Values {
	q := url.Values{}
	if o.Name != "" {
		q.Set("name", o.Name)
	}
	if o.SupportedEntities != "" {
		q.Set("supportedEntities", o.SupportedEntities)
	}
	if id, ok := o.ParentCodeID.Get(); ok {
		q.Set("parentCodeId", strconv.Itoa(id))
	}
	if o.CodeType != "" {
		q.Set("codeType", o.CodeType)
	}
	size := o.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > 0 {
		q.Set("$top", strconv.Itoa(size))
	}
	return q
}

// CreateOptions describes a new code. Name is required by VAN; CodeType
// defaults to SourceCode.
type CreateOptions struct {
	Name              string
	ParentCodeID      Field[int]
	Description       Field[string]
	CodeType          string
	SupportedEntities []SupportedEntity
}

// Body renders the POST payload.
func (o CreateOptions) Body() map[string]any {
	codeType := o.CodeType
	if codeType == "" {
		codeType = CodeTypeSourceCode
	}
	body := map[string]any{
		"name":     o.Name,
		"codeType": codeType,
	}
	o.ParentCodeID.put(body, "parentCodeId")
	o.Description.put(body, "description")
	if o.SupportedEntities != nil {
		body["supportedEntities"] = wireEntities(o.SupportedEntities)
	}
	return body
}

// UpdateOptions lists the fields to change. Absent fields are left untouched
// remotely; Null fields are sent as JSON null.
type UpdateOptions struct {
	Name              Field[string]
	ParentCodeID      Field[int]
	Description       Field[string]
	CodeType          Field[string]
	SupportedEntities Field[[]SupportedEntity]
}

// Body renders the PUT payload with only the supplied fields.
func (o UpdateOptions) Body() map[string]any {
	body := map[string]any{}
	o.Name.put(body, "name")
	o.ParentCodeID.put(body, "parentCodeId")
	o.CodeType.put(body, "codeType")
	o.Description.put(body, "description")
	if entities, ok := o.SupportedEntities.Get(); ok {
		body["supportedEntities"] = wireEntities(entities)
	} else if o.SupportedEntities.IsNull() {
		body["supportedEntities"] = nil
	}
	return body
}

// Codes wraps the VAN /codes endpoints. Errors from the connection are
// returned unchanged.
type Codes struct {
	conn     Connector
	log      Logger
	pageSize int
}

// NewCodes builds a Codes client over conn.
func NewCodes(conn Connector, log Logger) *Codes {
	return &Codes{conn: conn, log: ensureLogger(log), pageSize: DefaultPageSize}
}

// WithPageSize returns a copy that sends size as $top when ListOptions leaves
// it unset. A non-positive size omits $top.
func (c *Codes) WithPageSize(size int) *Codes {
	cp := *c
	cp.pageSize = size
	return &cp
}

func (c *Codes) url(path string) string { return c.conn.URI() + path }

func (c *Codes) codeURL(id int) string {
	return c.url(fmt.Sprintf("%s/%d", codesPath, id))
}

// List returns every code matching opts.
func (c *Codes) List(ctx context.Context, opts ListOptions) (*table.Table, error) {
	c.log.InfoObj("getting codes", "codes_filter", opts)
	tbl, err := c.conn.RequestPaginate(ctx, c.url(codesPath), opts.query(c.pageSize))
	if err != nil {
		return nil, err
	}
	c.log.DebugObj("codes response", "codes", tbl.Rows())
	c.log.InfoObj("found codes", "codes_count", tbl.NumRows())
	return tbl, nil
}

// Get returns a single code as a one-row table.
func (c *Codes) Get(ctx context.Context, id int) (*table.Table, error) {
	c.log.InfoObj("getting code", "code_id", id)
	v, err := c.conn.Request(ctx, http.MethodGet, c.codeURL(id), nil, nil)
	if err != nil {
		return nil, err
	}
	tbl, err := table.FromValues(ColumnCodeID, v)
	if err != nil {
		return nil, fmt.Errorf("code %d: %w", id, err)
	}
	c.log.DebugObj("code response", "code", tbl.Rows())
	c.log.InfoObj("found code", "code_id", id)
	return tbl, nil
}

// ListTypes returns the code types VAN accepts, one per row under code_type.
func (c *Codes) ListTypes(ctx context.Context) (*table.Table, error) {
	c.log.InfoObj("getting code types", "path", codeTypesPath)
	tbl, err := c.getColumn(ctx, codeTypesPath, ColumnCodeType)
	if err != nil {
		return nil, err
	}
	c.log.DebugObj("code types response", "code_types", tbl.Column(ColumnCodeType))
	c.log.InfoObj("found code types", "code_types_count", tbl.NumRows())
	return tbl, nil
}

// ListSupportedEntities returns the entity names codes may be applied to,
// one per row under supported_entities.
func (c *Codes) ListSupportedEntities(ctx context.Context) (*table.Table, error) {
	c.log.InfoObj("getting code supported entities", "path", supportedEntitiesPath)
	tbl, err := c.getColumn(ctx, supportedEntitiesPath, ColumnSupportedEntities)
	if err != nil {
		return nil, err
	}
	c.log.DebugObj("code supported entities response", "supported_entities", tbl.Column(ColumnSupportedEntities))
	c.log.InfoObj("found code supported entities", "supported_entities_count", tbl.NumRows())
	return tbl, nil
}

func (c *Codes) getColumn(ctx context.Context, path, header string) (*table.Table, error) {
	v, err := c.conn.Request(ctx, http.MethodGet, c.url(path), nil, nil)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return table.New(header), nil
	}
	values, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected JSON array, got %T", path, v)
	}
	return table.FromColumn(header, values), nil
}

// Create posts a new code and returns VAN's response, normally the new id
// under codeId.
func (c *Codes) Create(ctx context.Context, opts CreateOptions) (*table.Table, error) {
	body := opts.Body()
	c.log.InfoObj("creating code", "code_name", opts.Name)
	v, err := c.conn.Request(ctx, http.MethodPost, c.url(codesPath), nil, body)
	if err != nil {
		return nil, err
	}
	tbl, err := table.FromValues(ColumnCodeID, v)
	if err != nil {
		return nil, fmt.Errorf("create code %q: %w", opts.Name, err)
	}
	c.log.DebugObj("create code response", "code", tbl.Rows())
	c.log.InfoObj("code created", "code_name", opts.Name)
	return tbl, nil
}

// Update sends only the supplied fields. VAN answers 204, which yields an
// empty table.
func (c *Codes) Update(ctx context.Context, id int, opts UpdateOptions) (*table.Table, error) {
	body := opts.Body()
	c.log.InfoObj("updating code", "code_id", id)
	v, err := c.conn.Request(ctx, http.MethodPut, c.codeURL(id), nil, body)
	if err != nil {
		return nil, err
	}
	tbl, err := table.FromValues(ColumnCodeID, v)
	if err != nil {
		return nil, fmt.Errorf("update code %d: %w", id, err)
	}
	c.log.DebugObj("update code response", "code", tbl.Rows())
	c.log.InfoObj("code updated", "code_id", id)
	return tbl, nil
}

// Delete removes a code. The raw response is returned; 204 signals success.
func (c *Codes) Delete(ctx context.Context, id int) (httpclient.Response, error) {
	c.log.InfoObj("deleting code", "code_id", id)
	resp, err := c.conn.RequestRaw(ctx, http.MethodDelete, c.codeURL(id), nil, nil)
	if err != nil {
		return nil, err
	}
	c.log.InfoObj("code deleted", "code_delete", map[string]any{
		"code_id": id,
		"status":  resp.StatusCode(),
	})
	return resp, nil
}
