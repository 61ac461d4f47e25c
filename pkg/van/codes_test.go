package van

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/samvad-hq/vancodes/pkg/httpclient"
	"github.com/samvad-hq/vancodes/pkg/table"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
	raw    string
}

// newTestCodes starts a server that records every request and answers with
// handler. The returned slice pointer is filled as requests arrive.
func newTestCodes(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Codes, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query(), raw: string(raw)}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.body); err != nil {
				t.Fatalf("decode request body: %v", err)
			}
		}
		reqs = append(reqs, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	conn := NewConnectionWithClient(srv.URL+"/v4", httpclient.NewRestyClient(httpclient.Options{Timeout: 2 * time.Second}), nil)
	return NewCodes(conn, nil), &reqs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func boolPtr(b bool) *bool { return &b }

func TestListSendsOnlySetFilters(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "count": 0})
	})

	cases := []struct {
		name string
		opts ListOptions
		want url.Values
	}{
		{
			name: "no filters",
			opts: ListOptions{},
			want: url.Values{"$top": {"200"}},
		},
		{
			name: "name and type",
			opts: ListOptions{Name: "Volunteer", CodeType: CodeTypeTag},
			want: url.Values{"name": {"Volunteer"}, "codeType": {"Tag"}, "$top": {"200"}},
		},
		{
			name: "root parent filter",
			opts: ListOptions{ParentCodeID: Set(0)},
			want: url.Values{"parentCodeId": {"0"}, "$top": {"200"}},
		},
		{
			name: "all filters",
			opts: ListOptions{Name: "n", SupportedEntities: "Event", ParentCodeID: Set(12), CodeType: "SourceCode", PageSize: 50},
			want: url.Values{
				"name":              {"n"},
				"supportedEntities": {"Event"},
				"parentCodeId":      {"12"},
				"codeType":          {"SourceCode"},
				"$top":              {"50"},
			},
		},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl, err := codes.List(context.Background(), tc.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if tbl.NumRows() != 0 {
				t.Fatalf("expected empty table, got %d rows", tbl.NumRows())
			}
			got := (*reqs)[i]
			if got.method != http.MethodGet || got.path != "/v4/codes" {
				t.Fatalf("unexpected request %s %s", got.method, got.path)
			}
			if !reflect.DeepEqual(got.query, tc.want) {
				t.Fatalf("query = %v, want %v", got.query, tc.want)
			}
		})
	}
}

func TestListWithoutPageSizeOmitsTop(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
	})

	if _, err := codes.WithPageSize(0).List(context.Background(), ListOptions{Name: "x"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, ok := (*reqs)[0].query["$top"]; ok {
		t.Fatalf("expected $top to be omitted, got %v", (*reqs)[0].query)
	}
}

func TestListFollowsNextPageLink(t *testing.T) {
	var base string
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$skip") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"items":        []any{map[string]any{"codeId": 1, "name": "a"}},
				"count":        2,
				"nextPageLink": base + "/v4/codes?$top=1&$skip=1",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":        []any{map[string]any{"codeId": 2, "name": "b"}},
			"count":        2,
			"nextPageLink": nil,
		})
	})
	base = codes.conn.URI()[:len(codes.conn.URI())-len("/v4/")]

	tbl, err := codes.List(context.Background(), ListOptions{PageSize: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.NumRows())
	}
	if got := tbl.Column("name"); !reflect.DeepEqual(got, []any{"a", "b"}) {
		t.Fatalf("names = %v", got)
	}
	if len(*reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*reqs))
	}
}

func TestGetReturnsSingleRow(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"codeId": 1005, "name": "Donor", "codeType": "Tag"})
	})

	tbl, err := codes.Get(context.Background(), 1005)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if (*reqs)[0].path != "/v4/codes/1005" {
		t.Fatalf("unexpected path %s", (*reqs)[0].path)
	}
	if tbl.NumRows() != 1 || tbl.Row(0)["name"] != "Donor" {
		t.Fatalf("unexpected rows %#v", tbl.Rows())
	}
}

func TestGetMissingSurfacesNotFound(t *testing.T) {
	codes, _ := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": []any{map[string]any{"code": "NOT_FOUND"}}})
	})

	_, err := codes.Get(context.Background(), 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected *APIError with 404, got %#v", err)
	}
}

type fakeConnector struct {
	err error
}

func (f fakeConnector) URI() string { return "https://van.test/v4/" }
func (f fakeConnector) Request(context.Context, string, string, url.Values, any) (any, error) {
	return nil, f.err
}
func (f fakeConnector) RequestRaw(context.Context, string, string, url.Values, any) (httpclient.Response, error) {
	return nil, f.err
}
func (f fakeConnector) RequestPaginate(context.Context, string, url.Values) (*table.Table, error) {
	return nil, f.err
}

func TestCodesPassConnectorErrorsThroughUnchanged(t *testing.T) {
	want := errors.New("connector failure")
	codes := NewCodes(fakeConnector{err: want}, nil)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["list"] = codes.List(ctx, ListOptions{})
	_, checks["get"] = codes.Get(ctx, 1)
	_, checks["types"] = codes.ListTypes(ctx)
	_, checks["entities"] = codes.ListSupportedEntities(ctx)
	_, checks["create"] = codes.Create(ctx, CreateOptions{Name: "x"})
	_, checks["update"] = codes.Update(ctx, 1, UpdateOptions{Name: Set("y")})
	_, checks["delete"] = codes.Delete(ctx, 1)

	for op, err := range checks {
		if err != want {
			t.Fatalf("%s: expected identical error, got %v", op, err)
		}
	}
}

func TestListTypesWrapsArray(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []string{"Tag", "SourceCode"})
	})

	tbl, err := codes.ListTypes(context.Background())
	if err != nil {
		t.Fatalf("ListTypes: %v", err)
	}
	if (*reqs)[0].path != "/v4/codeTypes" {
		t.Fatalf("unexpected path %s", (*reqs)[0].path)
	}
	if got := tbl.Columns(); !reflect.DeepEqual(got, []string{"code_type"}) {
		t.Fatalf("columns = %v", got)
	}
	if got := tbl.Column("code_type"); !reflect.DeepEqual(got, []any{"Tag", "SourceCode"}) {
		t.Fatalf("values = %v", got)
	}
}

func TestListSupportedEntitiesWrapsArray(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []string{"Contacts", "Events", "Locations"})
	})

	tbl, err := codes.ListSupportedEntities(context.Background())
	if err != nil {
		t.Fatalf("ListSupportedEntities: %v", err)
	}
	if (*reqs)[0].path != "/v4/codes/supportedEntities" {
		t.Fatalf("unexpected path %s", (*reqs)[0].path)
	}
	if got := tbl.Columns(); !reflect.DeepEqual(got, []string{"supported_entities"}) {
		t.Fatalf("columns = %v", got)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}
}

func TestListTypesRejectsNonArray(t *testing.T) {
	codes, _ := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"oops": true})
	})
	if _, err := codes.ListTypes(context.Background()); err == nil {
		t.Fatalf("expected error for object response")
	}
}

func TestCreateSendsRemoteFieldNames(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, 1005)
	})

	tbl, err := codes.Create(context.Background(), CreateOptions{
		Name:         "Spring Canvass",
		ParentCodeID: Set(12),
		Description:  Set("door knocks"),
		SupportedEntities: []SupportedEntity{
			{Name: "Event", IsSearchable: boolPtr(true), IsApplicable: boolPtr(true)},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tbl.NumRows() != 1 || tbl.Row(0)[ColumnCodeID] != float64(1005) {
		t.Fatalf("unexpected result %#v", tbl.Rows())
	}

	got := (*reqs)[0]
	if got.method != http.MethodPost || got.path != "/v4/codes" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	want := map[string]any{
		"name":         "Spring Canvass",
		"codeType":     "SourceCode",
		"parentCodeId": float64(12),
		"description":  "door knocks",
		"supportedEntities": []any{
			map[string]any{"name": "Event", "isSearchable": true, "isApplicable": true},
		},
	}
	if !reflect.DeepEqual(got.body, want) {
		t.Fatalf("body = %#v, want %#v", got.body, want)
	}
}

func TestCreateWithoutEntitiesOmitsField(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, 7)
	})

	if _, err := codes.Create(context.Background(), CreateOptions{Name: "x", CodeType: CodeTypeTag}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := map[string]any{"name": "x", "codeType": "Tag"}
	if got := (*reqs)[0].body; !reflect.DeepEqual(got, want) {
		t.Fatalf("body = %#v, want %#v", got, want)
	}
}

func TestCreateSerializesTimeWindow(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, 8)
	})

	start := time.Date(2018, time.December, 31, 13, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	_, err := codes.Create(context.Background(), CreateOptions{
		Name:              "Window",
		SupportedEntities: []SupportedEntity{{Name: "Locations", StartTime: &start, EndTime: &end}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	entities := (*reqs)[0].body["supportedEntities"].([]any)
	entity := entities[0].(map[string]any)
	if entity["startTime"] != "2018-12-31T13:00:00Z" || entity["endTime"] != "2018-12-31T14:00:00Z" {
		t.Fatalf("unexpected time window %#v", entity)
	}
	if _, ok := entity["isSearchable"]; ok {
		t.Fatalf("unset flag should be omitted: %#v", entity)
	}
}

func TestCreateRemoteRejectionPassesThrough(t *testing.T) {
	codes, _ := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []any{map[string]any{"code": "INVALID_PARAMETER"}}})
	})

	_, err := codes.Create(context.Background(), CreateOptions{Name: "x", CodeType: "Bogus"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestUpdateSendsOnlySuppliedFields(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tbl, err := codes.Update(context.Background(), 44, UpdateOptions{Name: Set("Renamed")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if tbl.NumRows() != 0 {
		t.Fatalf("expected empty table for 204, got %d rows", tbl.NumRows())
	}
	got := (*reqs)[0]
	if got.method != http.MethodPut || got.path != "/v4/codes/44" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if want := map[string]any{"name": "Renamed"}; !reflect.DeepEqual(got.body, want) {
		t.Fatalf("body = %#v, want %#v", got.body, want)
	}
}

func TestUpdateDistinguishesNullFromAbsent(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := codes.Update(context.Background(), 44, UpdateOptions{
		Description:       Null[string](),
		SupportedEntities: Set([]SupportedEntity{{Name: "Contacts", IsApplicable: boolPtr(false)}}),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := map[string]any{
		"description":       nil,
		"supportedEntities": []any{map[string]any{"name": "Contacts", "isApplicable": false}},
	}
	if got := (*reqs)[0].body; !reflect.DeepEqual(got, want) {
		t.Fatalf("body = %#v, want %#v", got, want)
	}
}

func TestDeleteReturnsNoContent(t *testing.T) {
	codes, reqs := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := codes.Delete(context.Background(), 3)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode())
	}
	if (*reqs)[0].method != http.MethodDelete || (*reqs)[0].path != "/v4/codes/3" {
		t.Fatalf("unexpected request %#v", (*reqs)[0])
	}
}

func TestDeleteReferencedCodeConflicts(t *testing.T) {
	codes, _ := newTestCodes(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	if _, err := codes.Delete(context.Background(), 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
