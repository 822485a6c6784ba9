/*
Package dataservice is a typed client for the managed data service's
table-level CRUD surface.

The service speaks a PostgREST-style protocol: one route per table with
filters (`status=eq.pending`), ordering (`order=created_at.desc`) and
range-based pagination in query parameters, remote procedures under
/rest/v1/rpc, and a file storage surface under /storage/v1.

Queries are built with immutable with-er methods, so a partially built
query can be shared without side effects:

	issues := []civicIssue{}
	err := c.From("civic_issues").
		Eq("status", "pending").
		Order("created_at", false).
		Range(0, 19).
		Get(ctx, &issues)
*/
package dataservice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
)

// Client provides access to the data service.
type Client struct {
	url        string
	apiKey     string
	token      string
	httpClient *http.Client
}

// New creates a client for the data service at the given base URL.
func New(url, apiKey string) Client {
	return Client{
		url:        strings.TrimSuffix(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithToken returns a new client acting on behalf of the token's user.
// Without a token, requests run with the anonymous api key only.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithHTTPClient returns a new client using the given http client.
func (c Client) WithHTTPClient(httpClient *http.Client) Client {
	c.httpClient = httpClient
	return c
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Hint    string `json:"hint"`
	Details string `json:"details"`
}

func (c Client) do(ctx context.Context, method, path string, header map[string]string, body interface{}, result interface{}) (http.Header, error) {
	var buf *bytes.Buffer
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return nil, &civic.Error{Kind: civic.KindValidation, Status: http.StatusBadRequest, Message: err.Error()}
		}
		buf = bytes.NewBuffer(j)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	r, err := http.NewRequestWithContext(ctx, method, c.url+path, buf)
	if err != nil {
		return nil, civic.NewNetworkError(err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("apikey", c.apiKey)
	token := c.token
	if token == "" {
		token = c.apiKey
	}
	r.Header.Set("Authorization", "Bearer "+token)
	for key, value := range header {
		r.Header.Set(key, value)
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, civic.NewNetworkError(err)
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var we wireError
		json.Unmarshal(resBody, &we)
		message := we.Message
		if message == "" {
			message = strings.TrimSpace(string(resBody))
		}
		e := civic.ErrorFromStatus(res.StatusCode, message)
		// PGRST116: single-object request matched no rows
		if we.Code == "PGRST116" || res.StatusCode == http.StatusNotAcceptable {
			e.Kind = civic.KindNotFound
			e.Status = http.StatusNotFound
		}
		return res.Header, e
	}
	if result != nil && len(resBody) > 0 {
		if err := json.Unmarshal(resBody, result); err != nil {
			return res.Header, &civic.Error{Kind: civic.KindUpstream, Status: res.StatusCode, Message: err.Error()}
		}
	}
	return res.Header, nil
}

// Query selects rows of one table.
type Query struct {
	client    Client
	table     string
	sel       string
	filters   []string
	order     string
	rangeFrom int
	rangeTo   int
	hasRange  bool
	withCount bool
	isUpsert  bool
}

// From returns a new query against the given table.
func (c Client) From(table string) Query {
	return Query{client: c, table: table}
}

// Select returns a new query with a column selection added.
func (q Query) Select(columns string) Query {
	q.sel = columns
	return q
}

func (q Query) withFilter(filter string) Query {
	// we want a true copy to avoid side effects
	q.filters = append(append([]string{}, q.filters...), filter)
	return q
}

// Eq returns a new query filtered on column equality.
func (q Query) Eq(column, value string) Query {
	return q.withFilter(url.QueryEscape(column) + "=eq." + url.QueryEscape(value))
}

// In returns a new query filtered on column membership.
func (q Query) In(column string, values []string) Query {
	escaped := make([]string, 0, len(values))
	for _, v := range values {
		escaped = append(escaped, url.QueryEscape(v))
	}
	return q.withFilter(url.QueryEscape(column) + "=in.(" + strings.Join(escaped, ",") + ")")
}

// Order returns a new query ordered by the given column.
func (q Query) Order(column string, ascending bool) Query {
	direction := "desc"
	if ascending {
		direction = "asc"
	}
	q.order = url.QueryEscape(column) + "." + direction
	return q
}

// Range returns a new query limited to the rows from..to, both inclusive.
func (q Query) Range(from, to int) Query {
	q.rangeFrom = from
	q.rangeTo = to
	q.hasRange = true
	return q
}

// WithCount returns a new query that also requests the exact total row
// count; retrieve it with GetWithCount.
func (q Query) WithCount() Query {
	q.withCount = true
	return q
}

func (q Query) path() string {
	parameters := []string{}
	if q.sel != "" {
		parameters = append(parameters, "select="+url.QueryEscape(q.sel))
	}
	parameters = append(parameters, q.filters...)
	if q.order != "" {
		parameters = append(parameters, "order="+q.order)
	}
	path := "/rest/v1/" + q.table
	if len(parameters) > 0 {
		path += "?" + strings.Join(parameters, "&")
	}
	return path
}

func (q Query) header() map[string]string {
	header := map[string]string{}
	if q.hasRange {
		header["Range"] = fmt.Sprintf("%d-%d", q.rangeFrom, q.rangeTo)
		header["Range-Unit"] = "items"
	}
	prefer := []string{}
	if q.withCount {
		prefer = append(prefer, "count=exact")
	}
	if q.isUpsert {
		prefer = append(prefer, "resolution=merge-duplicates")
	}
	if len(prefer) > 0 {
		header["Prefer"] = strings.Join(prefer, ",")
	}
	return header
}

// Get retrieves all matching rows.
func (q Query) Get(ctx context.Context, result interface{}) error {
	_, err := q.client.do(ctx, http.MethodGet, q.path(), q.header(), nil, result)
	return err
}

// GetWithCount retrieves all matching rows plus the exact total count of
// the unpaginated result, taken from the Content-Range header.
func (q Query) GetWithCount(ctx context.Context, result interface{}) (int, error) {
	q = q.WithCount()
	header, err := q.client.do(ctx, http.MethodGet, q.path(), q.header(), nil, result)
	if err != nil {
		return 0, err
	}
	return totalFromContentRange(header.Get("Content-Range")), nil
}

// Single retrieves exactly one matching row; a not-found error is returned
// when no row matches.
func (q Query) Single(ctx context.Context, result interface{}) error {
	header := q.header()
	header["Accept"] = "application/vnd.pgrst.object+json"
	_, err := q.client.do(ctx, http.MethodGet, q.path(), header, nil, result)
	return err
}

// Insert creates new rows. result can be nil.
func (q Query) Insert(ctx context.Context, body interface{}, result interface{}) error {
	header := q.header()
	if result != nil {
		header["Prefer"] = appendPrefer(header["Prefer"], "return=representation")
	}
	_, err := q.client.do(ctx, http.MethodPost, q.path(), header, body, result)
	return err
}

// Upsert creates rows, merging duplicates on primary key conflicts. This
// makes re-submitting a row with a client-generated ID idempotent.
func (q Query) Upsert(ctx context.Context, body interface{}, result interface{}) error {
	q.isUpsert = true
	header := q.header()
	if result != nil {
		header["Prefer"] = appendPrefer(header["Prefer"], "return=representation")
	}
	_, err := q.client.do(ctx, http.MethodPost, q.path(), header, body, result)
	return err
}

// Update patches the matching rows. result can be nil.
func (q Query) Update(ctx context.Context, body interface{}, result interface{}) error {
	header := q.header()
	if result != nil {
		header["Prefer"] = appendPrefer(header["Prefer"], "return=representation")
	}
	_, err := q.client.do(ctx, http.MethodPatch, q.path(), header, body, result)
	return err
}

// Delete removes the matching rows.
func (q Query) Delete(ctx context.Context) error {
	_, err := q.client.do(ctx, http.MethodDelete, q.path(), q.header(), nil, nil)
	return err
}

// Rpc calls a remote procedure with the given arguments.
func (c Client) Rpc(ctx context.Context, fn string, args interface{}) error {
	_, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, nil, args, nil)
	return err
}

func appendPrefer(prefer, value string) string {
	if prefer == "" {
		return value
	}
	return prefer + "," + value
}

func totalFromContentRange(contentRange string) int {
	// format: "0-19/42" or "*/0"
	i := strings.LastIndex(contentRange, "/")
	if i < 0 {
		return 0
	}
	total, err := strconv.Atoi(contentRange[i+1:])
	if err != nil {
		return 0
	}
	return total
}

// Bucket provides access to one file storage bucket.
type Bucket struct {
	client Client
	name   string
}

// Storage returns a client for the given storage bucket.
func (c Client) Storage(bucket string) Bucket {
	return Bucket{client: c, name: bucket}
}

// Upload stores an object under key.
func (b Bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.client.url+"/storage/v1/object/"+b.name+"/"+key, bytes.NewBuffer(data))
	if err != nil {
		return civic.NewNetworkError(err)
	}
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("apikey", b.client.apiKey)
	token := b.client.token
	if token == "" {
		token = b.client.apiKey
	}
	r.Header.Set("Authorization", "Bearer "+token)

	res, err := b.client.httpClient.Do(r)
	if err != nil {
		return civic.NewNetworkError(err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		resBody, _ := io.ReadAll(res.Body)
		return civic.ErrorFromStatus(res.StatusCode, strings.TrimSpace(string(resBody)))
	}
	return nil
}

// PublicURL returns the public download URL for key.
func (b Bucket) PublicURL(key string) string {
	return b.client.url + "/storage/v1/object/public/" + b.name + "/" + key
}
