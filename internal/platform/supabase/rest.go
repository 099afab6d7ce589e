package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const restPath = "/rest/v1/"

// Query builds PostgREST filter parameters (column=operator.value).
type Query struct {
	values url.Values
}

// NewQuery starts an empty query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Select restricts the returned columns.
func (q *Query) Select(columns string) *Query {
	q.values.Set("select", columns)
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column, value string) *Query {
	q.values.Add(column, "eq."+value)
	return q
}

// Like adds a pattern filter; PostgREST uses * as the wildcard.
func (q *Query) Like(column, pattern string) *Query {
	q.values.Add(column, "like."+pattern)
	return q
}

// Order sorts by column, descending when desc is set.
func (q *Query) Order(column string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.values.Set("order", column+"."+dir)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.values.Set("limit", strconv.Itoa(n))
	return q
}

// Values exposes the encoded parameters.
func (q *Query) Values() url.Values {
	if q == nil {
		return nil
	}
	return q.values
}

// Select runs a row query against table and decodes the JSON array into out.
func (c *Client) Select(ctx context.Context, table string, q *Query, out any) error {
	return c.do(ctx, request{method: http.MethodGet, path: restPath + table, query: q.Values()}, out)
}

// Insert adds row to table. When out is non-nil the created rows are
// requested back with Prefer: return=representation.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	header := http.Header{}
	if out != nil {
		header.Set("Prefer", "return=representation")
	} else {
		header.Set("Prefer", "return=minimal")
	}
	return c.do(ctx, request{method: http.MethodPost, path: restPath + table, body: row, header: header}, out)
}

// RPC invokes a Postgres function exposed by PostgREST.
func (c *Client) RPC(ctx context.Context, fn string, params any, out any) error {
	return c.do(ctx, request{method: http.MethodPost, path: restPath + "rpc/" + fn, body: params}, out)
}
