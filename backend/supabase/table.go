package supabase

import (
	"context"
	"cuchimail/backend"
	"net/http"
	"strconv"
)

// Table is a PostgREST table handle
type Table struct {
	client *Client
	name   string
}

// Insert posts one row. The caller's access token, when attached to ctx,
// lets row-level security see the real identity.
func (t *Table) Insert(ctx context.Context, row backend.Row) error {
	token, _ := backend.AccessToken(ctx)
	_, err := t.client.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + t.name,
		token:   token,
		headers: map[string]string{"Prefer": "return=minimal"},
		body:    row,
	}, nil)
	return err
}

// Select fetches rows matching q
func (t *Table) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	token, _ := backend.AccessToken(ctx)

	query := [][2]string{{"select", "*"}}
	for _, f := range q.Filters {
		query = append(query, [2]string{f.Column, "eq." + f.Value})
	}
	if q.OrderBy != "" {
		dir := "desc"
		if q.Ascending {
			dir = "asc"
		}
		query = append(query, [2]string{"order", q.OrderBy + "." + dir})
	}
	if q.Limit > 0 {
		query = append(query, [2]string{"limit", strconv.Itoa(q.Limit)})
	}

	rows := []backend.Row{}
	_, err := t.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + t.name,
		token:  token,
		query:  query,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OnChange subscribes fn to realtime changes of this table
func (t *Table) OnChange(fn func(backend.Change)) func() {
	return t.client.realtime.Subscribe(t.name, fn)
}
