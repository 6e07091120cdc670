package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shiken_shop/internal/models"
)

type fakeES struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_, _ = io.WriteString(w, `{"version":{"number":"9.0.0"}}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":2},"hits":[{"_id":"rpg-2"},{"_id":"rpg-1"}]}}`)
	case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/missing"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	case r.Method == http.MethodDelete:
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	default:
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}
}

func newIndex(t *testing.T) (*ESIndex, *fakeES) {
	t.Helper()
	f := &fakeES{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewESIndex(client, "products"), f
}

func TestESIndex_IndexAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x, f := newIndex(t)

	require.NoError(t, x.IndexProduct(ctx, models.Product{ID: "rpg-1", Name: "Elden Ring", Category: "rpg"}))
	require.NoError(t, x.DeleteProduct(ctx, "rpg-1"))
	require.NoError(t, x.DeleteProduct(ctx, "missing"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 3)
	assert.Equal(t, "PUT /products/_doc/rpg-1", f.requests[0])
	assert.Contains(t, f.bodies[0], `"name":"Elden Ring"`)
	assert.Equal(t, "DELETE /products/_doc/rpg-1", f.requests[1])
}

func TestESIndex_Search(t *testing.T) {
	t.Parallel()
	x, f := newIndex(t)

	res, err := x.Search(context.Background(), "ring", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, []string{"rpg-2", "rpg-1"}, res.IDs)

	f.mu.Lock()
	defer f.mu.Unlock()
	var q map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.bodies[0]), &q))
	assert.EqualValues(t, 10, q["size"])
}

func TestNewClient_Info(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(&fakeES{})
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.URL, "", "")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	p := models.Product{Name: "Elden Ring", Description: "Open world", Category: "rpg"}

	tests := []struct {
		q    string
		want bool
	}{
		{"ring", true},
		{"OPEN", true},
		{"rpg", true},
		{"  elden ", true},
		{"shooter", false},
		{"", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.q, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Match(p, tt.q))
		})
	}
}
