package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_sales/internal/remote"
)

const inventoryJSON = `[
	{"id": 1, "name": "Widget", "category": "tools", "price_per_item": 10, "description": null, "count_in_stock": 5},
	{"id": 2, "name": "Gadget", "category": "tools", "price_per_item": 15.25, "description": "shiny", "count_in_stock": 0}
]`

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(inventoryJSON))
	}))
	defer srv.Close()

	c := NewClient(remote.Config{BaseURL: srv.URL + "/"}, zaptest.NewLogger(t))
	defer c.Close()

	items, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Widget", items[0].Name)
	assert.True(t, decimal.NewFromInt(10).Equal(items[0].PricePerItem))
	assert.True(t, decimal.RequireFromString("15.25").Equal(items[1].PricePerItem))
	assert.Equal(t, 5, items[0].CountInStock)
	assert.Equal(t, "shiny", items[1].Description)
}

func TestClient_ListUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(remote.Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	defer c.Close()

	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestClient_SetStock(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotCount int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body struct {
			CountInStock int `json:"count_in_stock"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		gotPath = r.URL.Path
		gotCount = body.CountInStock
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": "Item updated successfully!"}`))
	}))
	defer srv.Close()

	c := NewClient(remote.Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.SetStock(context.Background(), 42, 3))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/inventory/42", gotPath)
	assert.Equal(t, 3, gotCount)

	assert.ErrorIs(t, c.SetStock(context.Background(), 42, -1), ErrInvalidCount)
}

func TestClient_SetStockRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(remote.Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	defer c.Close()

	err := c.SetStock(context.Background(), 9, 1)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.NotErrorIs(t, err, remote.ErrUnknownOutcome)
}

func TestFind(t *testing.T) {
	items := []Item{{ID: 1, Name: "Widget"}, {ID: 2, Name: "Gadget"}}

	it, ok := Find(items, "wIdGeT")
	require.True(t, ok)
	assert.Equal(t, int64(1), it.ID)

	_, ok = Find(items, "Sprocket")
	assert.False(t, ok)
}
