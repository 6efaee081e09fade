package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_sales/api"
	"api_sales/internal/accounts"
	"api_sales/internal/catalog"
	"api_sales/internal/persistence"
	"api_sales/internal/remote"
	"api_sales/internal/sales"
)

// customerService mimics the Customer Service.
type customerService struct {
	mu      sync.Mutex
	wallets map[string]float64
	charges int
}

func (s *customerService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /customers/{username}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		username := r.PathValue("username")
		wallet, ok := s.wallets[username]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 1, "full_name": "Test " + username, "username": username, "wallet": wallet,
		})
	})
	adjust := func(sign float64) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Amount float64 `json:"amount"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
				return
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			username := r.PathValue("username")
			if _, ok := s.wallets[username]; !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found."})
				return
			}
			if sign > 0 {
				s.charges++
			}
			s.wallets[username] += sign * body.Amount
			writeJSON(w, http.StatusOK, map[string]any{"wallet": s.wallets[username]})
		}
	}
	mux.HandleFunc("POST /customers/{username}/deduct", adjust(-1))
	mux.HandleFunc("POST /customers/{username}/charge", adjust(1))
	return mux
}

func (s *customerService) wallet(username string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[username]
}

func (s *customerService) chargeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charges
}

// inventoryService mimics the Inventory Service.
type inventoryService struct {
	mu      sync.Mutex
	items   []map[string]any
	failPut bool
}

func (s *inventoryService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, s.items)
	})
	mux.HandleFunc("PUT /inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failPut {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database locked"})
			return
		}
		var body struct {
			CountInStock int `json:"count_in_stock"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
			return
		}
		id, _ := strconv.Atoi(r.PathValue("id"))
		for _, it := range s.items {
			if it["id"] == id {
				it["count_in_stock"] = body.CountInStock
				writeJSON(w, http.StatusOK, it)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found."})
	})
	return mux
}

func (s *inventoryService) stock(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it["id"] == id {
			return it["count_in_stock"].(int)
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	router    *gin.Engine
	customers *customerService
	inventory *inventoryService
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	env := &testEnv{
		customers: &customerService{wallets: map[string]float64{"alice": 100, "poor": 5}},
		inventory: &inventoryService{items: []map[string]any{
			{"id": 1, "name": "Widget", "category": "tools", "price_per_item": 10.0, "description": "A widget", "count_in_stock": 5},
			{"id": 2, "name": "Gizmo", "category": "toys", "price_per_item": 2.5, "description": nil, "count_in_stock": 0},
		}},
	}
	customerSrv := httptest.NewServer(env.customers.handler())
	t.Cleanup(customerSrv.Close)
	inventorySrv := httptest.NewServer(env.inventory.handler())
	t.Cleanup(inventorySrv.Close)

	db, err := persistence.NewDatabase(persistence.Config{Driver: persistence.DriverSQLite, DSN: ":memory:"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background(), log))

	accountsClient := accounts.NewClient(remote.Config{BaseURL: customerSrv.URL, Timeout: 2 * time.Second}, log)
	catalogClient := catalog.NewClient(remote.Config{BaseURL: inventorySrv.URL, Timeout: 2 * time.Second}, log)
	t.Cleanup(func() {
		_ = accountsClient.Close()
		_ = catalogClient.Close()
	})

	svc := sales.NewService(persistence.NewPurchaseRepository(db.DB), accountsClient, catalogClient, log)
	env.router = api.NewRouter(svc, log, "sales-service-test")
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSalesHappyPath_FullFlow(t *testing.T) {
	env := setupRouter(t)

	t.Run("POST_CreateSale", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/sales", map[string]any{
			"customer_username": "alice",
			"item_name":         "widget",
			"quantity":          2,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := decode[map[string]any](t, w)
		assert.Equal(t, "Purchase successful.", body["message"])
		assert.Equal(t, float64(1), body["purchase_id"])
		assert.NotEmpty(t, body["sale_id"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		assert.Equal(t, 80.0, env.customers.wallet("alice"))
		assert.Equal(t, 3, env.inventory.stock(1))
	})

	t.Run("GET_PurchaseHistory", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/customers/alice/purchases", nil)
		require.Equal(t, http.StatusOK, w.Code)

		purchases := decode[[]map[string]any](t, w)
		require.Len(t, purchases, 1)
		assert.Equal(t, "alice", purchases[0]["customer_username"])
		assert.Equal(t, "widget", purchases[0]["item_name"])
		assert.Equal(t, float64(2), purchases[0]["quantity"])
		assert.Equal(t, float64(20), purchases[0]["total_price"])
		assert.NotEmpty(t, purchases[0]["purchase_date"])
	})

	t.Run("GET_Purchases", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/purchases", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]map[string]any](t, w), 1)
	})
}

func TestCreateSale_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"insufficient stock", map[string]any{"customer_username": "alice", "item_name": "Widget", "quantity": 10}, http.StatusBadRequest, "insufficient_stock"},
		{"insufficient funds", map[string]any{"customer_username": "poor", "item_name": "Widget", "quantity": 1}, http.StatusBadRequest, "insufficient_funds"},
		{"unknown customer", map[string]any{"customer_username": "ghost", "item_name": "Widget", "quantity": 1}, http.StatusNotFound, "customer_not_found"},
		{"unknown item", map[string]any{"customer_username": "alice", "item_name": "Sprocket", "quantity": 1}, http.StatusNotFound, "item_not_found"},
		{"missing customer", map[string]any{"item_name": "Widget", "quantity": 1}, http.StatusBadRequest, "validation_error"},
		{"missing quantity", map[string]any{"customer_username": "alice", "item_name": "Widget"}, http.StatusBadRequest, "validation_error"},
		{"quantity not a number", map[string]any{"customer_username": "alice", "item_name": "Widget", "quantity": "abc"}, http.StatusBadRequest, "validation_error"},
		{"negative quantity", map[string]any{"customer_username": "alice", "item_name": "Widget", "quantity": -1}, http.StatusBadRequest, "validation_error"},
		{"malformed json", `{"customer_username": `, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter(t)

			w := env.do(t, http.MethodPost, "/sales", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode[map[string]any](t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])

			assert.Equal(t, 100.0, env.customers.wallet("alice"))
			assert.Equal(t, 5, env.inventory.stock(1))

			history := env.do(t, http.MethodGet, "/purchases", nil)
			assert.JSONEq(t, `[]`, history.Body.String())
		})
	}
}

func TestCreateSale_QuantityAsString(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/sales", map[string]any{
		"customer_username": "alice", "item_name": "Widget", "quantity": "3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 70.0, env.customers.wallet("alice"))
	assert.Equal(t, 2, env.inventory.stock(1))
}

func TestCreateSale_StockUpdateFailsRefunds(t *testing.T) {
	env := setupRouter(t)
	env.inventory.mu.Lock()
	env.inventory.failPut = true
	env.inventory.mu.Unlock()

	w := env.do(t, http.MethodPost, "/sales", map[string]any{
		"customer_username": "alice", "item_name": "Widget", "quantity": 2,
	})
	assert.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.Equal(t, "sale_failed", decode[map[string]any](t, w)["code"])

	assert.Equal(t, 100.0, env.customers.wallet("alice"))
	assert.Equal(t, 1, env.customers.chargeCount())

	history := env.do(t, http.MethodGet, "/customers/alice/purchases", nil)
	assert.Equal(t, http.StatusOK, history.Code)
	assert.JSONEq(t, `[]`, history.Body.String())
}

func TestCreateSale_CustomerServiceDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	inventory := &inventoryService{}
	inventorySrv := httptest.NewServer(inventory.handler())
	defer inventorySrv.Close()

	svc := sales.NewService(sales.NewLocalStorage(),
		accounts.NewClient(remote.Config{BaseURL: downURL, Timeout: time.Second}, log),
		catalog.NewClient(remote.Config{BaseURL: inventorySrv.URL, Timeout: time.Second}, log),
		log)
	router := api.NewRouter(svc, log, "sales-service-test")

	body, _ := json.Marshal(map[string]any{"customer_username": "alice", "item_name": "Widget", "quantity": 1})
	req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.JSONEq(t, `{"error":"A required service is unavailable.","code":"dependency_unavailable"}`, w.Body.String())
}

func TestGoods(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/goods", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Widget","price_per_item":10}]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/goods/gizmo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	item := decode[map[string]any](t, w)
	assert.Equal(t, "Gizmo", item["name"])
	assert.Equal(t, 2.5, item["price_per_item"])
	assert.Equal(t, float64(0), item["count_in_stock"])

	w = env.do(t, http.MethodGet, "/goods/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "item_not_found", decode[map[string]any](t, w)["code"])
}

func TestWelcomeAndPing(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Welcome to the Sales Service!"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestPurchaseHistory_Empty(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodGet, "/customers/nobody/purchases", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
