package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"karyarasa/internal/metrics"
	"karyarasa/internal/repository"
	"karyarasa/internal/service"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	store := repository.NewMemoryStore()
	return setupServerWithProducts(t, store, store)
}

// setupServerWithProducts lets tests swap the catalog seen by the checkout path
func setupServerWithProducts(t *testing.T, store *repository.MemoryStore, products repository.ProductRepository) *Server {
	t.Helper()
	usersRepo := repository.NewMemoryUsers(store)
	categoriesRepo := repository.NewMemoryCategories(store)
	cartsRepo := repository.NewMemoryCarts(store)
	promosRepo := repository.NewMemoryPromos(store)
	ordersRepo := repository.NewMemoryOrders(store)
	tx := repository.NewMemoryTx(store)
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry())

	usersSvc := service.NewUserService(usersRepo)
	productsSvc := service.NewProductService(store, categoriesRepo)
	cartsSvc := service.NewCartService(cartsRepo, store)
	promosSvc := service.NewPromoService(promosRepo)
	ordersSvc := service.NewOrderService(cartsRepo, products, usersRepo, ordersRepo, promosSvc, tx, m)
	return NewServer(usersSvc, productsSvc, cartsSvc, promosSvc, ordersSvc)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

// seedMarketplace seller (user 1), buyer (user 2), category 1, products 1 and 2
func seedMarketplace(t *testing.T, s *Server) {
	t.Helper()
	steps := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/users", map[string]any{"name": "Sari Craft", "email": "sari@example.com", "role": "owner"}},
		{http.MethodPost, "/users", map[string]any{"name": "Budi", "email": "budi@example.com"}},
		{http.MethodPost, "/categories", map[string]any{"name": "Batik"}},
		{http.MethodPost, "/products", map[string]any{
			"name": "Batik Scarf", "category_id": 1, "seller_id": 1,
			"price": "50.00", "stock": 5, "image_url": "http://img/a.jpg",
		}},
		{http.MethodPost, "/products", map[string]any{
			"name": "Songket Pouch", "category_id": 1, "seller_id": 1,
			"price": "30.00", "stock": 1, "image_url": "http://img/b.jpg",
		}},
	}
	for _, st := range steps {
		if w := doJSON(t, s, st.method, st.path, st.body); w.Code != http.StatusCreated {
			t.Fatalf("seed %s %s: %v %s", st.method, st.path, w.Code, w.Body.String())
		}
	}
}

func TestProductFlow(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)

	w := doJSON(t, s, http.MethodGet, "/products/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPut, "/products/1", map[string]any{"name": "Batik Scarf XL", "price": "55.00"})
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/products?q=batik&min_price=40", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/products/2", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/products/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)

	// buyer fills the cart: 2x product 1, 1x product 2
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 2, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID         int64  `json:"id"`
			UserID     int64  `json:"user_id"`
			TotalPrice string `json:"total_price"`
			Items      []struct {
				ProductName string `json:"product_name"`
				SellerName  string `json:"seller_name"`
				Price       string `json:"price"`
				Quantity    int64  `json:"quantity"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.Data.UserID != 2 {
		t.Fatalf("envelope: %+v", resp)
	}
	if resp.Data.TotalPrice != "130" {
		t.Fatalf("total expected 130, got %q", resp.Data.TotalPrice)
	}
	if len(resp.Data.Items) != 2 || resp.Data.Items[0].SellerName != "Sari Craft" {
		t.Fatalf("items: %+v", resp.Data.Items)
	}

	// cart is gone, second checkout fails with 400
	w = doJSON(t, s, http.MethodGet, "/carts/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get cart %v", w.Code)
	}
	var cart struct {
		Items []any `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &cart)
	if len(cart.Items) != 0 {
		t.Fatalf("cart should be empty after checkout: %+v", cart.Items)
	}
	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty cart checkout expected 400, got %v", w.Code)
	}

	// order visible through queries
	w = doJSON(t, s, http.MethodGet, "/transactions/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get transaction %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/transactions/user/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("user transactions %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/transactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("all transactions %v", w.Code)
	}
}

func TestCheckoutWithPromo(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)

	w := doJSON(t, s, http.MethodPost, "/promos", map[string]any{"code": "SAVE10", "discount_percent": "10"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create promo %v %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 2, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", map[string]any{"promo_code": "SAVE10"})
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout %v %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			TotalPrice string `json:"total_price"`
		} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.TotalPrice != "117" {
		t.Fatalf("total expected 117, got %q", resp.Data.TotalPrice)
	}
}

func TestCheckout_BadPromoIs400(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", map[string]any{"promo_code": "NOSUCH"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "error" {
		t.Fatalf("envelope status: %+v", resp)
	}
}

func TestCheckout_InsufficientStockIs400(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)
	// product 2 has stock 1
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 2, "quantity": 3})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
}

// refusingStock is the catalog after a concurrent checkout won the race:
// reads still show stock, every decrement is refused
type refusingStock struct {
	repository.ProductRepository
}

func (refusingStock) DecrementStock(ctx context.Context, productID, by int64) error {
	return repository.ErrInsufficientStock
}

func TestCheckout_ConcurrentConflictIs409(t *testing.T) {
	store := repository.NewMemoryStore()
	s := setupServerWithProducts(t, store, refusingStock{store})
	seedMarketplace(t, s)
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "error" {
		t.Fatalf("envelope status: %+v", resp)
	}

	// nothing committed, the cart can be checked out again later
	w = doJSON(t, s, http.MethodGet, "/transactions", nil)
	var list struct {
		Data []any `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Data) != 0 {
		t.Fatalf("no transaction should exist: %+v", list.Data)
	}
}

func TestCheckout_ChunkedBodyCarriesPromo(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}

	// unknown content length (chunked transfer) must not drop the promo code
	req := httptest.NewRequest(http.MethodPost, "/transactions/checkout/2",
		bytes.NewBufferString(`{"promo_code":"NOSUCH"}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("promo must be seen and rejected, got %v %s", w.Code, w.Body.String())
	}
}

func TestTransactionStatusUpdate(t *testing.T) {
	s := setupServer(t)
	seedMarketplace(t, s)
	w := doJSON(t, s, http.MethodPost, "/carts/2/items", map[string]any{"product_id": 1, "quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add item %v", w.Code)
	}
	if w = doJSON(t, s, http.MethodPost, "/transactions/checkout/2", nil); w.Code != http.StatusCreated {
		t.Fatalf("checkout %v", w.Code)
	}

	// missing status -> 400
	w = doJSON(t, s, http.MethodPut, "/transactions/1/status", map[string]any{"payment_proof": "x.jpg"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPut, "/transactions/1/status", map[string]any{"status": "paid", "payment_proof": "x.jpg"})
	if w.Code != http.StatusOK {
		t.Fatalf("status update %v %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/transactions/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}
}

func TestHTTP_BadRequests(t *testing.T) {
	s := setupServer(t)

	w := doJSON(t, s, http.MethodPost, "/products", map[string]any{"name": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/products/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/transactions/checkout/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
}
