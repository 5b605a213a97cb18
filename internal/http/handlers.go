package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"karyarasa/internal/domain"
	"karyarasa/internal/metrics"
	"karyarasa/internal/repository"
	"karyarasa/internal/service"
)

type Server struct {
	engine   *gin.Engine
	users    *service.UserService
	products *service.ProductService
	carts    *service.CartService
	promos   *service.PromoService
	orders   *service.OrderService
}

func NewServer(
	users *service.UserService,
	products *service.ProductService,
	carts *service.CartService,
	promos *service.PromoService,
	orders *service.OrderService,
) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	s := &Server{engine: r, users: users, products: products, carts: carts, promos: promos, orders: orders}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI и метрики
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	users := s.engine.Group("/users")
	users.POST("", s.createUser)
	users.GET(":id", s.getUser)

	categories := s.engine.Group("/categories")
	categories.POST("", s.createCategory)
	categories.GET("", s.listCategories)
	categories.GET(":id", s.getCategory)
	categories.DELETE(":id", s.deleteCategory)

	products := s.engine.Group("/products")
	products.POST("", s.createProduct)
	products.GET("", s.listProducts)
	products.GET(":id", s.getProduct)
	products.PUT(":id", s.updateProduct)
	products.DELETE(":id", s.deleteProduct)

	carts := s.engine.Group("/carts")
	carts.GET(":user_id", s.getCart)
	carts.POST(":user_id/items", s.addCartItem)
	carts.DELETE(":user_id/items/:product_id", s.removeCartItem)

	promos := s.engine.Group("/promos")
	promos.POST("", s.createPromo)
	promos.GET("", s.listPromos)

	tx := s.engine.Group("/transactions")
	tx.POST("checkout/:user_id", s.checkout)
	tx.PUT(":id/status", s.updateTransactionStatus)
	tx.GET("", s.listTransactions)
	// в GET-дереве gin статический сегмент "user" не уживается с параметром
	// ":id" на том же уровне, поэтому остальные GET-пути разбираются вручную
	tx.GET("*path", s.transactionsByPath)
}

// apiResponse конверт ответов транзакционных ручек
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, code int, message string, data any) {
	c.JSON(code, apiResponse{Status: "success", Message: message, Data: data})
}

func fail(c *gin.Context, err error) {
	c.JSON(mapErrorToStatus(err), apiResponse{Status: "error", Message: err.Error()})
}

// User handlers
type createUserReq struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Role        string `json:"role"`
	BankAccount string `json:"bank_account"`
}

// @Summary Create user
// @Tags users
// @Accept json
// @Produce json
// @Param input body createUserReq true "User"
// @Success 201 {object} domain.User
// @Failure 400 {object} map[string]string
// @Router /users [post]
func (s *Server) createUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	u, err := s.users.Create(c, domain.User{
		Name: req.Name, Email: req.Email, Phone: req.Phone,
		Address: req.Address, Role: req.Role, BankAccount: req.BankAccount,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, u)
}

// @Summary Get user by id
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} domain.User
// @Failure 404 {object} map[string]string
// @Router /users/{id} [get]
func (s *Server) getUser(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	u, err := s.users.GetByID(c, id)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, u)
}

// Category handlers
type createCategoryReq struct {
	Name string `json:"name"`
}

// @Summary Create category
// @Tags categories
// @Accept json
// @Produce json
// @Param input body createCategoryReq true "Category"
// @Success 201 {object} domain.Category
// @Failure 400 {object} map[string]string
// @Router /categories [post]
func (s *Server) createCategory(c *gin.Context) {
	var req createCategoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cat, err := s.products.CreateCategory(c, domain.Category{Name: req.Name})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// @Summary List categories
// @Tags categories
// @Produce json
// @Success 200 {array} domain.Category
// @Router /categories [get]
func (s *Server) listCategories(c *gin.Context) {
	list, err := s.products.ListCategories(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get category by id
// @Tags categories
// @Produce json
// @Param id path int true "Category ID"
// @Success 200 {object} domain.Category
// @Failure 404 {object} map[string]string
// @Router /categories/{id} [get]
func (s *Server) getCategory(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	cat, err := s.products.GetCategory(c, id)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cat)
}

// @Summary Delete category
// @Tags categories
// @Param id path int true "Category ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /categories/{id} [delete]
func (s *Server) deleteCategory(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.products.DeleteCategory(c, id); err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Product handlers
type createProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  int64           `json:"category_id"`
	SellerID    int64           `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	ImageURL    string          `json:"image_url"`
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Create(c, domain.Product{
		Name: req.Name, Description: req.Description, CategoryID: req.CategoryID,
		SellerID: req.SellerID, Price: req.Price, Stock: req.Stock, ImageURL: req.ImageURL,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := s.products.GetByID(c, id)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// updateProductReq поля-указатели: отсутствующее поле не трогает товар
type updateProductReq struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	CategoryID  *int64           `json:"category_id"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int64           `json:"stock"`
	ImageURL    *string          `json:"image_url"`
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body updateProductReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Update(c, id, service.ProductUpdate{
		Name: req.Name, Description: req.Description, CategoryID: req.CategoryID,
		Price: req.Price, Stock: req.Stock, ImageURL: req.ImageURL,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param id path int true "Product ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.products.Delete(c, id); err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param category_id query int false "Category"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Success 200 {array} domain.Product
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var f repository.ProductFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("category_id"); v != "" {
		if x, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CategoryID = &x
		}
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MaxPrice = &x
		}
	}
	list, err := s.products.List(c, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// Cart handlers
type addCartItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// @Summary Get user's cart
// @Tags carts
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} domain.Cart
// @Router /carts/{user_id} [get]
func (s *Server) getCart(c *gin.Context) {
	userID, err := parseID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	cart, err := s.carts.GetCart(c, userID)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Add item to cart
// @Tags carts
// @Accept json
// @Produce json
// @Param user_id path int true "User ID"
// @Param input body addCartItemReq true "Item"
// @Success 201 {object} domain.CartItem
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /carts/{user_id}/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	userID, err := parseID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req addCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	item, err := s.carts.AddItem(c, userID, req.ProductID, req.Quantity)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// @Summary Remove item from cart
// @Tags carts
// @Param user_id path int true "User ID"
// @Param product_id path int true "Product ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /carts/{user_id}/items/{product_id} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	userID, err := parseID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	productID, err := parseID(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if err := s.carts.RemoveItem(c, userID, productID); err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Promo handlers
type createPromoReq struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	IsActive        *bool           `json:"is_active"`
}

// @Summary Create promo code
// @Tags promos
// @Accept json
// @Produce json
// @Param input body createPromoReq true "Promo"
// @Success 201 {object} domain.PromoCode
// @Failure 400 {object} map[string]string
// @Router /promos [post]
func (s *Server) createPromo(c *gin.Context) {
	var req createPromoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	p, err := s.promos.Create(c, domain.PromoCode{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		IsActive:        active,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List promo codes
// @Tags promos
// @Produce json
// @Success 200 {array} domain.PromoCode
// @Router /promos [get]
func (s *Server) listPromos(c *gin.Context) {
	list, err := s.promos.List(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// Transaction handlers
type checkoutReq struct {
	PromoCode string `json:"promo_code"`
}

// @Summary Checkout user's cart into an order
// @Tags transactions
// @Accept json
// @Produce json
// @Param user_id path int true "User ID"
// @Param input body checkoutReq false "Optional promo code"
// @Success 201 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /transactions/checkout/{user_id} [post]
func (s *Server) checkout(c *gin.Context) {
	userID, err := parseID(c.Param("user_id"))
	if err != nil {
		fail(c, service.ErrInvalidInput)
		return
	}
	// пустое тело допустимо; io.EOF от декодера означает именно его
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, service.ErrInvalidInput)
		return
	}
	order, err := s.orders.Checkout(c, userID, req.PromoCode)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "checkout successful", order)
}

// @Summary List all transactions
// @Tags transactions
// @Produce json
// @Success 200 {object} apiResponse
// @Router /transactions [get]
func (s *Server) listTransactions(c *gin.Context) {
	list, err := s.orders.ListOrders(c)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "transactions retrieved", list)
}

func (s *Server) transactionsByPath(c *gin.Context) {
	p := strings.Trim(c.Param("path"), "/")
	segs := strings.Split(p, "/")
	switch {
	case p == "":
		s.listTransactions(c)
	case len(segs) == 1:
		s.getTransaction(c, segs[0])
	case len(segs) == 2 && segs[0] == "user":
		s.listUserTransactions(c, segs[1])
	default:
		fail(c, repository.ErrNotFound)
	}
}

// @Summary Get transaction by id
// @Tags transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /transactions/{id} [get]
func (s *Server) getTransaction(c *gin.Context, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		fail(c, service.ErrInvalidInput)
		return
	}
	order, err := s.orders.GetOrder(c, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "transaction retrieved", order)
}

// @Summary List user's transactions
// @Tags transactions
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /transactions/user/{user_id} [get]
func (s *Server) listUserTransactions(c *gin.Context, rawID string) {
	userID, err := parseID(rawID)
	if err != nil {
		fail(c, service.ErrInvalidInput)
		return
	}
	list, err := s.orders.ListUserOrders(c, userID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "user transactions retrieved", list)
}

type updateStatusReq struct {
	Status       string `json:"status"`
	PaymentProof string `json:"payment_proof"`
}

// @Summary Update transaction status
// @Tags transactions
// @Accept json
// @Produce json
// @Param id path int true "Transaction ID"
// @Param input body updateStatusReq true "Status"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /transactions/{id}/status [put]
func (s *Server) updateTransactionStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		fail(c, service.ErrInvalidInput)
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, service.ErrInvalidInput)
		return
	}
	order, err := s.orders.UpdateStatus(c, id, domain.OrderStatus(req.Status), req.PaymentProof)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "transaction status updated", order)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrNotEnoughStock),
		errors.Is(err, service.ErrPromoInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStockConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
