package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"retailstock/internal/core/apperror"
	"retailstock/internal/core/entity"
	"retailstock/internal/core/id"
	"retailstock/internal/core/security"
	"retailstock/internal/core/types"
	"retailstock/internal/domain/auth"
	"retailstock/internal/domain/catalogs/account"
	"retailstock/internal/domain/catalogs/branch"
	"retailstock/internal/domain/catalogs/product"
	"retailstock/internal/domain/ledger"
	"retailstock/internal/domain/registers/stock"
	"retailstock/internal/domain/reports"
	v1 "retailstock/internal/infrastructure/http/v1"
	"retailstock/internal/infrastructure/http/v1/dto"
	"retailstock/internal/infrastructure/http/v1/handlers"
	"retailstock/internal/infrastructure/http/v1/middleware"
	"retailstock/internal/infrastructure/storage/memory"
)

const password = "s3cret-pass"

// testServer wires the API over the in-memory store.
type testServer struct {
	t      *testing.T
	store  *memory.Store
	engine *gin.Engine

	accountID, otherAccountID id.ID
	remera, kacyiru           id.ID
	sugar, rice               id.ID
}

type serverOption func(*v1.RouterConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	authSvc := auth.NewService(store.Users(), store.Branches(), store, jwt, auth.ServiceConfig{
		MaxLoginAttempts:  5,
		LockDuration:      time.Minute,
		PasswordMinLength: 8,
		BcryptCost:        bcrypt.MinCost,
	})
	accounts := account.NewService(store.Accounts(), store)
	branches := branch.NewService(store.Branches(), store, store.Accounts(), authSvc)
	products := product.NewService(store.Products(), store, store.Branches())
	engine := ledger.NewEngine(store, store.Stock(), store.Movements(), store.Logs(), store)

	cfg := v1.RouterConfig{
		JWTValidator: jwt,
		AuthService:  authSvc,
		Accounts:     accounts,
		Branches:     branches,
		Products:     products,
		Stock:        stock.NewService(store.Stock(), store),
		Ledger:       ledger.NewService(engine, store, store.Movements(), store),
		Reports: reports.NewService(store.Reports(), store.Logs(), store, reports.Config{
			RecentWindow: 24 * time.Hour,
			Location:     time.UTC,
		}),
		Catalog:     store,
		Idempotency: memory.NewIdempotencyStore(time.Hour),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ts := &testServer{t: t, store: store, engine: v1.NewRouter(cfg)}

	kigali := account.NewAccount("Kigali Shops")
	require.NoError(t, accounts.Create(ctx, kigali))
	other := account.NewAccount("Musanze Traders")
	require.NoError(t, accounts.Create(ctx, other))
	ts.accountID, ts.otherAccountID = kigali.ID, other.ID

	remera := branch.NewBranch(kigali.ID, "Remera")
	require.NoError(t, branches.Create(ctx, remera))
	kacyiru := branch.NewBranch(kigali.ID, "Kacyiru")
	require.NoError(t, branches.Create(ctx, kacyiru))
	ts.remera, ts.kacyiru = remera.ID, kacyiru.ID

	sugar := product.NewProduct(kigali.ID, remera.ID, "Sugar", "Food", types.MustMoney("5.00"), types.MustMoney("8.00"))
	require.NoError(t, products.Create(ctx, sugar))
	rice := product.NewProduct(kigali.ID, kacyiru.ID, "Rice", "Food", types.MustMoney("2.50"), types.MustMoney("4.00"))
	require.NoError(t, products.Create(ctx, rice))
	ts.sugar, ts.rice = sugar.ID, rice.ID

	users := []auth.CreateUserRequest{
		{Email: "admin@shops.test", Role: security.RoleAdmin},
		{Email: "manager@shops.test", Role: security.RoleManager, AccountID: &kigali.ID},
		{Email: "staff@shops.test", Role: security.RoleStaff, AccountID: &kigali.ID, BranchID: &remera.ID},
		{Email: "outsider@shops.test", Role: security.RoleManager, AccountID: &other.ID},
	}
	for _, u := range users {
		u.Password = password
		_, err := authSvc.CreateUser(ctx, u)
		require.NoError(t, err)
	}

	return ts
}

// request sends body as JSON with an optional bearer token and extra headers.
func (ts *testServer) request(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(email string) string {
	ts.t.Helper()
	w := ts.request(http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: email, Password: password})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.LoginResponse
	decode(ts.t, w, &resp)
	require.NotEmpty(ts.t, resp.Token.AccessToken)
	return resp.Token.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	decode(t, w, &resp)
	return resp.Code
}

func stockIn(productID, branchID id.ID, qty int64) dto.MovementRequest {
	return dto.MovementRequest{
		ProductID: productID.String(),
		BranchID:  branchID.String(),
		Type:      "in",
		Quantity:  qty,
	}
}

func stockOut(productID, branchID id.ID, qty int64, amount string) dto.MovementRequest {
	m := types.MustMoney(amount)
	cash := "Cash"
	return dto.MovementRequest{
		ProductID:     productID.String(),
		BranchID:      branchID.String(),
		Type:          "OUT",
		Quantity:      qty,
		SellingAmount: &m,
		PaymentMethod: &cash,
	}
}

func TestHealth(t *testing.T) {
	failing := handlers.PingFunc(func(context.Context) error { return errors.New("connection refused") })
	ts := newTestServer(t, func(cfg *v1.RouterConfig) {
		cfg.HealthChecks = map[string]handlers.Pinger{"postgres": failing}
	})

	w := ts.request(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.request(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	t.Run("me", func(t *testing.T) {
		token := ts.login("staff@shops.test")
		w := ts.request(http.MethodGet, "/api/v1/auth/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var me dto.UserResponse
		decode(t, w, &me)
		assert.Equal(t, "staff@shops.test", me.Email)
		assert.Equal(t, string(security.RoleStaff), me.Role)
		require.NotNil(t, me.BranchID)
		assert.Equal(t, ts.remera.String(), *me.BranchID)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "staff@shops.test", Password: "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))
	})

	t.Run("missing token", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/movements", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))
	})

	t.Run("garbage token", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/movements", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("staff cannot manage users", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/users", ts.login("staff@shops.test"), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestMovementLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login("manager@shops.test")
	key := entity.StockKey{ProductID: ts.sugar, BranchID: ts.remera}

	w := ts.request(http.MethodPost, "/api/v1/movements", token, stockIn(ts.sugar, ts.remera, 100))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var in dto.MovementResultResponse
	decode(t, w, &in)
	assert.EqualValues(t, 0, in.StockBefore)
	assert.EqualValues(t, 100, in.StockAfter)

	w = ts.request(http.MethodPost, "/api/v1/movements", token, stockOut(ts.sugar, ts.remera, 30, "200.00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out dto.MovementResultResponse
	decode(t, w, &out)
	assert.True(t, types.MustMoney("50").Equal(out.Profit), "profit %s", out.Profit)
	assert.EqualValues(t, 70, out.StockAfter)

	w = ts.request(http.MethodPut, "/api/v1/movements/"+out.MovementID, token, stockOut(ts.sugar, ts.remera, 40, "260.00"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated dto.MovementResultResponse
	decode(t, w, &updated)
	assert.EqualValues(t, 100, updated.StockBefore, "before is taken after the old effect is reversed")
	assert.EqualValues(t, 60, updated.StockAfter)
	assert.True(t, types.MustMoney("60").Equal(updated.Profit), "profit %s", updated.Profit)

	w = ts.request(http.MethodGet, "/api/v1/stock/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary reports.StockSummary
	decode(t, w, &summary)
	assert.EqualValues(t, 60, summary.TotalQuantity)
	assert.True(t, types.MustMoney("300").Equal(summary.TotalValue), "value %s", summary.TotalValue)

	w = ts.request(http.MethodDelete, "/api/v1/movements/"+out.MovementID, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var deleted dto.MovementResultResponse
	decode(t, w, &deleted)
	assert.EqualValues(t, 100, deleted.StockAfter)
	assert.True(t, types.MustMoney("-60").Equal(deleted.Profit), "profit %s", deleted.Profit)

	level, ok := ts.store.Level(key)
	require.True(t, ok)
	assert.EqualValues(t, 100, level)

	w = ts.request(http.MethodGet, "/api/v1/movements/"+out.MovementID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.request(http.MethodGet, "/api/v1/movements/"+out.MovementID+"/logs", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var logs struct {
		Items []entity.MovementLog `json:"items"`
	}
	decode(t, w, &logs)
	require.Len(t, logs.Items, 3)
	assert.Equal(t, entity.LogActionDelete, logs.Items[0].Action, "newest first")
	assert.Equal(t, entity.LogActionCreate, logs.Items[2].Action)
}

func TestMovementErrors(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login("manager@shops.test")

	w := ts.request(http.MethodPost, "/api/v1/movements", token, stockIn(ts.sugar, ts.remera, 5))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	noPayment := stockOut(ts.sugar, ts.remera, 1, "8.00")
	noPayment.PaymentMethod = nil

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"more than available", stockOut(ts.sugar, ts.remera, 6, "48.00"), http.StatusUnprocessableEntity, apperror.CodeInsufficientStock},
		{"missing payment method", noPayment, http.StatusBadRequest, apperror.CodeMissingPaymentMethod},
		{"zero quantity", stockIn(ts.sugar, ts.remera, 0), http.StatusBadRequest, apperror.CodeValidation},
		{"bad product id", dto.MovementRequest{ProductID: "x", BranchID: ts.remera.String(), Type: "IN", Quantity: 1}, http.StatusBadRequest, apperror.CodeValidation},
		{"malformed body", "not an object", http.StatusBadRequest, apperror.CodeValidation},
		{"unknown product", stockIn(id.New(), ts.remera, 1), http.StatusNotFound, apperror.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.request(http.MethodPost, "/api/v1/movements", token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	level, _ := ts.store.Level(entity.StockKey{ProductID: ts.sugar, BranchID: ts.remera})
	assert.EqualValues(t, 5, level, "failed writes must not move stock")
}

func TestMovementScope(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.login("manager@shops.test")
	staff := ts.login("staff@shops.test")
	outsider := ts.login("outsider@shops.test")

	w := ts.request(http.MethodPost, "/api/v1/movements", manager, stockIn(ts.rice, ts.kacyiru, 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rice dto.MovementResultResponse
	decode(t, w, &rice)

	w = ts.request(http.MethodPost, "/api/v1/movements", manager, stockIn(ts.sugar, ts.remera, 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sugar dto.MovementResultResponse
	decode(t, w, &sugar)

	t.Run("staff writes only at own branch", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/movements", staff, stockIn(ts.rice, ts.kacyiru, 1))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, apperror.CodeForbidden, errorCode(t, w))
	})

	t.Run("staff cannot change a manager's movement", func(t *testing.T) {
		w := ts.request(http.MethodDelete, "/api/v1/movements/"+sugar.MovementID, staff, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("staff changes own movement", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/movements", staff, stockIn(ts.sugar, ts.remera, 2))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var own dto.MovementResultResponse
		decode(t, w, &own)

		w = ts.request(http.MethodDelete, "/api/v1/movements/"+own.MovementID, staff, nil)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("staff does not see other branches", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/movements/"+rice.MovementID, staff, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("other tenant gets not found", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/movements/"+sugar.MovementID, outsider, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = ts.request(http.MethodDelete, "/api/v1/movements/"+sugar.MovementID, outsider, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = ts.request(http.MethodGet, "/api/v1/movements/"+sugar.MovementID+"/logs", outsider, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("other tenant summary is empty", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/stock/summary", outsider, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var summary reports.StockSummary
		decode(t, w, &summary)
		assert.Empty(t, summary.Items)
		assert.EqualValues(t, 0, summary.TotalQuantity)
	})

	t.Run("staff summary covers own branch", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/stock/summary", staff, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var summary reports.StockSummary
		decode(t, w, &summary)
		require.Len(t, summary.Items, 1)
		assert.Equal(t, ts.sugar, summary.Items[0].ProductID)
	})
}

func TestIdempotentCreate(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login("manager@shops.test")
	body := stockIn(ts.sugar, ts.remera, 7)

	first := ts.request(http.MethodPost, "/api/v1/movements", token, body, middleware.HeaderIdempotencyKey, "restock-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(middleware.HeaderIdempotentReplay))

	second := ts.request(http.MethodPost, "/api/v1/movements", token, body, middleware.HeaderIdempotencyKey, "restock-1")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	level, _ := ts.store.Level(entity.StockKey{ProductID: ts.sugar, BranchID: ts.remera})
	assert.EqualValues(t, 7, level)

	t.Run("same key with another body", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/movements", token, stockIn(ts.sugar, ts.remera, 8), middleware.HeaderIdempotencyKey, "restock-1")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeIdempotency, errorCode(t, w))
	})

	t.Run("client errors replay too", func(t *testing.T) {
		bad := stockOut(ts.sugar, ts.remera, 100, "1.00")
		w := ts.request(http.MethodPost, "/api/v1/movements", token, bad, middleware.HeaderIdempotencyKey, "sale-1")
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w = ts.request(http.MethodPost, "/api/v1/movements", token, bad, middleware.HeaderIdempotencyKey, "sale-1")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "true", w.Header().Get(middleware.HeaderIdempotentReplay))
		assert.Equal(t, apperror.CodeInsufficientStock, errorCode(t, w))
	})
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *v1.RouterConfig) {
		cfg.RateLimit = &middleware.RateLimitConfig{Requests: 3, Window: time.Minute}
	})
	token := ts.login("manager@shops.test")

	for i := 0; i < 3; i++ {
		w := ts.request(http.MethodGet, "/api/v1/dashboard", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := ts.request(http.MethodGet, "/api/v1/dashboard", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, apperror.CodeRateLimited, errorCode(t, w))

	// Limits are per user.
	w = ts.request(http.MethodGet, "/api/v1/dashboard", ts.login("staff@shops.test"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login("admin@shops.test")
	manager := ts.login("manager@shops.test")
	staff := ts.login("staff@shops.test")
	outsider := ts.login("outsider@shops.test")

	t.Run("only admins create accounts", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/accounts", manager, dto.CreateAccountRequest{Name: "Huye"})
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = ts.request(http.MethodPost, "/api/v1/accounts", admin, dto.CreateAccountRequest{Name: "Huye"})
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("manager lists own branches", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/branches", manager, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var list struct {
			Items      []dto.BranchResponse `json:"items"`
			TotalCount int64                `json:"totalCount"`
		}
		decode(t, w, &list)
		assert.EqualValues(t, 2, list.TotalCount)
		assert.Equal(t, "Kacyiru", list.Items[0].Name)
	})

	t.Run("outsider cannot read a foreign product", func(t *testing.T) {
		w := ts.request(http.MethodGet, "/api/v1/products/"+ts.sugar.String(), outsider, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("staff cannot create products", func(t *testing.T) {
		req := dto.CreateProductRequest{BranchID: ts.remera.String(), Name: "Salt", CostPrice: types.MustMoney("1.00"), SellingPrice: types.MustMoney("1.50")}
		w := ts.request(http.MethodPost, "/api/v1/products", staff, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("duplicate product name", func(t *testing.T) {
		req := dto.CreateProductRequest{BranchID: ts.remera.String(), Name: "sugar", CostPrice: types.MustMoney("1.00"), SellingPrice: types.MustMoney("1.50")}
		w := ts.request(http.MethodPost, "/api/v1/products", manager, req)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeDuplicate, errorCode(t, w))
	})

	t.Run("product with movements cannot be deleted", func(t *testing.T) {
		w := ts.request(http.MethodPost, "/api/v1/movements", manager, stockIn(ts.rice, ts.kacyiru, 3))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = ts.request(http.MethodGet, "/api/v1/products/"+ts.rice.String()+"/can-delete", manager, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp dto.CanDeleteResponse
		decode(t, w, &resp)
		assert.False(t, resp.CanDelete)

		w = ts.request(http.MethodDelete, "/api/v1/products/"+ts.rice.String(), manager, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeHasDependents, errorCode(t, w))
	})
}
