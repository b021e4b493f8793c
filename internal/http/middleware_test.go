package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/money"
)

func withOwner(r *http.Request, ownerID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID))
}

func TestAuthMiddleware(t *testing.T) {
	echo := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"owner": getOwnerID(r.Context())})
	}))

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
	expired := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + sign(jwt.SigningMethodHS256, testSecret, valid), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), valid), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + sign(jwt.SigningMethodHS512, testSecret, valid), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(jwt.SigningMethodHS256, testSecret, expired), http.StatusUnauthorized},
		{"no subject", "Bearer " + sign(jwt.SigningMethodHS256, testSecret, Claims{}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			echo.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "alice", decode[map[string]string](t, rec)["owner"])
			}
		})
	}
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req FinalizeRequestDTO
		if err := decodeJSON(r, &req); err != nil {
			respondDecodeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"authorization_id":"`+strings.Repeat("x", 64)+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCheckoutHandler_Authorize(t *testing.T) {
	mock := &MockCheckoutService{AuthorizeResp: &domain.AuthorizeResponse{
		AttemptID:       "att-1",
		AuthorizationID: "pi_1",
		ClientSecret:    "pi_1_secret",
		Amount:          money.Money{Amount: 1800, Currency: "USD"},
		CartVersion:     3,
		Status:          domain.CheckoutStatusAuthorized,
	}}
	h := NewCheckoutHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/authorize", strings.NewReader(`{"coupon_code":"SAVE10"}`))
	req.Header.Set("Idempotency-Key", "key-42")
	rec := httptest.NewRecorder()
	h.Authorize(rec, withOwner(req, "alice"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.AuthorizeRequest{OwnerID: "alice", CouponCode: "SAVE10", IdempotencyKey: "key-42"}, mock.AuthorizeReq)
	resp := decode[AuthorizeResponseDTO](t, rec)
	assert.Equal(t, "pi_1", resp.AuthorizationID)
	assert.Equal(t, "AUTHORIZED", resp.Status)
}

func TestCheckoutHandler_Unauthenticated(t *testing.T) {
	h := NewCheckoutHandler(&MockCheckoutService{})
	rec := httptest.NewRecorder()
	h.Finalize(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/finalize", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutHandler_FinalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"stale", &checkout.Error{Kind: checkout.KindConflict, Op: "checkout.Finalize", Err: checkout.ErrStaleAuthorization}, http.StatusConflict, "conflict"},
		{"in progress", &checkout.Error{Kind: checkout.KindConflict, Op: "checkout.Finalize", Err: checkout.ErrFinalizeInProgress}, http.StatusConflict, "conflict"},
		{"unknown handle", &checkout.Error{Kind: checkout.KindNotFound, Op: "checkout.Finalize", Err: checkout.ErrAttemptNotFound}, http.StatusNotFound, "not_found"},
		{"gateway down", &checkout.Error{Kind: checkout.KindDependencyFailure, Op: "checkout.Finalize", Err: assert.AnError}, http.StatusServiceUnavailable, "dependency_failure"},
		{"invariant", &checkout.Error{Kind: checkout.KindInvariantViolation, Op: "checkout.Finalize", Err: assert.AnError}, http.StatusInternalServerError, "invariant_violation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockCheckoutService{Err: tt.err}
			h := NewCheckoutHandler(mock)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/finalize", strings.NewReader(`{"authorization_id":"pi_1"}`))
			rec := httptest.NewRecorder()
			h.Finalize(rec, withOwner(req, "alice"))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
			assert.Equal(t, domain.FinalizeRequest{OwnerID: "alice", AuthorizationID: "pi_1"}, mock.FinalizeReq)
		})
	}
}

func TestOrdersHandler_GetOrderUsesURLParam(t *testing.T) {
	h := NewOrdersHandler(&stubOrders{order: &domain.Order{ID: "o-1", OwnerID: "alice"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/o-1", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "o-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.GetOrder(rec, withOwner(req, "alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o-1", decode[domain.Order](t, rec).ID)
}
