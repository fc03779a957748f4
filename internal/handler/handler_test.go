package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/auth"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Limit int `json:"limit"`
	} `json:"meta"`
}

type testServer struct {
	router     *gin.Engine
	jwt        *auth.JWTManager
	carts      *stubCarts
	coupons    *stubCoupons
	bookings   *stubBookings
	payments   *stubPayments
	reconciler *stubReconciler
}

func newTestServer(t *testing.T, verifier WebhookVerifier) *testServer {
	t.Helper()
	s := &testServer{
		router:     gin.New(),
		jwt:        auth.NewJWTManager("test-secret", time.Minute, time.Hour),
		carts:      &stubCarts{},
		coupons:    &stubCoupons{preview: &application.CouponPreviewDTO{Valid: false, Reason: "expired"}},
		bookings:   &stubBookings{},
		payments:   &stubPayments{},
		reconciler: &stubReconciler{},
	}

	api := s.router.Group("/api/v1")
	NewCartHandler(s.carts).RegisterRoutes(api, s.jwt)
	NewCouponHandler(s.coupons, middleware.NewIPRateLimiter(60, 1), zap.NewNop()).RegisterRoutes(api)
	NewBookingHandler(s.bookings).RegisterRoutes(api, s.jwt)
	NewPaymentHandler(s.payments, s.reconciler, verifier, zap.NewNop()).RegisterRoutes(api)
	NewAdminHandler(s.coupons, s.bookings, s.payments, s.reconciler).RegisterRoutes(api, s.jwt)
	return s
}

func (s *testServer) token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateAccessToken(userID, "someone@example.com", role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestCartAccess(t *testing.T) {
	s := newTestServer(t, nil)
	userID := uuid.New()
	userCart := "/api/v1/carts/user:" + userID.String()

	cases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"guest cart is open", "/api/v1/carts/guest:browser-1", nil, http.StatusOK},
		{"user cart needs a token", userCart, nil, http.StatusUnauthorized},
		{"user cart of someone else", userCart, bearer(s.token(t, uuid.New(), auth.RoleCustomer)), http.StatusForbidden},
		{"own user cart", userCart, bearer(s.token(t, userID, auth.RoleCustomer)), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tc.path, nil, tc.headers)
			assert.Equal(t, tc.want, w.Code)
		})
	}
	assert.Equal(t, []string{"guest:browser-1", "user:" + userID.String()}, s.carts.loaded)
}

func TestCartMerge_UsesTokenUser(t *testing.T) {
	s := newTestServer(t, nil)
	userID := uuid.New()

	w := s.do(http.MethodPost, "/api/v1/carts/merge",
		map[string]string{"guest_owner": "guest:browser-1"},
		bearer(s.token(t, userID, auth.RoleCustomer)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, s.carts.mergeBy)

	w = s.do(http.MethodPost, "/api/v1/carts/merge", map[string]string{"guest_owner": "guest:browser-1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplyCoupon_RejectionIsOKAndRateLimited(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"code": "OLD", "order_amount": "100"}

	w := s.do(http.MethodPost, "/api/v1/coupons/apply", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var preview application.CouponPreviewDTO
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &preview))
	assert.False(t, preview.Valid)
	assert.Equal(t, "expired", preview.Reason)

	w = s.do(http.MethodPost, "/api/v1/coupons/apply", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodGet, "/api/v1/coupons?product_ref=tour-bali", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, "catalog is not rate limited")
}

func TestCreateBooking(t *testing.T) {
	bookingID := uuid.New()

	t.Run("new booking is 201 and forwards the idempotency key", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.bookings.createResult = &application.CreateBookingResult{Booking: &application.BookingDTO{ID: bookingID}}

		w := s.do(http.MethodPost, "/api/v1/bookings", map[string]any{"kind": "tour"},
			map[string]string{middleware.HeaderIdempotencyKey: "key-1"})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "key-1", s.bookings.gotKey)
		assert.Nil(t, s.bookings.gotUser)
	})

	t.Run("repeated submission is 200", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.bookings.createResult = &application.CreateBookingResult{Booking: &application.BookingDTO{ID: bookingID}, Reused: true}
		userID := uuid.New()

		w := s.do(http.MethodPost, "/api/v1/bookings", map[string]any{"kind": "tour"},
			bearer(s.token(t, userID, auth.RoleCustomer)))

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, s.bookings.gotUser)
		assert.Equal(t, userID, *s.bookings.gotUser)
	})

	t.Run("stale pricing is 409", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.bookings.createErr = application.ErrPricingMismatch

		w := s.do(http.MethodPost, "/api/v1/bookings", map[string]any{"kind": "tour"}, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "pricing_mismatch", decode(t, w).Error.Code)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		s := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLookupBooking_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	id := uuid.New()

	w := s.do(http.MethodGet, "/api/v1/bookings/lookup?booking_id=nope&email=a@b.co", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/bookings/lookup?booking_id="+id.String(), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/bookings/lookup?booking_id=%s&email=a@b.co", id), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetReceipt_ServesPDF(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/api/v1/bookings/"+uuid.NewString()+"/receipt?email=a@b.co", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt-WND-ABC123.pdf")
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestInitiateAndConfirmPayment(t *testing.T) {
	s := newTestServer(t, nil)
	bookingID := uuid.New()
	s.payments.result = &application.InitiatePaymentResult{RedirectURL: "https://pay.example/s/1"}

	w := s.do(http.MethodPost, "/api/v1/payments/initiate", map[string]any{"booking_id": bookingID}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	s.payments.result = &application.InitiatePaymentResult{Reused: true}
	w = s.do(http.MethodPost, "/api/v1/payments/initiate", map[string]any{"booking_id": bookingID}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/api/v1/payments/confirm", map[string]any{"booking_id": bookingID}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dto application.BookingDTO
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &dto))
	assert.Equal(t, "pending", dto.Status)
}

func TestStripeWebhook(t *testing.T) {
	bookingID := uuid.New()

	t.Run("route absent without a verifier", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", map[string]any{}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad signature is 400", func(t *testing.T) {
		s := newTestServer(t, stubVerifier{err: fmt.Errorf("%w: mismatch", adapter.ErrInvalidSignature)})
		w := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_signature", decode(t, w).Error.Code)
		assert.Empty(t, s.reconciler.confirmed)
	})

	t.Run("success confirms", func(t *testing.T) {
		s := newTestServer(t, stubVerifier{signal: adapter.WebhookSignal{
			EventID: "evt_1", Kind: adapter.SignalSucceeded, SessionID: "cs_1", BookingID: bookingID,
		}})
		w := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", map[string]any{}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"cs_1"}, s.reconciler.confirmed)
	})

	t.Run("failure marks failed", func(t *testing.T) {
		s := newTestServer(t, stubVerifier{signal: adapter.WebhookSignal{
			EventID: "evt_2", Kind: adapter.SignalFailed, SessionID: "cs_2", BookingID: bookingID,
		}})
		w := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", map[string]any{}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"cs_2"}, s.reconciler.failed)
	})

	t.Run("other events are acknowledged", func(t *testing.T) {
		s := newTestServer(t, stubVerifier{signal: adapter.WebhookSignal{EventID: "evt_3", Kind: adapter.SignalIgnored}})
		w := s.do(http.MethodPost, "/api/v1/payments/webhook/stripe", map[string]any{}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, s.reconciler.confirmed)
		assert.Empty(t, s.reconciler.failed)
	})
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	adminID := uuid.New()
	admin := bearer(s.token(t, adminID, auth.RoleAdmin))
	customer := bearer(s.token(t, uuid.New(), auth.RoleCustomer))

	w := s.do(http.MethodGet, "/api/v1/admin/bookings", nil, customer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/admin/coupons", map[string]any{
		"code": "summer25", "discount_type": "percentage", "discount_value": "25",
		"expiry_date": time.Now().Add(24 * time.Hour),
	}, admin)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, adminID, s.coupons.createdBy)

	w = s.do(http.MethodGet, "/api/v1/admin/bookings?status=pending&limit=500", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", s.bookings.listStatus)
	assert.Equal(t, 20, s.bookings.listLimit)
	assert.Equal(t, 20, decode(t, w).Meta.Limit)

	bookingID := uuid.New()
	w = s.do(http.MethodPost, "/api/v1/admin/bookings/"+bookingID.String()+"/cancel", map[string]string{"reason": "duplicate"}, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bookingID, s.reconciler.cancelled)

	w = s.do(http.MethodPost, "/api/v1/admin/bookings/"+bookingID.String()+"/cancel", map[string]string{}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code, "reason is required")
}
