package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
)

type stubCarts struct {
	loaded  []string
	mergeBy uuid.UUID
}

func (s *stubCarts) Load(_ context.Context, owner string) (*application.CartDTO, error) {
	s.loaded = append(s.loaded, owner)
	return &application.CartDTO{Owner: owner}, nil
}

func (s *stubCarts) Save(_ context.Context, owner string, _ application.SaveCartRequest) (*application.CartDTO, error) {
	return &application.CartDTO{Owner: owner}, nil
}

func (s *stubCarts) Price(_ context.Context, owner string, _ application.PriceCartRequest) (*application.CartDTO, error) {
	return &application.CartDTO{Owner: owner}, nil
}

func (s *stubCarts) Merge(_ context.Context, userID uuid.UUID, _ application.MergeCartRequest) (*application.CartDTO, error) {
	s.mergeBy = userID
	return &application.CartDTO{Owner: "user:" + userID.String()}, nil
}

type stubCoupons struct {
	preview   *application.CouponPreviewDTO
	createdBy uuid.UUID
}

func (s *stubCoupons) Catalog(context.Context, string) ([]application.CouponDTO, error) {
	return []application.CouponDTO{{Code: "SAVE10"}}, nil
}

func (s *stubCoupons) Preview(context.Context, application.ApplyCouponRequest) (*application.CouponPreviewDTO, error) {
	return s.preview, nil
}

func (s *stubCoupons) Create(_ context.Context, createdBy uuid.UUID, req application.CreateCouponRequest) (*application.CouponDTO, error) {
	s.createdBy = createdBy
	return &application.CouponDTO{Code: req.Code}, nil
}

func (s *stubCoupons) List(_ context.Context, _, _ int) ([]application.CouponDTO, int64, error) {
	return nil, 0, nil
}

func (s *stubCoupons) Deactivate(_ context.Context, code string) (*application.CouponDTO, error) {
	return &application.CouponDTO{Code: code}, nil
}

type stubBookings struct {
	createResult *application.CreateBookingResult
	createErr    error
	gotKey       string
	gotUser      *uuid.UUID
	listStatus   string
	listLimit    int
}

func (s *stubBookings) Create(_ context.Context, userID *uuid.UUID, key string, _ application.CreateBookingRequest) (*application.CreateBookingResult, error) {
	s.gotKey, s.gotUser = key, userID
	return s.createResult, s.createErr
}

func (s *stubBookings) Get(_ context.Context, id uuid.UUID) (*application.BookingDTO, error) {
	return &application.BookingDTO{ID: id}, nil
}

func (s *stubBookings) Lookup(_ context.Context, id uuid.UUID, _ string) (*application.BookingDTO, error) {
	return &application.BookingDTO{ID: id}, nil
}

func (s *stubBookings) Receipt(context.Context, uuid.UUID, string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "receipt-WND-ABC123.pdf", nil
}

func (s *stubBookings) List(_ context.Context, status string, _, limit int) ([]application.BookingDTO, int64, error) {
	s.listStatus, s.listLimit = status, limit
	return []application.BookingDTO{}, 0, nil
}

type stubPayments struct {
	result *application.InitiatePaymentResult
}

func (s *stubPayments) Initiate(context.Context, application.InitiatePaymentRequest) (*application.InitiatePaymentResult, error) {
	return s.result, nil
}

func (s *stubPayments) Attempts(context.Context, uuid.UUID) ([]application.PaymentAttemptDTO, error) {
	return nil, nil
}

type stubReconciler struct {
	confirmed []string
	failed    []string
	cancelled uuid.UUID
}

func (s *stubReconciler) Confirm(_ context.Context, bookingID uuid.UUID) (*application.BookingDTO, error) {
	return &application.BookingDTO{ID: bookingID, Status: "pending"}, nil
}

func (s *stubReconciler) ConfirmFromGateway(_ context.Context, _ uuid.UUID, sessionID string) error {
	s.confirmed = append(s.confirmed, sessionID)
	return nil
}

func (s *stubReconciler) MarkFailed(_ context.Context, _ uuid.UUID, sessionID, _ string) error {
	s.failed = append(s.failed, sessionID)
	return nil
}

func (s *stubReconciler) Cancel(_ context.Context, bookingID uuid.UUID, _ string) (*application.BookingDTO, error) {
	s.cancelled = bookingID
	return &application.BookingDTO{ID: bookingID, Status: "cancelled"}, nil
}

type stubVerifier struct {
	signal adapter.WebhookSignal
	err    error
}

func (s stubVerifier) ParseWebhook([]byte, string) (adapter.WebhookSignal, error) {
	return s.signal, s.err
}
