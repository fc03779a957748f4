package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when the gateway does not know a session id.
var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutRequest describes the hosted payment page to open for a booking.
type CheckoutRequest struct {
	AttemptID     uuid.UUID
	BookingID     uuid.UUID
	Reference     string
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	Description   string
}

// CheckoutSession is the gateway's answer to CreateCheckout.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// SessionState is the gateway's view of a checkout session.
type SessionState string

const (
	SessionOpen    SessionState = "open"
	SessionPaid    SessionState = "paid"
	SessionExpired SessionState = "expired"
)

// PaymentGateway is the anti-corruption layer between checkout and the
// external payment processor.
type PaymentGateway interface {
	// Name identifies the gateway on stored attempts.
	Name() string

	// CreateCheckout opens a hosted payment session and returns the URL the
	// customer must be redirected to.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)

	// SessionStatus reports whether the customer completed payment.
	SessionStatus(ctx context.Context, sessionID string) (SessionState, error)

	// ExpireCheckout closes a session that must no longer be paid.
	ExpireCheckout(ctx context.Context, sessionID string) error
}

// MockGateway is a development/testing implementation of PaymentGateway. It
// simulates hosted checkout without a processor account.
type MockGateway struct {
	mu          sync.Mutex
	sessions    map[string]SessionState
	redirectURL string
	autoPay     bool
	logger      *zap.Logger
}

// NewMockGateway creates a mock gateway. With autoPay every session reports
// paid, which lets the confirmation flow run end to end in development.
func NewMockGateway(redirectBaseURL string, autoPay bool, logger *zap.Logger) *MockGateway {
	return &MockGateway{
		sessions:    make(map[string]SessionState),
		redirectURL: redirectBaseURL,
		autoPay:     autoPay,
		logger:      logger,
	}
}

func (m *MockGateway) Name() string { return "mock" }

// CreateCheckout simulates opening a hosted checkout session.
func (m *MockGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.AmountMinor <= 0 {
		return CheckoutSession{}, fmt.Errorf("mock gateway: invalid amount %d", req.AmountMinor)
	}
	id := fmt.Sprintf("cs_mock_%s", uuid.New().String()[:8])

	m.mu.Lock()
	m.sessions[id] = SessionOpen
	m.mu.Unlock()

	m.logger.Info("[MOCK GATEWAY] checkout session created",
		zap.String("session_id", id),
		zap.String("booking_id", req.BookingID.String()),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.String("currency", req.Currency),
	)
	return CheckoutSession{ID: id, RedirectURL: fmt.Sprintf("%s/%s", m.redirectURL, id)}, nil
}

// SessionStatus returns the simulated state of a session.
func (m *MockGateway) SessionStatus(ctx context.Context, sessionID string) (SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if state == SessionOpen && m.autoPay {
		return SessionPaid, nil
	}
	return state, nil
}

// ExpireCheckout simulates closing a session.
func (m *MockGateway) ExpireCheckout(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[sessionID] = SessionExpired
	m.logger.Info("[MOCK GATEWAY] checkout session expired", zap.String("session_id", sessionID))
	return nil
}

// MarkPaid simulates the customer completing payment.
func (m *MockGateway) MarkPaid(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = SessionPaid
}
