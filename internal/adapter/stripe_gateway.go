package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeConfig holds the Stripe Checkout settings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

// StripeGateway implements PaymentGateway with Stripe Checkout Sessions.
type StripeGateway struct {
	api    *client.API
	cfg    StripeConfig
	logger *zap.Logger
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(cfg StripeConfig, logger *zap.Logger) *StripeGateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &StripeGateway{
		api:    client.New(cfg.SecretKey, stripe.NewBackends(httpClient)),
		cfg:    cfg,
		logger: logger,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

// CreateCheckout opens a one-line payment-mode Checkout Session.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withBooking(g.cfg.SuccessURL, req.BookingID)),
		CancelURL:         stripe.String(withBooking(g.cfg.CancelURL, req.BookingID)),
		ClientReferenceID: stripe.String(req.BookingID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Booking %s", req.Reference)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Description != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.AttemptID.String())
	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("attempt_id", req.AttemptID.String())
	params.AddMetadata("reference", req.Reference)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create stripe checkout session: %w", err)
	}

	g.logger.Info("stripe checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("booking_id", req.BookingID.String()),
		zap.Int64("amount_minor", req.AmountMinor),
	)
	return CheckoutSession{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// SessionStatus maps the session's payment status onto SessionState.
func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (SessionState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("get stripe checkout session: %w", err)
	}
	return stateOf(sess), nil
}

// ExpireCheckout expires an open session.
func (g *StripeGateway) ExpireCheckout(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("expire stripe checkout session: %w", err)
	}
	return nil
}

func stateOf(sess *stripe.CheckoutSession) SessionState {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return SessionPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return SessionExpired
	default:
		return SessionOpen
	}
}

func withBooking(base string, bookingID uuid.UUID) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "booking_id=" + bookingID.String()
}

// SignalKind classifies a verified webhook.
type SignalKind string

const (
	SignalSucceeded SignalKind = "succeeded"
	SignalFailed    SignalKind = "failed"
	SignalIgnored   SignalKind = "ignored"
)

// WebhookSignal is the checkout-relevant content of a gateway webhook.
type WebhookSignal struct {
	EventID   string
	Kind      SignalKind
	SessionID string
	BookingID uuid.UUID
	Reason    string
}

// ErrInvalidSignature is returned for webhooks that fail verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ParseWebhook verifies the Stripe-Signature header and extracts the
// checkout signal.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (WebhookSignal, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookSignal{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return signalFromEvent(event)
}

func signalFromEvent(event stripe.Event) (WebhookSignal, error) {
	sig := WebhookSignal{EventID: event.ID, Kind: SignalIgnored}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		sig.Kind = SignalSucceeded
	case "checkout.session.async_payment_failed":
		sig.Kind, sig.Reason = SignalFailed, "payment failed at gateway"
	case "checkout.session.expired":
		sig.Kind, sig.Reason = SignalFailed, "checkout session expired"
	default:
		return sig, nil
	}

	var sess stripe.CheckoutSession
	if event.Data == nil {
		return WebhookSignal{}, fmt.Errorf("webhook %s has no data", event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookSignal{}, fmt.Errorf("decode checkout session: %w", err)
	}
	sig.SessionID = sess.ID

	// completed sessions with delayed methods are not paid yet
	if string(event.Type) == "checkout.session.completed" && stateOf(&sess) != SessionPaid {
		sig.Kind = SignalIgnored
	}

	raw := sess.ClientReferenceID
	if raw == "" && sess.Metadata != nil {
		raw = sess.Metadata["booking_id"]
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return WebhookSignal{}, fmt.Errorf("webhook %s carries no booking id", event.ID)
	}
	sig.BookingID = id
	return sig, nil
}
