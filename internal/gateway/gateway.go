package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBadSignature is returned when a webhook payload fails verification.
	ErrBadSignature = errors.New("webhook signature verification failed")
)

// CreateSessionParams describes one hosted checkout session. Amount is in the
// minor currency unit.
type CreateSessionParams struct {
	Amount      int64
	Currency    string
	Name        string
	Description string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
	ClientRef   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type SessionStatus struct {
	Paid       bool
	PaymentRef string
}

// Gateway is the capability surface consumed from the hosted-checkout
// provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// Event is a verified webhook delivery.
type Event struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// EventCheckoutCompleted is the only event type the settlement core reacts to.
const EventCheckoutCompleted = "checkout.session.completed"
