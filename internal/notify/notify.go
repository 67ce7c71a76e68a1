package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Kind names the notification templates the settlement core triggers.
type Kind string

const (
	KindWinnerPayment       Kind = "winner_payment"
	KindSecondBidderPayment Kind = "second_bidder_payment"
	KindFeaturedPayment     Kind = "featured_listing_payment"
)

// Dispatcher is the best-effort side channel to the messaging collaborator.
// Callers log failures and never let them block or fail orchestration.
type Dispatcher interface {
	Notify(ctx context.Context, kind Kind, recipient string, payload map[string]string) error
}

// LogDispatcher records the handoff through the structured logger. It stands
// in for the external email/SMS collaborator in environments without one.
type LogDispatcher struct{}

func (LogDispatcher) Notify(_ context.Context, kind Kind, recipient string, payload map[string]string) error {
	fields := log.Fields{"kind": kind, "recipient": recipient}
	for k, v := range payload {
		fields[k] = v
	}
	log.WithFields(fields).Info("notification dispatched")
	return nil
}
