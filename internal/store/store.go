package store

import (
	"context"
	"errors"
	"time"

	"marketpay/internal/models"
)

// ErrNotFound is returned by lookups when no matching row exists.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for the settlement lifecycle. The
// CompletePayment/ExpirePayment claims are the single synchronization point the
// whole design depends on: they succeed only while the payment is still
// pending, and every state-advancing side effect runs only after a won claim.
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	// FindOpenAuctionPayment returns the pending payment for (auction, user),
	// or ErrNotFound.
	FindOpenAuctionPayment(ctx context.Context, auctionID, userID string) (*models.Payment, error)
	HasCompletedAuctionPayment(ctx context.Context, auctionID, userID string) (bool, error)
	SetPaymentSession(ctx context.Context, paymentID, sessionID, link string) error
	// CompletePayment atomically claims pending->completed and reports whether
	// this caller won the claim.
	CompletePayment(ctx context.Context, paymentID string, paidAt time.Time, paymentRef string) (bool, error)
	// ExpirePayment atomically claims pending->expired and reports whether this
	// caller won the claim.
	ExpirePayment(ctx context.Context, paymentID string) (bool, error)
	ListDuePayments(ctx context.Context, now time.Time) ([]*models.Payment, error)
	// ListSessionlessPayments returns pending payments whose checkout session
	// was never created (a cascade whose gateway call failed); the sweep
	// retries these.
	ListSessionlessPayments(ctx context.Context) ([]*models.Payment, error)

	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	// MarkAuctionPaymentPending moves payment_status none->pending; a no-op for
	// auctions already past that state.
	MarkAuctionPaymentPending(ctx context.Context, auctionID string) error
	CompleteAuctionPayment(ctx context.Context, auctionID string, at time.Time) error
	// CascadeAuction reassigns the payment obligation to the second bidder.
	CascadeAuction(ctx context.Context, auctionID, newWinnerID string) error
	ExpireAuctionPayment(ctx context.Context, auctionID string) error

	GetListing(ctx context.Context, id string) (*models.Listing, error)
	SetListingFeatured(ctx context.Context, listingID string) error
	SetListingSold(ctx context.Context, listingID string) error

	GetUser(ctx context.Context, id string) (*models.User, error)
	BlockUser(ctx context.Context, userID string) error
}
