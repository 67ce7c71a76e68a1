package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpay/internal/currency"
	"marketpay/internal/gateway"
	"marketpay/internal/models"
	"marketpay/internal/notify"
	"marketpay/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrNotOwner             = errors.New("listing does not belong to user")
	ErrNotWinner            = errors.New("user is not the current auction winner")
	ErrAlreadyCompleted     = errors.New("payment already completed")
	ErrMissingFields        = errors.New("missing required fields")
)

// PaymentService creates hosted checkout sessions and verifies them against
// the gateway. A nil Gateway means the provider is unconfigured and every
// session operation fails fast.
type PaymentService struct {
	Store       store.Store
	Gateway     gateway.Gateway
	Settlement  *Settlement
	Notifier    notify.Dispatcher
	FrontendURL string
	Currency    string
	WinnerTTL   time.Duration
	FeaturedTTL time.Duration
}

// SessionRequest describes one payment attempt to open.
type SessionRequest struct {
	UserID         string
	Type           models.PaymentType
	Amount         float64
	ListingID      string
	AuctionID      string
	Deadline       time.Time
	IsSecondBidder bool
}

// CreateSession persists a pending Payment, then requests a hosted checkout
// session expiring at the deadline and stores the session id and link back on
// the record. Gateway failures leave the Payment pending with no session; the
// retry paths attach a session to it later.
func (s *PaymentService) CreateSession(ctx context.Context, req SessionRequest) (*models.Payment, error) {
	if s.Gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	if _, err := currency.MinorUnits(req.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	p := &models.Payment{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Type:            req.Type,
		Amount:          req.Amount,
		Currency:        s.Currency,
		Status:          models.PaymentPending,
		PaymentDeadline: req.Deadline,
		IsSecondBidder:  req.IsSecondBidder,
	}
	switch req.Type {
	case models.PaymentFeaturedListing:
		if req.ListingID == "" {
			return nil, fmt.Errorf("%w: listing id", ErrMissingFields)
		}
		p.ListingID = &req.ListingID
	case models.PaymentAuctionWinner:
		if req.AuctionID == "" {
			return nil, fmt.Errorf("%w: auction id", ErrMissingFields)
		}
		p.AuctionID = &req.AuctionID
	default:
		return nil, fmt.Errorf("%w: payment type", ErrMissingFields)
	}

	if err := s.Store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}

	if err := s.EnsureSession(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureSession attaches a checkout session to a pending Payment that does not
// have one yet. It is idempotent: a payment that already carries a session is
// returned as-is.
func (s *PaymentService) EnsureSession(ctx context.Context, p *models.Payment) error {
	if s.Gateway == nil {
		return ErrGatewayNotConfigured
	}
	if p.GatewaySessionID != nil {
		return nil
	}

	minor, err := currency.MinorUnits(p.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	params := gateway.CreateSessionParams{
		Amount:    minor,
		Currency:  s.Currency,
		ExpiresAt: p.PaymentDeadline,
		ClientRef: p.ID,
		Metadata: map[string]string{
			"paymentId":   p.ID,
			"paymentType": string(p.Type),
		},
	}
	switch p.Type {
	case models.PaymentFeaturedListing:
		params.Name = "Featured Listing Payment"
		params.Description = "Payment to feature your listing at the top"
		params.SuccessURL = s.FrontendURL + "/payment/success?payment_id=" + p.ID
		params.CancelURL = s.FrontendURL + "/post-ad?payment_cancelled=true"
		params.Metadata["listingId"] = *p.ListingID
	case models.PaymentAuctionWinner:
		params.Name = "Auction Winner Payment"
		params.Description = "Payment for winning auction bid"
		if p.IsSecondBidder {
			params.Description += " (Second Bidder)"
		}
		params.SuccessURL = s.FrontendURL + "/payment/success?payment_id=" + p.ID
		params.CancelURL = s.FrontendURL + "/auction/" + *p.AuctionID + "?payment_cancelled=true"
		params.Metadata["auctionId"] = *p.AuctionID
		params.Metadata["isSecondBidder"] = fmt.Sprintf("%t", p.IsSecondBidder)
	}

	session, err := s.Gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return fmt.Errorf("create checkout session: %w", err)
	}
	if err := s.Store.SetPaymentSession(ctx, p.ID, session.ID, session.URL); err != nil {
		return fmt.Errorf("store checkout session: %w", err)
	}
	p.GatewaySessionID = &session.ID
	p.PaymentLink = &session.URL
	return nil
}

// CreateFeaturedSession opens a payment to feature a listing. The listing must
// belong to the requester.
func (s *PaymentService) CreateFeaturedSession(ctx context.Context, userID, listingID string, amount float64) (*models.Payment, error) {
	if userID == "" || listingID == "" {
		return nil, ErrMissingFields
	}

	listing, err := s.Store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.UserID != userID {
		return nil, ErrNotOwner
	}

	p, err := s.CreateSession(ctx, SessionRequest{
		UserID:    userID,
		Type:      models.PaymentFeaturedListing,
		Amount:    amount,
		ListingID: listingID,
		Deadline:  time.Now().UTC().Add(s.FeaturedTTL),
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.KindFeaturedPayment, userID, map[string]string{
		"listingTitle": listing.Title,
		"paymentLink":  link(p),
	})
	return p, nil
}

// CreateWinnerSession opens (or returns) the payment for the auction's current
// winner. A pending attempt for the same (auction, winner) is returned rather
// than duplicated; if its session creation failed earlier, a session is
// attached now.
func (s *PaymentService) CreateWinnerSession(ctx context.Context, userID, auctionID string) (*models.Payment, error) {
	if userID == "" || auctionID == "" {
		return nil, ErrMissingFields
	}

	auction, err := s.Store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.WinnerID == nil || *auction.WinnerID != userID {
		return nil, ErrNotWinner
	}

	completed, err := s.Store.HasCompletedAuctionPayment(ctx, auctionID, userID)
	if err != nil {
		return nil, err
	}
	if completed {
		return nil, ErrAlreadyCompleted
	}

	existing, err := s.Store.FindOpenAuctionPayment(ctx, auctionID, userID)
	if err == nil {
		if err := s.EnsureSession(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	p, err := s.CreateSession(ctx, SessionRequest{
		UserID:         userID,
		Type:           models.PaymentAuctionWinner,
		Amount:         auction.CurrentPrice,
		AuctionID:      auctionID,
		Deadline:       time.Now().UTC().Add(s.WinnerTTL),
		IsSecondBidder: auction.PaymentStatus == models.AuctionPaymentSecondBidderPending,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Store.MarkAuctionPaymentPending(ctx, auctionID); err != nil {
		log.WithFields(log.Fields{"auction_id": auctionID, "error": err.Error()}).
			Warn("mark auction payment pending failed")
	}
	return p, nil
}

// VerifySession checks the gateway for capture of the given session. On
// capture it claims the payment pending->completed and, only if this call won
// the claim, runs settlement. A lost claim returns the already-settled record
// with no side effects; an uncaptured session returns (nil, nil).
func (s *PaymentService) VerifySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	if s.Gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	status, err := s.Gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}

	p, err := s.Store.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !status.Paid {
		return nil, nil
	}

	paidAt := time.Now().UTC()
	claimed, err := s.Store.CompletePayment(ctx, p.ID, paidAt, status.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("complete payment: %w", err)
	}
	if !claimed {
		// Another caller settled this session first.
		return s.Store.GetPayment(ctx, p.ID)
	}

	p.Status = models.PaymentCompleted
	p.PaidAt = &paidAt
	p.GatewayPaymentRef = &status.PaymentRef

	if err := s.Settlement.OnPaymentCompleted(ctx, p); err != nil {
		return p, fmt.Errorf("settle payment %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *PaymentService) dispatch(ctx context.Context, kind notify.Kind, recipient string, payload map[string]string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, kind, recipient, payload); err != nil {
		log.WithFields(log.Fields{"kind": kind, "recipient": recipient, "error": err.Error()}).
			Warn("notification dispatch failed")
	}
}

func link(p *models.Payment) string {
	if p.PaymentLink == nil {
		return ""
	}
	return *p.PaymentLink
}
