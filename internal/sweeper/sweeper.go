package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpay/internal/models"
	"marketpay/internal/notify"
	"marketpay/internal/services"
	"marketpay/internal/store"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Sweeper reconciles timed-out pending payments. It is safe to run from
// multiple invokers concurrently: each payment is claimed pending->expired
// through the store's conditional update, and only the claim winner performs
// the terminal side effects.
type Sweeper struct {
	Store      store.Store
	Payments   *services.PaymentService
	Notifier   notify.Dispatcher
	CascadeTTL time.Duration
	Interval   time.Duration
}

type ItemError struct {
	PaymentID string `json:"paymentId"`
	Error     string `json:"error"`
}

type Summary struct {
	Expired              int         `json:"expired"`
	Blocked              int         `json:"blocked"`
	SecondBidderNotified int         `json:"secondBidderNotified"`
	SessionsRetried      int         `json:"sessionsRetried"`
	Errors               []ItemError `json:"errors"`
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		summary, err := s.SweepOnce(ctx, time.Now().UTC())
		if err != nil {
			log.WithField("error", err.Error()).Error("sweep failed")
		} else {
			log.WithFields(log.Fields{
				"expired":  summary.Expired,
				"blocked":  summary.Blocked,
				"notified": summary.SecondBidderNotified,
				"retried":  summary.SessionsRetried,
				"errors":   len(summary.Errors),
			}).Info("sweep complete")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce claims every pending payment past its deadline and applies the
// terminal side effects for each claimed one. A failure on one item is
// recorded and never aborts the rest.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (*Summary, error) {
	summary := &Summary{Errors: []ItemError{}}

	due, err := s.Store.ListDuePayments(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due payments: %w", err)
	}

	for _, p := range due {
		claimed, err := s.Store.ExpirePayment(ctx, p.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, ItemError{PaymentID: p.ID, Error: err.Error()})
			continue
		}
		if !claimed {
			// An overlapping sweep got here first.
			continue
		}
		summary.Expired++

		resolution, err := s.processExpired(ctx, p, now, summary)
		if err != nil {
			resolution = models.ResolutionError
			summary.Errors = append(summary.Errors, ItemError{PaymentID: p.ID, Error: err.Error()})
		}
		log.WithFields(log.Fields{
			"payment_id": p.ID,
			"type":       p.Type,
			"resolution": resolution,
		}).Info("expired payment processed")
	}

	s.retrySessions(ctx, summary)
	return summary, nil
}

func (s *Sweeper) processExpired(ctx context.Context, p *models.Payment, now time.Time, summary *Summary) (models.Resolution, error) {
	if p.Type == models.PaymentFeaturedListing {
		return models.ResolutionExhausted, nil
	}

	// Missing the deadline is punitive regardless of what happens next.
	if err := s.Store.BlockUser(ctx, p.UserID); err != nil {
		return models.ResolutionError, fmt.Errorf("block user %s: %w", p.UserID, err)
	}
	summary.Blocked++

	if p.AuctionID == nil {
		return models.ResolutionError, fmt.Errorf("auction payment %s has no auction", p.ID)
	}
	auction, err := s.Store.GetAuction(ctx, *p.AuctionID)
	if err != nil {
		return models.ResolutionError, fmt.Errorf("load auction %s: %w", *p.AuctionID, err)
	}

	if p.IsSecondBidder || auction.SecondBidderID == nil {
		// The cascade itself expired, or there is nobody to cascade to.
		if err := s.Store.ExpireAuctionPayment(ctx, auction.ID); err != nil {
			return models.ResolutionError, err
		}
		return models.ResolutionExhausted, nil
	}

	return s.cascade(ctx, auction, now, summary)
}

// cascade hands the payment obligation to the second bidder. The payment row
// and the auction reassignment are persisted before the gateway call so the
// winner invariant holds even if session creation fails; a failed session is
// reattached by retrySessions on a later pass.
func (s *Sweeper) cascade(ctx context.Context, auction *models.Auction, now time.Time, summary *Summary) (models.Resolution, error) {
	secondBidder := *auction.SecondBidderID

	next, err := s.Store.FindOpenAuctionPayment(ctx, auction.ID, secondBidder)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return models.ResolutionError, err
		}
		next = &models.Payment{
			ID:              uuid.NewString(),
			UserID:          secondBidder,
			Type:            models.PaymentAuctionWinner,
			AuctionID:       &auction.ID,
			Amount:          auction.CurrentPrice,
			Currency:        s.Payments.Currency,
			Status:          models.PaymentPending,
			PaymentDeadline: now.Add(s.CascadeTTL),
			IsSecondBidder:  true,
		}
		if err := s.Store.CreatePayment(ctx, next); err != nil {
			return models.ResolutionError, fmt.Errorf("create cascade payment: %w", err)
		}
	}

	if err := s.Store.CascadeAuction(ctx, auction.ID, secondBidder); err != nil {
		return models.ResolutionError, fmt.Errorf("cascade auction %s: %w", auction.ID, err)
	}

	if err := s.Payments.EnsureSession(ctx, next); err != nil {
		return models.ResolutionError, fmt.Errorf("cascade session for auction %s: %w", auction.ID, err)
	}

	s.notifySecondBidder(ctx, auction, next)
	summary.SecondBidderNotified++
	return models.ResolutionCascaded, nil
}

// retrySessions attaches checkout sessions to pending payments that lost
// theirs to an earlier gateway failure.
func (s *Sweeper) retrySessions(ctx context.Context, summary *Summary) {
	orphans, err := s.Store.ListSessionlessPayments(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, ItemError{Error: fmt.Sprintf("list sessionless payments: %v", err)})
		return
	}

	for _, p := range orphans {
		if err := s.Payments.EnsureSession(ctx, p); err != nil {
			summary.Errors = append(summary.Errors, ItemError{PaymentID: p.ID, Error: err.Error()})
			continue
		}
		summary.SessionsRetried++

		if p.IsSecondBidder && p.AuctionID != nil {
			auction, err := s.Store.GetAuction(ctx, *p.AuctionID)
			if err != nil {
				continue
			}
			s.notifySecondBidder(ctx, auction, p)
			summary.SecondBidderNotified++
		}
	}
}

func (s *Sweeper) notifySecondBidder(ctx context.Context, auction *models.Auction, p *models.Payment) {
	if s.Notifier == nil {
		return
	}

	payload := map[string]string{
		"auctionId": auction.ID,
		"amount":    fmt.Sprintf("%.2f", auction.CurrentPrice),
	}
	if p.PaymentLink != nil {
		payload["paymentLink"] = *p.PaymentLink
	}
	if listing, err := s.Store.GetListing(ctx, auction.ListingID); err == nil {
		payload["listingTitle"] = listing.Title
	}

	if err := s.Notifier.Notify(ctx, notify.KindSecondBidderPayment, p.UserID, payload); err != nil {
		log.WithFields(log.Fields{"payment_id": p.ID, "error": err.Error()}).
			Warn("second bidder notification failed")
	}
}
