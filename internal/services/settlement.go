package services

import (
	"context"
	"fmt"
	"time"

	"marketpay/internal/models"
	"marketpay/internal/store"

	log "github.com/sirupsen/logrus"
)

// Settlement applies the side effects of a confirmed payment. It is invoked
// only immediately after a successful pending->completed claim, so it runs at
// most once per payment; every mutation sets a target state, so an accidental
// re-invocation is a no-op rather than a corruption.
type Settlement struct {
	Store store.Store
}

func (s *Settlement) OnPaymentCompleted(ctx context.Context, p *models.Payment) error {
	switch p.Type {
	case models.PaymentFeaturedListing:
		if p.ListingID == nil {
			return fmt.Errorf("featured payment %s has no listing", p.ID)
		}
		if err := s.Store.SetListingFeatured(ctx, *p.ListingID); err != nil {
			return fmt.Errorf("feature listing %s: %w", *p.ListingID, err)
		}
		log.WithFields(log.Fields{"payment_id": p.ID, "listing_id": *p.ListingID}).
			Info("listing featured")
		return nil

	case models.PaymentAuctionWinner:
		if p.AuctionID == nil {
			return fmt.Errorf("auction payment %s has no auction", p.ID)
		}
		auction, err := s.Store.GetAuction(ctx, *p.AuctionID)
		if err != nil {
			return fmt.Errorf("load auction %s: %w", *p.AuctionID, err)
		}
		if err := s.Store.CompleteAuctionPayment(ctx, auction.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("complete auction %s: %w", auction.ID, err)
		}
		if err := s.Store.SetListingSold(ctx, auction.ListingID); err != nil {
			return fmt.Errorf("mark listing %s sold: %w", auction.ListingID, err)
		}
		log.WithFields(log.Fields{"payment_id": p.ID, "auction_id": auction.ID, "listing_id": auction.ListingID}).
			Info("auction payment settled")
		return nil
	}
	return fmt.Errorf("unknown payment type %q", p.Type)
}
