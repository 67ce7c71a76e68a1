package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketpay/internal/gateway"
	"marketpay/internal/models"
	"marketpay/internal/notify"
	"marketpay/internal/services"
	"marketpay/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu         sync.Mutex
	sessions   map[string]gateway.SessionStatus
	created    int
	failCreate bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]gateway.SessionStatus{}}
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, _ gateway.CreateSessionParams) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, errors.New("gateway unavailable")
	}
	f.created++
	id := fmt.Sprintf("cs_test_%d", f.created)
	f.sessions[id] = gateway.SessionStatus{}
	return &gateway.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (f *fakeGateway) RetrieveSession(_ context.Context, sessionID string) (*gateway.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	cp := status
	return &cp, nil
}

func (f *fakeGateway) markPaid(sessionID, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID] = gateway.SessionStatus{Paid: true, PaymentRef: ref}
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (r *recordingNotifier) Notify(_ context.Context, kind notify.Kind, _ string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}

type fixture struct {
	mem      *store.Memory
	gw       *fakeGateway
	notifier *recordingNotifier
	payments *services.PaymentService
	sweeper  *Sweeper
}

func newFixture() *fixture {
	mem := store.NewMemory()
	gw := newFakeGateway()
	notifier := &recordingNotifier{}
	payments := &services.PaymentService{
		Store:       mem,
		Gateway:     gw,
		Settlement:  &services.Settlement{Store: mem},
		Notifier:    notifier,
		FrontendURL: "http://localhost:3000",
		Currency:    "AED",
		WinnerTTL:   48 * time.Hour,
		FeaturedTTL: 7 * 24 * time.Hour,
	}
	return &fixture{
		mem:      mem,
		gw:       gw,
		notifier: notifier,
		payments: payments,
		sweeper: &Sweeper{
			Store:      mem,
			Payments:   payments,
			Notifier:   notifier,
			CascadeTTL: 48 * time.Hour,
			Interval:   time.Minute,
		},
	}
}

func (f *fixture) seedListing(ownerID string) models.Listing {
	f.mem.AddUser(models.User{ID: ownerID, Name: "Owner", Email: ownerID + "@example.com", Role: models.RoleUser, Status: models.UserActive})
	listing := models.Listing{ID: "listing1", UserID: ownerID, Title: "Phone", Price: 500, Status: models.ListingActive}
	f.mem.AddListing(listing)
	return listing
}

func (f *fixture) seedAuction(winnerID string, secondBidderID *string) models.Auction {
	listing := f.seedListing("seller1")
	f.mem.AddUser(models.User{ID: winnerID, Name: "Winner", Email: winnerID + "@example.com", Role: models.RoleUser, Status: models.UserActive})
	if secondBidderID != nil {
		f.mem.AddUser(models.User{ID: *secondBidderID, Name: "Runner Up", Email: *secondBidderID + "@example.com", Role: models.RoleUser, Status: models.UserActive})
	}
	auction := models.Auction{
		ID:             "auction1",
		ListingID:      listing.ID,
		CurrentPrice:   5000,
		WinnerID:       &winnerID,
		SecondBidderID: secondBidderID,
		Status:         models.AuctionEnded,
		PaymentStatus:  models.AuctionPaymentPending,
	}
	f.mem.AddAuction(auction)
	return auction
}

func (f *fixture) seedDuePayment(p models.Payment) models.Payment {
	if p.ID == "" {
		p.ID = "pay_" + p.UserID
	}
	p.Status = models.PaymentPending
	_ = f.mem.CreatePayment(context.Background(), &p)
	return p
}

func TestSweepFeaturedExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.seedListing("seller1")
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "seller1",
		Type:            models.PaymentFeaturedListing,
		ListingID:       strptr("listing1"),
		Amount:          100,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 0, summary.Blocked)
	require.Empty(t, summary.Errors)

	p, err := f.mem.GetPayment(context.Background(), "pay1")
	require.NoError(t, err)
	require.Equal(t, models.PaymentExpired, p.Status)

	// A lapsed feature payment never punishes the seller or touches the listing.
	owner, err := f.mem.GetUser(context.Background(), "seller1")
	require.NoError(t, err)
	require.Equal(t, models.UserActive, owner.Status)
	listing, err := f.mem.GetListing(context.Background(), "listing1")
	require.NoError(t, err)
	require.False(t, listing.IsFeatured)
	require.Equal(t, models.ListingActive, listing.Status)
}

func TestSweepWinnerExpiryCascades(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	f.seedAuction("winner1", &second)
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 1, summary.SecondBidderNotified)
	require.Empty(t, summary.Errors)

	winner, err := f.mem.GetUser(context.Background(), "winner1")
	require.NoError(t, err)
	require.Equal(t, models.UserBlocked, winner.Status)

	auction, err := f.mem.GetAuction(context.Background(), "auction1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPaymentSecondBidderPending, auction.PaymentStatus)
	require.Equal(t, second, *auction.WinnerID)
	require.Equal(t, second, *auction.SecondBidderID)

	next, err := f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.NoError(t, err)
	require.True(t, next.IsSecondBidder)
	require.Equal(t, 5000.0, next.Amount)
	require.Equal(t, now.Add(48*time.Hour), next.PaymentDeadline)
	require.NotNil(t, next.GatewaySessionID)

	require.Equal(t, []notify.Kind{notify.KindSecondBidderPayment}, f.notifier.kinds)
}

func TestSweepSecondBidderExpiryExhausts(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	f.seedAuction(second, &second)
	require.NoError(t, f.mem.CascadeAuction(context.Background(), "auction1", second))
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay2",
		UserID:          second,
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		IsSecondBidder:  true,
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 0, summary.SecondBidderNotified)
	require.Empty(t, summary.Errors)

	auction, err := f.mem.GetAuction(context.Background(), "auction1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPaymentExpired, auction.PaymentStatus)

	_, err = f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepNoSecondBidderExhausts(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.seedAuction("winner1", nil)
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 0, summary.SecondBidderNotified)
	require.Empty(t, summary.Errors)

	auction, err := f.mem.GetAuction(context.Background(), "auction1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPaymentExpired, auction.PaymentStatus)
}

func TestSweepCascadeGatewayFailureRecovers(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	f.seedAuction("winner1", &second)
	f.gw.failCreate = true
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Expired)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 0, summary.SecondBidderNotified)
	require.NotEmpty(t, summary.Errors)

	// The obligation moved to the second bidder even though the session call
	// failed; the pending record just has no session yet.
	auction, err := f.mem.GetAuction(context.Background(), "auction1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPaymentSecondBidderPending, auction.PaymentStatus)
	require.Equal(t, second, *auction.WinnerID)

	next, err := f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.NoError(t, err)
	require.Nil(t, next.GatewaySessionID)

	// Next pass with the gateway back attaches the session and notifies.
	f.gw.failCreate = false
	summary, err = f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Expired)
	require.Equal(t, 1, summary.SessionsRetried)
	require.Equal(t, 1, summary.SecondBidderNotified)
	require.Empty(t, summary.Errors)

	next, err = f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.NoError(t, err)
	require.NotNil(t, next.GatewaySessionID)
}

func TestSweepItemErrorsAreIsolated(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	f.seedAuction("winner1", &second)
	now := time.Now().UTC()

	// The ghost user cannot be blocked, which fails that item only.
	f.seedDuePayment(models.Payment{
		ID:              "pay_ghost",
		UserID:          "ghost",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-2 * time.Hour),
	})
	f.seedDuePayment(models.Payment{
		ID:              "pay_ok",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	summary, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Expired)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, "pay_ghost", summary.Errors[0].PaymentID)

	// The healthy item still ran to completion.
	winner, err := f.mem.GetUser(context.Background(), "winner1")
	require.NoError(t, err)
	require.Equal(t, models.UserBlocked, winner.Status)
}

func TestSweepConcurrentRunsClaimOnce(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	f.seedAuction("winner1", &second)
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          5000,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	const n = 10
	summaries := make([]*Summary, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			s, err := f.sweeper.SweepOnce(context.Background(), now)
			require.NoError(t, err)
			summaries[i] = s
		}()
	}
	wg.Wait()

	totalExpired, totalBlocked := 0, 0
	for _, s := range summaries {
		totalExpired += s.Expired
		totalBlocked += s.Blocked
	}
	require.Equal(t, 1, totalExpired)
	require.Equal(t, 1, totalBlocked)

	// Exactly one cascade payment exists.
	next, err := f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.NoError(t, err)
	require.True(t, next.IsSecondBidder)
}

// Full lifecycle: winner defaults, second bidder is cascaded to and pays.
func TestCascadeThenSecondBidderPays(t *testing.T) {
	t.Parallel()
	f := newFixture()
	second := "second1"
	auction := f.seedAuction("winner1", &second)
	now := time.Now().UTC()

	f.seedDuePayment(models.Payment{
		ID:              "pay1",
		UserID:          "winner1",
		Type:            models.PaymentAuctionWinner,
		AuctionID:       strptr("auction1"),
		Amount:          auction.CurrentPrice,
		Currency:        "AED",
		PaymentDeadline: now.Add(-time.Hour),
	})

	_, err := f.sweeper.SweepOnce(context.Background(), now)
	require.NoError(t, err)

	next, err := f.mem.FindOpenAuctionPayment(context.Background(), "auction1", second)
	require.NoError(t, err)
	require.NotNil(t, next.GatewaySessionID)

	f.gw.markPaid(*next.GatewaySessionID, "pi_99")
	verified, err := f.payments.VerifySession(context.Background(), *next.GatewaySessionID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentCompleted, verified.Status)

	settled, err := f.mem.GetAuction(context.Background(), "auction1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPaymentCompleted, settled.PaymentStatus)
	require.NotNil(t, settled.PaymentCompletedAt)

	listing, err := f.mem.GetListing(context.Background(), auction.ListingID)
	require.NoError(t, err)
	require.Equal(t, models.ListingSold, listing.Status)

	// The original winner stays blocked even after a successful cascade.
	winner, err := f.mem.GetUser(context.Background(), "winner1")
	require.NoError(t, err)
	require.Equal(t, models.UserBlocked, winner.Status)
}

func strptr(s string) *string { return &s }
