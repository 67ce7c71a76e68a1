package store

import (
	"context"
	"sync"
	"time"

	"marketpay/internal/models"
)

// Memory is a concurrency-safe in-memory Store. It backs the unit tests and
// honors the same claim semantics as the Postgres implementation: status
// transitions happen under the lock and only while the payment is pending.
type Memory struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
	auctions map[string]*models.Auction
	listings map[string]*models.Listing
	users    map[string]*models.User
}

func NewMemory() *Memory {
	return &Memory{
		payments: make(map[string]*models.Payment),
		auctions: make(map[string]*models.Auction),
		listings: make(map[string]*models.Listing),
		users:    make(map[string]*models.User),
	}
}

func (m *Memory) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	m.payments[cp.ID] = &cp
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetPaymentBySession(_ context.Context, sessionID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.GatewaySessionID != nil && *p.GatewaySessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindOpenAuctionPayment(_ context.Context, auctionID, userID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.AuctionID != nil && *p.AuctionID == auctionID && p.UserID == userID && p.Status == models.PaymentPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) HasCompletedAuctionPayment(_ context.Context, auctionID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.AuctionID != nil && *p.AuctionID == auctionID && p.UserID == userID && p.Status == models.PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SetPaymentSession(_ context.Context, paymentID, sessionID, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	p.GatewaySessionID = &sessionID
	p.PaymentLink = &link
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CompletePayment(_ context.Context, paymentID string, paidAt time.Time, paymentRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentCompleted
	p.PaidAt = &paidAt
	p.GatewayPaymentRef = &paymentRef
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) ExpirePayment(_ context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return false, ErrNotFound
	}
	if p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentExpired
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) ListDuePayments(_ context.Context, now time.Time) ([]*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*models.Payment
	for _, p := range m.payments {
		if p.Status == models.PaymentPending && p.PaymentDeadline.Before(now) {
			cp := *p
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (m *Memory) ListSessionlessPayments(_ context.Context) ([]*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.Status == models.PaymentPending && p.GatewaySessionID == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) GetAuction(_ context.Context, id string) (*models.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) MarkAuctionPaymentPending(_ context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	if a.PaymentStatus == models.AuctionPaymentNone {
		a.PaymentStatus = models.AuctionPaymentPending
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) CompleteAuctionPayment(_ context.Context, auctionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	a.PaymentStatus = models.AuctionPaymentCompleted
	a.PaymentCompletedAt = &at
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CascadeAuction(_ context.Context, auctionID, newWinnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	a.WinnerID = &newWinnerID
	a.PaymentStatus = models.AuctionPaymentSecondBidderPending
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ExpireAuctionPayment(_ context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	a.PaymentStatus = models.AuctionPaymentExpired
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) GetListing(_ context.Context, id string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) SetListingFeatured(_ context.Context, listingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return ErrNotFound
	}
	l.IsFeatured = true
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetListingSold(_ context.Context, listingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return ErrNotFound
	}
	l.Status = models.ListingSold
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) BlockUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = models.UserBlocked
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// AddAuction seeds an auction. Intended for tests.
func (m *Memory) AddAuction(a models.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = &a
}

// AddListing seeds a listing. Intended for tests.
func (m *Memory) AddListing(l models.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = &l
}

// AddUser seeds a user. Intended for tests.
func (m *Memory) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}
