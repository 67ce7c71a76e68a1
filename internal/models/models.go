package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
)

// CanTransition reports whether a payment may move from s to next. The only
// legal moves are pending->completed and pending->expired; terminal states
// never revert.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentCompleted || next == PaymentExpired)
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentExpired
}

type PaymentType string

const (
	PaymentFeaturedListing PaymentType = "featured_listing"
	PaymentAuctionWinner   PaymentType = "auction_winner"
)

type AuctionPaymentStatus string

const (
	AuctionPaymentNone                AuctionPaymentStatus = "none"
	AuctionPaymentPending             AuctionPaymentStatus = "pending"
	AuctionPaymentSecondBidderPending AuctionPaymentStatus = "second_bidder_pending"
	AuctionPaymentCompleted           AuctionPaymentStatus = "completed"
	AuctionPaymentExpired             AuctionPaymentStatus = "expired"
)

func (s AuctionPaymentStatus) CanTransition(next AuctionPaymentStatus) bool {
	switch s {
	case AuctionPaymentNone:
		return next == AuctionPaymentPending
	case AuctionPaymentPending:
		return next == AuctionPaymentCompleted || next == AuctionPaymentSecondBidderPending || next == AuctionPaymentExpired
	case AuctionPaymentSecondBidderPending:
		return next == AuctionPaymentCompleted || next == AuctionPaymentExpired
	}
	return false
}

type AuctionStatus string

const (
	AuctionActive AuctionStatus = "active"
	AuctionEnded  AuctionStatus = "ended"
)

type ListingStatus string

const (
	ListingActive       ListingStatus = "active"
	ListingSold         ListingStatus = "sold"
	ListingExpired      ListingStatus = "expired"
	ListingBlocked      ListingStatus = "blocked"
	ListingSoldBySeller ListingStatus = "sold_by_seller"
)

type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Payment is one attempt to pay for a specific purpose. Exactly one of
// ListingID/AuctionID is set, matching Type.
type Payment struct {
	ID                string
	UserID            string
	Type              PaymentType
	ListingID         *string
	AuctionID         *string
	Amount            float64
	Currency          string
	Status            PaymentStatus
	PaymentDeadline   time.Time
	IsSecondBidder    bool
	GatewaySessionID  *string
	PaymentLink       *string
	GatewayPaymentRef *string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Auction wraps a closed bidding round. WinnerID identifies the user currently
// holding the open payment obligation and is reassigned on cascade;
// SecondBidderID is immutable once set.
type Auction struct {
	ID                 string
	ListingID          string
	CurrentPrice       float64
	WinnerID           *string
	SecondBidderID     *string
	Status             AuctionStatus
	PaymentStatus      AuctionPaymentStatus
	PaymentCompletedAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Listing struct {
	ID         string
	UserID     string
	Title      string
	Price      float64
	Status     ListingStatus
	IsFeatured bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resolution is the outcome of driving one payment to a terminal state, shared
// by the verification path and the sweep path.
type Resolution string

const (
	ResolutionCompleted Resolution = "completed"
	ResolutionCascaded  Resolution = "cascaded"
	ResolutionExhausted Resolution = "exhausted"
	ResolutionError     Resolution = "error"
)
