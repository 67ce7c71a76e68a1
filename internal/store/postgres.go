package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketpay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

const paymentColumns = `id, user_id, payment_type, listing_id, auction_id,
	amount, currency, status, payment_deadline, is_second_bidder,
	gateway_session_id, payment_link, gateway_payment_ref, paid_at,
	created_at, updated_at`

func (s *Postgres) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payments (
			id, user_id, payment_type, listing_id, auction_id,
			amount, currency, status, payment_deadline, is_second_bidder,
			gateway_session_id, payment_link, gateway_payment_ref, paid_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		p.ID,
		p.UserID,
		p.Type,
		p.ListingID,
		p.AuctionID,
		p.Amount,
		p.Currency,
		p.Status,
		p.PaymentDeadline,
		p.IsSecondBidder,
		p.GatewaySessionID,
		p.PaymentLink,
		p.GatewayPaymentRef,
		p.PaidAt,
	)
	return err
}

func (s *Postgres) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	return scanPayment(row)
}

func (s *Postgres) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_session_id=$1`, sessionID)
	return scanPayment(row)
}

func (s *Postgres) FindOpenAuctionPayment(ctx context.Context, auctionID, userID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE auction_id=$1 AND user_id=$2 AND status='pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, auctionID, userID)
	return scanPayment(row)
}

func (s *Postgres) HasCompletedAuctionPayment(ctx context.Context, auctionID, userID string) (bool, error) {
	var exists bool
	row := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE auction_id=$1 AND user_id=$2 AND status='completed'
		)
	`, auctionID, userID)
	err := row.Scan(&exists)
	return exists, err
}

func (s *Postgres) SetPaymentSession(ctx context.Context, paymentID, sessionID, link string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payments
		SET gateway_session_id=$2, payment_link=$3, updated_at=now()
		WHERE id=$1
	`, paymentID, sessionID, link)
	return err
}

func (s *Postgres) CompletePayment(ctx context.Context, paymentID string, paidAt time.Time, paymentRef string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments
		SET status='completed', paid_at=$2, gateway_payment_ref=$3, updated_at=now()
		WHERE id=$1 AND status='pending'
	`, paymentID, paidAt, paymentRef)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Postgres) ExpirePayment(ctx context.Context, paymentID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments
		SET status='expired', updated_at=now()
		WHERE id=$1 AND status='pending'
	`, paymentID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Postgres) ListDuePayments(ctx context.Context, now time.Time) ([]*models.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status='pending' AND payment_deadline < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Postgres) ListSessionlessPayments(ctx context.Context) ([]*models.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status='pending' AND gateway_session_id IS NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Postgres) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, listing_id, current_price, winner_id, second_bidder_id,
			status, payment_status, payment_completed_at, created_at, updated_at
		FROM auctions WHERE id=$1
	`, id)

	var a models.Auction
	var winner, secondBidder sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.ListingID,
		&a.CurrentPrice,
		&winner,
		&secondBidder,
		&a.Status,
		&a.PaymentStatus,
		&completedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if winner.Valid {
		a.WinnerID = &winner.String
	}
	if secondBidder.Valid {
		a.SecondBidderID = &secondBidder.String
	}
	if completedAt.Valid {
		a.PaymentCompletedAt = &completedAt.Time
	}
	return &a, nil
}

func (s *Postgres) MarkAuctionPaymentPending(ctx context.Context, auctionID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE auctions
		SET payment_status='pending', updated_at=now()
		WHERE id=$1 AND payment_status='none'
	`, auctionID)
	return err
}

func (s *Postgres) CompleteAuctionPayment(ctx context.Context, auctionID string, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE auctions
		SET payment_status='completed', payment_completed_at=$2, updated_at=now()
		WHERE id=$1
	`, auctionID, at)
	return err
}

func (s *Postgres) CascadeAuction(ctx context.Context, auctionID, newWinnerID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE auctions
		SET winner_id=$2, payment_status='second_bidder_pending', updated_at=now()
		WHERE id=$1
	`, auctionID, newWinnerID)
	return err
}

func (s *Postgres) ExpireAuctionPayment(ctx context.Context, auctionID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE auctions
		SET payment_status='expired', updated_at=now()
		WHERE id=$1
	`, auctionID)
	return err
}

func (s *Postgres) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, title, price, status, is_featured, created_at, updated_at
		FROM listings WHERE id=$1
	`, id)

	var l models.Listing
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.Title,
		&l.Price,
		&l.Status,
		&l.IsFeatured,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (s *Postgres) SetListingFeatured(ctx context.Context, listingID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE listings SET is_featured=true, updated_at=now() WHERE id=$1
	`, listingID)
	return err
}

func (s *Postgres) SetListingSold(ctx context.Context, listingID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE listings SET status='sold', updated_at=now() WHERE id=$1
	`, listingID)
	return err
}

func (s *Postgres) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, email, role, status, created_at, updated_at
		FROM users WHERE id=$1
	`, id)

	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *Postgres) BlockUser(ctx context.Context, userID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE users SET status='blocked', updated_at=now() WHERE id=$1
	`, userID)
	return err
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var listingID, auctionID, sessionID, link, paymentRef sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Type,
		&listingID,
		&auctionID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.PaymentDeadline,
		&p.IsSecondBidder,
		&sessionID,
		&link,
		&paymentRef,
		&paidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}

	if listingID.Valid {
		p.ListingID = &listingID.String
	}
	if auctionID.Valid {
		p.AuctionID = &auctionID.String
	}
	if sessionID.Valid {
		p.GatewaySessionID = &sessionID.String
	}
	if link.Valid {
		p.PaymentLink = &link.String
	}
	if paymentRef.Valid {
		p.GatewayPaymentRef = &paymentRef.String
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
