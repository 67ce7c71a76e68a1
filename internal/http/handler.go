package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"marketpay/internal/gateway"
	"marketpay/internal/models"
	"marketpay/internal/services"
	"marketpay/internal/store"
	"marketpay/internal/sweeper"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	Payments      *services.PaymentService
	Sweeper       *sweeper.Sweeper
	Store         store.Store
	WebhookSecret string
	SweepAPIKey   string
	Production    bool
}

type createFeaturedRequest struct {
	ListingID string  `json:"listingId"`
	Amount    float64 `json:"amount"`
}

type createWinnerRequest struct {
	AuctionID string `json:"auctionId"`
}

type createSessionResponse struct {
	Success     bool   `json:"success"`
	PaymentID   string `json:"paymentId"`
	PaymentLink string `json:"paymentLink"`
	Message     string `json:"message"`
}

type paymentResponse struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	PaymentType     string  `json:"paymentType"`
	ListingID       string  `json:"listingId,omitempty"`
	AuctionID       string  `json:"auctionId,omitempty"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	PaymentDeadline string  `json:"paymentDeadline"`
	IsSecondBidder  bool    `json:"isSecondBidder"`
	PaymentLink     string  `json:"paymentLink,omitempty"`
	PaidAt          string  `json:"paidAt,omitempty"`
}

func NewHandler(payments *services.PaymentService, sw *sweeper.Sweeper, st store.Store) *Handler {
	return &Handler{Payments: payments, Sweeper: sw, Store: st}
}

// Webhook receives raw gateway events. Signature verification happens before
// anything else; processing errors after a verified event are logged but still
// acknowledged so the gateway does not redeliver forever.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.WebhookSecret == "" {
		writeError(w, http.StatusInternalServerError, "payment gateway is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	event, err := gateway.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		writeError(w, http.StatusBadRequest, "webhook signature verification failed")
		return
	}

	if event.Type == gateway.EventCheckoutCompleted {
		if _, err := h.Payments.VerifySession(r.Context(), event.Data.Object.ID); err != nil {
			log.WithFields(log.Fields{"session_id": event.Data.Object.ID, "error": err.Error()}).
				Error("webhook processing failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) CreateFeaturedListing(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req createFeaturedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ListingID == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "listing id and amount are required")
		return
	}

	payment, err := h.Payments.CreateFeaturedSession(r.Context(), userID, req.ListingID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:     true,
		PaymentID:   payment.ID,
		PaymentLink: deref(payment.PaymentLink),
		Message:     "payment session created",
	})
}

func (h *Handler) CreateAuctionWinner(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	var req createWinnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.AuctionID == "" {
		writeError(w, http.StatusBadRequest, "auction id is required")
		return
	}

	payment, err := h.Payments.CreateWinnerSession(r.Context(), userID, req.AuctionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:     true,
		PaymentID:   payment.ID,
		PaymentLink: deref(payment.PaymentLink),
		Message:     "payment session created",
	})
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if payment.UserID != userID && r.Header.Get("X-User-Role") != string(models.RoleAdmin) {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// VerifyPayment is the manual reconciliation path: the owner asks us to poll
// the gateway for this payment's session.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}

	payment, err := h.Store.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if payment.UserID != userID {
		writeError(w, http.StatusForbidden, "unauthorized")
		return
	}

	if payment.GatewaySessionID == nil {
		writeJSON(w, http.StatusOK, toPaymentResponse(payment))
		return
	}

	verified, err := h.Payments.VerifySession(r.Context(), *payment.GatewaySessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if verified == nil {
		// Gateway has not recorded payment yet.
		writeJSON(w, http.StatusOK, toPaymentResponse(payment))
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(verified))
}

func (h *Handler) CheckExpired(w http.ResponseWriter, r *http.Request) {
	if h.Production && r.Header.Get("X-Api-Key") != h.SweepAPIKey {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.Sweeper.SweepOnce(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "expired payments processed",
		"results": summary,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrMissingFields), errors.Is(err, services.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadyCompleted):
		writeError(w, http.StatusBadRequest, "payment already completed")
	case errors.Is(err, services.ErrNotOwner), errors.Is(err, services.ErrNotWinner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrGatewayNotConfigured):
		writeError(w, http.StatusInternalServerError, "payment gateway is not configured")
	default:
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func toPaymentResponse(p *models.Payment) paymentResponse {
	resp := paymentResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		PaymentType:     string(p.Type),
		ListingID:       deref(p.ListingID),
		AuctionID:       deref(p.AuctionID),
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		PaymentDeadline: p.PaymentDeadline.Format(time.RFC3339),
		IsSecondBidder:  p.IsSecondBidder,
		PaymentLink:     deref(p.PaymentLink),
	}
	if p.PaidAt != nil {
		resp.PaidAt = p.PaidAt.Format(time.RFC3339)
	}
	return resp
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
