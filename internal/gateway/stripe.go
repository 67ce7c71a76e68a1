package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.stripe.com"

// StripeClient talks to the Stripe checkout sessions API.
type StripeClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewStripeClient(baseURL, secretKey string) *StripeClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &StripeClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", p.Name)
	if p.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", p.Description)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	if p.ClientRef != "" {
		form.Set("client_reference_id", p.ClientRef)
	}
	if !p.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(p.ExpiresAt.Unix(), 10))
	}
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var session stripeSession
	if err := c.postForm(ctx, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (c *StripeClient) RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var session stripeSession
	if err := c.getJSON(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID), &session); err != nil {
		return nil, err
	}
	return &SessionStatus{
		Paid:       session.PaymentStatus == "paid",
		PaymentRef: session.PaymentIntent,
	}, nil
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *StripeClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *StripeClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("gateway http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("gateway http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
