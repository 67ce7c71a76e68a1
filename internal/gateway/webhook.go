package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how old a signed webhook timestamp may be.
const SignatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the provider's v1 signature scheme
// (header "t=<unix>,v1=<hex hmac>", signed payload "<t>.<body>") and decodes
// the event on success.
func VerifyWebhookSignature(body []byte, sigHeader, secret string) (*Event, error) {
	return verifyWebhookSignatureAt(body, sigHeader, secret, time.Now())
}

func verifyWebhookSignatureAt(body []byte, sigHeader, secret string, now time.Time) (*Event, error) {
	if sigHeader == "" || secret == "" {
		return nil, ErrBadSignature
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, ErrBadSignature
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return nil, ErrBadSignature
	}
	if now.Sub(time.Unix(ts, 0)) > SignatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrBadSignature
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	return &event, nil
}

// SignWebhookPayload produces a valid signature header for body at ts.
// Used by tests and local tooling.
func SignWebhookPayload(body []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
