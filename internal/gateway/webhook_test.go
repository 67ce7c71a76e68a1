package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_123"}}}`)
	now := time.Now()

	t.Run("valid_signature", func(t *testing.T) {
		t.Parallel()
		header := SignWebhookPayload(body, testSecret, now)
		event, err := verifyWebhookSignatureAt(body, header, testSecret, now)
		require.NoError(t, err)
		require.Equal(t, EventCheckoutCompleted, event.Type)
		require.Equal(t, "cs_123", event.Data.Object.ID)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		t.Parallel()
		header := SignWebhookPayload(body, "whsec_other", now)
		_, err := verifyWebhookSignatureAt(body, header, testSecret, now)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("tampered_body", func(t *testing.T) {
		t.Parallel()
		header := SignWebhookPayload(body, testSecret, now)
		tampered := append([]byte(nil), body...)
		tampered[len(tampered)-2] = '4'
		_, err := verifyWebhookSignatureAt(tampered, header, testSecret, now)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("stale_timestamp", func(t *testing.T) {
		t.Parallel()
		signed := now.Add(-SignatureTolerance - time.Minute)
		header := SignWebhookPayload(body, testSecret, signed)
		_, err := verifyWebhookSignatureAt(body, header, testSecret, now)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("empty_header", func(t *testing.T) {
		t.Parallel()
		_, err := verifyWebhookSignatureAt(body, "", testSecret, now)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("garbage_header", func(t *testing.T) {
		t.Parallel()
		_, err := verifyWebhookSignatureAt(body, "t=abc,v1=zzz", testSecret, now)
		require.ErrorIs(t, err, ErrBadSignature)
	})
}
