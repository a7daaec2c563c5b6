// Package payment verifies Razorpay checkout signatures.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingFields     = errors.New("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	ErrNotConfigured     = errors.New("payment key secret not configured")
)

// Verifier Razorpay 결제 서명 검증기
type Verifier struct {
	secret []byte
}

func NewVerifier(keySecret string) *Verifier {
	return &Verifier{secret: []byte(keySecret)}
}

// Sign orderID|paymentID 의 hex HMAC-SHA256
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 서명 재계산 후 상수 시간 비교
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	if len(v.secret) == 0 {
		return ErrNotConfigured
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrMissingFields
	}

	expected := v.Sign(orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}
