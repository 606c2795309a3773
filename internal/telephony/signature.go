package telephony

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

const (
	HeaderSignature = "telnyx-signature-ed25519"
	HeaderTimestamp = "telnyx-timestamp"
)

var (
	ErrSignatureMissing = errors.New("telephony: webhook signature missing")
	ErrSignatureInvalid = errors.New("telephony: webhook signature invalid")
	ErrSignatureStale   = errors.New("telephony: webhook timestamp outside tolerance")
)

// SignatureVerifier checks ed25519 webhook signatures over "timestamp|body".
type SignatureVerifier struct {
	publicKey ed25519.PublicKey
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier parses a base64 public key. An empty key returns (nil, nil):
// verification is disabled.
func NewSignatureVerifier(publicKeyB64 string, tolerance time.Duration) (*SignatureVerifier, error) {
	if publicKeyB64 == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("telephony: public key must be 32 bytes")
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &SignatureVerifier{publicKey: ed25519.PublicKey(key), tolerance: tolerance, now: time.Now}, nil
}

func (v *SignatureVerifier) Verify(signatureB64, timestamp string, body []byte) error {
	if signatureB64 == "" || timestamp == "" {
		return ErrSignatureMissing
	}
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	age := v.now().Sub(time.Unix(sec, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return ErrSignatureStale
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrSignatureInvalid
	}
	msg := make([]byte, 0, len(timestamp)+1+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, '|')
	msg = append(msg, body...)
	if !ed25519.Verify(v.publicKey, msg, sig) {
		return ErrSignatureInvalid
	}
	return nil
}
