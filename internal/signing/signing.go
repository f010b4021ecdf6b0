// Package signing signs and verifies scanner callbacks with HMAC-SHA256.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature over the timestamp and body.
func (s *Signer) Sign(timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks signature and rejects timestamps further than ttl from now.
func (s *Signer) Validate(timestamp string, body []byte, signature string, ttl time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if ttl > 0 {
		age := s.now().Sub(time.Unix(ts, 0))
		if age > ttl || age < -ttl {
			return false
		}
	}
	expected := s.Sign(ts, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
