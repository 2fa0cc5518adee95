package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// tokenScheme versions the access-token format so the signing scheme can
// rotate without every outstanding token becoming ambiguous.
const tokenScheme = "qbt1"

// clockSkewLeeway absorbs small clock drift between the issuing and the
// verifying host when checking iat and exp.
const clockSkewLeeway = 30 * time.Second

// Claims is the access-token payload. Sub is the user ID, Name the
// display name echoed into sessions, JTI the revocation handle.
type Claims struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	JTI      string `json:"jti"`
	IssuedAt int64  `json:"iat"`
	Exp      int64  `json:"exp"`
}

// NewClaims stamps a claim set for a user session expiring after ttl.
func NewClaims(userID, displayName, jti string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Sub:      userID,
		Name:     displayName,
		JTI:      jti,
		IssuedAt: now.Unix(),
		Exp:      now.Add(ttl).Unix(),
	}
}

// ExpiresAt returns the expiry as a time for session bookkeeping.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

func (c Claims) validate(now time.Time) error {
	if c.Sub == "" || c.Name == "" || c.JTI == "" || c.Exp == 0 || c.IssuedAt == 0 {
		return ErrInvalidToken
	}
	if time.Unix(c.IssuedAt, 0).After(now.Add(clockSkewLeeway)) {
		return ErrInvalidToken
	}
	if !now.Before(time.Unix(c.Exp, 0).Add(clockSkewLeeway)) {
		return ErrExpiredToken
	}
	return nil
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken serializes claims into a signed token of the form
// "qbt1.<payload>.<signature>" with base64url payload and HMAC-SHA256
// signature.
func IssueToken(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return tokenScheme + "." + payload + "." + signature, nil
}

// ParseToken verifies the scheme, signature, and claim validity windows.
// The signature check runs before the payload is decoded.
func ParseToken(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != tokenScheme {
		return Claims{}, ErrInvalidToken
	}
	payload := parts[1]
	signature := parts[2]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if err := claims.validate(time.Now()); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

// HashToken is the storage form of refresh tokens; only the hash is
// persisted so a database leak does not leak live sessions.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
