package httpapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of a kiosk bearer token.
const DefaultTokenTTL = 5 * time.Minute

// Claims identifies the kiosk calling the API.
type Claims struct {
	KioskID string `json:"kiosk_id"`
	jwt.RegisteredClaims
}

// Signer issues short-lived HS256 bearer tokens for one kiosk.
type Signer struct {
	secret  []byte
	kioskID string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner returns a Signer. A zero ttl uses DefaultTokenTTL.
func NewSigner(secret, kioskID string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{secret: []byte(secret), kioskID: kioskID, ttl: ttl, now: time.Now}
}

// Token issues a new token.
func (s *Signer) Token() (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token: signing key is required")
	}

	now := s.now().UTC()
	claims := Claims{
		KioskID: s.kioskID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.kioskID,
			Issuer:    "gastmeting",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token issued with secret and returns its claims.
func Verify(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("token: unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("token: invalid claims")
}
