package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/htmlshot/htmlshot/pkg/models"
)

// ErrInvalidCredential covers every credential failure: malformed,
// expired, revoked, wrong signature, unknown key. Callers cannot
// distinguish them, which is the point.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims is the signed payload of a bearer token.
type Claims struct {
	UserID  int64  `json:"uid"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. Symmetric signing
// is fine here: issuer and verifier are the same process.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	revocations RevocationStore
}

func NewTokenService(secret string, ttl time.Duration, revocations RevocationStore) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, revocations: revocations}
}

// Issue signs the principal into a token expiring after the configured TTL.
func (s *TokenService) Issue(p models.Principal) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:  p.ID,
		Email:   p.Email,
		IsAdmin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry, then the revocation store. Any
// failure returns ErrInvalidCredential.
func (s *TokenService) Verify(ctx context.Context, token string) (*models.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	revoked, err := s.revocations.IsRevoked(ctx, TokenHash(token))
	if err != nil || revoked {
		return nil, ErrInvalidCredential
	}

	return &models.Principal{ID: claims.UserID, Email: claims.Email, IsAdmin: claims.IsAdmin}, nil
}

// Revoke records the token's hash until its natural expiry. Tokens that
// fail to parse are treated as already invalid and revoking them is a
// no-op; revoking an expired token is harmless.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return s.secret, nil
	})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil {
		return nil
	}
	return s.revocations.Revoke(ctx, TokenHash(token), claims.ExpiresAt.Time)
}

// TokenHash returns the sha256 hex digest of a token. Revocations are
// stored by hash so the store never holds raw credentials.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
