package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const accessTokenType = "access"

type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies access tokens. The signing key and lifetime
// are fixed for the lifetime of the manager.
type JWTManager struct {
	issuer    string
	audience  string
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewJWTManager(issuer, audience, secret string, accessTTL time.Duration, now func() time.Time) *JWTManager {
	if now == nil {
		now = time.Now
	}
	return &JWTManager{
		issuer:    issuer,
		audience:  audience,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       now,
	}
}

func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

func (m *JWTManager) SignAccessToken(userID uint) (string, error) {
	issuedAt := m.now()
	claims := Claims{
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  []string{m.audience},
			// Rejected from the exp second onward: now == exp is already expired.
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != accessTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	return claims, nil
}

// VerifyAccessToken returns the subject user id of a valid access token.
func (m *JWTManager) VerifyAccessToken(raw string) (uint, error) {
	claims, err := m.ParseAccessToken(raw)
	if err != nil {
		return 0, err
	}
	userID, err := ParseUserID(claims.Subject)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func ParseUserID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}
	return uint(id), nil
}
