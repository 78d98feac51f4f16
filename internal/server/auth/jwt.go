package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType separates session tokens from single-purpose email tokens signed
// with the same key.
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypePasswordReset TokenType = "password_reset"
	TokenTypeActivation    TokenType = "activation"
)

// Claims is the JWT payload. Subject is the user id for access tokens and
// the email address for purpose tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"type"`
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret []byte) *TokenManager {
	return &TokenManager{secret: secret, now: time.Now}
}

// IssueAccessToken signs a session token for userID.
func (m *TokenManager) IssueAccessToken(userID string, ttl time.Duration) (string, error) {
	now := m.now()
	return m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypeAccess,
	})
}

// IssuePurposeToken signs a password-reset or activation token for email.
func (m *TokenManager) IssuePurposeToken(purpose TokenType, email string, ttl time.Duration) (string, error) {
	if purpose == TokenTypeAccess || purpose == "" {
		return "", errors.New("purpose token type required")
	}
	now := m.now()
	return m.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: purpose,
	})
}

// VerifyAccessToken returns the user id carried by a valid access token.
func (m *TokenManager) VerifyAccessToken(token string) (string, error) {
	return m.verify(token, TokenTypeAccess)
}

// VerifyPurposeToken returns the email carried by a valid token of the given purpose.
func (m *TokenManager) VerifyPurposeToken(purpose TokenType, token string) (string, error) {
	return m.verify(token, purpose)
}

func (m *TokenManager) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func (m *TokenManager) verify(tokenString string, want TokenType) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Type != want || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
