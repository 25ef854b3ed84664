/**
 * @description
 * This file implements the JWT token issuer for the banking service. Access
 * tokens are short-lived HS256 tokens carrying the customer identity; refresh
 * tokens are longer-lived and carry a unique JTI so individual tokens can be
 * revoked and rotated server-side.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT signing and parsing.
 * - github.com/google/uuid: JTI generation.
 */

package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tsb/banking-service/internal/domain"
)

// refreshTokenType marks refresh tokens so they cannot be used as access tokens.
const refreshTokenType = "refresh"

// ErrInvalidToken is returned for tokens that fail signature, expiry, or type checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the validated identity extracted from an access token.
type AccessClaims struct {
	Username   string
	CustomerID uuid.UUID
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenIssuer signs and verifies HS256 tokens with a shared secret.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer builds a TokenIssuer. The secret is expected base64-encoded,
// matching how it is provisioned in the environment.
func NewTokenIssuer(base64Secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT secret: %w", err)
	}
	if len(key) < 32 {
		return nil, errors.New("JWT secret must be at least 32 bytes")
	}
	return &TokenIssuer{
		key:        key,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccessToken signs a short-lived access token for the user.
func (t *TokenIssuer) IssueAccessToken(user *domain.User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": user.Username,
		"cid": user.CustomerID.String(),
		"iss": t.issuer,
		"iat": now.Unix(),
		"exp": now.Add(t.accessTTL).Unix(),
	}
	if len(user.Roles) > 0 {
		claims["roles"] = user.Roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// IssueRefreshToken signs a refresh token and returns it together with its JTI
// and expiry so the caller can persist the rotation record.
func (t *TokenIssuer) IssueRefreshToken(user *domain.User, now time.Time) (string, string, time.Time, error) {
	jti := uuid.New().String()
	expiresAt := now.Add(t.refreshTTL)
	claims := jwt.MapClaims{
		"sub": user.Username,
		"cid": user.CustomerID.String(),
		"iss": t.issuer,
		"jti": jti,
		"typ": refreshTokenType,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// ParseAccessToken validates an access token and extracts the caller identity.
// Refresh tokens are rejected here.
func (t *TokenIssuer) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if typ, _ := claims["typ"].(string); typ == refreshTokenType {
		return nil, ErrInvalidToken
	}
	username, _ := claims["sub"].(string)
	cid, _ := claims["cid"].(string)
	customerID, err := uuid.Parse(cid)
	if err != nil || username == "" {
		return nil, ErrInvalidToken
	}
	return &AccessClaims{Username: username, CustomerID: customerID}, nil
}

// ParseRefreshToken validates a refresh token and returns its JTI.
func (t *TokenIssuer) ParseRefreshToken(tokenString string) (string, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return "", err
	}
	if typ, _ := claims["typ"].(string); typ != refreshTokenType {
		return "", ErrInvalidToken
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return "", ErrInvalidToken
	}
	return jti, nil
}

func (t *TokenIssuer) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
