package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
)

// base64 of a 32-byte test secret.
const testJWTSecret = "dGhpcy1pcy1hLTMyLWJ5dGUtdGVzdC1zZWNyZXQhISE="

// credStore is an in-memory stub for the user and credential methods.
type credStore struct {
	store.Repository

	users   map[uuid.UUID]*domain.User
	refresh map[string]*domain.RefreshToken
	otp     []*domain.OTPToken
}

func newCredStore() *credStore {
	return &credStore{
		users:   make(map[uuid.UUID]*domain.User),
		refresh: make(map[string]*domain.RefreshToken),
	}
}

func (c *credStore) addUser(username, password, phone string) *domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	user := &domain.User{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		Phone:        phone,
		PasswordHash: string(hash),
	}
	c.users[user.ID] = user
	return user
}

func (c *credStore) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, ok := c.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (c *credStore) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, user := range c.users {
		if strings.EqualFold(user.Username, strings.TrimSpace(username)) {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (c *credStore) FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	for _, user := range c.users {
		if strings.EqualFold(user.Username, identifier) ||
			strings.EqualFold(user.Email, identifier) ||
			user.Phone == identifier {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (c *credStore) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	user, ok := c.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (c *credStore) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	copied := *token
	c.refresh[token.JTI] = &copied
	return nil
}

func (c *credStore) FindRefreshTokenByJTI(ctx context.Context, jti string) (*domain.RefreshToken, error) {
	token, ok := c.refresh[jti]
	if !ok {
		return nil, store.ErrRefreshTokenNotFound
	}
	return token, nil
}

func (c *credStore) RevokeRefreshToken(ctx context.Context, jti string, replacedByJTI *string) error {
	token, ok := c.refresh[jti]
	if !ok {
		return store.ErrRefreshTokenNotFound
	}
	token.Revoked = true
	token.ReplacedByJTI = replacedByJTI
	return nil
}

func (c *credStore) CreateOTPToken(ctx context.Context, token *domain.OTPToken) error {
	copied := *token
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	c.otp = append(c.otp, &copied)
	return nil
}

func (c *credStore) FindLatestActiveOTPToken(ctx context.Context, userID uuid.UUID, purpose string) (*domain.OTPToken, error) {
	for i := len(c.otp) - 1; i >= 0; i-- {
		token := c.otp[i]
		if token.UserID == userID && token.Purpose == purpose && !token.Consumed {
			return token, nil
		}
	}
	return nil, store.ErrOTPTokenNotFound
}

func (c *credStore) MarkOTPTokenConsumed(ctx context.Context, tokenID uuid.UUID) error {
	for _, token := range c.otp {
		if token.ID == tokenID {
			token.Consumed = true
			return nil
		}
	}
	return store.ErrOTPTokenNotFound
}

func (c *credStore) UpdateOTPTokenAttempts(ctx context.Context, tokenID uuid.UUID, attempts int) error {
	for _, token := range c.otp {
		if token.ID == tokenID {
			token.Attempts = attempts
			return nil
		}
	}
	return store.ErrOTPTokenNotFound
}

func (c *credStore) CountOTPTokensSince(ctx context.Context, destination, purpose string, since time.Time) (int64, error) {
	var count int64
	for _, token := range c.otp {
		if token.Destination == destination && token.Purpose == purpose && !token.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	tokens, err := NewTokenIssuer(testJWTSecret, "banking-service-test", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return tokens
}

func TestLoginIssuesVerifiableTokenPair(t *testing.T) {
	repo := newCredStore()
	user := repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	pair, err := auth.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected token metadata: %+v", pair)
	}

	claims, err := auth.Tokens().ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.Username != "alice" || claims.CustomerID != user.CustomerID {
		t.Fatalf("claims = %+v, want alice/%s", claims, user.CustomerID)
	}

	if _, err := auth.Tokens().ParseAccessToken(pair.RefreshToken); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := newCredStore()
	repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	if _, err := auth.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() with wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(context.Background(), "mallory", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() for unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	repo := newCredStore()
	repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	pair, err := auth.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	oldJTI, err := auth.Tokens().ParseRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error = %v", err)
	}

	rotated, err := auth.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}

	oldRecord := repo.refresh[oldJTI]
	if !oldRecord.Revoked {
		t.Fatal("consumed refresh token was not revoked")
	}
	if oldRecord.ReplacedByJTI == nil {
		t.Fatal("consumed refresh token not linked to its replacement")
	}
	if _, ok := repo.refresh[*oldRecord.ReplacedByJTI]; !ok {
		t.Fatal("replacement refresh token was not persisted")
	}

	// Reusing the consumed token must fail.
	if _, err := auth.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reused refresh token error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRejectsExpiredRecord(t *testing.T) {
	repo := newCredStore()
	repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	pair, err := auth.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	jti, err := auth.Tokens().ParseRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefreshToken() error = %v", err)
	}
	repo.refresh[jti].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	if _, err := auth.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expired refresh error = %v, want ErrInvalidCredentials", err)
	}
}

func TestUpdatePasswordRejectsWeakPassword(t *testing.T) {
	repo := newCredStore()
	user := repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	err := auth.UpdatePassword(context.Background(), user, "short")
	bizErr, ok := domain.AsBusinessError(err)
	if !ok || bizErr.Code != domain.CodeWeakPassword {
		t.Fatalf("UpdatePassword() error = %v, want WEAK_PASSWORD", err)
	}
}

func TestUpdatePasswordStoresNewHash(t *testing.T) {
	repo := newCredStore()
	user := repo.addUser("alice", "correct horse battery", "")
	auth := NewAuthService(repo, newTestIssuer(t), zap.NewNop())

	if err := auth.UpdatePassword(context.Background(), user, "a new long password"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("a new long password")); err != nil {
		t.Fatalf("stored hash does not match new password: %v", err)
	}
}
