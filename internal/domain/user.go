package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a login principal tied to a customer. Roles are comma-separated,
// e.g. "ROLE_USER,ROLE_ADMIN".
type User struct {
	ID           uuid.UUID `json:"id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Roles        string    `json:"roles"`
}

// RefreshToken tracks one issued refresh JWT by its JTI so rotation can
// revoke the old token and link it to its replacement.
type RefreshToken struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	JTI           string    `json:"jti"`
	ExpiresAt     time.Time `json:"expires_at"`
	Revoked       bool      `json:"revoked"`
	ReplacedByJTI *string   `json:"replaced_by_jti,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OTPPurposePasswordReset is currently the only OTP purpose.
const OTPPurposePasswordReset = "PASSWORD_RESET"

// OTPToken is a one-time SMS code. Only the SHA-256 hash of the code is
// stored; the token is consumed on success, expiry, or attempt lockout.
type OTPToken struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Destination string    `json:"destination"`
	CodeHash    string    `json:"-"`
	Purpose     string    `json:"purpose"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}
