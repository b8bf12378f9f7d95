package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// LoginRequest is the validated input for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// RegisterRequest is the validated input for self sign-up.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Ref      string `json:"ref" validate:"omitempty,len=8,alphanum"` // referral code of the referrer
}

// LoginResponse is the API response after successful login.
type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

// LoginUser is the user info returned after login.
type LoginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// User represents a registered affiliate or admin.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Password     string    `json:"-"` // bcrypt hash, never serialized
	Role         string    `json:"role"`
	Username     string    `json:"username"`
	ReferralCode string    `json:"referralCode"`
	Plan         string    `json:"plan"`
	PayoutEmail  string    `json:"-"` // encrypted at rest
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateUserRequest is the validated input for creating a user (admin).
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"omitempty,min=3,max=32,alphanum"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// UserResponse is the safe API response for a user (no password).
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Username     string    `json:"username"`
	ReferralCode string    `json:"referralCode"`
	Plan         string    `json:"plan"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToResponse strips secrets from a user.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Username:     u.Username,
		ReferralCode: u.ReferralCode,
		Plan:         u.Plan,
		CreatedAt:    u.CreatedAt,
	}
}

// NewUserID generates a new UUID for a user.
func NewUserID() string {
	return uuid.New().String()
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReferralCode returns an 8 character code without ambiguous glyphs.
func NewReferralCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	var sb strings.Builder
	for _, b := range buf {
		sb.WriteByte(referralAlphabet[int(b)%len(referralAlphabet)])
	}
	return sb.String()
}
