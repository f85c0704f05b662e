package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an account created by the Google sign-in flow.
type User struct {
	ID           uuid.UUID  `json:"id"`
	GoogleID     string     `json:"googleId"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"displayName"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"` // empty when Google never issued one
	TokenExpiry  *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// GoogleProfile is what the OAuth callback learns about the signed-in account.
type GoogleProfile struct {
	GoogleID    string
	Email       string
	DisplayName string
}

// Credentials are the Google tokens stored for a user.
type Credentials struct {
	AccessToken  string
	RefreshToken string // empty keeps the stored one
	Expiry       *time.Time
}
