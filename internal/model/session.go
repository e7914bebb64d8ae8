package model

import "time"

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FamilyID     string    `json:"family_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is a signed-in device. MemberID is the member currently acting on it.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	FamilyID  string    `json:"family_id"`
	MemberID  string    `json:"member_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PasswordReset is a short numeric code that lets an account set a new password.
type PasswordReset struct {
	ID        string
	AccountID string
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	Attempts  int
}
