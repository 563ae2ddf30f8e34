package model

import "time"

// User represents a registered user account.
//
// Accounts come from two places: the register form (username + password)
// and, when configured, GitHub sign-in. GitHubID is nil for the first kind.
// It is a pointer rather than 0-means-unset because the column is UNIQUE
// and SQL only lets many rows share NULL, not many rows share 0.
//
// WHY json:"-" ON PasswordHash?
// The same struct is returned by GET /api/account/me. The "-" tag makes
// encoding/json skip the field entirely, so the bcrypt hash can never end
// up in a response by accident.
type User struct {
	ID           int64     `json:"id"          db:"id"`
	Username     string    `json:"username"    db:"username"`
	Email        string    `json:"email"       db:"email"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	FirstName    string    `json:"firstName"   db:"first_name"`
	LastName     string    `json:"lastName"    db:"last_name"`
	PhoneNumber  string    `json:"phoneNumber,omitempty" db:"phone_number"`
	Location     string    `json:"location,omitempty"    db:"location"`
	AboutMe      string    `json:"aboutMe,omitempty"     db:"about_me"`
	GitHubID     *int64    `json:"githubId,omitempty"    db:"github_id"`
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"   db:"updated_at"`
}
