// Package models defines server-side data models persisted by the
// credential store.
package models

import (
	"io"
	"time"
)

// Account is one registered user. Secret fields carry json:"-" so that an
// Account can be serialized into a response as-is without leaking them.
type Account struct {
	ID          string `json:"id" bson:"_id"`
	FullName    string `json:"fullName" bson:"full_name"`
	Username    string `json:"username" bson:"username"`
	Email       string `json:"email" bson:"email"`
	Phone       string `json:"phone" bson:"phone"`
	CompanyName string `json:"companyName" bson:"company_name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	AvatarURL   string `json:"avatar" bson:"avatar_url"`

	IsVerified   bool   `json:"isVerified" bson:"is_verified"`
	PendingEmail string `json:"pendingEmail,omitempty" bson:"pending_email,omitempty"`

	PasswordHash string `json:"-" bson:"password_hash"`

	VerificationToken          string     `json:"-" bson:"verification_token,omitempty"`
	VerificationTokenExpiresAt *time.Time `json:"-" bson:"verification_token_expires_at,omitempty"`

	ResetPasswordToken          string     `json:"-" bson:"reset_password_token,omitempty"`
	ResetPasswordTokenExpiresAt *time.Time `json:"-" bson:"reset_password_token_expires_at,omitempty"`

	// RefreshTokenHash is the fingerprint of the only live refresh token.
	RefreshTokenHash string `json:"-" bson:"refresh_token_hash,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Public returns a copy with every secret field zeroed.
func (a Account) Public() Account {
	a.PasswordHash = ""
	a.VerificationToken = ""
	a.VerificationTokenExpiresAt = nil
	a.ResetPasswordToken = ""
	a.ResetPasswordTokenExpiresAt = nil
	a.RefreshTokenHash = ""
	return a
}

// AccountPatch is a partial update. Nil fields are left untouched; a non-nil
// pointer to the zero value clears the column.
type AccountPatch struct {
	FullName    *string
	Username    *string
	Email       *string
	Phone       *string
	CompanyName *string
	Description *string
	AvatarURL   *string

	IsVerified   *bool
	PendingEmail *string
	PasswordHash *string

	VerificationToken          *string
	VerificationTokenExpiresAt *time.Time

	ResetPasswordToken          *string
	ResetPasswordTokenExpiresAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p == AccountPatch{}
}

// Avatar is an uploaded profile picture on its way to the asset store.
type Avatar struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
