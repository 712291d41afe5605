// Package models defines the data the CLI receives from the erpkeeper API.
package models

import "time"

// Account is the public view of a user as returned by the API.
type Account struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	CompanyName  string    `json:"companyName"`
	Description  string    `json:"description,omitempty"`
	AvatarURL    string    `json:"avatar"`
	IsVerified   bool      `json:"isVerified"`
	PendingEmail string    `json:"pendingEmail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Registration is the sign-up form. AvatarPath names a local image file.
type Registration struct {
	FullName        string
	Username        string
	Email           string
	Phone           string
	CompanyName     string
	Password        string
	ConfirmPassword string
	AvatarPath      string
}
