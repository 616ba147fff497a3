package models

import "time"

type User struct {
	UserID         string    `json:"id" db:"user_id"`
	ExternalAuthID string    `json:"external_auth_id" db:"external_auth_id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Phone          *string   `json:"phone,omitempty" db:"phone"`
	Dob            time.Time `json:"dob" db:"dob"`
	AvatarURL      *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// UserPreview is the part of a user rendered next to chats and messages.
type UserPreview struct {
	UserID    string  `json:"id" db:"user_id"`
	Name      string  `json:"name" db:"name"`
	Email     string  `json:"email,omitempty" db:"email"`
	AvatarURL *string `json:"avatar_url,omitempty" db:"avatar_url"`
}

func (u *User) Preview() UserPreview {
	return UserPreview{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}
}

// IdentityUser is what the identity provider reports on user creation.
type IdentityUser struct {
	ExternalAuthID string     `json:"external_auth_id" validate:"required"`
	Name           string     `json:"name"`
	Email          string     `json:"email" validate:"required,email"`
	Phone          *string    `json:"phone,omitempty"`
	Dob            *time.Time `json:"dob,omitempty"`
	AvatarURL      *string    `json:"avatar_url,omitempty" validate:"omitempty,url"`
}
